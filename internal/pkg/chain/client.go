// Package chain binds the arena contracts over go-ethereum's JSON-RPC client.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync/atomic"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/samber/do/v2"
	"github.com/vreid/arena/internal/pkg/arena"
	"github.com/vreid/arena/internal/pkg/retry"
)

// Backend is the part of *ethclient.Client the bindings and the submitter use.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	PendingNonceAt(ctx context.Context, account ethcommon.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash ethcommon.Hash) (*types.Receipt, error)
}

// BatchCaller is implemented by *rpc.Client.
type BatchCaller interface {
	BatchCallContext(ctx context.Context, b []rpc.BatchElem) error
}

type Client struct {
	Backend

	rpc     *rpc.Client
	batch   BatchCaller
	noBatch atomic.Bool
}

func NewClientService(i do.Injector) (*Client, error) {
	url := do.MustInvokeNamed[string](i, "rpc-url")

	return Dial(context.Background(), url)
}

func Dial(ctx context.Context, url string) (*Client, error) {
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}

	return &Client{
		Backend: ethclient.NewClient(rc),
		rpc:     rc,
		batch:   rc,
	}, nil
}

// NewClient wraps an existing backend. A nil batch caller makes every multi-read
// sequential.
func NewClient(backend Backend, batch BatchCaller) *Client {
	c := &Client{Backend: backend, batch: batch}
	if batch == nil {
		c.noBatch.Store(true)
	}

	return c
}

func (c *Client) Shutdown() error {
	if c.rpc != nil {
		c.rpc.Close()
	}

	return nil
}

// CheckChainID fails when the node serves a different chain than expected.
func (c *Client) CheckChainID(ctx context.Context, expected uint64) error {
	id, err := c.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to read chain id: %w", err)
	}

	if !id.IsUint64() || id.Uint64() != expected {
		return fmt.Errorf("node serves chain %s, expected %d", id, expected)
	}

	return nil
}

type callRequest struct {
	to   ethcommon.Address
	data []byte
}

// callMany runs eth_call for every request, as one JSON-RPC batch when the node
// accepts batches. The first refused batch switches the client to sequential calls
// for good.
func (c *Client) callMany(ctx context.Context, reqs []callRequest) ([][]byte, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	if !c.noBatch.Load() {
		out, refused, err := c.callBatch(ctx, reqs)
		if !refused {
			return out, err
		}

		log.Warn("Batch eth_call refused, falling back to sequential reads", "err", err)
		c.noBatch.Store(true)
	}

	out := make([][]byte, len(reqs))

	for i, req := range reqs {
		res, err := c.CallContract(ctx, ethereum.CallMsg{To: &req.to, Data: req.data}, nil)
		if err != nil {
			//nolint:wrapcheck
			return nil, err
		}

		out[i] = res
	}

	return out, nil
}

// callBatch reports refused when the node does not serve batched calls at all.
func (c *Client) callBatch(ctx context.Context, reqs []callRequest) ([][]byte, bool, error) {
	results := make([]hexutil.Bytes, len(reqs))
	elems := make([]rpc.BatchElem, len(reqs))

	for i, req := range reqs {
		elems[i] = rpc.BatchElem{
			Method: "eth_call",
			Args: []any{
				map[string]any{"to": req.to, "input": hexutil.Bytes(req.data), "data": hexutil.Bytes(req.data)},
				"latest",
			},
			Result: &results[i],
		}
	}

	err := c.batch.BatchCallContext(ctx, elems)
	if err != nil {
		refused := ctx.Err() == nil && !retry.IsTransient(err)

		//nolint:wrapcheck
		return nil, refused, err
	}

	out := make([][]byte, len(reqs))

	for i, elem := range elems {
		switch {
		case elem.Error == nil:
			out[i] = results[i]
		case isMethodRefusal(elem.Error):
			return nil, true, elem.Error
		case isRevert(elem.Error):
			return nil, false, fmt.Errorf("batched eth_call %d: %w", i, elem.Error)
		default:
			return nil, false, fmt.Errorf("batched eth_call %d: %w", i, retry.Transient(elem.Error))
		}
	}

	return out, false, nil
}

// isMethodRefusal matches the errors nodes give when they do not serve batches.
func isMethodRefusal(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case -32601, -32600:
			return true
		}
	}

	msg := strings.ToLower(err.Error())

	return strings.Contains(msg, "batch") && (strings.Contains(msg, "not supported") || strings.Contains(msg, "disabled"))
}

// isRevert matches an execution revert surfaced by eth_call or eth_estimateGas.
func isRevert(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == 3 {
		return true
	}

	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

// contract is the shared plumbing of every binding.
type contract struct {
	client    *Client
	submitter *Submitter
	address   ethcommon.Address
	abi       abi.ABI
}

func newContract(client *Client, submitter *Submitter, address ethcommon.Address, definition string) contract {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(fmt.Sprintf("invalid contract abi: %v", err))
	}

	return contract{
		client:    client,
		submitter: submitter,
		address:   address,
		abi:       parsed,
	}
}

func (c *contract) Address() ethcommon.Address {
	return c.address
}

func (c *contract) pack(method string, args ...any) []byte {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		panic(fmt.Sprintf("failed to pack %s: %v", method, err))
	}

	return data
}

func (c *contract) call(ctx context.Context, method string, args ...any) ([]byte, error) {
	out, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: c.pack(method, args...)}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}

	return out, nil
}

// read calls a view method and copies its outputs into v (a struct pointer for
// tuples, or a pointer to the single return value).
func (c *contract) read(ctx context.Context, v any, method string, args ...any) error {
	out, err := c.call(ctx, method, args...)
	if err != nil {
		return err
	}

	return c.decode(v, method, out)
}

func (c *contract) decode(v any, method string, out []byte) error {
	err := c.abi.UnpackIntoInterface(v, method, out)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", method, err)
	}

	return nil
}

func (c *contract) readUint64(ctx context.Context, method string, args ...any) (uint64, error) {
	var out *big.Int

	err := c.read(ctx, &out, method, args...)
	if err != nil {
		return 0, err
	}

	return toUint64(out), nil
}

func (c *contract) transact(ctx context.Context, value *big.Int, method string, args ...any) (*arena.Receipt, error) {
	if c.submitter == nil {
		return nil, fmt.Errorf("cannot send %s: binding is read-only", method)
	}

	return c.submitter.Submit(ctx, c.address, c.pack(method, args...), value)
}

// findGameCreated serves the indexed lookup shared by the game bindings: the
// GameCreated event carries gameId and escrowMatchId as its first two topics.
func (c *contract) findGameCreated(ctx context.Context, fromBlock, matchID uint64) (uint64, bool, error) {
	event := c.abi.Events["GameCreated"]

	logs, err := c.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Addresses: []ethcommon.Address{c.address},
		Topics: [][]ethcommon.Hash{
			{event.ID},
			nil,
			{ethcommon.BigToHash(new(big.Int).SetUint64(matchID))},
		},
	})
	if err != nil {
		return 0, false, fmt.Errorf("%w: %w", arena.ErrIndexUnsupported, err)
	}

	for i := len(logs) - 1; i >= 0; i-- {
		l := logs[i]
		if l.Removed || len(l.Topics) < 3 || l.Topics[0] != event.ID {
			continue
		}

		if l.Topics[2].Big().Uint64() != matchID {
			continue
		}

		return l.Topics[1].Big().Uint64(), true, nil
	}

	return 0, false, nil
}

// createdGameID extracts the new instance id from a create-game receipt.
func (c *contract) createdGameID(receipt *arena.Receipt) (uint64, error) {
	event := c.abi.Events["GameCreated"]

	for _, l := range receipt.Logs {
		if l.Address == c.address && len(l.Topics) >= 2 && l.Topics[0] == event.ID {
			return l.Topics[1].Big().Uint64(), nil
		}
	}

	return 0, fmt.Errorf("receipt %s carries no GameCreated log", receipt.TxHash.Hex())
}

// gameMatchIDs reads the escrow match id (first output of getGame) of each game.
func (c *contract) gameMatchIDs(ctx context.Context, gameIDs []uint64) ([]uint64, error) {
	reqs := make([]callRequest, len(gameIDs))
	for i, id := range gameIDs {
		reqs[i] = callRequest{to: c.address, data: c.pack("getGame", new(big.Int).SetUint64(id))}
	}

	outs, err := c.client.callMany(ctx, reqs)
	if err != nil {
		return nil, fmt.Errorf("failed to read games: %w", err)
	}

	ids := make([]uint64, len(outs))

	for i, out := range outs {
		values, err := c.abi.Unpack("getGame", out)
		if err != nil {
			return nil, fmt.Errorf("failed to decode game %d: %w", gameIDs[i], err)
		}

		matchID, ok := values[0].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("unexpected getGame output %T", values[0])
		}

		ids[i] = toUint64(matchID)
	}

	return ids, nil
}

func toUint64(b *big.Int) uint64 {
	if b == nil || b.Sign() < 0 {
		return 0
	}

	if !b.IsUint64() {
		return ^uint64(0)
	}

	return b.Uint64()
}

func u256(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}
