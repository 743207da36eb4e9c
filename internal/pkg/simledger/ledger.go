// Package simledger is an in-memory ledger running the escrow and the three game
// contracts. It backs the simulate command and the package tests.
package simledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vreid/arena/internal/pkg/arena"
	"github.com/vreid/arena/internal/pkg/commitment"
)

const DefaultPhaseTimeout = 5 * time.Minute

// Deployment holds the contract addresses of a ledger.
type Deployment struct {
	Escrow  ethcommon.Address
	RPS     ethcommon.Address
	Poker   ethcommon.Address
	Auction ethcommon.Address
}

var DefaultDeployment = Deployment{
	Escrow:  ethcommon.HexToAddress("0x00000000000000000000000000000000000e5c00"),
	RPS:     ethcommon.HexToAddress("0x0000000000000000000000000000000000005001"),
	Poker:   ethcommon.HexToAddress("0x0000000000000000000000000000000000005002"),
	Auction: ethcommon.HexToAddress("0x0000000000000000000000000000000000005003"),
}

var errFault = errors.New("429 Too Many Requests")

type match struct {
	arena.EscrowMatch

	winner ethcommon.Address
}

type Ledger struct {
	mu sync.Mutex

	deployment   Deployment
	phaseTimeout time.Duration
	now          func() time.Time

	matches []*match
	rps     []*rpsGame
	poker   []*pokerGame
	auction []*auctionGame

	block         uint64
	txs           uint64
	indexDisabled bool
	readFaults    int
	reads         int
}

func New() *Ledger {
	return &Ledger{
		deployment:   DefaultDeployment,
		phaseTimeout: DefaultPhaseTimeout,
		now:          time.Now,
	}
}

func (l *Ledger) Deployment() Deployment {
	return l.deployment
}

// SetClock replaces the ledger's notion of time, used for phase deadlines.
func (l *Ledger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.now = now
}

func (l *Ledger) SetPhaseTimeout(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.phaseTimeout = d
}

// DisableIndex makes every GameCreated log query fail, like a node without
// eth_getLogs support.
func (l *Ledger) DisableIndex() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.indexDisabled = true
}

// FailReads makes the next n reads fail with a rate-limit error.
func (l *Ledger) FailReads(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.readFaults = n
}

// Reads counts the view calls served so far.
func (l *Ledger) Reads() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.reads
}

// read must be called with l.mu held.
func (l *Ledger) read() error {
	l.reads++

	if l.readFaults > 0 {
		l.readFaults--

		return errFault
	}

	return nil
}

func (l *Ledger) deadline() time.Time {
	return l.now().Add(l.phaseTimeout)
}

func (l *Ledger) expired(deadline time.Time) bool {
	return l.now().After(deadline)
}

// receipt must be called with l.mu held.
func (l *Ledger) receipt() *arena.Receipt {
	l.txs++
	l.block++

	return &arena.Receipt{
		TxHash:      crypto.Keccak256Hash(txWord(l.txs)),
		GasUsed:     50_000,
		BlockNumber: l.block,
	}
}

func txWord(n uint64) []byte {
	return ethcommon.BigToHash(new(big.Int).SetUint64(n)).Bytes()
}

func reject(format string, args ...any) error {
	return fmt.Errorf("%w: execution reverted: %s", arena.ErrRejected, fmt.Sprintf(format, args...))
}

// CreateMatch opens a match from player1 against player2 on the given game contract.
func (l *Ledger) CreateMatch(player1, player2 ethcommon.Address, wager *big.Int, gameContract ethcommon.Address) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := uint64(len(l.matches))
	l.matches = append(l.matches, &match{EscrowMatch: arena.EscrowMatch{
		ID:           id,
		Player1:      player1,
		Player2:      player2,
		Wager:        new(big.Int).Set(wager),
		GameContract: gameContract,
		Status:       arena.MatchCreated,
		CreatedAt:    l.now().UTC(),
	}})

	return id
}

// CancelMatch marks an open match cancelled.
func (l *Ledger) CancelMatch(id uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, err := l.match(id)
	if err != nil {
		return err
	}

	if m.Status != arena.MatchCreated {
		return reject("match %d is %s", id, m.Status)
	}

	m.Status = arena.MatchCancelled

	return nil
}

func (l *Ledger) match(id uint64) (*match, error) {
	if id >= uint64(len(l.matches)) {
		return nil, reject("unknown match %d", id)
	}

	return l.matches[id], nil
}

// activeMatch returns the match a game may be created for by from.
func (l *Ledger) activeMatch(from ethcommon.Address, id uint64, contract ethcommon.Address) (*match, error) {
	m, err := l.match(id)
	if err != nil {
		return nil, err
	}

	if m.Status != arena.MatchActive {
		return nil, reject("match %d is %s", id, m.Status)
	}

	if m.GameContract != contract {
		return nil, reject("match %d belongs to another game", id)
	}

	if _, ok := m.Seat(from); !ok {
		return nil, reject("not a player of match %d", id)
	}

	return m, nil
}

// settle must be called with l.mu held. A zero winner is a draw.
func (l *Ledger) settle(matchID uint64, winner ethcommon.Address) {
	m := l.matches[matchID]
	m.Status = arena.MatchSettled
	m.winner = winner
}

// Session returns the contract views used by the wallet from.
func (l *Ledger) Session(from ethcommon.Address) *Session {
	return &Session{l: l, from: from}
}

type Session struct {
	l    *Ledger
	from ethcommon.Address
}

func (s *Session) Escrow() arena.Escrow { return &escrowView{s} }

func (s *Session) RPS() arena.RPSContract { return &rpsView{gameIndex{s, arena.VariantRPS}} }

func (s *Session) Poker() arena.PokerContract { return &pokerView{gameIndex{s, arena.VariantPoker}} }

func (s *Session) Auction() arena.AuctionContract {
	return &auctionView{gameIndex{s, arena.VariantAuction}}
}

// Games returns the three game views keyed by contract address.
func (s *Session) Games() map[ethcommon.Address]arena.GameContract {
	d := s.l.deployment

	return map[ethcommon.Address]arena.GameContract{
		d.RPS:     s.RPS(),
		d.Poker:   s.Poker(),
		d.Auction: s.Auction(),
	}
}

type escrowView struct{ *Session }

func (v *escrowView) Address() ethcommon.Address { return v.l.deployment.Escrow }

func (v *escrowView) GetMatch(_ context.Context, matchID uint64) (*arena.EscrowMatch, error) {
	v.l.mu.Lock()
	defer v.l.mu.Unlock()

	err := v.l.read()
	if err != nil {
		return nil, err
	}

	if matchID >= uint64(len(v.l.matches)) {
		return &arena.EscrowMatch{ID: matchID, Wager: new(big.Int)}, nil
	}

	m := v.l.matches[matchID].EscrowMatch
	m.Wager = new(big.Int).Set(m.Wager)

	return &m, nil
}

func (v *escrowView) GetWinner(_ context.Context, matchID uint64) (ethcommon.Address, error) {
	v.l.mu.Lock()
	defer v.l.mu.Unlock()

	err := v.l.read()
	if err != nil {
		return ethcommon.Address{}, err
	}

	if matchID >= uint64(len(v.l.matches)) {
		return ethcommon.Address{}, nil
	}

	return v.l.matches[matchID].winner, nil
}

func (v *escrowView) NextMatchID(context.Context) (uint64, error) {
	v.l.mu.Lock()
	defer v.l.mu.Unlock()

	err := v.l.read()
	if err != nil {
		return 0, err
	}

	return uint64(len(v.l.matches)), nil
}

func (v *escrowView) AcceptMatch(_ context.Context, matchID uint64, wager *big.Int) (*arena.Receipt, error) {
	v.l.mu.Lock()
	defer v.l.mu.Unlock()

	m, err := v.l.match(matchID)
	if err != nil {
		return nil, err
	}

	switch {
	case m.Status != arena.MatchCreated:
		return nil, reject("match %d is %s", matchID, m.Status)
	case m.Player2 != v.from:
		return nil, reject("only the invited player can accept")
	case wager == nil || wager.Cmp(m.Wager) != 0:
		return nil, reject("wager mismatch")
	}

	m.Status = arena.MatchActive

	return v.l.receipt(), nil
}

// gameIndex serves the lookups every game contract shares.
type gameIndex struct {
	*Session

	variant arena.Variant
}

func (g gameIndex) Address() ethcommon.Address {
	switch g.variant {
	case arena.VariantRPS:
		return g.l.deployment.RPS
	case arena.VariantPoker:
		return g.l.deployment.Poker
	default:
		return g.l.deployment.Auction
	}
}

func (g gameIndex) Variant() arena.Variant { return g.variant }

// matchIDs must be called with l.mu held.
func (g gameIndex) matchIDs() []uint64 {
	var ids []uint64

	switch g.variant {
	case arena.VariantRPS:
		for _, game := range g.l.rps {
			ids = append(ids, game.EscrowMatchID)
		}
	case arena.VariantPoker:
		for _, game := range g.l.poker {
			ids = append(ids, game.EscrowMatchID)
		}
	default:
		for _, game := range g.l.auction {
			ids = append(ids, game.EscrowMatchID)
		}
	}

	return ids
}

func (g gameIndex) FindGameCreated(_ context.Context, matchID uint64) (uint64, bool, error) {
	g.l.mu.Lock()
	defer g.l.mu.Unlock()

	if g.l.indexDisabled {
		return 0, false, fmt.Errorf("%w: eth_getLogs is not available", arena.ErrIndexUnsupported)
	}

	err := g.l.read()
	if err != nil {
		return 0, false, err
	}

	for gameID, m := range g.matchIDs() {
		if m == matchID {
			return uint64(gameID), true, nil
		}
	}

	return 0, false, nil
}

func (g gameIndex) NextGameID(context.Context) (uint64, error) {
	g.l.mu.Lock()
	defer g.l.mu.Unlock()

	err := g.l.read()
	if err != nil {
		return 0, err
	}

	return uint64(len(g.matchIDs())), nil
}

func (g gameIndex) GameMatchIDs(_ context.Context, gameIDs []uint64) ([]uint64, error) {
	g.l.mu.Lock()
	defer g.l.mu.Unlock()

	err := g.l.read()
	if err != nil {
		return nil, err
	}

	all := g.matchIDs()
	out := make([]uint64, len(gameIDs))

	for i, id := range gameIDs {
		if id < uint64(len(all)) {
			out[i] = all[id]
		}
	}

	return out, nil
}

// gameExists must be called with l.mu held.
func (g gameIndex) gameExists(matchID uint64) bool {
	for _, m := range g.matchIDs() {
		if m == matchID {
			return true
		}
	}

	return false
}

func opensValue(hash ethcommon.Hash, value uint8, salt [32]byte) bool {
	return commitment.VerifyValue(hash, value, commitment.Secret(salt))
}

func opensAmount(hash ethcommon.Hash, amount *big.Int, salt [32]byte) bool {
	return commitment.VerifyAmount(hash, amount, commitment.Secret(salt))
}
