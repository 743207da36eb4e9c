// Package commitment builds commit-reveal hashes that match the game contracts'
// keccak256(abi.encodePacked(value, salt)) verification.
package commitment

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

const SecretSize = 32

var ErrInvalidAmount = errors.New("amount does not fit uint256")

type Secret [SecretSize]byte

func NewSecret() (Secret, error) {
	var s Secret

	_, err := rand.Read(s[:])
	if err != nil {
		return Secret{}, fmt.Errorf("failed to read random secret: %w", err)
	}

	return s, nil
}

func (s Secret) Hex() string {
	return hexutil.Encode(s[:])
}

func SecretFromHex(h string) (Secret, error) {
	b, err := hexutil.Decode(h)
	if err != nil {
		return Secret{}, fmt.Errorf("failed to decode secret: %w", err)
	}

	if len(b) != SecretSize {
		return Secret{}, fmt.Errorf("secret has %d bytes, want %d", len(b), SecretSize)
	}

	var s Secret
	copy(s[:], b)

	return s, nil
}

// CommitValue hashes a uint8 value (move, hand rating) packed with the secret.
func CommitValue(value uint8, secret Secret) common.Hash {
	return keccak([]byte{value}, secret[:])
}

// CommitAmount hashes a uint256 amount (bid) packed with the secret.
func CommitAmount(amount *big.Int, secret Secret) (common.Hash, error) {
	word, err := amountWord(amount)
	if err != nil {
		return common.Hash{}, err
	}

	return keccak(word[:], secret[:]), nil
}

func VerifyValue(hash common.Hash, value uint8, secret Secret) bool {
	return CommitValue(value, secret) == hash
}

func VerifyAmount(hash common.Hash, amount *big.Int, secret Secret) bool {
	h, err := CommitAmount(amount, secret)

	return err == nil && h == hash
}

func amountWord(amount *big.Int) ([32]byte, error) {
	if amount == nil || amount.Sign() < 0 {
		return [32]byte{}, fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}

	u, overflow := uint256.FromBig(amount)
	if overflow {
		return [32]byte{}, fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}

	return u.Bytes32(), nil
}

func keccak(parts ...[]byte) common.Hash {
	d := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		d.Write(p)
	}

	return common.BytesToHash(d.Sum(nil))
}
