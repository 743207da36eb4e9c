package commitment_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vreid/arena/internal/pkg/commitment"
)

func TestCommitValueDeterministic(t *testing.T) {
	t.Parallel()

	secret, err := commitment.NewSecret()
	require.NoError(t, err)

	a := commitment.CommitValue(1, secret)
	b := commitment.CommitValue(1, secret)
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, commitment.CommitValue(2, secret))

	other, err := commitment.NewSecret()
	require.NoError(t, err)
	assert.NotEqual(t, secret, other)
	assert.NotEqual(t, a, commitment.CommitValue(1, other))
}

func TestCommitValueMatchesPackedEncoding(t *testing.T) {
	t.Parallel()

	var secret commitment.Secret
	for i := range secret {
		secret[i] = byte(i)
	}

	// abi.encodePacked(uint8, bytes32) is 1 + 32 bytes.
	packed := append([]byte{3}, secret[:]...)
	assert.Equal(t, crypto.Keccak256Hash(packed), commitment.CommitValue(3, secret))
	assert.True(t, commitment.VerifyValue(crypto.Keccak256Hash(packed), 3, secret))
	assert.False(t, commitment.VerifyValue(crypto.Keccak256Hash(packed), 2, secret))
}

func TestCommitAmountMatchesPackedEncoding(t *testing.T) {
	t.Parallel()

	secret, err := commitment.NewSecret()
	require.NoError(t, err)

	amount := big.NewInt(1_000_000_000_000_000)

	h, err := commitment.CommitAmount(amount, secret)
	require.NoError(t, err)

	packed := append(common.LeftPadBytes(amount.Bytes(), 32), secret[:]...)
	assert.Equal(t, crypto.Keccak256Hash(packed), h)
	assert.True(t, commitment.VerifyAmount(h, amount, secret))
	assert.False(t, commitment.VerifyAmount(h, big.NewInt(1), secret))
}

func TestCommitAmountRejectsOutOfRange(t *testing.T) {
	t.Parallel()

	var secret commitment.Secret

	_, err := commitment.CommitAmount(big.NewInt(-1), secret)
	assert.ErrorIs(t, err, commitment.ErrInvalidAmount)

	tooBig := new(big.Int).Lsh(big.NewInt(1), 256)
	_, err = commitment.CommitAmount(tooBig, secret)
	assert.ErrorIs(t, err, commitment.ErrInvalidAmount)

	_, err = commitment.CommitAmount(nil, secret)
	assert.ErrorIs(t, err, commitment.ErrInvalidAmount)
}

func TestSecretHexRoundTrip(t *testing.T) {
	t.Parallel()

	secret, err := commitment.NewSecret()
	require.NoError(t, err)

	decoded, err := commitment.SecretFromHex(secret.Hex())
	require.NoError(t, err)
	assert.Equal(t, secret, decoded)

	_, err = commitment.SecretFromHex("0x1234")
	assert.Error(t, err)
}
