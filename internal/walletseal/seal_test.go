package walletseal

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomKeyHex(t *testing.T) string {
	t.Helper()
	var raw [KeySize]byte
	_, err := rand.Read(raw[:])
	require.NoError(t, err)
	return hexEncode(raw[:])
}

func TestSealOpen_RoundTrip(t *testing.T) {
	key, err := Key(randomKeyHex(t))
	require.NoError(t, err)

	plaintext := []byte("a disposable solana private key")
	sealed, err := Seal(plaintext, key)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, sealed)

	opened, err := Open(sealed, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestOpen_WrongKeyFails(t *testing.T) {
	key, err := Key(randomKeyHex(t))
	require.NoError(t, err)
	other, err := Key(randomKeyHex(t))
	require.NoError(t, err)

	sealed, err := Seal([]byte("secret"), key)
	require.NoError(t, err)

	_, err = Open(sealed, other)
	assert.ErrorIs(t, err, ErrOpenFailed)
}

func TestOpen_TamperedCiphertextFails(t *testing.T) {
	key, err := Key(randomKeyHex(t))
	require.NoError(t, err)

	sealed, err := Seal([]byte("secret"), key)
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xFF

	_, err = Open(sealed, key)
	assert.ErrorIs(t, err, ErrOpenFailed)
}

func TestKey_RejectsWrongLength(t *testing.T) {
	_, err := Key("abcd")
	assert.Error(t, err)
}

func hexEncode(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0x0F]
	}
	return string(out)
}
