// Package walletseal implements the seal(plaintext, key)/open(sealed, key)
// boundary spec §1 treats as an external collaborator's primitive: the
// disposable per-payment Solana private key is sealed exactly once (by the
// orchestrator, at record-creation time) and opened exactly once (by the
// bridge monitor, in stage 2).
package walletseal

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const KeySize = 32

var ErrOpenFailed = errors.New("walletseal: open failed (wrong key or corrupt ciphertext)")

// Key parses the hex-encoded 32-byte encryption.walletKey config value.
func Key(hexKey string) (*[KeySize]byte, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("walletseal: invalid hex key: %w", err)
	}
	if len(raw) != KeySize {
		return nil, fmt.Errorf("walletseal: key must be %d bytes, got %d", KeySize, len(raw))
	}
	var key [KeySize]byte
	copy(key[:], raw)
	return &key, nil
}

// Seal encrypts plaintext with a fresh random nonce, prepending the nonce
// to the ciphertext so Open is self-contained given only the key.
func Seal(plaintext []byte, key *[KeySize]byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("walletseal: generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, key), nil
}

// Open reverses Seal. It fails closed: any tampering with the ciphertext
// or a mismatched key returns ErrOpenFailed rather than partial plaintext.
func Open(sealed []byte, key *[KeySize]byte) ([]byte, error) {
	if len(sealed) < 24 {
		return nil, ErrOpenFailed
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])

	plaintext, ok := secretbox.Open(nil, sealed[24:], &nonce, key)
	if !ok {
		return nil, ErrOpenFailed
	}
	return plaintext, nil
}
