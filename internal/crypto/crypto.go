// Package crypto holds the fixed-size values the runtime passes around without interpreting.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const (
	// HashSize is the length of a Hash in bytes.
	HashSize = sha256.Size

	// PublicKeySize is the length of a PublicKey in bytes.
	PublicKeySize = 32
)

// Hash is an opaque 32-byte digest, e.g. a transaction hash.
type Hash [HashSize]byte

// HashOf returns the SHA-256 digest of data.
func HashOf(data []byte) Hash {
	return sha256.Sum256(data)
}

// String returns the lowercase hex form.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	return decodeFixed(h[:], text, "hash")
}

// PublicKey is an opaque 32-byte public key identifying a transaction author.
type PublicKey [PublicKeySize]byte

func (k PublicKey) String() string {
	return hex.EncodeToString(k[:])
}

// MarshalText implements encoding.TextMarshaler.
func (k PublicKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *PublicKey) UnmarshalText(text []byte) error {
	return decodeFixed(k[:], text, "public key")
}

func decodeFixed(dst []byte, text []byte, what string) error {
	if hex.DecodedLen(len(text)) != len(dst) {
		return fmt.Errorf("invalid %s length: want %d hex chars, got %d", what, 2*len(dst), len(text))
	}
	if _, err := hex.Decode(dst, text); err != nil {
		return fmt.Errorf("invalid %s: %w", what, err)
	}
	return nil
}
