package binding

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/hkdf"
)

// KeyLength is the master and token key size in bytes.
const KeyLength = 32

// LoadOrGenerateKey reads the master key from disk, creating one with
// crypto/rand on first start. A key file of the wrong size is fatal, a
// truncated key must never sign tokens silently.
func LoadOrGenerateKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) != KeyLength {
			return nil, fmt.Errorf("key file %s holds %d bytes, want %d", path, len(data), KeyLength)
		}
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read key file: %v", err)
	}

	key := make([]byte, KeyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %v", err)
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("failed to persist key file: %v", err)
	}
	return key, nil
}

// DeriveTokenKey stretches the master key with HKDF-SHA256 so the HMAC
// key is never the raw key material stored on disk.
func DeriveTokenKey(master []byte) ([]byte, error) {
	h := hkdf.New(sha256.New, master, nil, []byte("qr-binding-token"))
	out := make([]byte, KeyLength)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, fmt.Errorf("failed to derive token key: %v", err)
	}
	return out, nil
}
