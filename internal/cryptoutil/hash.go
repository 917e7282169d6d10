package cryptoutil

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"io"
)

// ShortLen is how many hex characters of a digest go into logs, headers and asset urls
const ShortLen = 12

// ErrTooLarge is returned by ReadSHA256 when the input exceeds the limit
var ErrTooLarge = errors.New("input exceeds size limit")

// HashEqual compares two hex digests in constant time
func HashEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// SHA256Hex returns the lowercase hex sha256 of data
func SHA256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Short truncates a hex digest to ShortLen characters
func Short(h string) string {
	if len(h) > ShortLen {
		return h[:ShortLen]
	}
	return h
}

// ReadSHA256 reads at most maxSize bytes from r and returns them with their hex sha256.
// Inputs longer than maxSize fail with ErrTooLarge without being buffered in full.
func ReadSHA256(r io.Reader, maxSize int64) ([]byte, string, error) {
	h := sha256.New()
	data, err := io.ReadAll(io.TeeReader(io.LimitReader(r, maxSize+1), h))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > maxSize {
		return nil, "", ErrTooLarge
	}
	return data, hex.EncodeToString(h.Sum(nil)), nil
}
