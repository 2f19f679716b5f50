package record

import (
	"crypto/rand"
	"math/big"
)

const (
	objectIDLen   = 10
	objectIDChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

var objectIDCharsLen = big.NewInt(int64(len(objectIDChars)))

// NewObjectID returns a random 10 character alphanumeric id in the format
// Parse Server assigns to new records.
func NewObjectID() (string, error) {
	b := make([]byte, objectIDLen)
	for i := range b {
		n, err := rand.Int(rand.Reader, objectIDCharsLen)
		if err != nil {
			return "", err
		}
		b[i] = objectIDChars[n.Int64()]
	}
	return string(b), nil
}
