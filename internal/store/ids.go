package store

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const maxCreateAttempts = 8

// newIssueID draws a random candidate. Stores also treat every id they have
// removed as taken, so ids are never reused.
func newIssueID(prefix string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d", prefix, 100000+n.Int64()), nil
}
