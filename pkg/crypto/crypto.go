package crypto

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// referralAlphabet omits 0/O and 1/I.
const referralAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateReferralCode produces a random code of n characters from referralAlphabet.
func GenerateReferralCode(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("code length must be positive")
	}
	max := big.NewInt(int64(len(referralAlphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate random index: %w", err)
		}
		b[i] = referralAlphabet[idx.Int64()]
	}
	return string(b), nil
}
