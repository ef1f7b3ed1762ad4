package crypto

import (
	"strings"
	"testing"
)

func TestGenerateReferralCode(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		code, err := GenerateReferralCode(8)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != 8 {
			t.Fatalf("expected 8 chars, got %q", code)
		}
		for _, r := range code {
			if !strings.ContainsRune(referralAlphabet, r) {
				t.Fatalf("unexpected rune %q in %q", r, code)
			}
		}
		seen[code] = struct{}{}
	}
	if len(seen) < 190 {
		t.Fatalf("codes are not random enough: %d unique of 200", len(seen))
	}

	if _, err := GenerateReferralCode(0); err == nil {
		t.Fatalf("expected error for zero length")
	}
}
