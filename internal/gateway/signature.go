package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"

	"github.com/opencollect/donorbase/internal/gateway/domain"
)

// Verifier recomputes the callback digest and compares in constant time.
// The gateway signs the exact serialized body: hex(sha512(payload || secret)).
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Expected returns the digest the gateway should have sent for payload.
func (v *Verifier) Expected(payload []byte) string {
	sum := sha512.New()
	sum.Write(payload)
	sum.Write(v.secret)
	return hex.EncodeToString(sum.Sum(nil))
}

// Verify reports whether signature matches payload. A missing signature is
// malformed input and errors; a mismatch only returns false.
func (v *Verifier) Verify(payload []byte, signature string) (bool, error) {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return false, domain.ErrMissingSignature
	}
	expected := v.Expected(payload)
	return hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)), nil
}
