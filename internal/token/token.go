// Package token issues and checks the stateless proofs carried in account
// links (email verification, password reset). A proof binds the user id, a
// purpose, an issue timestamp and a fingerprint of the mutable identity
// fields it certifies. Nothing is persisted: consuming a proof mutates the
// fingerprinted state, which is what makes every proof single-use.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Purpose string

const (
	PurposeVerifyEmail   Purpose = "verify_email"
	PurposeResetPassword Purpose = "reset_password"
)

// ErrMalformed covers every way a carrier or proof can fail to parse:
// truncation, bad encoding, embedded id overflow. Callers fold it into the
// same "invalid link" answer as a failed verification so the response never
// reveals why a link was rejected.
var ErrMalformed = errors.New("malformed account token")

type Codec struct {
	secret    []byte
	verifyTTL time.Duration
	resetTTL  time.Duration
	now       func() time.Time
}

func NewCodec(secret string, verifyTTL, resetTTL time.Duration) *Codec {
	return &Codec{
		secret:    []byte(secret),
		verifyTTL: verifyTTL,
		resetTTL:  resetTTL,
		now:       time.Now,
	}
}

// WithClock overrides the codec's time source. Test hook.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	c.now = now
	return c
}

// EncodeUID produces the reversible, URL-safe carrier of a user id.
func EncodeUID(id uint) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatUint(uint64(id), 10)))
}

// DecodeUID reverses EncodeUID. Garbage, truncated input and numeric
// overflow all come back as ErrMalformed; it never panics.
func DecodeUID(carrier string) (uint, error) {
	if carrier == "" {
		return 0, ErrMalformed
	}
	raw, err := base64.RawURLEncoding.DecodeString(carrier)
	if err != nil {
		return 0, ErrMalformed
	}
	id, err := strconv.ParseUint(string(raw), 10, 32)
	if err != nil || id == 0 {
		return 0, ErrMalformed
	}
	return uint(id), nil
}

// Issue signs a proof for the given user, purpose and state fingerprint.
// The proof is "<timestamp base36>-<mac base64url>".
func (c *Codec) Issue(userID uint, purpose Purpose, fingerprint []byte) string {
	ts := c.now().Unix()
	mac := c.sign(userID, purpose, fingerprint, ts)
	return strconv.FormatInt(ts, 36) + "-" + base64.RawURLEncoding.EncodeToString(mac)
}

// Verify recomputes the expected proof from current identity state and
// compares in constant time. Any mismatch, including expiry and parse
// failure, is false.
func (c *Codec) Verify(userID uint, purpose Purpose, fingerprint []byte, proof string) bool {
	tsPart, macPart, ok := strings.Cut(proof, "-")
	if !ok || tsPart == "" || macPart == "" {
		return false
	}
	ts, err := strconv.ParseInt(tsPart, 36, 64)
	if err != nil || ts <= 0 {
		return false
	}
	now := c.now()
	if ts > now.Unix() {
		return false
	}
	if now.Sub(time.Unix(ts, 0)) > c.ttl(purpose) {
		return false
	}
	got, err := base64.RawURLEncoding.DecodeString(macPart)
	if err != nil {
		return false
	}
	want := c.sign(userID, purpose, fingerprint, ts)
	return hmac.Equal(got, want)
}

func (c *Codec) ttl(purpose Purpose) time.Duration {
	if purpose == PurposeResetPassword {
		return c.resetTTL
	}
	return c.verifyTTL
}

func (c *Codec) sign(userID uint, purpose Purpose, fingerprint []byte, ts int64) []byte {
	mac := hmac.New(sha256.New, c.secret)
	fmt.Fprintf(mac, "%d\x00%s\x00%d\x00", userID, purpose, ts)
	mac.Write(fingerprint)
	return mac.Sum(nil)
}
