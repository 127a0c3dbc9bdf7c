package session

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"time"
)

// TokenBytes is the amount of randomness behind every proof token.
const TokenBytes = 16

// Rotator owns the proof token of a single session. It is not safe for
// concurrent use on its own; Session serializes access.
type Rotator struct {
	interval time.Duration
	random   io.Reader

	current  string
	previous string
	issuedAt time.Time
	frozen   bool
}

// NewRotator creates a rotator and issues its first token at now.
func NewRotator(interval time.Duration, now time.Time) (*Rotator, error) {
	return newRotator(interval, now, rand.Reader)
}

func newRotator(interval time.Duration, now time.Time, random io.Reader) (*Rotator, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("rotation interval must be positive, got %s", interval)
	}
	r := &Rotator{interval: interval, random: random}
	if _, err := r.Issue(now); err != nil {
		return nil, err
	}
	return r, nil
}

// Issue replaces the current token with a fresh one. The replaced token stays
// acceptable until the next issue.
func (r *Rotator) Issue(now time.Time) (string, error) {
	if r.frozen {
		return r.current, nil
	}
	buf := make([]byte, TokenBytes)
	if _, err := io.ReadFull(r.random, buf); err != nil {
		return "", fmt.Errorf("read token randomness: %w", err)
	}
	r.previous = r.current
	r.current = base64.RawURLEncoding.EncodeToString(buf)
	r.issuedAt = now
	return r.current, nil
}

// Tick rotates the token once the interval has elapsed since the last issue.
// Elapsed time is measured from the wall clock, so late ticks still rotate.
func (r *Rotator) Tick(now time.Time) error {
	if r.frozen || now.Sub(r.issuedAt) < r.interval {
		return nil
	}
	_, err := r.Issue(now)
	return err
}

// Freeze stops any further issuance.
func (r *Rotator) Freeze() { r.frozen = true }

// Current returns the token on display and when it was issued.
func (r *Rotator) Current() (string, time.Time) { return r.current, r.issuedAt }

// IsRecentToken accepts the current token and the one it replaced, nothing older.
func (r *Rotator) IsRecentToken(value string) bool {
	if value == "" {
		return false
	}
	return equal(value, r.current) || (r.previous != "" && equal(value, r.previous))
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
