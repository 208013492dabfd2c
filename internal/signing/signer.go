// Package signing implements symmetric request signing for the job intake
// bridge. The canonical string is METHOD\nURL\nTIMESTAMP\nNONCE\nBODY and
// the signature is hex-encoded HMAC-SHA256 under the shared worker secret.
package signing

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Header names carried on signed requests.
const (
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
	HeaderNonce     = "X-Nonce"
)

// DefaultSkewWindow is the allowed clock drift between signer and verifier.
const DefaultSkewWindow = 5 * time.Minute

// Signer signs and verifies requests with a shared secret.
type Signer struct {
	secret     []byte
	skewWindow time.Duration
	now        func() time.Time
}

// New creates a signer for the shared secret.
func New(secret string, skewWindow time.Duration) *Signer {
	if skewWindow <= 0 {
		skewWindow = DefaultSkewWindow
	}
	return &Signer{
		secret:     []byte(secret),
		skewWindow: skewWindow,
		now:        time.Now,
	}
}

// NewWithClock creates a signer with an injected clock for tests.
func NewWithClock(secret string, skewWindow time.Duration, now func() time.Time) *Signer {
	s := New(secret, skewWindow)
	s.now = now
	return s
}

// Sign computes the signature for the request body and sets the signing
// headers, including bearer auth for counterparts that require it.
func (s *Signer) Sign(req *http.Request, body []byte) error {
	nonce, err := newNonce()
	if err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	timestamp := strconv.FormatInt(s.now().UnixMilli(), 10)
	signature := s.compute(req.Method, req.URL.String(), timestamp, nonce, body)

	req.Header.Set(HeaderSignature, signature)
	req.Header.Set(HeaderTimestamp, timestamp)
	req.Header.Set(HeaderNonce, nonce)
	req.Header.Set("Authorization", "Bearer "+string(s.secret))
	return nil
}

// Verify recomputes the signature from the request headers and body and
// compares in constant time. Requests older or newer than the skew window
// are rejected. Nonce replay tracking is the caller's responsibility.
func (s *Signer) Verify(method, rawURL string, header http.Header, body []byte) error {
	signature := header.Get(HeaderSignature)
	timestamp := header.Get(HeaderTimestamp)
	nonce := header.Get(HeaderNonce)
	if signature == "" || timestamp == "" || nonce == "" {
		return fmt.Errorf("missing signing headers")
	}

	millis, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("malformed timestamp: %w", err)
	}

	drift := s.now().Sub(time.UnixMilli(millis))
	if drift < 0 {
		drift = -drift
	}
	if drift > s.skewWindow {
		return fmt.Errorf("timestamp outside the allowed skew window")
	}

	expected := s.compute(method, rawURL, timestamp, nonce, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

// compute builds the canonical string and returns its keyed hash,
// hex-lowercase.
func (s *Signer) compute(method, rawURL, timestamp, nonce string, body []byte) string {
	canonical := strings.Join([]string{
		strings.ToUpper(method),
		rawURL,
		timestamp,
		nonce,
		string(body),
	}, "\n")

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// newNonce returns 128 random bits as lowercase hex.
func newNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
