// Package tracking issues and validates signed open-tracking tokens and
// serves the pixel endpoint that records first opens.
package tracking

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
)

// tokenValidity is how long an issued token stays accepted.
const tokenValidity = 30 * 24 * time.Hour

// tokenLength is the hex prefix kept from the HMAC digest, truncated
// for shorter URLs.
const tokenLength = 32

// Service mints and checks open-tracking tokens. Without a secret the
// service degrades gracefully: URLs still carry the token shape, the
// pixel is still served, and the open handler skips validation.
type Service struct {
	secret  string
	apiBase string
	now     func() time.Time
}

// NewService creates the token service. apiBase is the public base URL
// embedded in tracking pixels, e.g. "http://localhost:8000".
func NewService(secret, apiBase string) *Service {
	if secret == "" {
		log.Printf("[Tracking] TRACKING_SECRET_KEY not set; tracking tokens are not validated")
	}
	return &Service{secret: secret, apiBase: strings.TrimRight(apiBase, "/"), now: time.Now}
}

// Enabled reports whether tokens are being validated.
func (s *Service) Enabled() bool {
	return s.secret != ""
}

// Token signs "<emailID>:<ts>" and keeps the first 32 hex characters.
func (s *Service) Token(emailID uuid.UUID, ts int64) string {
	mac := hmac.New(sha256.New, []byte(s.secret))
	fmt.Fprintf(mac, "%s:%d", emailID, ts)
	return hex.EncodeToString(mac.Sum(nil))[:tokenLength]
}

// TrackingURL builds the pixel URL embedded in outgoing HTML bodies.
func (s *Service) TrackingURL(emailID uuid.UUID) string {
	ts := s.now().Unix()
	return fmt.Sprintf("%s/track/open/%s?token=%s&ts=%d", s.apiBase, emailID, s.Token(emailID, ts), ts)
}

// Validate checks a presented token. Timestamps from the future or
// older than 30 days are rejected before any comparison; the comparison
// itself is constant-time.
func (s *Service) Validate(emailID uuid.UUID, token string, ts int64) bool {
	now := s.now().Unix()
	if ts > now {
		log.Printf("[Tracking] Token with future timestamp for email %s", emailID)
		return false
	}
	if now-ts > int64(tokenValidity/time.Second) {
		return false
	}
	expected := s.Token(emailID, ts)
	return hmac.Equal([]byte(expected), []byte(token))
}
