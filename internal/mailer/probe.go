package mailer

import (
	"context"
	"log"
)

// ProbeResult reports which legs of an account's connectivity check
// passed.
type ProbeResult struct {
	SMTP bool `json:"smtp"`
	IMAP bool `json:"imap"`
}

// OK reports whether both legs passed.
func (p *ProbeResult) OK() bool {
	return p.SMTP && p.IMAP
}

// TestConnection verifies SMTP (connect, EHLO, auth, quit) and IMAP
// (connect, login, logout) with the bound credentials. Account creation
// uses it to reject dead credentials up front.
func (t *Transport) TestConnection(ctx context.Context) *ProbeResult {
	result := &ProbeResult{}

	if c, err := t.dialSMTP(ctx); err != nil {
		log.Printf("[Mailer] SMTP probe failed for %s: %v", t.account.Email, err)
	} else {
		c.Quit()
		c.Close()
		result.SMTP = true
	}

	if c, err := t.dialIMAP(ctx); err != nil {
		log.Printf("[Mailer] IMAP probe failed for %s: %v", t.account.Email, err)
	} else {
		c.Logout()
		result.IMAP = true
	}
	return result
}
