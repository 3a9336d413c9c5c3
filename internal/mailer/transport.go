// Package mailer moves warmup mail over each account's own SMTP and
// IMAP endpoints. Connections are opened per operation and closed; no
// pooling is assumed. Send failures surface as transport errors so the
// scheduler can record them per slot instead of aborting a batch.
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/smtp"
	"time"

	"github.com/inboxforge/warmline/internal/errdefs"
	"github.com/inboxforge/warmline/internal/store"
)

const dialTimeout = 30 * time.Second

// implicitTLSPort is the SMTPS submission port. Connections to it are
// TLS from the first byte instead of upgrading via STARTTLS.
const implicitTLSPort = 465

// Transport sends and receives mail for a single warmup account.
type Transport struct {
	account  *store.Account
	password string
}

// New binds a transport to one account and its decrypted password.
func New(account *store.Account, password string) *Transport {
	return &Transport{account: account, password: password}
}

// Send delivers msg through the account's SMTP endpoint and returns the
// message id used on the wire (bare, without angle brackets). Callers
// that need the id on a database row before the send pre-mint it via
// NewMessageID and set msg.MessageID; otherwise one is minted here. The
// From identity always comes from the bound account.
func (t *Transport) Send(ctx context.Context, msg *Message) (string, error) {
	msg.From = t.account.Email
	msg.FromName = t.account.FullName()
	messageID := msg.MessageID
	if messageID == "" {
		messageID = NewMessageID(t.account.Domain)
	}
	raw := msg.Build(messageID)

	if err := t.submit(ctx, t.account.Email, msg.To, raw); err != nil {
		return "", fmt.Errorf("%w: %v", errdefs.ErrTransport, err)
	}
	log.Printf("[Mailer] Sent to %s from %s (id: %s)", msg.To, t.account.Email, messageID)
	return messageID, nil
}

// submit performs the raw SMTP transaction.
func (t *Transport) submit(ctx context.Context, from, to string, raw []byte) error {
	c, err := t.dialSMTP(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("DATA close: %w", err)
	}
	return c.Quit()
}

// dialSMTP connects, negotiates TLS per the account settings and
// authenticates. Port 465 gets implicit TLS; other ports upgrade via
// STARTTLS when the account asks for it.
func (t *Transport) dialSMTP(ctx context.Context) (*smtp.Client, error) {
	addr := fmt.Sprintf("%s:%d", t.account.SMTPHost, t.account.SMTPPort)
	dialer := &net.Dialer{Timeout: dialTimeout}

	var conn net.Conn
	var err error
	if t.account.SMTPPort == implicitTLSPort {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: t.account.SMTPHost}}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("SMTP connect to %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, t.account.SMTPHost)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SMTP client: %w", err)
	}
	if t.account.SMTPPort != implicitTLSPort && t.account.SMTPUseTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: t.account.SMTPHost}); err != nil {
				c.Close()
				return nil, fmt.Errorf("STARTTLS: %w", err)
			}
		}
	}
	if err := c.Auth(&plainAuth{user: t.account.Email, pass: t.password}); err != nil {
		c.Close()
		return nil, fmt.Errorf("AUTH: %w", err)
	}
	return c, nil
}

// plainAuth implements smtp.Auth without stdlib PlainAuth's TLS
// requirement, which rejects plaintext local test servers outright.
type plainAuth struct {
	user, pass string
}

func (a *plainAuth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	resp := []byte("\x00" + a.user + "\x00" + a.pass)
	return "PLAIN", resp, nil
}

func (a *plainAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	return nil, nil
}
