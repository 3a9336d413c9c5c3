package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"

	"github.com/inboxforge/warmline/internal/errdefs"
)

// Inbound is one fetched mailbox message, flattened to the parts the
// warmup engine cares about.
type Inbound struct {
	UID       uint32
	MessageID string // bare, angle brackets stripped
	From      string // address only, lowercased
	FromName  string
	Subject   string
	Body      string // text/plain part, html as a last resort
	Date      time.Time
}

// FetchUnread returns up to limit unread messages from the account's
// INBOX. Fetching the body marks each message \Seen; callers that skip
// a message are expected to hand its UID back to RestoreUnseen.
func (t *Transport) FetchUnread(ctx context.Context, limit int) ([]*Inbound, error) {
	c, err := t.dialIMAP(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errdefs.ErrTransport, err)
	}
	defer c.Logout()

	if _, err := c.Select("INBOX", false); err != nil {
		return nil, fmt.Errorf("%w: select INBOX: %v", errdefs.ErrTransport, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("%w: search unseen: %v", errdefs.ErrTransport, err)
	}
	if len(uids) == 0 {
		return nil, nil
	}
	if limit > 0 && len(uids) > limit {
		uids = uids[:limit]
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, imap.FetchInternalDate, section.FetchItem()}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	var inbound []*Inbound
	for msg := range messages {
		in, err := parseInbound(msg, section)
		if err != nil {
			log.Printf("[Mailer] Skipping unreadable message uid=%d for %s: %v", msg.Uid, t.account.Email, err)
			continue
		}
		inbound = append(inbound, in)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("%w: fetch: %v", errdefs.ErrTransport, err)
	}
	return inbound, nil
}

// RestoreUnseen clears \Seen on the given UIDs in a fresh session, so
// messages the engine chose not to touch stay unread for the next pass.
func (t *Transport) RestoreUnseen(ctx context.Context, uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}
	c, err := t.dialIMAP(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", errdefs.ErrTransport, err)
	}
	defer c.Logout()

	if _, err := c.Select("INBOX", false); err != nil {
		return fmt.Errorf("%w: select INBOX: %v", errdefs.ErrTransport, err)
	}
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)
	item := imap.FormatFlagsOp(imap.RemoveFlags, true)
	flags := []interface{}{imap.SeenFlag}
	if err := c.UidStore(seqSet, item, flags, nil); err != nil {
		return fmt.Errorf("%w: restore unseen: %v", errdefs.ErrTransport, err)
	}
	return nil
}

// dialIMAP connects and authenticates against the account's IMAP
// endpoint.
func (t *Transport) dialIMAP(ctx context.Context) (*client.Client, error) {
	addr := fmt.Sprintf("%s:%d", t.account.IMAPHost, t.account.IMAPPort)
	dialer := &ctxDialer{ctx: ctx, d: &net.Dialer{Timeout: dialTimeout}}

	var c *client.Client
	var err error
	if t.account.IMAPUseSSL {
		c, err = client.DialWithDialerTLS(dialer, addr, &tls.Config{ServerName: t.account.IMAPHost})
	} else {
		c, err = client.DialWithDialer(dialer, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("IMAP connect to %s: %w", addr, err)
	}
	c.Timeout = dialTimeout
	if err := c.Login(t.account.Email, t.password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("IMAP login: %w", err)
	}
	return c, nil
}

// ctxDialer adapts net.Dialer to the go-imap Dialer interface while
// honoring the caller's context on connect.
type ctxDialer struct {
	ctx context.Context
	d   *net.Dialer
}

func (cd *ctxDialer) Dial(network, addr string) (net.Conn, error) {
	return cd.d.DialContext(cd.ctx, network, addr)
}

// parseInbound flattens a fetched message. Sender, subject and message
// id come from the envelope when the server provides one, otherwise
// from the parsed headers; the body is the first text/plain part, with
// text/html kept only when no plain part exists.
func parseInbound(msg *imap.Message, section *imap.BodySectionName) (*Inbound, error) {
	r := msg.GetBody(section)
	if r == nil {
		return nil, fmt.Errorf("server returned no body")
	}
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}

	in := &Inbound{UID: msg.Uid, Date: msg.InternalDate}
	if env := msg.Envelope; env != nil {
		in.Subject = env.Subject
		in.MessageID = strings.Trim(env.MessageId, "<>")
		if !env.Date.IsZero() {
			in.Date = env.Date
		}
		if len(env.From) > 0 {
			in.From = strings.ToLower(strings.TrimSpace(env.From[0].Address()))
			in.FromName = env.From[0].PersonalName
		}
	}
	if in.MessageID == "" {
		in.MessageID = strings.Trim(mr.Header.Get("Message-Id"), "<>")
	}
	if in.Subject == "" {
		in.Subject, _ = mr.Header.Subject()
	}
	if in.From == "" {
		if fromList, err := mr.Header.AddressList("From"); err == nil && len(fromList) > 0 {
			in.From = strings.ToLower(strings.TrimSpace(fromList[0].Address))
			in.FromName = fromList[0].Name
		}
	}

	var htmlBody string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ctype, _, _ := h.ContentType()
		b, _ := io.ReadAll(p.Body)
		switch ctype {
		case "text/plain":
			in.Body += string(b)
		case "text/html":
			htmlBody += string(b)
		}
	}
	if in.Body == "" {
		in.Body = htmlBody
	}
	return in, nil
}
