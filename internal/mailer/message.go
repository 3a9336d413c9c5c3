package mailer

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Message is one outbound warmup email ready for MIME assembly.
type Message struct {
	FromName    string
	From        string
	To          string
	Subject     string
	Body        string
	MessageID   string // pre-minted id; empty means the transport mints one on send
	InReplyTo   string // bare message id of the message being answered
	References  string // bare message id of the thread root
	TrackingURL string // empty when open tracking is disabled
}

// NewMessageID mints a message id scoped to the sender's domain. The
// bare form (no angle brackets) is what gets stored and later matched
// against inbound In-Reply-To headers.
func NewMessageID(domain string) string {
	if domain == "" {
		domain = "warmline.local"
	}
	return fmt.Sprintf("%s@%s", uuid.New().String(), domain)
}

// Build assembles the wire form: multipart/alternative with a plain
// part and an HTML part carrying the tracking pixel.
func (m *Message) Build(messageID string) []byte {
	var headerBuf bytes.Buffer
	if m.FromName != "" {
		headerBuf.WriteString(fmt.Sprintf("From: %s <%s>\r\n", m.FromName, m.From))
	} else {
		headerBuf.WriteString(fmt.Sprintf("From: %s\r\n", m.From))
	}
	headerBuf.WriteString(fmt.Sprintf("To: %s\r\n", m.To))
	headerBuf.WriteString(fmt.Sprintf("Subject: %s\r\n", m.Subject))
	headerBuf.WriteString(fmt.Sprintf("Message-ID: <%s>\r\n", messageID))
	if m.InReplyTo != "" {
		headerBuf.WriteString(fmt.Sprintf("In-Reply-To: <%s>\r\n", m.InReplyTo))
	}
	if m.References != "" {
		headerBuf.WriteString(fmt.Sprintf("References: <%s>\r\n", m.References))
	}
	headerBuf.WriteString("MIME-Version: 1.0\r\n")

	boundary := fmt.Sprintf("=_%s", uuid.New().String()[:16])
	headerBuf.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary))
	headerBuf.WriteString("\r\n")

	var bodyBuf bytes.Buffer
	bodyBuf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	bodyBuf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	bodyBuf.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	bodyBuf.WriteString(m.Body)
	bodyBuf.WriteString("\r\n")
	bodyBuf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	bodyBuf.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	bodyBuf.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	bodyBuf.WriteString(m.htmlBody())
	bodyBuf.WriteString("\r\n")
	bodyBuf.WriteString(fmt.Sprintf("--%s--\r\n", boundary))

	return append(headerBuf.Bytes(), bodyBuf.Bytes()...)
}

// htmlBody renders the plain body as minimal HTML and appends the
// invisible pixel when a tracking URL is set.
func (m *Message) htmlBody() string {
	html := strings.ReplaceAll(m.Body, "\n", "<br>\n")
	if m.TrackingURL != "" {
		html += fmt.Sprintf("\n<img src=%q width=\"1\" height=\"1\" alt=\"\" style=\"display:none\" />", m.TrackingURL)
	}
	return fmt.Sprintf("<html><body>%s</body></html>", html)
}
