package mailer

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageID(t *testing.T) {
	id := NewMessageID("sender.test")
	require.True(t, strings.HasSuffix(id, "@sender.test"))

	_, err := uuid.Parse(strings.TrimSuffix(id, "@sender.test"))
	assert.NoError(t, err)

	assert.True(t, strings.HasSuffix(NewMessageID(""), "@warmline.local"))
}

func TestBuildHeaders(t *testing.T) {
	msg := &Message{
		FromName:    "Alice Warm",
		From:        "alice@sender.test",
		To:          "bob@receiver.test",
		Subject:     "Quick question",
		Body:        "Line one\nLine two",
		InReplyTo:   "orig-id@receiver.test",
		References:  "root-id@receiver.test",
		TrackingURL: "http://api.test/track/open/abc?token=x&ts=1",
	}
	raw := string(msg.Build("new-id@sender.test"))

	assert.Contains(t, raw, "From: Alice Warm <alice@sender.test>\r\n")
	assert.Contains(t, raw, "To: bob@receiver.test\r\n")
	assert.Contains(t, raw, "Subject: Quick question\r\n")
	assert.Contains(t, raw, "Message-ID: <new-id@sender.test>\r\n")
	assert.Contains(t, raw, "In-Reply-To: <orig-id@receiver.test>\r\n")
	assert.Contains(t, raw, "References: <root-id@receiver.test>\r\n")
	assert.Contains(t, raw, "MIME-Version: 1.0\r\n")
	assert.Contains(t, raw, `multipart/alternative; boundary="=_`)

	// Plain part keeps raw newlines; HTML part gets <br> and the pixel.
	assert.Contains(t, raw, "Line one\nLine two")
	assert.Contains(t, raw, "Line one<br>\nLine two")
	assert.Contains(t, raw, `<img src="http://api.test/track/open/abc?token=x&ts=1" width="1" height="1" alt="" style="display:none" />`)
	assert.Contains(t, raw, "<html><body>")
}

func TestBuildOptionalHeadersOmitted(t *testing.T) {
	msg := &Message{
		From:    "alice@sender.test",
		To:      "bob@receiver.test",
		Subject: "Hello",
		Body:    "Hi.",
	}
	raw := string(msg.Build("id-1@sender.test"))

	assert.Contains(t, raw, "From: alice@sender.test\r\n")
	assert.NotContains(t, raw, "<alice@sender.test>")
	assert.NotContains(t, raw, "In-Reply-To")
	assert.NotContains(t, raw, "References")
	assert.NotContains(t, raw, "<img")
}

func TestBuildRoundTripsThroughMIMEParser(t *testing.T) {
	msg := &Message{
		FromName: "Alice Warm",
		From:     "alice@sender.test",
		To:       "bob@receiver.test",
		Subject:  "Hello",
		Body:     "First\nSecond",
	}
	raw := msg.Build("id-2@sender.test")

	parsed, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)

	mediaType, params, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	require.NoError(t, err)
	require.Equal(t, "multipart/alternative", mediaType)
	require.NotEmpty(t, params["boundary"])

	mr := multipart.NewReader(parsed.Body, params["boundary"])

	plain, err := mr.NextPart()
	require.NoError(t, err)
	assert.Contains(t, plain.Header.Get("Content-Type"), "text/plain")
	plainBody, err := io.ReadAll(plain)
	require.NoError(t, err)
	assert.Contains(t, string(plainBody), "First\nSecond")

	html, err := mr.NextPart()
	require.NoError(t, err)
	assert.Contains(t, html.Header.Get("Content-Type"), "text/html")
	htmlBody, err := io.ReadAll(html)
	require.NoError(t, err)
	assert.Contains(t, string(htmlBody), "First<br>\nSecond")

	_, err = mr.NextPart()
	assert.Equal(t, io.EOF, err)
}

func TestBuildBoundaryAppearsThreeTimes(t *testing.T) {
	msg := &Message{From: "a@s.test", To: "b@r.test", Subject: "x", Body: "y"}
	raw := string(msg.Build("id-3@s.test"))

	start := strings.Index(raw, `boundary="`)
	require.GreaterOrEqual(t, start, 0)
	rest := raw[start+len(`boundary="`):]
	boundary := rest[:strings.Index(rest, `"`)]

	assert.Equal(t, 3, strings.Count(raw, "--"+boundary))
	assert.True(t, strings.HasSuffix(raw, "--"+boundary+"--\r\n"))
}
