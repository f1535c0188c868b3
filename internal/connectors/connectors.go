// Package connectors pulls raw messages from a mailbox and stores them for
// the document pipeline.
package connectors

import (
	"bytes"
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"

	"esgdocs/internal"
)

type MailConnector interface {
	FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error)
}

// Headers is the envelope summary kept for a fetched message.
type Headers struct {
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	// Attachments counts attachment and inline parts.
	Attachments int
}

// ReadHeaders decodes the envelope of a raw RFC 822 message. ReceivedAt is
// RFC 3339 in UTC and stays empty when the Date header is unusable.
func ReadHeaders(raw []byte) (Headers, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return Headers{}, err
	}
	h := Headers{
		MessageID:   strings.TrimSpace(env.GetHeader("Message-ID")),
		Subject:     env.GetHeader("Subject"),
		From:        env.GetHeader("From"),
		Attachments: len(env.Attachments) + len(env.Inlines),
	}
	if t := parseMailDate(env.GetHeader("Date")); !t.IsZero() {
		h.ReceivedAt = FormatReceived(t)
	}
	return h, nil
}

// FormatReceived renders t for storage; the zero time means now.
func FormatReceived(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339)
}

func parseMailDate(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	if t, err := mail.ParseDate(value); err == nil {
		return t
	}
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC822Z, time.RFC822, time.RFC850, time.ANSIC} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
