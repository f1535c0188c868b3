package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"esgdocs/internal"
	"esgdocs/internal/config"
	"esgdocs/internal/connectors"
)

const providerName = "gmail"

type Connector struct {
	service *gmail.Service
	log     *slog.Logger
}

func NewConnector(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Connector, error) {
	for _, req := range [][2]string{
		{"GMAIL_CLIENT_ID", cfg.GmailClientID},
		{"GMAIL_CLIENT_SECRET", cfg.GmailClientSecret},
		{"GMAIL_REFRESH_TOKEN", cfg.GmailRefreshToken},
	} {
		if err := cfg.Require(req[0], req[1]); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.GmailRedirectURI,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}
	ts := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.GmailRefreshToken})
	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, err
	}
	return &Connector{service: svc, log: logger}, nil
}

// FetchInbox lists up to max messages of label and downloads them in raw
// form. Headers come from the raw message itself.
func (c *Connector) FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error) {
	list, err := c.service.Users.Messages.List("me").LabelIds(label).MaxResults(int64(max)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", label, err)
	}

	out := make([]internal.FetchedMailMessage, 0, len(list.Messages))
	for _, ref := range list.Messages {
		if ref.Id == "" {
			continue
		}
		msg, err := c.service.Users.Messages.Get("me", ref.Id).Format("raw").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", ref.Id, err)
		}
		if msg.Raw == "" {
			continue
		}
		raw, err := decodeBase64URL(msg.Raw)
		if err != nil {
			return nil, err
		}

		h, err := connectors.ReadHeaders(raw)
		if err != nil {
			c.log.Warn("mail.gmail.headers_failed", "id", ref.Id, "err", err)
		}
		if h.MessageID == "" {
			h.MessageID = ref.Id
		}
		if h.ReceivedAt == "" {
			h.ReceivedAt = connectors.FormatReceived(timeFromMillis(msg.InternalDate))
		}
		out = append(out, internal.FetchedMailMessage{
			Provider:   providerName,
			MessageID:  h.MessageID,
			Subject:    h.Subject,
			From:       h.From,
			ReceivedAt: h.ReceivedAt,
			Raw:        raw,
		})
	}
	return out, nil
}

func decodeBase64URL(input string) ([]byte, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	decoded, err = base64.URLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	return nil, fmt.Errorf("decode gmail raw payload: %w", err)
}

func timeFromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
