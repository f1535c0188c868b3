package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"

	"esgdocs/internal"
	"esgdocs/internal/config"
	"esgdocs/internal/connectors"
)

const providerName = "imap"

type Connector struct {
	addr     string
	host     string
	secure   bool
	user     string
	password string
	markSeen bool
	log      *slog.Logger
}

func NewConnector(cfg config.Config, logger *slog.Logger) (*Connector, error) {
	for _, req := range [][2]string{
		{"IMAP_HOST", cfg.IMAPHost},
		{"IMAP_USER", cfg.IMAPUser},
		{"IMAP_PASSWORD", cfg.IMAPPassword},
	} {
		if err := cfg.Require(req[0], req[1]); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{
		addr:     fmt.Sprintf("%s:%d", cfg.IMAPHost, cfg.IMAPPort),
		host:     cfg.IMAPHost,
		secure:   cfg.IMAPSecure,
		user:     cfg.IMAPUser,
		password: cfg.IMAPPassword,
		markSeen: cfg.IMAPMarkSeen,
		log:      logger,
	}, nil
}

func (c *Connector) dial() (*imapclient.Client, error) {
	var (
		client *imapclient.Client
		err    error
	)
	if c.secure {
		client, err = imapclient.DialTLS(c.addr, &tls.Config{ServerName: c.host})
	} else {
		client, err = imapclient.Dial(c.addr)
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.addr, err)
	}
	if err := client.Login(c.user, c.password); err != nil {
		_ = client.Logout()
		return nil, fmt.Errorf("login: %w", err)
	}
	return client, nil
}

// FetchInbox returns the newest unseen messages of label, at most max.
func (c *Connector) FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error) {
	client, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer client.Logout()

	if _, err := client.Select(label, false); err != nil {
		return nil, fmt.Errorf("select %s: %w", label, err)
	}
	ids, err := unseen(client, max)
	if err != nil || len(ids) == 0 {
		return nil, err
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchInternalDate, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, len(ids))
	done := make(chan error, 1)
	go func() { done <- client.Fetch(seqset, items, messages) }()

	out := make([]internal.FetchedMailMessage, 0, len(ids))
	var seen []uint32
	for msg := range messages {
		if ctx.Err() != nil {
			continue
		}
		fetched, ok, err := toFetched(msg, section)
		if err != nil {
			c.log.Warn("mail.imap.read_failed", "uid", msg.Uid, "err", err)
			continue
		}
		if !ok {
			continue
		}
		out = append(out, fetched)
		seen = append(seen, msg.SeqNum)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if c.markSeen && len(seen) > 0 {
		set := new(imap.SeqSet)
		set.AddNum(seen...)
		flags := []interface{}{imap.SeenFlag}
		if err := client.Store(set, imap.FormatFlagsOp(imap.AddFlags, true), flags, nil); err != nil {
			return nil, fmt.Errorf("mark seen: %w", err)
		}
	}
	return out, nil
}

func unseen(client *imapclient.Client, max int) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := client.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if max > 0 && len(ids) > max {
		ids = ids[len(ids)-max:]
	}
	return ids, nil
}

func toFetched(msg *imap.Message, section *imap.BodySectionName) (internal.FetchedMailMessage, bool, error) {
	if msg == nil {
		return internal.FetchedMailMessage{}, false, nil
	}
	body := msg.GetBody(section)
	if body == nil {
		return internal.FetchedMailMessage{}, false, nil
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return internal.FetchedMailMessage{}, false, err
	}

	out := internal.FetchedMailMessage{Provider: providerName, Raw: raw, ReceivedAt: connectors.FormatReceived(msg.InternalDate)}
	if env := msg.Envelope; env != nil {
		out.MessageID = env.MessageId
		out.Subject = env.Subject
		out.From = formatAddresses(env.From)
	}
	if out.MessageID == "" {
		out.MessageID = fmt.Sprintf("imap-%d", msg.Uid)
	}
	return out, true, nil
}

func formatAddresses(addrs []*imap.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a == nil {
			continue
		}
		email := a.Address()
		if a.PersonalName != "" {
			email = fmt.Sprintf("%s <%s>", a.PersonalName, email)
		}
		parts = append(parts, email)
	}
	return strings.Join(parts, ", ")
}
