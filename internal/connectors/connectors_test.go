package connectors

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jhillyerd/enmime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esgdocs/internal"
	"esgdocs/internal/storage"
)

type fakeConnector struct {
	messages []internal.FetchedMailMessage
	err      error
}

func (f *fakeConnector) FetchInbox(_ context.Context, _ string, max int) ([]internal.FetchedMailMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.messages) > max {
		return f.messages[:max], nil
	}
	return f.messages, nil
}

func buildMail(t *testing.T, subject string) []byte {
	t.Helper()
	part, err := enmime.Builder().
		From("Energy Dept", "energy@example.com").
		To("ESG", "esg@example.com").
		Subject(subject).
		Date(mustDate(t)).
		Header("Message-ID", "<"+subject+"@example.com>").
		Text([]byte("Электроэнергия 1200 кВт·ч")).
		AddAttachment([]byte("a;b\n1;2\n"), "text/csv", "report.csv").
		Build()
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, part.Encode(&buf))
	return buf.Bytes()
}

func openDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestReadHeaders(t *testing.T) {
	h, err := ReadHeaders(buildMail(t, "march"))
	require.NoError(t, err)
	assert.NotEmpty(t, h.MessageID)
	assert.Equal(t, "march", h.Subject)
	assert.Contains(t, h.From, "energy@example.com")
	assert.Equal(t, "2026-03-02T09:30:00Z", h.ReceivedAt)
	assert.Equal(t, 1, h.Attachments)
}

func TestParseMailDate(t *testing.T) {
	assert.True(t, parseMailDate("").IsZero())
	assert.True(t, parseMailDate("not a date").IsZero())
	assert.Equal(t, 2026, parseMailDate("Mon, 02 Mar 2026 12:30:00 +0300").Year())
}

func TestFetchAndStoreDeduplicates(t *testing.T) {
	db := openDB(t)
	rawDir := filepath.Join(t.TempDir(), "raw")
	raw := buildMail(t, "april")
	conn := &fakeConnector{messages: []internal.FetchedMailMessage{
		{Provider: "imap", MessageID: "<april@example.com>", Subject: "april", From: "energy@example.com", ReceivedAt: "2026-04-01T00:00:00Z", Raw: raw},
	}}
	svc := NewFetchService(db, rawDir, conn, nil)

	res, err := svc.FetchAndStore(context.Background(), "INBOX", 10)
	require.NoError(t, err)
	assert.Equal(t, FetchResult{Fetched: 1, Stored: 1}, res)

	email, err := db.MustEmailByProviderMessageID("imap", "<april@example.com>")
	require.NoError(t, err)
	assert.Equal(t, storage.EmailFetched, email.Status)
	stored, err := os.ReadFile(email.RawRef)
	require.NoError(t, err)
	assert.Equal(t, raw, stored)

	require.NoError(t, db.UpdateEmailStatus(email.ID, storage.EmailProcessed))
	res, err = svc.FetchAndStore(context.Background(), "INBOX", 10)
	require.NoError(t, err)
	assert.Equal(t, FetchResult{Fetched: 1, Unchanged: 1}, res)
	again, err := db.MustEmailByProviderMessageID("imap", "<april@example.com>")
	require.NoError(t, err)
	assert.Equal(t, storage.EmailProcessed, again.Status)
}

func TestChangedContentResetsStatus(t *testing.T) {
	db := openDB(t)
	store := NewMailStoreService(db, t.TempDir())
	msg := internal.FetchedMailMessage{Provider: "gmail", MessageID: "m-1", Raw: []byte("first")}

	row, stored, err := store.Store(msg)
	require.NoError(t, err)
	require.True(t, stored)
	require.NoError(t, db.UpdateEmailStatus(row.ID, storage.EmailExported))

	msg.Raw = []byte("second")
	row2, stored, err := store.Store(msg)
	require.NoError(t, err)
	assert.True(t, stored)
	assert.Equal(t, row.ID, row2.ID)
	assert.Equal(t, storage.EmailFetched, row2.Status)
	assert.NotEqual(t, row.Hash, row2.Hash)
}

func TestFetchErrorIsWrapped(t *testing.T) {
	boom := errors.New("connection reset")
	svc := NewFetchService(openDB(t), t.TempDir(), &fakeConnector{err: boom}, nil)
	_, err := svc.FetchAndStore(context.Background(), "INBOX", 5)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "fetch INBOX")
}

func mustDate(t *testing.T) time.Time {
	t.Helper()
	d, err := time.Parse(time.RFC3339, "2026-03-02T12:30:00+03:00")
	require.NoError(t, err)
	return d
}
