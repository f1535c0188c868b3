package listener

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jhillyerd/enmime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esgdocs/internal"
	"esgdocs/internal/app"
	"esgdocs/internal/config"
	"esgdocs/internal/connectors"
	"esgdocs/internal/storage"
)

type fakeConnector struct {
	messages []internal.FetchedMailMessage
}

func (f *fakeConnector) FetchInbox(context.Context, string, int) ([]internal.FetchedMailMessage, error) {
	return f.messages, nil
}

func mailWithCSV(t *testing.T) []byte {
	t.Helper()
	part, err := enmime.Builder().
		From("Energy", "energy@example.com").
		To("ESG", "esg@example.com").
		Subject("Расход за март").
		Text([]byte("См. вложение")).
		AddAttachment([]byte("Дата;Объект;Расход;Ед\n01.03.2026;Котельная;1234,5;кВт·ч\n01.03.2026;Цех;800;кВт·ч\n"), "text/csv", "march.csv").
		Build()
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, part.Encode(&buf))
	return buf.Bytes()
}

func newListener(t *testing.T, conn connectors.MailConnector) (*Service, *storage.DB, config.Config) {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := config.Config{
		RawMailDir:               filepath.Join(dir, "raw"),
		OutputDir:                filepath.Join(dir, "out"),
		ParseMaxRows:             1000,
		ParseMinConfidence:       0.1,
		MatchMinQueryLength:      3,
		MatchDiceAccept:          70,
		MatchSubsequenceAccept:   60,
		MatchMaxEdits:            2,
		MailListenerProvider:     "imap",
		MailListenerLabel:        "INBOX",
		MailListenerFetchMax:     10,
		MailListenerProcessBatch: 10,
		MailListenerAutoExport:   true,
	}
	a := app.Build(cfg, db, nil, nil)
	s := NewService(db, cfg, a.Processor, nil)
	s.connect = func(context.Context, string) (connectors.MailConnector, error) { return conn, nil }
	return s, db, cfg
}

func TestRunCycleFetchesProcessesAndExports(t *testing.T) {
	conn := &fakeConnector{messages: []internal.FetchedMailMessage{{
		Provider: "imap", MessageID: "<march@example.com>", Subject: "Расход за март",
		From: "energy@example.com", ReceivedAt: "2026-03-02T09:30:00Z", Raw: mailWithCSV(t),
	}}}
	s, db, cfg := newListener(t, conn)

	res, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CycleResult{Fetched: 1, Stored: 1, Emails: 1, Documents: 1, Exported: 1}, res)

	email, err := db.MustEmailByProviderMessageID("imap", "<march@example.com>")
	require.NoError(t, err)
	assert.Equal(t, storage.EmailExported, email.Status)

	out := filepath.Join(cfg.OutputDir, "listener", "1_march_at_example.com.xlsx")
	_, err = os.Stat(out)
	require.NoError(t, err)

	again, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CycleResult{Fetched: 1}, again, "unchanged mail is not reprocessed")
}

func TestRunCycleConnectorError(t *testing.T) {
	s, _, _ := newListener(t, &fakeConnector{})
	boom := errors.New("no route to host")
	s.connect = func(context.Context, string) (connectors.MailConnector, error) { return nil, boom }
	_, err := s.RunCycle(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestRunStopsOnCancel(t *testing.T) {
	s, _, _ := newListener(t, &fakeConnector{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.Run(ctx))
}

func TestNewConnectorRejectsUnknownProvider(t *testing.T) {
	_, err := NewConnector(context.Background(), config.Config{}, "pop3", nil)
	require.ErrorContains(t, err, "unsupported mail provider")

	_, err = NewConnector(context.Background(), config.Config{}, "imap", nil)
	require.ErrorContains(t, err, "IMAP_HOST")
}

func TestSanitizeMessageID(t *testing.T) {
	assert.Equal(t, "abc_at_mail.example.com", sanitizeMessageID(" <abc@mail.example.com> "))
	assert.Len(t, sanitizeMessageID(string(bytes.Repeat([]byte("x"), 300))), 120)
}
