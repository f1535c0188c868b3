package listener

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"esgdocs/internal/config"
	"esgdocs/internal/connectors"
	gmailconnector "esgdocs/internal/connectors/gmail"
	imapconnector "esgdocs/internal/connectors/imap"
	"esgdocs/internal/pipeline"
	"esgdocs/internal/storage"
)

type ConnectorFactory func(ctx context.Context, provider string) (connectors.MailConnector, error)

type Service struct {
	db        *storage.DB
	cfg       config.Config
	processor *pipeline.ProcessingService
	connect   ConnectorFactory
	log       *slog.Logger
}

func NewService(db *storage.DB, cfg config.Config, processor *pipeline.ProcessingService, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{db: db, cfg: cfg, processor: processor, log: logger}
	s.connect = func(ctx context.Context, provider string) (connectors.MailConnector, error) {
		return NewConnector(ctx, cfg, provider, logger)
	}
	return s
}

// Run polls the mailbox until ctx is cancelled. Cycle errors are logged and
// retried on the next tick.
func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(max(s.cfg.MailListenerIntervalSec, 1)) * time.Second
	for {
		if _, err := s.RunCycle(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("listener.cycle.failed", "err", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

type CycleResult struct {
	Fetched   int
	Stored    int
	Emails    int
	Documents int
	Exported  int
}

func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	provider := strings.ToLower(strings.TrimSpace(s.cfg.MailListenerProvider))
	conn, err := s.connect(ctx, provider)
	if err != nil {
		return CycleResult{}, err
	}

	fetch := connectors.NewFetchService(s.db, s.cfg.RawMailDir, conn, s.log)
	fetched, err := fetch.FetchAndStore(ctx, s.cfg.MailListenerLabel, s.cfg.MailListenerFetchMax)
	if err != nil {
		return CycleResult{}, err
	}
	res := CycleResult{Fetched: fetched.Fetched, Stored: fetched.Stored}

	res.Emails, res.Documents, err = s.processor.ProcessPending(ctx, s.cfg.MailListenerProcessBatch, provider)
	if err != nil {
		return res, err
	}

	if s.cfg.MailListenerAutoExport {
		if res.Exported, err = s.exportProcessed(provider); err != nil {
			return res, err
		}
	}

	s.log.Info("listener.cycle.done", "provider", provider, "fetched", res.Fetched, "stored", res.Stored,
		"emails", res.Emails, "documents", res.Documents, "exported", res.Exported)
	return res, nil
}

func (s *Service) exportProcessed(provider string) (int, error) {
	emails, err := s.db.ListEmailsByStatus(storage.EmailProcessed, 200)
	if err != nil {
		return 0, err
	}

	exported := 0
	for _, email := range emails {
		if email.Provider != provider {
			continue
		}
		rows, err := s.db.GetEntryExportRows(&email.ID)
		if err != nil {
			return exported, err
		}
		if len(rows) == 0 {
			continue
		}
		filename := fmt.Sprintf("%d_%s.xlsx", email.ID, sanitizeMessageID(email.MessageID))
		outputPath := filepath.Join(s.cfg.OutputDir, "listener", filename)
		if err := pipeline.ExportEntriesToXLSX(rows, outputPath); err != nil {
			return exported, err
		}
		if err := s.db.UpdateEmailStatus(email.ID, storage.EmailExported); err != nil {
			return exported, err
		}
		exported++
	}
	return exported, nil
}

func NewConnector(ctx context.Context, cfg config.Config, provider string, logger *slog.Logger) (connectors.MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmailconnector.NewConnector(ctx, cfg, logger)
	case "imap":
		return imapconnector.NewConnector(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported mail provider: %s", provider)
	}
}

func sanitizeMessageID(input string) string {
	repl := strings.NewReplacer("<", "", ">", "", ":", "_", "/", "_", "\\", "_", "|", "_", "?", "_", "*", "_", " ", "_", "@", "_at_")
	out := repl.Replace(strings.TrimSpace(input))
	if len(out) > 120 {
		out = out[:120]
	}
	return out
}
