package connectors

import (
	"context"
	"fmt"
	"log/slog"

	"esgdocs/internal/storage"
)

type FetchService struct {
	connector MailConnector
	store     *MailStoreService
	log       *slog.Logger
}

type FetchResult struct {
	Fetched int
	Stored  int
	// Unchanged counts messages already stored with the same content.
	Unchanged int
}

func NewFetchService(db *storage.DB, rawMailDir string, connector MailConnector, logger *slog.Logger) *FetchService {
	if logger == nil {
		logger = slog.Default()
	}
	return &FetchService{
		connector: connector,
		store:     NewMailStoreService(db, rawMailDir),
		log:       logger,
	}
}

func (s *FetchService) FetchAndStore(ctx context.Context, label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(ctx, label, max)
	if err != nil {
		return FetchResult{}, fmt.Errorf("fetch %s: %w", label, err)
	}

	res := FetchResult{Fetched: len(messages)}
	for _, msg := range messages {
		row, stored, err := s.store.Store(msg)
		if err != nil {
			return res, fmt.Errorf("store %s: %w", msg.MessageID, err)
		}
		if stored {
			res.Stored++
			s.log.Debug("mail.stored", "email_id", row.ID, "provider", msg.Provider, "message_id", msg.MessageID)
		} else {
			res.Unchanged++
		}
	}
	s.log.Info("mail.fetch.done", "label", label, "fetched", res.Fetched, "stored", res.Stored, "unchanged", res.Unchanged)
	return res, nil
}
