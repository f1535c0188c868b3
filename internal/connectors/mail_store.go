package connectors

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"

	"esgdocs/internal"
	"esgdocs/internal/storage"
)

type MailStoreService struct {
	db         *storage.DB
	rawMailDir string
}

func NewMailStoreService(db *storage.DB, rawMailDir string) *MailStoreService {
	return &MailStoreService{db: db, rawMailDir: rawMailDir}
}

// Store writes the raw message under its content hash and upserts the email
// row. Identical content is written once.
func (s *MailStoreService) Store(msg internal.FetchedMailMessage) (internal.EmailRow, bool, error) {
	sum := sha256.Sum256(msg.Raw)
	hash := hex.EncodeToString(sum[:])

	if existing, err := s.db.GetEmailByProviderMessageID(msg.Provider, msg.MessageID); err != nil {
		return internal.EmailRow{}, false, err
	} else if existing != nil && existing.Hash == hash {
		return *existing, false, nil
	}

	if err := os.MkdirAll(s.rawMailDir, 0o755); err != nil {
		return internal.EmailRow{}, false, err
	}
	rawPath := filepath.Join(s.rawMailDir, hash+".eml")
	if _, err := os.Stat(rawPath); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(rawPath, msg.Raw, 0o644); err != nil {
			return internal.EmailRow{}, false, err
		}
	} else if err != nil {
		return internal.EmailRow{}, false, err
	}

	row, err := s.db.UpsertEmail(msg.Provider, msg.MessageID, msg.Subject, msg.From, msg.ReceivedAt, hash, rawPath, storage.EmailFetched)
	if err != nil {
		return internal.EmailRow{}, false, err
	}
	return row, true, nil
}
