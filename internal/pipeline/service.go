package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jhillyerd/enmime"

	"esgdocs/internal"
	"esgdocs/internal/matching"
	"esgdocs/internal/metrics"
	"esgdocs/internal/parsers"
	"esgdocs/internal/storage"
)

type Options struct {
	Parse            internal.ParseOptions
	UseExternalModel bool
}

// ProcessingService runs one document at a time through parse, refine,
// metrics and storage. Analyzer, collector and db are optional.
type ProcessingService struct {
	factory   *Factory
	analyzer  *matching.Analyzer
	collector *metrics.Collector
	db        *storage.DB
	opts      Options
	log       *slog.Logger
}

func NewProcessingService(factory *Factory, analyzer *matching.Analyzer, collector *metrics.Collector, db *storage.DB, opts Options, logger *slog.Logger) *ProcessingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessingService{factory: factory, analyzer: analyzer, collector: collector, db: db, opts: opts, log: logger}
}

type DocumentResult struct {
	DocumentID string
	Filename   string
	Parse      ParseOutcome
	Matches    []matching.ContextualMatch
	Quality    parsers.QualityAssessment
	Metrics    metrics.ProcessingMetrics
}

func (r DocumentResult) Entries() []internal.DataEntry {
	if r.Parse.Result.Data == nil {
		return nil
	}
	return r.Parse.Result.Data.ExtractedData.Entries()
}

// Process handles a document that did not arrive by mail.
func (s *ProcessingService) Process(ctx context.Context, filename string, buf []byte, mimeType string) (DocumentResult, error) {
	return s.process(ctx, nil, filename, buf, mimeType)
}

func (s *ProcessingService) ProcessFile(ctx context.Context, path string) (DocumentResult, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return DocumentResult{}, err
	}
	return s.Process(ctx, filepath.Base(path), buf, mime.TypeByExtension(strings.ToLower(filepath.Ext(path))))
}

func (s *ProcessingService) process(ctx context.Context, emailID *int, filename string, buf []byte, mimeType string) (DocumentResult, error) {
	started := time.Now()
	docID := uuid.New().String()
	log := s.log.With("document_id", docID, "filename", filename)

	parsed := s.factory.ParseFileWith(ctx, filename, buf, mimeType, s.opts.Parse)
	res := DocumentResult{DocumentID: docID, Filename: filename, Parse: parsed}

	var warnings []string
	if data := parsed.Result.Data; parsed.Result.Success && data != nil {
		res.Matches = Refine(ctx, s.analyzer, data, s.opts.UseExternalModel)
		for _, m := range res.Matches {
			if m.Recommendation == matching.RecommendReject {
				warnings = append(warnings, fmt.Sprintf("unit %q rejected by context analysis", m.Query))
			}
		}
	}
	res.Quality = parsers.AssessExtractionQuality(parsed.Result)

	res.Metrics = metrics.NewRecord(metrics.Run{
		DocumentID:       docID,
		Filename:         filename,
		FileSize:         int64(len(buf)),
		Info:             parsed.Info,
		ParserUsed:       parsed.ParserUsed,
		StartedAt:        started,
		Result:           parsed.Result,
		FallbackAttempts: parsed.FallbackAttempts(),
		Warnings:         warnings,
	})
	res.Metrics.ProcessingTimeMs = time.Since(started).Milliseconds()
	if s.collector != nil {
		if err := s.collector.Record(res.Metrics); err != nil {
			log.Warn("pipeline.metrics.failed", "err", err)
		}
	}

	if s.db != nil {
		doc := internal.DocumentRow{
			ID:         docID,
			EmailID:    emailID,
			Filename:   filename,
			Format:     string(parsed.Info.Format),
			ParserUsed: parsed.ParserUsed,
			Success:    parsed.Result.Success,
			Error:      parsed.Result.Error,
			Quality:    string(res.Quality.Rating),
		}
		if data := parsed.Result.Data; data != nil {
			doc.Confidence = data.Confidence
			doc.DocumentType = data.DocumentType
		}
		if err := s.db.SaveDocument(doc, res.Entries()); err != nil {
			return res, fmt.Errorf("save document %s: %w", filename, err)
		}
	}

	log.Info("pipeline.document.done", "success", parsed.Result.Success, "parser", parsed.ParserUsed,
		"format", parsed.Info.Format, "entries", len(res.Entries()), "quality", res.Quality.Rating,
		"elapsed_ms", res.Metrics.ProcessingTimeMs)
	return res, nil
}

type EmailResult struct {
	EmailID   int
	Documents []DocumentResult
}

func (s *ProcessingService) ProcessByProviderMessageID(ctx context.Context, provider, messageID string) (EmailResult, error) {
	if s.db == nil {
		return EmailResult{}, fmt.Errorf("processing by message id needs a database")
	}
	email, err := s.db.MustEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return EmailResult{}, err
	}
	return s.ProcessEmail(ctx, email)
}

func (s *ProcessingService) ProcessPending(ctx context.Context, limit int, provider string) (int, int, error) {
	if s.db == nil {
		return 0, 0, fmt.Errorf("processing pending mail needs a database")
	}
	pending, err := s.db.ListEmailsByStatus(storage.EmailFetched, limit)
	if err != nil {
		return 0, 0, err
	}
	processedEmails := 0
	processedDocs := 0
	for _, email := range pending {
		if provider != "" && email.Provider != provider {
			continue
		}
		if err := ctx.Err(); err != nil {
			return processedEmails, processedDocs, err
		}
		res, err := s.ProcessEmail(ctx, email)
		if err != nil {
			return processedEmails, processedDocs, err
		}
		processedEmails++
		processedDocs += len(res.Documents)
	}
	return processedEmails, processedDocs, nil
}

// ProcessEmail runs every attachment of a stored message through Process.
// A message without attachments is processed as its text body.
func (s *ProcessingService) ProcessEmail(ctx context.Context, email internal.EmailRow) (EmailResult, error) {
	start := time.Now()
	raw, err := os.ReadFile(email.RawRef)
	if err != nil {
		return EmailResult{}, err
	}
	docs, err := MailDocuments(raw)
	if err != nil {
		return EmailResult{}, err
	}
	if s.db != nil {
		if err := s.db.ClearEmailDocuments(email.ID); err != nil {
			return EmailResult{}, err
		}
	}

	out := EmailResult{EmailID: email.ID}
	if len(docs) == 0 {
		if s.db != nil {
			_ = s.db.UpdateEmailStatus(email.ID, storage.EmailSkipped)
		}
		return out, nil
	}

	ok := 0
	for _, d := range docs {
		res, err := s.process(ctx, &email.ID, d.Filename, d.Content, d.ContentType)
		if err != nil {
			return out, err
		}
		if res.Parse.Result.Success {
			ok++
		}
		out.Documents = append(out.Documents, res)
	}

	if s.db != nil {
		if err := s.db.UpdateEmailStatus(email.ID, storage.EmailProcessed); err != nil {
			return out, err
		}
		_ = s.db.InsertRun(uuid.New().String(), &email.ID,
			map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())},
			map[string]int{"documents": len(docs), "parsed": ok, "failed": len(docs) - ok})
	}
	return out, nil
}

type MailDocument struct {
	Filename    string
	ContentType string
	Content     []byte
}

// MailDocuments unpacks attachments and inline files of a raw message. When
// there are none, a non-empty text body becomes body.txt.
func MailDocuments(raw []byte) ([]MailDocument, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	var docs []MailDocument
	parts := append(append([]*enmime.Part{}, env.Attachments...), env.Inlines...)
	for i, att := range parts {
		if len(att.Content) == 0 {
			continue
		}
		filename := strings.TrimSpace(att.FileName)
		if filename == "" {
			filename = fmt.Sprintf("attachment-%d", i+1)
		}
		docs = append(docs, MailDocument{Filename: filename, ContentType: att.ContentType, Content: att.Content})
	}
	if len(docs) == 0 && strings.TrimSpace(env.Text) != "" {
		docs = append(docs, MailDocument{Filename: "body.txt", ContentType: "text/plain", Content: []byte(env.Text)})
	}
	return docs, nil
}
