package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"esgdocs/internal"
	"esgdocs/internal/metrics"
)

const (
	EmailFetched   = "fetched"
	EmailProcessed = "processed"
	EmailExported  = "exported"
	EmailSkipped   = "skipped"
)

// timeLayout is fixed width so stored timestamps compare as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	conn, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS emails (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);

CREATE TABLE IF NOT EXISTS documents (
  id TEXT PRIMARY KEY,
  emailId INTEGER,
  filename TEXT NOT NULL,
  format TEXT NOT NULL,
  parserUsed TEXT,
  success INTEGER NOT NULL,
  confidence REAL NOT NULL,
  quality TEXT,
  documentType TEXT,
  error TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(emailId) REFERENCES emails(id)
);
CREATE INDEX IF NOT EXISTS idx_documents_emailId ON documents(emailId);

CREATE TABLE IF NOT EXISTS extracted_entries (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  documentId TEXT NOT NULL,
  category TEXT NOT NULL,
  value REAL NOT NULL,
  unit TEXT NOT NULL,
  rawUnit TEXT,
  period TEXT,
  supplier TEXT,
  confidence REAL NOT NULL,
  recommendation TEXT,
  source TEXT,
  FOREIGN KEY(documentId) REFERENCES documents(id)
);
CREATE INDEX IF NOT EXISTS idx_entries_documentId ON extracted_entries(documentId);

CREATE TABLE IF NOT EXISTS processing_metrics (
  id TEXT PRIMARY KEY,
  documentId TEXT NOT NULL,
  startedAt TEXT NOT NULL,
  success INTEGER NOT NULL,
  recordJson TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_metrics_startedAt ON processing_metrics(startedAt);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  emailId INTEGER,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// SaveDocument writes the document row and its entries in one transaction.
func (d *DB) SaveDocument(doc internal.DocumentRow, entries []internal.DataEntry) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
INSERT INTO documents (id, emailId, filename, format, parserUsed, success, confidence, quality, documentType, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, doc.ID, doc.EmailID, doc.Filename, doc.Format, doc.ParserUsed, doc.Success, doc.Confidence, doc.Quality, doc.DocumentType, doc.Error); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	stmt, err := tx.Prepare(`
INSERT INTO extracted_entries (documentId, category, value, unit, rawUnit, period, supplier, confidence, recommendation, source)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.Exec(doc.ID, string(e.Category), e.Value, e.Unit, e.RawUnit, e.Period, e.Supplier, e.Confidence, e.Recommendation, e.Source); err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
	}

	return tx.Commit()
}

func (d *DB) ListDocumentsByEmail(emailID int) ([]internal.DocumentRow, error) {
	rows, err := d.conn.Query(`
SELECT id, emailId, filename, format, parserUsed, success, confidence, quality, documentType, error, createdAt
FROM documents WHERE emailId = ? ORDER BY createdAt ASC, filename ASC
`, emailID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.DocumentRow
	for rows.Next() {
		var doc internal.DocumentRow
		var parser, quality, docType, errText sql.NullString
		if err := rows.Scan(&doc.ID, &doc.EmailID, &doc.Filename, &doc.Format, &parser, &doc.Success, &doc.Confidence, &quality, &docType, &errText, &doc.CreatedAt); err != nil {
			return nil, err
		}
		doc.ParserUsed, doc.Quality, doc.DocumentType, doc.Error = parser.String, quality.String, docType.String, errText.String
		out = append(out, doc)
	}
	return out, rows.Err()
}

// ClearEmailDocuments removes what a previous run stored for the email so it
// can be processed again.
func (d *DB) ClearEmailDocuments(emailID int) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM extracted_entries WHERE documentId IN (SELECT id FROM documents WHERE emailId = ?)`, emailID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM documents WHERE emailId = ?`, emailID); err != nil {
		return err
	}
	return tx.Commit()
}

// GetEntryExportRows lists entries of one email, or of every document when
// emailID is nil. Higher confidence first.
func (d *DB) GetEntryExportRows(emailID *int) ([]internal.EntryExportRow, error) {
	query := `
SELECT d.id, d.filename, e.category, e.value, e.unit, e.rawUnit, e.confidence, e.recommendation, e.source, e.period, e.supplier
FROM extracted_entries e
JOIN documents d ON d.id = e.documentId
`
	var args []any
	if emailID != nil {
		query += "WHERE d.emailId = ?\n"
		args = append(args, *emailID)
	}
	query += "ORDER BY d.filename ASC, e.confidence DESC, e.id ASC"

	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.EntryExportRow
	for rows.Next() {
		var row internal.EntryExportRow
		var rawUnit, rec, source, period, supplier sql.NullString
		if err := rows.Scan(&row.DocumentID, &row.Filename, &row.Category, &row.Value, &row.Unit, &rawUnit, &row.Confidence, &rec, &source, &period, &supplier); err != nil {
			return nil, err
		}
		row.RawUnit, row.Recommendation, row.Source = rawUnit.String, rec.String, source.String
		row.Period, row.Supplier = period.String, supplier.String
		out = append(out, row)
	}
	return out, rows.Err()
}

// InsertMetrics appends one record. Records are never updated.
func (d *DB) InsertMetrics(m metrics.ProcessingMetrics) error {
	recordJSON, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = d.conn.Exec(`
INSERT INTO processing_metrics (id, documentId, startedAt, success, recordJson) VALUES (?, ?, ?, ?, ?)
`, m.ID, m.DocumentID, m.StartedAt.UTC().Format(timeLayout), m.Success, string(recordJSON))
	return err
}

func (d *DB) ListMetricsSince(since time.Time) ([]metrics.ProcessingMetrics, error) {
	rows, err := d.conn.Query(`
SELECT recordJson FROM processing_metrics WHERE startedAt >= ? ORDER BY startedAt ASC
`, since.UTC().Format(timeLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []metrics.ProcessingMetrics
	for rows.Next() {
		var recordJSON string
		if err := rows.Scan(&recordJSON); err != nil {
			return nil, err
		}
		var m metrics.ProcessingMetrics
		if err := json.Unmarshal([]byte(recordJSON), &m); err != nil {
			return nil, fmt.Errorf("decode metrics record: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (d *DB) UpsertEmail(provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.EmailRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO emails (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  status=CASE WHEN emails.hash <> excluded.hash THEN excluded.status ELSE emails.status END,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, status, rawRef)
	if err != nil {
		return internal.EmailRow{}, err
	}
	return d.MustEmailByProviderMessageID(provider, messageID)
}

const emailColumns = `id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef`

func scanEmail(scan func(dest ...any) error) (internal.EmailRow, error) {
	var row internal.EmailRow
	var subject, sender, receivedAt sql.NullString
	err := scan(&row.ID, &row.Provider, &row.MessageID, &subject, &sender, &receivedAt, &row.Hash, &row.Status, &row.RawRef)
	row.Subject, row.Sender, row.ReceivedAt = subject.String, sender.String, receivedAt.String
	return row, err
}

func (d *DB) GetEmailByProviderMessageID(provider, messageID string) (*internal.EmailRow, error) {
	row, err := scanEmail(d.conn.QueryRow(`SELECT `+emailColumns+` FROM emails WHERE provider = ? AND messageId = ?`, provider, messageID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) GetEmailByID(id int) (*internal.EmailRow, error) {
	row, err := scanEmail(d.conn.QueryRow(`SELECT `+emailColumns+` FROM emails WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) MustEmailByProviderMessageID(provider, messageID string) (internal.EmailRow, error) {
	row, err := d.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, fmt.Errorf("email not found: provider=%s messageId=%s", provider, messageID)
	}
	return *row, nil
}

func (d *DB) ListEmailsByStatus(status string, limit int) ([]internal.EmailRow, error) {
	rows, err := d.conn.Query(`SELECT `+emailColumns+` FROM emails WHERE status = ? ORDER BY receivedAt ASC, id ASC LIMIT ?`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.EmailRow
	for rows.Next() {
		row, err := scanEmail(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateEmailStatus(emailID int, status string) error {
	_, err := d.conn.Exec(`UPDATE emails SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, emailID)
	return err
}

func (d *DB) InsertRun(traceID string, emailID *int, timings map[string]float64, counts map[string]int) error {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	_, err := d.conn.Exec(`INSERT INTO runs (traceId, emailId, timingsJson, countsJson) VALUES (?, ?, ?, ?)`, traceID, emailID, string(timingsJSON), string(countsJSON))
	return err
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
