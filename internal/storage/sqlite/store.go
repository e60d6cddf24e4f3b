package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/companion-core/internal/storage"
)

// Store is a SQLite implementation of ExportStore.
type Store struct {
	db *sqlx.DB
}

var _ storage.ExportStore = (*Store)(nil)

// exportRow mirrors the exports table. created_at is epoch milliseconds.
type exportRow struct {
	ID            string `db:"id"`
	CreatedAt     int64  `db:"created_at"`
	TotalMessages int    `db:"total_messages"`
	Payload       []byte `db:"payload"`
}

func (r exportRow) record() *storage.ExportRecord {
	return &storage.ExportRecord{
		ID:            r.ID,
		CreatedAt:     time.UnixMilli(r.CreatedAt).UTC(),
		TotalMessages: r.TotalMessages,
		Payload:       r.Payload,
	}
}

// New opens (or creates) the archive at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS exports (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			total_messages INTEGER NOT NULL DEFAULT 0,
			payload BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_exports_created ON exports(created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

func (s *Store) SaveExport(ctx context.Context, rec *storage.ExportRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	payload := []byte(rec.Payload)
	if payload == nil {
		payload = []byte("null")
	}

	query := `INSERT INTO exports (id, created_at, total_messages, payload) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, rec.ID, rec.CreatedAt.UnixMilli(), rec.TotalMessages, payload); err != nil {
		return fmt.Errorf("failed to insert export: %w", err)
	}
	return nil
}

func (s *Store) GetExport(ctx context.Context, id string) (*storage.ExportRecord, error) {
	var row exportRow
	query := `SELECT id, created_at, total_messages, payload FROM exports WHERE id = ?`
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("export %s: %w", id, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get export: %w", err)
	}
	return row.record(), nil
}

func (s *Store) ListExports(ctx context.Context, opts storage.ListOptions) ([]*storage.ExportRecord, error) {
	opts = opts.Normalized()

	var rows []exportRow
	query := `SELECT id, created_at, total_messages FROM exports
		ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
	if err := s.db.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset); err != nil {
		return nil, fmt.Errorf("failed to list exports: %w", err)
	}

	result := make([]*storage.ExportRecord, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.record())
	}
	return result, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
