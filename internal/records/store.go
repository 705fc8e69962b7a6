package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"reelup/internal/config"
)

// Record remembers that a source file was uploaded and which asset it became.
type Record struct {
	ID         int64
	AssetID    string
	SourcePath string
	SizeBytes  int64
	UploadedAt time.Time
}

// Store persists upload records in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// Open opens the record database under the configured state directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.RecordsPath())
}

// OpenPath opens or creates the record database at path.
func OpenPath(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure records directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path is the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put stores rec. Writing the same asset id twice keeps the first record.
func (s *Store) Put(ctx context.Context, rec Record) error {
	if strings.TrimSpace(rec.AssetID) == "" {
		return errors.New("record asset id is required")
	}
	if strings.TrimSpace(rec.SourcePath) == "" {
		return errors.New("record source path is required")
	}
	if rec.UploadedAt.IsZero() {
		rec.UploadedAt = time.Now()
	}
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO upload_records (asset_id, source_path, size_bytes, uploaded_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(asset_id) DO NOTHING`,
			rec.AssetID, rec.SourcePath, rec.SizeBytes, rec.UploadedAt.UTC().Format(time.RFC3339),
		)
		return err
	})
}

// Latest returns the newest record for sourcePath, or nil when none exists.
func (s *Store) Latest(ctx context.Context, sourcePath string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, asset_id, source_path, size_bytes, uploaded_at
		 FROM upload_records WHERE source_path = ?
		 ORDER BY uploaded_at DESC, id DESC LIMIT 1`, sourcePath)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest record: %w", err)
	}
	return rec, nil
}

// List returns the newest records first. A non-positive limit returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	query := `SELECT id, asset_id, source_path, size_bytes, uploaded_at
		FROM upload_records ORDER BY uploaded_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec        Record
		uploadedAt string
	)
	if err := row.Scan(&rec.ID, &rec.AssetID, &rec.SourcePath, &rec.SizeBytes, &uploadedAt); err != nil {
		return nil, err
	}
	parsed, err := time.Parse(time.RFC3339, uploadedAt)
	if err != nil {
		return nil, fmt.Errorf("parse uploaded_at %q: %w", uploadedAt, err)
	}
	rec.UploadedAt = parsed
	return &rec, nil
}
