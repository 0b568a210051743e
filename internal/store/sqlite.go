// Package store persists the forwarding audit log in sqlite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the sqlite database at path. An empty path yields
// an in-memory database that lives for the process lifetime.
func Open(ctx context.Context, path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	inMemory := false
	if trimmed == "" {
		trimmed = ":memory:"
		inMemory = true
	}
	if strings.Contains(trimmed, "mode=memory") || trimmed == ":memory:" || trimmed == "file::memory:" {
		inMemory = true
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if !inMemory {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS deliveries (
            id TEXT PRIMARY KEY,
            provider TEXT NOT NULL,
            from_email TEXT NOT NULL,
            to_emails TEXT NOT NULL,
            subject TEXT NOT NULL,
            size INTEGER NOT NULL,
            status TEXT NOT NULL,
            smtp_code INTEGER NOT NULL,
            detail TEXT NOT NULL,
            created_at INTEGER NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_created ON deliveries(created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_provider ON deliveries(provider, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_status ON deliveries(status, created_at);`,
	}

	for _, statement := range statements {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// InsertDelivery records one forwarding attempt.
func (s *Store) InsertDelivery(ctx context.Context, d Delivery) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO deliveries
        (id, provider, from_email, to_emails, subject, size, status, smtp_code, detail, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		d.ID, d.Provider, d.From, strings.Join(d.To, ","), d.Subject,
		d.Size, d.Status, d.SMTPCode, d.Detail, d.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

// ListDeliveries returns one page of the audit log plus the total row count.
// sort is "newest" or "oldest".
func (s *Store) ListDeliveries(ctx context.Context, limit, offset int32, sort string) ([]Delivery, int32, error) {
	order := "DESC"
	if sort == "oldest" || sort == "asc" {
		order = "ASC"
	}

	var total int32
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deliveries;`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count deliveries: %w", err)
	}

	query := fmt.Sprintf(`SELECT id, provider, from_email, to_emails, subject, size, status, smtp_code, detail, created_at
        FROM deliveries ORDER BY created_at %s, id %s LIMIT ? OFFSET ?;`, order, order)
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list deliveries: %w", err)
	}
	return out, total, nil
}

// GetDelivery loads one record by ID. Returns sql.ErrNoRows when absent.
func (s *Store) GetDelivery(ctx context.Context, id string) (Delivery, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, provider, from_email, to_emails, subject, size, status, smtp_code, detail, created_at
        FROM deliveries WHERE id = ?;`, id)
	return scanDelivery(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDelivery(row rowScanner) (Delivery, error) {
	var d Delivery
	var to string
	var createdAt int64
	if err := row.Scan(&d.ID, &d.Provider, &d.From, &to, &d.Subject, &d.Size, &d.Status, &d.SMTPCode, &d.Detail, &createdAt); err != nil {
		return Delivery{}, err
	}
	if to != "" {
		d.To = strings.Split(to, ",")
	}
	d.CreatedAt = time.Unix(createdAt, 0).UTC()
	return d, nil
}
