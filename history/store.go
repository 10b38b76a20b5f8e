// Package history keeps a ledger of pipeline runs in SQLite or PostgreSQL.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const table = "publications"

// timeLayout is fixed width so that text order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `CREATE TABLE IF NOT EXISTS publications (
	request_id   TEXT PRIMARY KEY,
	chat_id      BIGINT NOT NULL,
	topic        TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	link         TEXT NOT NULL DEFAULT '',
	scheduled_at TEXT NOT NULL DEFAULT '',
	state        TEXT NOT NULL,
	error        TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL
)`

// Entry is one finished run.
type Entry struct {
	RequestID   string
	ChatID      int64
	Topic       string
	Title       string
	Link        string
	ScheduledAt time.Time
	State       string
	Error       string
	CreatedAt   time.Time
}

// Store is a ledger backed by database/sql.
type Store struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// Open connects to dsn. postgres:// and postgresql:// DSNs use lib/pq; anything
// else is a SQLite file path, optionally prefixed with sqlite://.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("history dsn is empty")
	}

	driver, source, format := dialect(dsn)
	if driver == "sqlite" {
		if dir := filepath.Dir(source); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("failed to create history directory: %w", err)
			}
		}
	}

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if driver == "sqlite" {
		// one writer; avoids SQLITE_BUSY between the bot and CLI reads
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}
	return &Store{db: db, sb: sq.StatementBuilder.PlaceholderFormat(format)}, nil
}

// dialect picks the driver, data source and placeholder style for dsn.
func dialect(dsn string) (string, string, sq.PlaceholderFormat) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", dsn, sq.Dollar
	}
	return "sqlite", strings.TrimPrefix(dsn, "sqlite://"), sq.Question
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record appends e. CreatedAt defaults to now.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.RequestID == "" {
		return errors.New("history entry without request id")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	query, args, err := s.sb.Insert(table).
		Columns("request_id", "chat_id", "topic", "title", "link", "scheduled_at", "state", "error", "created_at").
		Values(e.RequestID, e.ChatID, e.Topic, e.Title, e.Link, formatTime(e.ScheduledAt), e.State, e.Error, formatTime(e.CreatedAt)).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to record run %s: %w", e.RequestID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	query, args, err := s.sb.Select("request_id", "chat_id", "topic", "title", "link", "scheduled_at", "state", "error", "created_at").
		From(table).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                  Entry
			scheduled, created string
		)
		if err := rows.Scan(&e.RequestID, &e.ChatID, &e.Topic, &e.Title, &e.Link, &scheduled, &e.State, &e.Error, &created); err != nil {
			return nil, err
		}
		e.ScheduledAt = parseTime(scheduled)
		e.CreatedAt = parseTime(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
