package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"stargazerbot/pkg/logx"
)

//go:embed migrations.sql
var migrations string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (*sqliteStore, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("storage: create dir: %w", err)
		}
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	dsn := fmt.Sprintf("file:%s?%s", cfg.Path, url.Values{
		"_pragma": []string{
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
			fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()),
		},
	}.Encode())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	// modernc's driver is single-writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(migrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) AppendDelivery(ctx context.Context, rec DeliveryRecord) error {
	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deliveries (at, topic, kind, recipients, delivered, degraded, dropped, took_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.At.UTC().Format(time.RFC3339Nano), rec.Topic, rec.Kind,
		rec.Recipients, rec.Delivered, rec.Degraded, rec.Dropped, rec.TookMS,
	)
	if err != nil {
		return fmt.Errorf("storage: insert delivery: %w", err)
	}
	return nil
}

func (s *sqliteStore) Summary(ctx context.Context, since time.Time) (Summary, error) {
	sum := Summary{Since: since, Topics: map[string]int{}}
	cut := since.UTC().Format(time.RFC3339Nano)

	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(recipients), 0),
		       COALESCE(SUM(delivered), 0),
		       COALESCE(SUM(degraded), 0),
		       COALESCE(SUM(dropped), 0)
		FROM deliveries WHERE at >= ?`, cut)
	if err := row.Scan(&sum.Events, &sum.Recipients, &sum.Delivered, &sum.Degraded, &sum.Dropped); err != nil {
		return sum, fmt.Errorf("storage: summary scan: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT topic, COUNT(*) FROM deliveries WHERE at >= ? GROUP BY topic`, cut)
	if err != nil {
		return sum, fmt.Errorf("storage: summary topics: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var topic string
		var n int
		if err := rows.Scan(&topic, &n); err != nil {
			return sum, fmt.Errorf("storage: summary topics: %w", err)
		}
		sum.Topics[topic] = n
	}
	if err := rows.Err(); err != nil {
		return sum, fmt.Errorf("storage: summary topics: %w", err)
	}
	return sum, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
