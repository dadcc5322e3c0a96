// Package outbox persists reports whose delivery failed so they can be
// redelivered, oldest first, once the sink recovers.
package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

const schema = `
CREATE TABLE IF NOT EXISTS outbox (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	sink       TEXT    NOT NULL,
	payload    BLOB    NOT NULL,
	created_at INTEGER NOT NULL,
	attempts   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS outbox_sink_id ON outbox (sink, id);
`

// Item is one persisted report
type Item struct {
	ID        int64
	Sink      string
	Payload   []byte
	CreatedAt time.Time
	Attempts  int
}

// Outbox is a sqlite-backed FIFO per sink
type Outbox struct {
	db       *sql.DB
	logger   *logrus.Logger
	maxItems int
}

// Open opens (creating if needed) the outbox database at path.
// maxItems bounds each sink's backlog; 0 means unbounded.
func Open(path string, maxItems int, logger *logrus.Logger) (*Outbox, error) {
	if logger == nil {
		logger = logrus.New()
	}

	dsn, err := buildDSN(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("outbox open: %w", err)
	}
	// a single writer avoids "database is locked" between the delivery worker and status reads
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("outbox ping: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("outbox schema: %w", err)
	}

	logger.WithField("path", path).Debug("Outbox opened")
	return &Outbox{db: db, logger: logger, maxItems: maxItems}, nil
}

func buildDSN(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("outbox path is empty")
	}

	dir := filepath.Dir(strings.TrimPrefix(path, "file:"))
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	params := []string{
		"_busy_timeout=5000",
		"_journal_mode=WAL",
	}
	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + strings.Join(params, "&"), nil
	}
	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&")), nil
}

// Put appends payload to the sink's backlog, evicting the oldest items beyond maxItems
func (o *Outbox) Put(ctx context.Context, sink string, payload []byte) (int64, error) {
	res, err := o.db.ExecContext(ctx,
		`INSERT INTO outbox (sink, payload, created_at) VALUES (?, ?, ?)`,
		sink, payload, time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("outbox put: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("outbox put: %w", err)
	}

	if o.maxItems > 0 {
		res, err := o.db.ExecContext(ctx,
			`DELETE FROM outbox WHERE sink = ? AND id NOT IN (
				SELECT id FROM outbox WHERE sink = ? ORDER BY id DESC LIMIT ?)`,
			sink, sink, o.maxItems)
		if err != nil {
			return id, fmt.Errorf("outbox trim: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			o.logger.WithFields(logrus.Fields{
				"sink":    sink,
				"evicted": n,
			}).Warn("Outbox full, dropped oldest reports")
		}
	}
	return id, nil
}

// Pending returns up to limit items for sink, oldest first
func (o *Outbox) Pending(ctx context.Context, sink string, limit int) ([]Item, error) {
	rows, err := o.db.QueryContext(ctx,
		`SELECT id, sink, payload, created_at, attempts FROM outbox WHERE sink = ? ORDER BY id LIMIT ?`,
		sink, limit)
	if err != nil {
		return nil, fmt.Errorf("outbox pending: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		var created int64
		if err := rows.Scan(&it.ID, &it.Sink, &it.Payload, &created, &it.Attempts); err != nil {
			return nil, fmt.Errorf("outbox scan: %w", err)
		}
		it.CreatedAt = time.UnixMilli(created)
		items = append(items, it)
	}
	return items, rows.Err()
}

// Ack removes a delivered item
func (o *Outbox) Ack(ctx context.Context, id int64) error {
	if _, err := o.db.ExecContext(ctx, `DELETE FROM outbox WHERE id = ?`, id); err != nil {
		return fmt.Errorf("outbox ack %d: %w", id, err)
	}
	return nil
}

// Attempted records a failed redelivery of id
func (o *Outbox) Attempted(ctx context.Context, id int64) error {
	if _, err := o.db.ExecContext(ctx, `UPDATE outbox SET attempts = attempts + 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("outbox attempt %d: %w", id, err)
	}
	return nil
}

// Len returns the backlog size of sink; an empty sink counts every sink
func (o *Outbox) Len(ctx context.Context, sink string) (int, error) {
	var n int
	var err error
	if sink == "" {
		err = o.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&n)
	} else {
		err = o.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox WHERE sink = ?`, sink).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("outbox len: %w", err)
	}
	return n, nil
}

func (o *Outbox) Close() error {
	if o == nil || o.db == nil {
		return nil
	}
	return o.db.Close()
}
