package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/yutakobayashidev/asobiba/pkg/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS subscriptions (
	platform        TEXT NOT NULL,
	conversation_id TEXT NOT NULL,
	subscribed      INTEGER NOT NULL,
	updated_at      TIMESTAMP NOT NULL,
	PRIMARY KEY (platform, conversation_id)
);`

// SQLiteStore persists subscription flags in SQLite. Every write commits
// before SetSubscribed returns, so a subscribe immediately followed by a
// dispatch check observes the subscription.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path. Use ":memory:" for
// an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// IsSubscribed reports the subscription flag for a conversation. Unknown
// conversations are unsubscribed.
func (s *SQLiteStore) IsSubscribed(ctx context.Context, platform, conversationID string) (bool, error) {
	var subscribed bool
	err := s.db.QueryRowContext(ctx,
		`SELECT subscribed FROM subscriptions WHERE platform = ? AND conversation_id = ?`,
		platform, conversationID,
	).Scan(&subscribed)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read subscription: %w", err)
	}
	return subscribed, nil
}

// SetSubscribed upserts the subscription flag; repeating a write leaves a
// single row.
func (s *SQLiteStore) SetSubscribed(ctx context.Context, platform, conversationID string, subscribed bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (platform, conversation_id, subscribed, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(platform, conversation_id)
		 DO UPDATE SET subscribed = excluded.subscribed, updated_at = excluded.updated_at`,
		platform, conversationID, subscribed, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("write subscription: %w", err)
	}
	return nil
}

// Count returns the number of currently subscribed conversations.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE subscribed = 1`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count subscriptions: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// StartSweeper purges rows untouched for longer than ttl on the given cron
// schedule. Expiry is the store's concern; the chat core never deletes
// conversations. Blocks until ctx is cancelled, so run it in a goroutine.
func (s *SQLiteStore) StartSweeper(ctx context.Context, schedule string, ttl time.Duration) error {
	gron := gronx.New()
	if !gron.IsValid(schedule) {
		return fmt.Errorf("invalid sweep schedule %q", schedule)
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			due, err := gron.IsDue(schedule, now)
			if err != nil || !due {
				continue
			}
			s.sweep(ctx, ttl)
		}
	}
}

func (s *SQLiteStore) sweep(ctx context.Context, ttl time.Duration) {
	cutoff := time.Now().UTC().Add(-ttl)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE updated_at < ?`, cutoff)
	if err != nil {
		logger.ErrorCF("state", "Subscription sweep failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		logger.InfoCF("state", "Stale subscriptions swept", map[string]interface{}{
			"removed": n, "cutoff": cutoff.Format(time.RFC3339),
		})
	}
}
