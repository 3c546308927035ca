// internal/database/journal.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/turnsync/internal/models"
)

// JournalSchema creates the table ActionStore writes to.
const JournalSchema = `
CREATE TABLE IF NOT EXISTS action_journal (
	session_id  UUID        NOT NULL,
	match_code  TEXT        NOT NULL,
	username    TEXT        NOT NULL,
	action_index INT        NOT NULL,
	value       INT         NOT NULL,
	remote      BOOLEAN     NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (session_id, username, action_index)
)`

// ActionStore persists drained journal records.
type ActionStore struct {
	pool *pgxpool.Pool
}

func NewActionStore(pool *pgxpool.Pool) *ActionStore {
	return &ActionStore{pool: pool}
}

func (s *ActionStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, JournalSchema); err != nil {
		return fmt.Errorf("create action_journal: %w", err)
	}
	return nil
}

// InsertActions writes recs in one transaction. A record already stored for
// the same session, player and index is left untouched, so a batch retried
// after a partial failure is safe.
func (s *ActionStore) InsertActions(ctx context.Context, recs []models.ActionRecord) error {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			INSERT INTO action_journal (session_id, match_code, username, action_index, value, remote, observed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (session_id, username, action_index) DO NOTHING
		`
		for _, r := range recs {
			if _, err := tx.Exec(ctx, q, r.SessionID, r.MatchCode, r.Username, r.Index, r.Value, r.Remote, time.UnixMilli(r.Timestamp)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx insert journal: %w", err)
	}
	return nil
}
