// internal/database/results.go
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/turnsync/internal/models"
)

// Schema creates the table ResultStore writes to.
const Schema = `
CREATE TABLE IF NOT EXISTS match_results (
	match_code TEXT        NOT NULL,
	variant    TEXT        NOT NULL,
	username   TEXT        NOT NULL,
	rank       INT         NOT NULL,
	score      INT         NOT NULL,
	time_secs  INT         NOT NULL,
	finished   BOOLEAN     NOT NULL,
	did_win    BOOLEAN     NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (match_code, username)
)`

// ResultStore persists the final standings of finished matches.
type ResultStore struct {
	pool *pgxpool.Pool
}

func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

// EnsureSchema creates match_results if it does not exist.
func (s *ResultStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create match_results: %w", err)
	}
	return nil
}

type resultRow struct {
	username string
	rank     int
	score    int
	time     int
	finished bool
	didWin   bool
}

// resultRows numbers the standings from 1. Only the top entry wins, and
// only if it finished.
func resultRows(ranking []models.RankingEntry) []resultRow {
	rows := make([]resultRow, 0, len(ranking))
	for i, e := range ranking {
		rows = append(rows, resultRow{
			username: e.Username,
			rank:     i + 1,
			score:    e.Score,
			time:     e.Time,
			finished: e.Finished,
			didWin:   i == 0 && e.Finished,
		})
	}
	return rows
}

// SaveResults upserts one row per ranked player in a single transaction.
// Every client of a match reports the same standings, so repeated saves
// overwrite rather than duplicate.
func (s *ResultStore) SaveResults(ctx context.Context, matchCode string, variant models.Variant, ranking []models.RankingEntry) error {
	if matchCode == "" {
		return fmt.Errorf("%w: match code", models.ErrMissingField)
	}
	rows := resultRows(ranking)
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			INSERT INTO match_results (match_code, variant, username, rank, score, time_secs, finished, did_win)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (match_code, username)
			DO UPDATE SET rank=$4, score=$5, time_secs=$6, finished=$7, did_win=$8, recorded_at=now()
		`
		for _, r := range rows {
			if _, err := tx.Exec(ctx, q, matchCode, string(variant), r.username, r.rank, r.score, r.time, r.finished, r.didWin); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx upsert match results: %w", err)
	}
	return nil
}
