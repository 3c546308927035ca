// internal/historian/historian.go drains the action journal from Redis into
// PostgreSQL in batches.
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jason-s-yu/turnsync/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Popper is the part of *redis.Client the drainer uses.
type Popper interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// Sink stores a batch of journaled actions atomically.
type Sink interface {
	InsertActions(ctx context.Context, recs []models.ActionRecord) error
}

// Options tunes batching. Zero values take the defaults.
type Options struct {
	Queue       string
	BatchSize   int
	FlushDelay  time.Duration
	PollTimeout time.Duration
}

// Drainer moves records from the journal queue to the sink.
type Drainer struct {
	rdb  Popper
	sink Sink
	opts Options
	log  *logrus.Entry

	batchMu sync.Mutex
	batch   []models.ActionRecord
}

func New(rdb Popper, sink Sink, opts Options, logger *logrus.Logger) *Drainer {
	if opts.Queue == "" {
		opts.Queue = "turnsync_actions"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.FlushDelay <= 0 {
		opts.FlushDelay = 500 * time.Millisecond
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 3 * time.Second
	}
	return &Drainer{
		rdb:   rdb,
		sink:  sink,
		opts:  opts,
		log:   logger.WithField("queue", opts.Queue),
		batch: make([]models.ActionRecord, 0, opts.BatchSize),
	}
}

// Run pops until ctx is done, then flushes what is left.
func (d *Drainer) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.opts.FlushDelay)
	defer ticker.Stop()

	d.log.Info("journal drain started")
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := d.Flush(flushCtx); err != nil {
				d.log.WithError(err).Error("final flush failed")
			}
			return ctx.Err()
		case <-ticker.C:
			if err := d.Flush(ctx); err != nil {
				d.log.WithError(err).Error("flush failed")
			}
		default:
			if err := d.pop(ctx); err != nil && ctx.Err() == nil {
				d.log.WithError(err).Error("BLPop failed")
			}
		}
	}
}

// pop takes at most one record off the queue.
func (d *Drainer) pop(ctx context.Context) error {
	res, err := d.rdb.BLPop(ctx, d.opts.PollTimeout, d.opts.Queue).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	// res[0] is the queue name and res[1] the payload.
	if len(res) < 2 {
		return nil
	}
	return d.accept(ctx, res[1])
}

func (d *Drainer) accept(ctx context.Context, payload string) error {
	var rec models.ActionRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		d.log.WithError(err).Warn("invalid action record")
		return nil
	}

	d.batchMu.Lock()
	d.batch = append(d.batch, rec)
	full := len(d.batch) >= d.opts.BatchSize
	d.batchMu.Unlock()

	if full {
		return d.Flush(ctx)
	}
	return nil
}

// Flush writes the pending batch. On failure the batch is kept for the next
// attempt.
func (d *Drainer) Flush(ctx context.Context) error {
	d.batchMu.Lock()
	defer d.batchMu.Unlock()

	if len(d.batch) == 0 {
		return nil
	}
	batch := make([]models.ActionRecord, len(d.batch))
	copy(batch, d.batch)

	if err := d.sink.InsertActions(ctx, batch); err != nil {
		return fmt.Errorf("insert %d actions: %w", len(batch), err)
	}
	d.batch = d.batch[:0]
	d.log.WithField("count", len(batch)).Debug("flushed actions")
	return nil
}

// Pending reports how many records wait for the next flush.
func (d *Drainer) Pending() int {
	d.batchMu.Lock()
	defer d.batchMu.Unlock()
	return len(d.batch)
}
