// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jason-s-yu/turnsync/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list that receives journaled actions.
var DefaultQueueName = "turnsync_actions"

// Journal appends every action the client applies to a Redis list, so a
// match can be reconstructed from what each client actually saw.
type Journal struct {
	rdb   *redis.Client
	queue string
}

// Connect opens a Redis client and checks it with a PING.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// NewJournal writes to queue on rdb. An empty queue uses DefaultQueueName.
func NewJournal(rdb *redis.Client, queue string) *Journal {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &Journal{rdb: rdb, queue: queue}
}

// Queue returns the list name the journal pushes to.
func (j *Journal) Queue() string {
	return j.queue
}

// Record serializes rec to JSON and pushes it to the queue.
func (j *Journal) Record(ctx context.Context, rec models.ActionRecord) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if err := j.rdb.RPush(ctx, j.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", j.queue, err)
	}
	return nil
}

func encodeRecord(rec models.ActionRecord) ([]byte, error) {
	if rec.Username == "" {
		return nil, fmt.Errorf("%w: username", models.ErrMissingField)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ActionRecord: %w", err)
	}
	return data, nil
}

// Close releases the underlying client.
func (j *Journal) Close() error {
	return j.rdb.Close()
}
