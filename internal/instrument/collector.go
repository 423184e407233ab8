package instrument

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"modelbase-backend/internal/store"
)

// QueryStat is one timed engine operation.
type QueryStat struct {
	ModelID   string        `json:"model_id"`
	Operation string        `json:"operation"`
	Duration  time.Duration `json:"duration"`
	Total     int64         `json:"total"`
	At        time.Time     `json:"at"`
}

// Collector buffers query stats in memory and batch-inserts them into
// _query_stats. There is no timer: a flush happens when the buffer fills
// or when a caller asks for one, so the engine owns no background work.
type Collector struct {
	mu      sync.Mutex
	stats   []QueryStat
	store   *store.Store
	maxSize int
}

func NewCollector(s *store.Store, maxSize int) *Collector {
	if maxSize <= 0 {
		maxSize = 500
	}
	return &Collector{store: s, maxSize: maxSize}
}

// Enqueue adds a stat to the buffer. A full buffer triggers an async flush.
func (c *Collector) Enqueue(stat QueryStat) {
	if stat.At.IsZero() {
		stat.At = time.Now()
	}
	c.mu.Lock()
	c.stats = append(c.stats, stat)
	shouldFlush := len(c.stats) >= c.maxSize
	c.mu.Unlock()
	if shouldFlush {
		go func() {
			if err := c.Flush(context.Background()); err != nil {
				log.Printf("ERROR: query stats flush: %v", err)
			}
		}()
	}
}

// Snapshot returns the currently buffered (unflushed) stats, newest last.
func (c *Collector) Snapshot() []QueryStat {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]QueryStat, len(c.stats))
	copy(out, c.stats)
	return out
}

// Flush writes all buffered stats in one transaction.
func (c *Collector) Flush(ctx context.Context) error {
	c.mu.Lock()
	if len(c.stats) == 0 {
		c.mu.Unlock()
		return nil
	}
	batch := c.stats
	c.stats = nil
	c.mu.Unlock()

	d := c.store.Dialect
	tx, err := c.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin stats flush: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stat := range batch {
		pb := d.NewParamBuilder()
		var modelID any
		if stat.ModelID != "" {
			modelID = stat.ModelID
		}
		sql := fmt.Sprintf(
			"INSERT INTO _query_stats (id, model_id, operation, duration_ms, total) VALUES (%s, %s, %s, %s, %s)",
			pb.Add(uuid.NewString()), pb.Add(modelID), pb.Add(stat.Operation),
			pb.Add(stat.Duration.Milliseconds()), pb.Add(stat.Total))
		if _, err := store.Exec(ctx, tx, sql, pb.Params()...); err != nil {
			return fmt.Errorf("insert query stat: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit stats flush: %w", err)
	}
	return nil
}
