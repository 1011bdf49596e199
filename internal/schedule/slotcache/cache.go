// Package slotcache caches computed free slots in Redis. Cached entries
// are advisory: booking always re-validates against the database, so a
// stale read can never cause a double booking.
package slotcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/citasalud/citasalud-api/pkg/logging"
)

// Cache stores slot lists keyed by doctor, day and slot duration. Each
// doctor has a generation counter; Invalidate bumps it, which orphans
// every cached entry for that doctor without scanning keys. Orphans
// expire via TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// New creates a cache with the given entry TTL.
func New(client *redis.Client, ttl time.Duration, logger *logging.Logger) *Cache {
	if client == nil {
		panic("slotcache: redis client required")
	}
	if logger == nil {
		panic("slotcache: logger required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, ttl: ttl, logger: logger}
}

func genKey(doctorID uuid.UUID) string {
	return "slots:gen:" + doctorID.String()
}

func slotKey(doctorID uuid.UUID, gen int64, day time.Time, durationMinutes int) string {
	return fmt.Sprintf("slots:%s:%d:%s:%d", doctorID, gen, day.Format("2006-01-02"), durationMinutes)
}

func (c *Cache) generation(ctx context.Context, doctorID uuid.UUID) (int64, error) {
	gen, err := c.client.Get(ctx, genKey(doctorID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return gen, err
}

// Get returns the cached slots for a doctor/day/duration, if present.
func (c *Cache) Get(ctx context.Context, doctorID uuid.UUID, day time.Time, durationMinutes int) ([]time.Time, bool) {
	gen, err := c.generation(ctx, doctorID)
	if err != nil {
		c.logger.Warn("slot cache read failed", "error", err, "doctor_id", doctorID)
		return nil, false
	}

	raw, err := c.client.Get(ctx, slotKey(doctorID, gen, day, durationMinutes)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("slot cache read failed", "error", err, "doctor_id", doctorID)
		return nil, false
	}

	var slots []time.Time
	if err := json.Unmarshal(raw, &slots); err != nil {
		c.logger.Warn("slot cache entry corrupt", "error", err, "doctor_id", doctorID)
		return nil, false
	}
	return slots, true
}

// Put stores the slots for a doctor/day/duration under the current
// generation.
func (c *Cache) Put(ctx context.Context, doctorID uuid.UUID, day time.Time, durationMinutes int, slots []time.Time) {
	gen, err := c.generation(ctx, doctorID)
	if err != nil {
		c.logger.Warn("slot cache write skipped", "error", err, "doctor_id", doctorID)
		return
	}

	raw, err := json.Marshal(slots)
	if err != nil {
		c.logger.Warn("slot cache encode failed", "error", err, "doctor_id", doctorID)
		return
	}

	if err := c.client.Set(ctx, slotKey(doctorID, gen, day, durationMinutes), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("slot cache write failed", "error", err, "doctor_id", doctorID)
	}
}

// Invalidate bumps the doctor's generation so all cached entries for
// that doctor stop resolving.
func (c *Cache) Invalidate(ctx context.Context, doctorID uuid.UUID) {
	if err := c.client.Incr(ctx, genKey(doctorID)).Err(); err != nil {
		c.logger.Warn("slot cache invalidation failed", "error", err, "doctor_id", doctorID)
	}
}
