// Package cache keeps short-lived availability listings in Redis.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/waqasameen944/Bus-Booking-System/internal/model"
)

// Availability stores the per-date slot listing as JSON.  Entries are
// invalidated whenever a seat on that date is occupied or released; the
// TTL only bounds staleness left behind by other writers.
type Availability struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
	log    logrus.FieldLogger
}

// NewAvailability returns an Availability cache.
func NewAvailability(rdb redis.Cmdable, prefix string, ttl time.Duration, log logrus.FieldLogger) *Availability {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Availability{rdb: rdb, prefix: prefix, ttl: ttl, log: log.WithField("component", "availability_cache")}
}

func (a *Availability) key(date string) string {
	return a.prefix + ":availability:" + date
}

// Get returns the cached listing for date.  Any Redis or decoding error
// counts as a miss.
func (a *Availability) Get(ctx context.Context, date string) ([]model.SlotAvailability, bool) {
	raw, err := a.rdb.Get(ctx, a.key(date)).Bytes()
	if err != nil {
		if err != redis.Nil {
			a.log.WithError(err).Debug("availability cache read failed")
		}
		return nil, false
	}
	var out []model.SlotAvailability
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	return out, true
}

// Set stores the listing for date.
func (a *Availability) Set(ctx context.Context, date string, slots []model.SlotAvailability) {
	data, err := json.Marshal(slots)
	if err != nil {
		return
	}
	if err := a.rdb.Set(ctx, a.key(date), data, a.ttl).Err(); err != nil {
		a.log.WithError(err).Debug("availability cache write failed")
	}
}

// Invalidate drops the listing for date.
func (a *Availability) Invalidate(ctx context.Context, date string) {
	if err := a.rdb.Del(ctx, a.key(date)).Err(); err != nil {
		a.log.WithError(err).WithField("date", date).Warn("availability cache invalidation failed")
	}
}
