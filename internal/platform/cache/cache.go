// Package cache holds the read-through cache for per-doctor, per-date
// booked slot sets. Every booking or status change that touches a slot
// invalidates the matching key.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Availability caches the booked time slots of a doctor on a date. Each
// doctor+date carries a generation that Invalidate bumps; Booked reports
// the generation it saw and SetBooked stores under it, so a read-through
// write racing an invalidation is never served.
type Availability interface {
	Booked(ctx context.Context, doctorID, date string) (booked []string, gen int64, ok bool)
	SetBooked(ctx context.Context, doctorID, date string, gen int64, booked []string)
	Invalidate(ctx context.Context, doctorID, date string)
}

// NoGeneration is returned when the generation could not be read. SetBooked
// ignores it.
const NoGeneration int64 = -1

// generationTTL outlives any cached entry.
const generationTTL = 24 * time.Hour

// kv is the subset of the redis client the cache needs.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisAvailability stores booked sets as JSON arrays. Redis errors are
// logged and treated as misses so the database stays authoritative.
type RedisAvailability struct {
	client kv
	ttl    time.Duration
	logger zerolog.Logger
}

func NewRedisAvailability(client kv, ttl time.Duration, logger zerolog.Logger) *RedisAvailability {
	return &RedisAvailability{client: client, ttl: ttl, logger: logger}
}

// NewClient parses a redis:// URL.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func key(doctorID, date string) string {
	return "availability:" + doctorID + ":" + date
}

func genKey(doctorID, date string) string {
	return "availability:gen:" + doctorID + ":" + date
}

type entry struct {
	Gen   int64    `json:"gen"`
	Slots []string `json:"slots"`
}

func (r *RedisAvailability) generation(ctx context.Context, doctorID, date string) int64 {
	gen, err := r.client.Get(ctx, genKey(doctorID, date)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0
	}
	if err != nil {
		r.logger.Warn().Err(err).Str("doctor_id", doctorID).Str("date", date).Msg("availability generation read failed")
		return NoGeneration
	}
	return gen
}

func (r *RedisAvailability) Booked(ctx context.Context, doctorID, date string) ([]string, int64, bool) {
	gen := r.generation(ctx, doctorID, date)
	if gen == NoGeneration {
		return nil, gen, false
	}
	data, err := r.client.Get(ctx, key(doctorID, date)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, gen, false
	}
	if err != nil {
		r.logger.Warn().Err(err).Str("doctor_id", doctorID).Str("date", date).Msg("availability cache read failed")
		return nil, gen, false
	}
	var e entry
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		r.logger.Warn().Err(err).Str("doctor_id", doctorID).Msg("availability cache entry corrupt")
		return nil, gen, false
	}
	if e.Gen != gen {
		return nil, gen, false
	}
	if e.Slots == nil {
		e.Slots = []string{}
	}
	return e.Slots, gen, true
}

func (r *RedisAvailability) SetBooked(ctx context.Context, doctorID, date string, gen int64, booked []string) {
	if gen == NoGeneration {
		return
	}
	if booked == nil {
		booked = []string{}
	}
	data, err := json.Marshal(entry{Gen: gen, Slots: booked})
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, key(doctorID, date), data, r.ttl).Err(); err != nil {
		r.logger.Warn().Err(err).Str("doctor_id", doctorID).Str("date", date).Msg("availability cache write failed")
	}
}

// Invalidate bumps the generation before dropping the entry.
func (r *RedisAvailability) Invalidate(ctx context.Context, doctorID, date string) {
	log := r.logger.With().Str("doctor_id", doctorID).Str("date", date).Logger()
	gk := genKey(doctorID, date)
	if err := r.client.Incr(ctx, gk).Err(); err != nil {
		log.Warn().Err(err).Msg("availability generation bump failed")
	} else if err := r.client.Expire(ctx, gk, generationTTL).Err(); err != nil {
		log.Warn().Err(err).Msg("availability generation expiry failed")
	}
	if err := r.client.Del(ctx, key(doctorID, date)).Err(); err != nil {
		log.Warn().Err(err).Msg("availability cache invalidate failed")
	}
}

// Ping is used by the dependency health check.
func (r *RedisAvailability) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Noop is used when REDIS_URL is unset.
type Noop struct{}

func (Noop) Booked(context.Context, string, string) ([]string, int64, bool) {
	return nil, NoGeneration, false
}
func (Noop) SetBooked(context.Context, string, string, int64, []string) {}
func (Noop) Invalidate(context.Context, string, string)                 {}
