package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("booking lock not acquired")
)

// Locker guards the read-validate-write critical section of a booking. A
// booking spans two scopes (the doctor's day and the patient's day), so the
// locker takes every key the operation touches and holds them together.
type Locker interface {
	WithBookingLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error
}

type redisBookingLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisBookingLocker creates a locker backed by per-scope Redis keys.
func NewRedisBookingLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisBookingLocker{
		client: client,
		ttl:    ttl,
	}
}

// DoctorDayKey is the lock scope for one doctor's calendar date.
func DoctorDayKey(doctorID uuid.UUID, date string) string {
	return fmt.Sprintf("lock:doctor:%s:%s", doctorID.String(), date)
}

// PatientDayKey is the lock scope for one patient's calendar date.
func PatientDayKey(patientID uuid.UUID, date string) string {
	return fmt.Sprintf("lock:patient:%s:%s", patientID.String(), date)
}

// WithBookingLock acquires every key with SETNX, runs fn, and releases. Keys
// are acquired in sorted order so two bookings that share scopes cannot
// deadlock. If any key is already held, everything acquired so far is
// released and ErrLockNotAcquired is returned; the caller surfaces that as a
// retryable contention outcome.
func (l *redisBookingLocker) WithBookingLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	sorted := make([]string, len(keys))
	copy(sorted, keys)
	sort.Strings(sorted)

	token := uuid.NewString()

	var held []string
	for _, key := range sorted {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			l.releaseAll(ctx, held, token)
			return fmt.Errorf("acquire booking lock %s: %w", key, err)
		}
		if !ok {
			l.releaseAll(ctx, held, token)
			return ErrLockNotAcquired
		}
		held = append(held, key)
	}

	defer l.releaseAll(ctx, held, token)

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisBookingLocker) releaseAll(ctx context.Context, keys []string, token string) {
	for _, key := range keys {
		_ = l.release(ctx, key, token)
	}
}

func (l *redisBookingLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release booking lock: %w", err)
	}
	return nil
}
