package serial

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisReservationTTL bounds how long a reservation outlives the issuance
// call that made it. Rows land in the database well within this window, at
// which point the unique index takes over.
const redisReservationTTL = 10 * time.Minute

// RedisIndex reserves identifiers across nodes with SET NX, giving the
// check-and-reserve atomicity the generator needs under concurrent issuance.
type RedisIndex struct {
	client   *redis.Client
	fallback Index
}

// NewRedisIndex constructs a RedisIndex. The fallback index (usually a
// GormIndex) is still consulted so values already persisted before the
// reservation window opened stay unavailable.
func NewRedisIndex(client *redis.Client, fallback Index) *RedisIndex {
	return &RedisIndex{client: client, fallback: fallback}
}

// ReserveBatchNumber implements Index.
func (r *RedisIndex) ReserveBatchNumber(ctx context.Context, number string) (bool, error) {
	return r.reserve(ctx, "voucher:batchno:"+number, number, r.fallback.ReserveBatchNumber)
}

// ReservePrefix implements Index.
func (r *RedisIndex) ReservePrefix(ctx context.Context, prefix string) (bool, error) {
	return r.reserve(ctx, "voucher:prefix:"+prefix, prefix, r.fallback.ReservePrefix)
}

// ReserveSerial implements Index.
func (r *RedisIndex) ReserveSerial(ctx context.Context, serial string) (bool, error) {
	return r.reserve(ctx, "voucher:serial:"+serial, serial, r.fallback.ReserveSerial)
}

func (r *RedisIndex) reserve(ctx context.Context, key, value string, persisted func(context.Context, string) (bool, error)) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, redisReservationTTL).Result()
	if err != nil {
		return false, fmt.Errorf("serial: redis reserve: %w", err)
	}
	if !ok {
		return false, nil
	}
	free, err := persisted(ctx, value)
	if err != nil {
		return false, err
	}
	if !free {
		// Persisted elsewhere already; release the reservation.
		_ = r.client.Del(ctx, key).Err()
		return false, nil
	}
	return true, nil
}
