package storage

import (
	"context"

	redis2 "TeamSpace/service/storage/redis"
)

// —— Recent history: one rolling List per room ——

// Keep only the most recent N messages per room; assistant context reads
// at most 10, the rest is headroom for history backfills.
const recentKeep = 50

func recentKey(room string) string { return "im:recent:" + room }

// RecentCache is a newest-first rolling window of serialized messages per room.
// It only ever sees what this gateway wrote, which is fine: a room lives on a
// single process, so the window is coherent. A cold cache is a miss, not an error.
type RecentCache struct {
	keep int64
}

func NewRecentCache() *RecentCache { return &RecentCache{keep: recentKeep} }

// Push front-inserts one serialized message and trims the rolling window
func (rc *RecentCache) Push(ctx context.Context, room string, payload []byte) error {
	pipe := redis2.GetRedis().TxPipeline()
	pipe.LPush(ctx, recentKey(room), payload)
	pipe.LTrim(ctx, recentKey(room), 0, rc.keep-1)
	_, err := pipe.Exec(ctx)
	return err
}

// Fetch returns up to n serialized messages, newest first
func (rc *RecentCache) Fetch(ctx context.Context, room string, n int) ([][]byte, error) {
	if n <= 0 {
		n = 10
	}
	vals, err := redis2.GetRedis().LRange(ctx, recentKey(room), 0, int64(n)-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(vals))
	for _, v := range vals {
		out = append(out, []byte(v))
	}
	return out, nil
}

// Invalidate drops a room's window (used when a backfill detects drift)
func (rc *RecentCache) Invalidate(ctx context.Context, room string) error {
	return redis2.GetRedis().Del(ctx, recentKey(room)).Err()
}
