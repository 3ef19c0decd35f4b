package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	redis2 "TeamSpace/service/storage/redis"
)

// presence key: im:presence:<user>
// Value: gateway_id, TTL controls the online validity period
func presenceKey(user string) string { return "im:presence:" + user }

const defaultPresenceTTL = 300 * time.Second

// Presence mirrors the gateway's local registry into redis so other services
// can answer "is this user online anywhere". The registry stays authoritative;
// every call here is best-effort and the caller decides what to do with errors.
type Presence struct {
	gatewayID string
	ttl       time.Duration
}

func NewPresence(gatewayID string, ttl time.Duration) *Presence {
	if ttl <= 0 {
		ttl = defaultPresenceTTL
	}
	return &Presence{gatewayID: gatewayID, ttl: ttl}
}

// Online sets the user as online and renews the TTL
func (p *Presence) Online(ctx context.Context, user string) error {
	return redis2.GetRedis().Set(ctx, presenceKey(user), p.gatewayID, p.ttl).Err()
}

// Offline actively sets the user offline (deletes the key)
func (p *Presence) Offline(ctx context.Context, user string) error {
	return redis2.GetRedis().Del(ctx, presenceKey(user)).Err()
}

// Lookup checks whether the user is online on any gateway
func (p *Presence) Lookup(ctx context.Context, user string) (gatewayID string, online bool, err error) {
	val, err := redis2.GetRedis().Get(ctx, presenceKey(user)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}
