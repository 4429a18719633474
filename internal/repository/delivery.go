package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/openkart/checkout/internal/domain/delivery"
)

const findZoneSQL = `SELECT id, city, fee FROM delivery_zones
	WHERE LOWER(city) = LOWER($1) AND LOWER(state) = LOWER($2)
	AND LOWER(country) = LOWER($3) AND active = TRUE`

var _ delivery.Repository = (*DeliveryZoneRepository)(nil)

// DeliveryZoneRepository implements delivery.Repository backed by PostgreSQL.
type DeliveryZoneRepository struct {
	pool *pgxpool.Pool
}

// NewDeliveryZoneRepository returns a repository that uses the given pool.
func NewDeliveryZoneRepository(pool *pgxpool.Pool) *DeliveryZoneRepository {
	return &DeliveryZoneRepository{pool: pool}
}

// FindZone looks up the active zone covering city/state/country.
// Returns delivery.ErrZoneNotServed when no zone matches.
func (r *DeliveryZoneRepository) FindZone(ctx context.Context, city, state, country string) (*delivery.Zone, error) {
	rows, err := r.pool.Query(ctx, findZoneSQL, city, state, country)
	if err != nil {
		return nil, fmt.Errorf("finding delivery zone: %w", err)
	}

	zone, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (delivery.Zone, error) {
		var z delivery.Zone
		err := row.Scan(&z.ID, &z.City, &z.Fee)
		return z, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, delivery.ErrZoneNotServed
		}
		return nil, fmt.Errorf("finding delivery zone: %w", err)
	}
	return &zone, nil
}

// RedisZoneCache implements delivery.ZoneCache with a short TTL. Address
// validation fires on every city/state/country change, so repeated lookups
// for the same normalized address are served from Redis.
type RedisZoneCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ delivery.ZoneCache = (*RedisZoneCache)(nil)

// NewRedisZoneCache creates a cache with the given TTL.
func NewRedisZoneCache(client *redis.Client, ttl time.Duration) *RedisZoneCache {
	return &RedisZoneCache{client: client, ttl: ttl}
}

func zoneCacheKey(key string) string { return "checkout:zone:" + key }

// Get returns the cached zone for the normalized address key.
func (c *RedisZoneCache) Get(ctx context.Context, key string) (*delivery.Zone, bool, error) {
	data, err := c.client.Get(ctx, zoneCacheKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "get cached zone")
	}

	var z delivery.Zone
	if err := json.Unmarshal(data, &z); err != nil {
		return nil, false, errors.Wrap(err, "unmarshal cached zone")
	}
	return &z, true, nil
}

// Set caches the zone under the normalized address key.
func (c *RedisZoneCache) Set(ctx context.Context, key string, zone *delivery.Zone) error {
	data, err := json.Marshal(zone)
	if err != nil {
		return errors.Wrap(err, "marshal zone")
	}
	return c.client.Set(ctx, zoneCacheKey(key), data, c.ttl).Err()
}
