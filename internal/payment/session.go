package payment

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// ErrNoSession is returned when no pending payment session exists for the
// user.
var ErrNoSession = errors.New("no pending payment session")

// Session is the reference/order pair persisted across the processor's
// redirect round trip, so reconciliation survives the browser leaving and
// returning.
type Session struct {
	Reference string `json:"reference"`
	OrderID   string `json:"orderId"`
}

// BuyNowRecord is the session-scoped single-item checkout bypass.
type BuyNowRecord struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// SessionStore persists per-user checkout session state.
type SessionStore interface {
	SavePending(ctx context.Context, userID string, s Session) error
	// Load returns the stored reference/order pair, or ErrNoSession.
	Load(ctx context.Context, userID string) (*Session, error)
	Clear(ctx context.Context, userID string) error

	SaveBuyNow(ctx context.Context, userID string, rec BuyNowRecord) error
	LoadBuyNow(ctx context.Context, userID string) (*BuyNowRecord, error)
	ClearBuyNow(ctx context.Context, userID string) error
}

// RedisSessionStore implements SessionStore on Redis with a TTL, so
// abandoned payment attempts age out on their own.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ SessionStore = (*RedisSessionStore)(nil)

// NewRedisSessionStore creates a store with the given TTL for session keys.
func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl}
}

func paymentKey(userID string) string { return "checkout:payment:" + userID }
func buyNowKey(userID string) string  { return "checkout:buynow:" + userID }

// SavePending stores the reference/order pair for the user.
func (s *RedisSessionStore) SavePending(ctx context.Context, userID string, sess Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return errors.Wrap(err, "marshal session")
	}
	return s.client.Set(ctx, paymentKey(userID), data, s.ttl).Err()
}

// Load returns the stored pair, or ErrNoSession when none exists.
func (s *RedisSessionStore) Load(ctx context.Context, userID string) (*Session, error) {
	data, err := s.client.Get(ctx, paymentKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, errors.Wrap(err, "get session")
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, errors.Wrap(err, "unmarshal session")
	}
	return &sess, nil
}

// Clear removes the pending session for the user.
func (s *RedisSessionStore) Clear(ctx context.Context, userID string) error {
	return s.client.Del(ctx, paymentKey(userID)).Err()
}

// SaveBuyNow stores the single-item bypass record.
func (s *RedisSessionStore) SaveBuyNow(ctx context.Context, userID string, rec BuyNowRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal buy-now record")
	}
	return s.client.Set(ctx, buyNowKey(userID), data, s.ttl).Err()
}

// LoadBuyNow returns the bypass record, or ErrNoSession when none exists.
func (s *RedisSessionStore) LoadBuyNow(ctx context.Context, userID string) (*BuyNowRecord, error) {
	data, err := s.client.Get(ctx, buyNowKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, errors.Wrap(err, "get buy-now record")
	}

	var rec BuyNowRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrap(err, "unmarshal buy-now record")
	}
	return &rec, nil
}

// ClearBuyNow removes the bypass record.
func (s *RedisSessionStore) ClearBuyNow(ctx context.Context, userID string) error {
	return s.client.Del(ctx, buyNowKey(userID)).Err()
}
