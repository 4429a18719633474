package delivery

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockZoneRepo struct {
	zone  *Zone
	err   error
	calls int
}

func (m *mockZoneRepo) FindZone(_ context.Context, _, _, _ string) (*Zone, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.zone, nil
}

type mapZoneCache struct {
	zones map[string]*Zone
	sets  int
}

func newMapZoneCache() *mapZoneCache {
	return &mapZoneCache{zones: make(map[string]*Zone)}
}

func (c *mapZoneCache) Get(_ context.Context, key string) (*Zone, bool, error) {
	z, ok := c.zones[key]
	return z, ok, nil
}

func (c *mapZoneCache) Set(_ context.Context, key string, zone *Zone) error {
	c.sets++
	c.zones[key] = zone
	return nil
}

func completeAddress() Address {
	return Address{
		Street:     "123 Market St",
		City:       "San Francisco",
		State:      "CA",
		Country:    "US",
		PostalCode: "94103",
	}
}

func TestAddress_Complete(t *testing.T) {
	assert.True(t, completeAddress().Complete())

	for _, mutate := range []func(*Address){
		func(a *Address) { a.Street = "" },
		func(a *Address) { a.City = "" },
		func(a *Address) { a.State = "" },
		func(a *Address) { a.Country = "" },
		func(a *Address) { a.PostalCode = "" },
	} {
		a := completeAddress()
		mutate(&a)
		assert.False(t, a.Complete())
	}
}

func TestAddress_Key_Normalizes(t *testing.T) {
	a := Address{City: "San  Francisco", State: " CA ", Country: "us", Street: "x", PostalCode: "1"}
	b := Address{City: "san francisco", State: "ca", Country: "US", Street: "y", PostalCode: "2"}

	assert.Equal(t, a.Key(), b.Key(), "street and postal code must not affect the key")
	assert.Equal(t, "san francisco|ca|us", a.Key())
}

func TestResolver_Resolve(t *testing.T) {
	zone := &Zone{ID: "zone-sf", City: "San Francisco", Fee: decimal.NewFromFloat(5.99)}

	t.Run("incomplete address fails before lookup", func(t *testing.T) {
		repo := &mockZoneRepo{zone: zone}
		r := NewResolver(repo, nil)

		addr := completeAddress()
		addr.PostalCode = ""

		_, err := r.Resolve(context.Background(), addr)
		assert.ErrorIs(t, err, ErrIncompleteAddress)
		assert.Zero(t, repo.calls)
	})

	t.Run("unserved address", func(t *testing.T) {
		r := NewResolver(&mockZoneRepo{err: ErrZoneNotServed}, nil)

		_, err := r.Resolve(context.Background(), completeAddress())
		assert.ErrorIs(t, err, ErrZoneNotServed)
	})

	t.Run("repository errors are wrapped", func(t *testing.T) {
		boom := errors.New("connection refused")
		r := NewResolver(&mockZoneRepo{err: boom}, nil)

		_, err := r.Resolve(context.Background(), completeAddress())
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, ErrZoneNotServed)
	})

	t.Run("cache serves repeat lookups", func(t *testing.T) {
		repo := &mockZoneRepo{zone: zone}
		cache := newMapZoneCache()
		r := NewResolver(repo, cache)

		got, err := r.Resolve(context.Background(), completeAddress())
		require.NoError(t, err)
		assert.Equal(t, zone, got)
		assert.Equal(t, 1, repo.calls)
		assert.Equal(t, 1, cache.sets)

		// Same normalized address, different street: served from cache.
		addr := completeAddress()
		addr.Street = "456 Mission St"
		got, err = r.Resolve(context.Background(), addr)
		require.NoError(t, err)
		assert.Equal(t, zone, got)
		assert.Equal(t, 1, repo.calls)
	})

	t.Run("nil cache resolves directly", func(t *testing.T) {
		repo := &mockZoneRepo{zone: zone}
		r := NewResolver(repo, nil)

		got, err := r.Resolve(context.Background(), completeAddress())
		require.NoError(t, err)
		assert.Equal(t, zone, got)
	})
}
