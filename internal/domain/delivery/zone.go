package delivery

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrIncompleteAddress is returned when required address fields are missing.
	ErrIncompleteAddress = errors.New("street, city, state, country and postal code are required")
	// ErrZoneNotServed is returned when no delivery zone covers the address.
	// It blocks checkout but is retryable: callers keep their input and may
	// correct the address.
	ErrZoneNotServed = errors.New("address is outside our delivery zones")
)

// Address is a customer shipping address.
type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	Country    string `json:"country"`
	PostalCode string `json:"postalCode"`
}

// Complete reports whether every required field is present.
func (a Address) Complete() bool {
	return a.Street != "" && a.City != "" && a.State != "" &&
		a.Country != "" && a.PostalCode != ""
}

// Key returns the normalized cache key for zone lookups. City, state and
// country drive zone resolution; street and postal code do not.
func (a Address) Key() string {
	norm := func(s string) string {
		return strings.ToLower(strings.Join(strings.Fields(s), " "))
	}
	return norm(a.City) + "|" + norm(a.State) + "|" + norm(a.Country)
}

// Zone is a resolved shipping-fee bucket.
type Zone struct {
	ID   string
	City string
	Fee  decimal.Decimal
}

// Repository looks up delivery zones by normalized city/state/country.
type Repository interface {
	FindZone(ctx context.Context, city, state, country string) (*Zone, error)
}

// ZoneCache is an optional read-through cache in front of the repository.
// Lookups for the same normalized address within the TTL are served without
// touching the database, which keeps per-keystroke address validation cheap.
type ZoneCache interface {
	Get(ctx context.Context, key string) (*Zone, bool, error)
	Set(ctx context.Context, key string, zone *Zone) error
}

// Resolver maps a shipping address to a delivery zone and flat fee.
type Resolver struct {
	zones Repository
	cache ZoneCache
}

// NewResolver creates a Resolver. cache may be nil.
func NewResolver(zones Repository, cache ZoneCache) *Resolver {
	return &Resolver{zones: zones, cache: cache}
}

// Resolve validates the address and returns its delivery zone.
// An incomplete address fails with ErrIncompleteAddress before any lookup;
// an address no zone covers fails with ErrZoneNotServed.
func (r *Resolver) Resolve(ctx context.Context, addr Address) (*Zone, error) {
	if !addr.Complete() {
		return nil, ErrIncompleteAddress
	}

	key := addr.Key()
	if r.cache != nil {
		if zone, ok, err := r.cache.Get(ctx, key); err == nil && ok {
			return zone, nil
		}
	}

	zone, err := r.zones.FindZone(ctx, addr.City, addr.State, addr.Country)
	if err != nil {
		if errors.Is(err, ErrZoneNotServed) {
			return nil, ErrZoneNotServed
		}
		return nil, errors.Wrap(err, "find zone")
	}

	if r.cache != nil {
		// Cache failures only cost us the next lookup.
		_ = r.cache.Set(ctx, key, zone)
	}
	return zone, nil
}
