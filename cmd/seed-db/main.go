// Command seed-db loads the catalog, delivery zones, starter coupons, and an
// admin API key into the database. It is idempotent: every insert is an
// upsert, so re-running against a populated database is safe.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/openkart/checkout/internal/handler/auth"
	"github.com/openkart/checkout/internal/repository"
)

type productJSON struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category"`
	Image    string          `json:"image"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiKey, "api-key", "", "admin API key to seed (or CHECKOUT_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or CHECKOUT_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("CHECKOUT_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or CHECKOUT_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("CHECKOUT_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedZones(ctx, pool); err != nil {
		return errors.Wrap(err, "seed delivery zones")
	}
	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	const upsert = `
		INSERT INTO products (id, name, price, category, image)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			category = EXCLUDED.category,
			image = EXCLUDED.image`

	for _, p := range products {
		if _, err := pool.Exec(ctx, upsert, p.ID, p.Name, p.Price, p.Category, p.Image); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}
	return nil
}

func seedZones(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding delivery zones")

	zones := []struct {
		id, city, state, country string
		fee                      decimal.Decimal
	}{
		{"zone-sf", "San Francisco", "CA", "US", decimal.NewFromFloat(5.99)},
		{"zone-oak", "Oakland", "CA", "US", decimal.NewFromFloat(7.49)},
		{"zone-nyc", "New York", "NY", "US", decimal.NewFromFloat(6.99)},
		{"zone-aus", "Austin", "TX", "US", decimal.NewFromFloat(8.99)},
	}

	const upsert = `
		INSERT INTO delivery_zones (id, city, state, country, fee, active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (id) DO UPDATE SET
			fee = EXCLUDED.fee,
			active = TRUE`

	for _, z := range zones {
		if _, err := pool.Exec(ctx, upsert, z.id, z.city, z.state, z.country, z.fee); err != nil {
			return errors.Wrapf(err, "upsert zone %s", z.id)
		}
		slog.Info("upserted zone", slog.String("id", z.id), slog.String("city", z.city))
	}
	return nil
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding starter coupons")

	coupons := []struct {
		code, kind               string
		value, minOrder, maxDisc decimal.Decimal
		usageLimit, userLimit    int
		firstOnly                bool
	}{
		{"WELCOME10", "percentage", decimal.NewFromInt(10), decimal.Zero, decimal.Zero, 0, 1, true},
		{"SAVE20", "percentage", decimal.NewFromInt(20), decimal.NewFromInt(100), decimal.NewFromInt(15), 0, 0, false},
		{"FLAT5", "fixed", decimal.NewFromInt(5), decimal.NewFromInt(25), decimal.Zero, 1000, 0, false},
		{"FREESHIP", "shipping", decimal.Zero, decimal.NewFromInt(50), decimal.Zero, 0, 0, false},
	}

	const upsert = `
		INSERT INTO coupons (
			code, discount_type, value, min_order_amount, max_discount,
			usage_limit, user_limit, valid_from, valid_until, active,
			first_time_only, product_ids, categories
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, NULL, TRUE, $8, '{}', '{}')
		ON CONFLICT (code) DO UPDATE SET
			discount_type = EXCLUDED.discount_type,
			value = EXCLUDED.value,
			min_order_amount = EXCLUDED.min_order_amount,
			max_discount = EXCLUDED.max_discount,
			usage_limit = EXCLUDED.usage_limit,
			user_limit = EXCLUDED.user_limit,
			first_time_only = EXCLUDED.first_time_only,
			active = TRUE`

	for _, c := range coupons {
		if _, err := pool.Exec(ctx, upsert,
			c.code, c.kind, c.value, c.minOrder, c.maxDisc,
			c.usageLimit, c.userLimit, c.firstOnly,
		); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.code)
		}
		slog.Info("upserted coupon", slog.String("code", c.code))
	}
	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding admin API key")

	keys := repository.NewAPIKeyRepository(pool)
	if err := keys.Upsert(ctx, &auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.HashKey(apiKey, []byte(pepper)),
		Name:    "Default admin key",
		Scopes:  []string{"orders:write", "coupons:write"},
	}); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"))
	return nil
}
