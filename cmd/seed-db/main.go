// Command seed-db prepares a database for local use: it applies migrations,
// loads a demo catalog and coupons, and registers an admin API key.
package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/cristalhq/aconfig"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/storage/postgres"
)

type config struct {
	DatabaseURL  string `flag:"database-url" usage:"PostgreSQL connection URL (or DATABASE_URL env)"`
	APIKey       string `flag:"api-key" usage:"admin API key to register; generated when empty"`
	APIKeyPepper string `flag:"api-key-pepper" usage:"HMAC pepper for API key hashing (STORE_API_KEY_PEPPER)"`
	FakeProducts int    `default:"0" flag:"fake-products" usage:"extra generated products"`
}

func main() {
	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	var cfg config
	if err := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STORE",
		SkipFiles: true,
	}).Load(); err != nil {
		lg.Fatal("Load config", zap.Error(err))
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, cfg); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, cfg config) error {
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	products := append(demoProducts(), fakeProducts(cfg.FakeProducts)...)
	if err := postgres.NewProductRepository(pool).Upsert(ctx, products); err != nil {
		return errors.Wrap(err, "seed products")
	}
	lg.Info("Upserted products", zap.Int("count", len(products)))

	if err := seedCoupons(ctx, lg, coupon.NewManager(postgres.NewCouponRepository(pool)), time.Now()); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	if err := seedAPIKey(ctx, lg, postgres.NewAPIKeyRepository(pool), cfg.APIKey, cfg.APIKeyPepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	return nil
}

func demoProducts() []product.Product {
	item := func(id, name, price string) product.Product {
		return product.Product{
			ID:        id,
			Name:      name,
			Price:     decimal.RequireFromString(price),
			ImageURL:  id + ".jpg",
			Available: true,
		}
	}
	return []product.Product{
		item("1", "Waffle with Berries", "6.50"),
		item("2", "Vanilla Bean Crème Brûlée", "7.00"),
		item("3", "Macaron Mix of Five", "8.00"),
		item("4", "Classic Tiramisu", "5.50"),
		item("5", "Pistachio Baklava", "4.00"),
		item("6", "Lemon Meringue Pie", "5.00"),
		item("7", "Red Velvet Cake", "4.50"),
		item("8", "Salted Caramel Brownie", "4.50"),
		item("9", "Vanilla Panna Cotta", "6.50"),
	}
}

func fakeProducts(n int) []product.Product {
	out := make([]product.Product, n)
	for i := range out {
		out[i] = product.Product{
			ID:        "fake-" + gofakeit.DigitN(8),
			Name:      gofakeit.ProductName(),
			Price:     decimal.NewFromFloat(gofakeit.Price(1, 200)).Round(2),
			ImageURL:  gofakeit.URL(),
			Available: gofakeit.Bool(),
		}
	}
	return out
}

// demoCoupons covers every discount type plus an expired code.
func demoCoupons(now time.Time) []coupon.Input {
	return []coupon.Input{
		{
			Code:              "SAVE10",
			Name:              "Ten percent off",
			Description:       "10% off orders over 50, up to 25",
			Type:              coupon.TypePercentage,
			Value:             decimal.NewFromInt(10),
			MinOrderAmount:    lo.ToPtr(decimal.NewFromInt(50)),
			MaxDiscountAmount: lo.ToPtr(decimal.NewFromInt(25)),
			IsActive:          true,
		},
		{
			Code:           "FLAT50",
			Name:           "Fifty off",
			Description:    "50 off orders over 200",
			Type:           coupon.TypeFlat,
			Value:          decimal.NewFromInt(50),
			MinOrderAmount: lo.ToPtr(decimal.NewFromInt(200)),
			UsageLimit:     lo.ToPtr(100),
			IsActive:       true,
		},
		{
			Code:        "OLD20",
			Name:        "Last season",
			Description: "Expired 20% off",
			Type:        coupon.TypePercentage,
			Value:       decimal.NewFromInt(20),
			StartDate:   lo.ToPtr(now.AddDate(0, -2, 0)),
			EndDate:     lo.ToPtr(now.AddDate(0, -1, 0)),
			IsActive:    true,
		},
		{
			Code:        "FREESHIP",
			Name:        "Free delivery",
			Description: "Delivery fee waived",
			Type:        coupon.TypeFreeShipping,
			Value:       decimal.Zero,
			IsActive:    true,
		},
	}
}

func seedCoupons(ctx context.Context, lg *zap.Logger, m *coupon.Manager, now time.Time) error {
	for _, in := range demoCoupons(now) {
		c, created, err := m.Upsert(ctx, in)
		if err != nil {
			return errors.Wrapf(err, "upsert coupon %s", in.Code)
		}
		lg.Info("Upserted coupon",
			zap.String("code", c.Code),
			zap.String("type", string(c.Type)),
			zap.Bool("created", created),
		)
	}
	return nil
}

type keyCreator interface {
	Create(ctx context.Context, k auth.APIKeyInfo) error
}

func seedAPIKey(ctx context.Context, lg *zap.Logger, repo keyCreator, key, pepper string) error {
	generated := key == ""
	if generated {
		key = uuid.NewString()
	}

	if err := repo.Create(ctx, auth.APIKeyInfo{
		ID:      uuid.NewString(),
		Name:    "Seeded admin key",
		KeyHash: auth.HashKey([]byte(pepper), key),
		Scopes:  []string{auth.ScopeAdmin},
	}); err != nil {
		return err
	}

	fields := []zap.Field{zap.Strings("scopes", []string{auth.ScopeAdmin})}
	if generated {
		// Only the hash is stored, so this is the one chance to see the key.
		fields = append(fields, zap.String("api_key", key))
	}
	lg.Info("Registered admin API key", fields...)
	return nil
}
