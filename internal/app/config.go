package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/xenking/storefront/internal/domain/money"
	"github.com/xenking/storefront/internal/domain/order"
)

// Config holds the complete application configuration, loadable from
// environment variables (STORE_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (STORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL for product images (e.g. https://cdn.example.com/images)" flag:"image-base-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (STORE_API_KEY_PEPPER)" flag:"api-key-pepper"`
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
	Checkout     CheckoutConfig
	Orders       OrdersConfig
	Notify       NotifyConfig
}

// RateLimitConfig controls the per-client rate limiter. Coupon validation has
// its own, smaller budget to slow down code guessing.
type RateLimitConfig struct {
	Max       int           `default:"100" usage:"Max requests per window"`
	Window    time.Duration `default:"1m"  usage:"Rate limit window duration"`
	CouponMax int           `default:"20"  usage:"Max coupon validations per window"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// CheckoutConfig holds the store-wide charges. Amounts are decimal strings so
// they are never rounded through floats.
type CheckoutConfig struct {
	Currency    string `default:"USD" usage:"ISO 4217 store currency"`
	DeliveryFee string `default:"0" usage:"Delivery fee added to every order" flag:"delivery-fee"`
	TaxRate     string `default:"0" usage:"Tax percentage applied to the discounted subtotal" flag:"tax-rate"`
}

// Pricing parses the configured charges.
func (c CheckoutConfig) Pricing() (order.Pricing, error) {
	fee, err := decimal.NewFromString(c.DeliveryFee)
	if err != nil {
		return order.Pricing{}, errors.Wrapf(err, "parse delivery fee %q", c.DeliveryFee)
	}
	rate, err := decimal.NewFromString(c.TaxRate)
	if err != nil {
		return order.Pricing{}, errors.Wrapf(err, "parse tax rate %q", c.TaxRate)
	}
	if fee.IsNegative() || rate.IsNegative() {
		return order.Pricing{}, errors.New("delivery fee and tax rate must not be negative")
	}
	if !money.Fits(fee) {
		return order.Pricing{}, errors.Errorf("delivery fee %q does not fit a stored amount", c.DeliveryFee)
	}
	return order.Pricing{DeliveryFee: fee, TaxRate: rate}, nil
}

// Unit parses the configured currency code.
func (c CheckoutConfig) Unit() (currency.Unit, error) {
	unit, err := currency.ParseISO(c.Currency)
	if err != nil {
		return currency.Unit{}, errors.Wrapf(err, "parse currency %q", c.Currency)
	}
	return unit, nil
}

// OrdersConfig controls the order workflow.
type OrdersConfig struct {
	StrictTransitions bool `default:"true" usage:"Reject status changes outside the transition table" flag:"orders-strict-transitions"`
}

// NotifyConfig controls status change events. Events are disabled when no
// brokers are configured.
type NotifyConfig struct {
	Brokers []string `usage:"Kafka brokers for order status events"`
	Topic   string   `default:"order-status" usage:"Kafka topic for order status events"`
}

// Enabled reports whether any broker is configured.
func (c NotifyConfig) Enabled() bool {
	for _, b := range c.Brokers {
		if strings.TrimSpace(b) != "" {
			return true
		}
	}
	return false
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STORE",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set STORE_DATABASE_URL or DATABASE_URL")
	}
	if _, err := c.Checkout.Pricing(); err != nil {
		return errors.Wrap(err, "checkout")
	}
	if _, err := c.Checkout.Unit(); err != nil {
		return errors.Wrap(err, "checkout")
	}
	if c.Notify.Enabled() && c.Notify.Topic == "" {
		return errors.New("notify topic is required when brokers are set")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's STORE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
	if len(c.Notify.Brokers) == 0 {
		if v := os.Getenv("KAFKA_BROKERS"); v != "" {
			c.Notify.Brokers = strings.Split(v, ",")
		}
	}
}
