package billing

import "time"

// Config holds provider credentials and the subscription price. The price
// is configuration, never request input.
type Config struct {
	SecretKey      string        `env:"STRIPE_SECRET_KEY"`
	PublishableKey string        `env:"STRIPE_PUBLISHABLE_KEY"`
	RequestTimeout time.Duration `env:"STRIPE_REQUEST_TIMEOUT" envDefault:"15s"`

	PriceAmount   int64  `env:"SUBSCRIPTION_PRICE_AMOUNT" envDefault:"30000"`
	PriceCurrency string `env:"SUBSCRIPTION_PRICE_CURRENCY" envDefault:"jpy"`
	Description   string `env:"SUBSCRIPTION_DESCRIPTION" envDefault:"NAGOYAMESHI paid membership"`
}

// Price returns the configured subscription price.
func (c Config) Price() Money {
	return Money{Amount: c.PriceAmount, Currency: c.PriceCurrency}
}

// Enabled reports whether a real provider key is configured.
func (c Config) Enabled() bool {
	return c.SecretKey != ""
}
