// Package config loads typed configuration from the environment.
//
// Each package of the service declares its own Config struct with `env`
// and `envDefault` tags; Load parses it once per type and serves later calls
// from a cache. A .env file in the working directory is read on first use
// when present.
//
//	var cfg billing.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
package config
