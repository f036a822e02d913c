// Package pg opens the PostgreSQL pool backing the user store and applies
// the embedded goose migrations at startup.
package pg
