// Package redis connects the go-redis client used for sessions and
// provides Locker, a single-instance distributed lock that serializes
// membership changes of one user across server replicas.
package redis
