// Package clientip resolves the address of the caller behind the reverse
// proxy. Forwarding headers are trusted, so the service must only be
// reachable through a proxy that overwrites them.
package clientip
