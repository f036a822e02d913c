// Package rbac maps membership roles to the authorities stored in a session
// identity. The table is fixed at startup; roles may inherit the
// authorities of other roles.
package rbac
