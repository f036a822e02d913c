package rbac

import (
	"errors"
	"fmt"
	"slices"
)

// Authorizer resolves authority sets. It is immutable and safe for
// concurrent use.
type Authorizer struct {
	resolved map[string][]string
}

// NewAuthorizer flattens inheritance in t. Cycles and references to roles
// missing from t are rejected.
func NewAuthorizer(t Table) (*Authorizer, error) {
	resolved := make(map[string][]string, len(t))
	for name := range t {
		out, err := flatten(t, name, nil)
		if err != nil {
			return nil, err
		}
		resolved[name] = out
	}
	return &Authorizer{resolved: resolved}, nil
}

// MustAuthorizer panics when t is invalid.
func MustAuthorizer(t Table) *Authorizer {
	a, err := NewAuthorizer(t)
	if err != nil {
		panic(err)
	}
	return a
}

// flatten returns inherited authorities first, then the role's own, without
// duplicates.
func flatten(t Table, name string, path []string) ([]string, error) {
	if slices.Contains(path, name) {
		return nil, fmt.Errorf("%w: %v -> %s", ErrCircularInheritance, path, name)
	}
	role, ok := t[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInherited, name)
	}
	path = append(path, name)

	var out []string
	for _, parent := range role.Inherits {
		inherited, err := flatten(t, parent, path)
		if err != nil {
			return nil, err
		}
		out = appendUnique(out, inherited...)
	}
	return appendUnique(out, role.Authorities...), nil
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		if !slices.Contains(dst, v) {
			dst = append(dst, v)
		}
	}
	return dst
}

// Authorities returns a fresh copy of the authority set of role, or
// ErrInvalidRole.
func (a *Authorizer) Authorities(role string) ([]string, error) {
	out, ok := a.resolved[role]
	if !ok {
		return nil, ErrInvalidRole
	}
	return slices.Clone(out), nil
}

// Can returns nil if role holds authority.
func (a *Authorizer) Can(role, authority string) error {
	out, ok := a.resolved[role]
	if !ok {
		return ErrInvalidRole
	}
	if !slices.Contains(out, authority) {
		return errors.Join(ErrInsufficientPermissions, fmt.Errorf("%s lacks %s", role, authority))
	}
	return nil
}

// Roles lists known role names in sorted order.
func (a *Authorizer) Roles() []string {
	names := make([]string, 0, len(a.resolved))
	for name := range a.resolved {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
