package rbac

// Authorities granted to session identities.
const (
	AuthorityFreeUser = "FREE_USER"
	AuthorityPaidUser = "PAID_USER"
	AuthorityAdmin    = "ADMIN"
)

// Role lists the authorities a role grants directly and the roles whose
// authorities it also receives.
type Role struct {
	Authorities []string
	Inherits    []string
}

// Table is the role name to Role mapping.
type Table map[string]Role

// DefaultTable is the membership table: a paid member can do everything a
// free member can.
func DefaultTable() Table {
	return Table{
		"free":  {Authorities: []string{AuthorityFreeUser}},
		"paid":  {Authorities: []string{AuthorityPaidUser}, Inherits: []string{"free"}},
		"admin": {Authorities: []string{AuthorityAdmin}},
	}
}
