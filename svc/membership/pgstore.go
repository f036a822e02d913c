package membership

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/i-daichi/nagoyameshi/pkg/pg"
)

// DB is the subset of *pgxpool.Pool used by PGUserStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGUserStore keeps users in the "users" table.
type PGUserStore struct {
	db DB
}

func NewPGUserStore(db DB) *PGUserStore {
	return &PGUserStore{db: db}
}

const userColumns = `id, name, furigana, email, postal_code, address, phone_number,
	role, COALESCE(payment_customer_ref, ''), created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var role string
	err := row.Scan(&u.ID, &u.Name, &u.Furigana, &u.Email, &u.PostalCode, &u.Address,
		&u.PhoneNumber, &role, &u.PaymentCustomerRef, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Role = Role(role)
	return &u, nil
}

func (s *PGUserStore) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if pg.IsNotFoundError(err) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrStore, err)
	}
	return u, nil
}

// SetPaymentCustomerRef is a single guarded UPDATE so two concurrent
// writers cannot both link a customer.
func (s *PGUserStore) SetPaymentCustomerRef(ctx context.Context, id uuid.UUID, ref string) (string, error) {
	var stored string
	err := s.db.QueryRow(ctx, `
		UPDATE users
		SET payment_customer_ref = $2, updated_at = now()
		WHERE id = $1
		  AND (payment_customer_ref IS NULL OR payment_customer_ref = '' OR payment_customer_ref = $2)
		RETURNING payment_customer_ref`, id, ref).Scan(&stored)
	if err == nil {
		return stored, nil
	}
	if !pg.IsNotFoundError(err) {
		return "", errors.Join(ErrStore, err)
	}

	// No row updated: the user is gone or already linked elsewhere.
	err = s.db.QueryRow(ctx, `SELECT COALESCE(payment_customer_ref, '') FROM users WHERE id = $1`, id).Scan(&stored)
	if pg.IsNotFoundError(err) {
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", errors.Join(ErrStore, err)
	}
	return stored, ErrCustomerRefConflict
}

func (s *PGUserStore) SetRole(ctx context.Context, id uuid.UUID, role Role) (*User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrStore, role)
	}
	u, err := scanUser(s.db.QueryRow(ctx, `
		UPDATE users SET role = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns, id, string(role)))
	if pg.IsNotFoundError(err) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrStore, err)
	}
	return u, nil
}
