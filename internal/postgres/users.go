package postgres

import (
	"context"

	"github.com/pkg/errors"

	"github.com/ariefcatur/go-shop-orders/internal/orders"
)

type UserRepo struct{ DB dbtx }

func (r *UserRepo) FindByID(ctx context.Context, id string) (orders.User, error) {
	if !validID(id) {
		return orders.User{}, errors.Wrapf(orders.ErrNotFound, "user %s", id)
	}
	var u orders.User
	err := r.DB.QueryRow(ctx, `SELECT id::text, email, created_at FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Email, &u.CreatedAt)
	return u, mapErr(err, "find user")
}

func (r *UserRepo) First(ctx context.Context) (orders.User, error) {
	var u orders.User
	err := r.DB.QueryRow(ctx, `SELECT id::text, email, created_at FROM users ORDER BY created_at, id LIMIT 1`).
		Scan(&u.ID, &u.Email, &u.CreatedAt)
	return u, mapErr(err, "first user")
}

func (r *UserRepo) Insert(ctx context.Context, u *orders.User) error {
	err := r.DB.QueryRow(ctx, `INSERT INTO users (id, email) VALUES ($1, $2) RETURNING created_at`, u.ID, u.Email).
		Scan(&u.CreatedAt)
	return mapErr(err, "insert user")
}
