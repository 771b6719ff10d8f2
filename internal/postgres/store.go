package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"

	"github.com/ariefcatur/go-shop-orders/internal/orders"
)

// dbtx is satisfied by *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Store struct{ db dbtx }

var _ orders.Store = (*Store)(nil)

func NewStore(db dbtx) *Store { return &Store{db: db} }

func (s *Store) Products() orders.ProductRepository { return &ProductRepo{DB: s.db} }
func (s *Store) Users() orders.UserRepository       { return &UserRepo{DB: s.db} }
func (s *Store) Orders() orders.OrderRepository     { return &OrderRepo{DB: s.db} }

// WithinTx runs fn in a transaction, or in a savepoint when s already is one.
func (s *Store) WithinTx(ctx context.Context, fn func(tx orders.Store) error) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		return fn(&Store{db: tx})
	})
}

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// mapErr turns driver errors into the orders sentinels.
func mapErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return errors.Wrap(orders.ErrNotFound, what)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return errors.Wrapf(orders.ErrDuplicate, "%s: %s", what, pgErr.ConstraintName)
		case codeForeignKeyViolation:
			return errors.Wrapf(orders.ErrReferenced, "%s: %s", what, pgErr.ConstraintName)
		}
	}
	return errors.Wrap(err, what)
}

// validIDs drops ids that are not UUIDs; they cannot match any row.
func validIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			out = append(out, id)
		}
	}
	return out
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
