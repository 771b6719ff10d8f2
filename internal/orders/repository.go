package orders

import "context"

type ProductRepository interface {
	FindByID(ctx context.Context, id string) (Product, error)
	// FindByIDs returns the subset of products matching ids, in no particular order.
	// Malformed ids simply match nothing.
	FindByIDs(ctx context.Context, ids []string) ([]Product, error)
	FindByName(ctx context.Context, name string) (Product, error)
	FindPage(ctx context.Context, page Page) ([]Product, int, error)
	Insert(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
	// DecrementStock subtracts qty and returns the new stock. When allowNegative is
	// false the update only applies if stock >= qty, otherwise ErrInsufficientStock.
	DecrementStock(ctx context.Context, id string, qty int, allowNegative bool) (int, error)
}

type UserRepository interface {
	FindByID(ctx context.Context, id string) (User, error)
	// First returns the oldest user.
	First(ctx context.Context) (User, error)
	Insert(ctx context.Context, u *User) error
}

type OrderRepository interface {
	// FindByID loads the order with its items and their products.
	FindByID(ctx context.Context, id string) (Order, error)
	FindPage(ctx context.Context, page Page) ([]Order, int, error)
	Insert(ctx context.Context, o *Order) error
	InsertItem(ctx context.Context, it *OrderItem) error
	UpdateStatus(ctx context.Context, id string, status Status) error
	// Delete removes the items and then the order.
	Delete(ctx context.Context, id string) error
}

// Store groups the repositories. Repositories obtained from the Store passed to
// the WithinTx callback share one transaction.
type Store interface {
	Products() ProductRepository
	Users() UserRepository
	Orders() OrderRepository
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
