package orders_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-shop-orders/internal/memstore"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
)

type emitted struct {
	topic string
	env   orders.Envelope
}

type recordingSink struct {
	mu     sync.Mutex
	events []emitted
	err    error
}

func (s *recordingSink) Emit(_ context.Context, topic string, env orders.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, emitted{topic: topic, env: env})
	return s.err
}

func (s *recordingSink) all() []emitted {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]emitted(nil), s.events...)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func qty(n int) *int { return &n }

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seedUser(t *testing.T, store orders.Store, email string, createdAt time.Time) orders.User {
	t.Helper()
	u := orders.User{ID: uuid.NewString(), Email: email, CreatedAt: createdAt}
	require.NoError(t, store.Users().Insert(context.Background(), &u))
	return u
}

func seedProduct(t *testing.T, store orders.Store, name, p string, stock int) orders.Product {
	t.Helper()
	prod := orders.Product{
		ID:          uuid.NewString(),
		Name:        name,
		Description: name + " description",
		Price:       price(p),
		Stock:       stock,
	}
	require.NoError(t, store.Products().Insert(context.Background(), &prod))
	return prod
}

func stockOf(t *testing.T, store orders.Store, id string) int {
	t.Helper()
	p, err := store.Products().FindByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func orderCount(t *testing.T, store orders.Store) int {
	t.Helper()
	_, total, err := store.Orders().FindPage(context.Background(), orders.NormalizePage(1, 1))
	require.NoError(t, err)
	return total
}

type fixture struct {
	store *memstore.Store
	sink  *recordingSink
	svc   *orders.Service
	user  orders.User
}

func newFixture(t *testing.T, policy orders.Policy) fixture {
	t.Helper()
	store := memstore.New()
	sink := &recordingSink{}
	return fixture{
		store: store,
		sink:  sink,
		svc:   orders.NewService(store, sink, quietLogger(), policy, "shop-api-test"),
		user:  seedUser(t, store, "buyer@example.com", time.Now().UTC()),
	}
}

// failingItems makes every line item insert fail, inside or outside transactions.
type failingItems struct{ orders.Store }

func (f failingItems) Orders() orders.OrderRepository {
	return failingOrderRepo{f.Store.Orders()}
}

func (f failingItems) WithinTx(ctx context.Context, fn func(tx orders.Store) error) error {
	return f.Store.WithinTx(ctx, func(tx orders.Store) error { return fn(failingItems{tx}) })
}

type failingOrderRepo struct{ orders.OrderRepository }

func (failingOrderRepo) InsertItem(context.Context, *orders.OrderItem) error {
	return io.ErrShortWrite
}
