// Package memstore is a map-backed orders.Store. Transactions are serialized
// and work on a copy of the data that replaces the original on success.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/ariefcatur/go-shop-orders/internal/orders"
)

type state struct {
	seq      int64
	products map[string]orders.Product
	users    map[string]orders.User
	orders   map[string]orders.Order
	items    map[string]orders.OrderItem
	order    map[string]int64 // insertion sequence per record id
}

func newState() *state {
	return &state{
		products: map[string]orders.Product{},
		users:    map[string]orders.User{},
		orders:   map[string]orders.Order{},
		items:    map[string]orders.OrderItem{},
		order:    map[string]int64{},
	}
}

func (s *state) clone() *state {
	c := &state{
		seq:      s.seq,
		products: make(map[string]orders.Product, len(s.products)),
		users:    make(map[string]orders.User, len(s.users)),
		orders:   make(map[string]orders.Order, len(s.orders)),
		items:    make(map[string]orders.OrderItem, len(s.items)),
		order:    make(map[string]int64, len(s.order)),
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.order {
		c.order[k] = v
	}
	return c
}

func (s *state) stamp(id string) {
	s.seq++
	s.order[id] = s.seq
}

type data struct{ st *state }

type Store struct {
	mu *sync.Mutex
	db *data
	tx bool
}

var _ orders.Store = (*Store)(nil)

func New() *Store {
	return &Store{mu: &sync.Mutex{}, db: &data{st: newState()}}
}

// lock guards access outside a transaction; inside one the lock is already held.
func (s *Store) lock() func() {
	if s.tx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) Products() orders.ProductRepository { return productRepo{s} }
func (s *Store) Users() orders.UserRepository       { return userRepo{s} }
func (s *Store) Orders() orders.OrderRepository     { return orderRepo{s} }

func (s *Store) WithinTx(ctx context.Context, fn func(tx orders.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer s.lock()()
	work := &data{st: s.db.st.clone()}
	if err := fn(&Store{mu: s.mu, db: work, tx: true}); err != nil {
		return err
	}
	s.db.st = work.st
	return nil
}

func (s *Store) sortedIDs(ids []string) []string {
	sort.Slice(ids, func(i, j int) bool { return s.db.st.order[ids[i]] < s.db.st.order[ids[j]] })
	return ids
}

func paginate[T any](all []T, page orders.Page) []T {
	from := page.Offset()
	if from >= len(all) {
		return []T{}
	}
	to := from + page.Limit
	if to > len(all) {
		to = len(all)
	}
	return all[from:to]
}
