package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/ariefcatur/go-shop-orders/internal/orders"
)

type productRepo struct{ s *Store }

func (r productRepo) FindByID(_ context.Context, id string) (orders.Product, error) {
	defer r.s.lock()()
	p, ok := r.s.db.st.products[id]
	if !ok {
		return orders.Product{}, errors.Wrapf(orders.ErrNotFound, "product %s", id)
	}
	return p, nil
}

func (r productRepo) FindByIDs(_ context.Context, ids []string) ([]orders.Product, error) {
	defer r.s.lock()()
	seen := make(map[string]bool, len(ids))
	out := make([]orders.Product, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if p, ok := r.s.db.st.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r productRepo) FindByName(_ context.Context, name string) (orders.Product, error) {
	defer r.s.lock()()
	for _, p := range r.s.db.st.products {
		if p.Name == name {
			return p, nil
		}
	}
	return orders.Product{}, errors.Wrapf(orders.ErrNotFound, "product %q", name)
}

func (r productRepo) FindPage(_ context.Context, page orders.Page) ([]orders.Product, int, error) {
	defer r.s.lock()()
	all := make([]orders.Product, 0, len(r.s.db.st.products))
	for _, p := range r.s.db.st.products {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return paginate(all, page), len(all), nil
}

func (r productRepo) Insert(_ context.Context, p *orders.Product) error {
	defer r.s.lock()()
	st := r.s.db.st
	if _, ok := st.products[p.ID]; ok {
		return errors.Wrapf(orders.ErrDuplicate, "product %s", p.ID)
	}
	for _, other := range st.products {
		if other.Name == p.Name {
			return errors.Wrapf(orders.ErrDuplicate, "product %q", p.Name)
		}
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	st.products[p.ID] = *p
	st.stamp(p.ID)
	return nil
}

func (r productRepo) Update(_ context.Context, p *orders.Product) error {
	defer r.s.lock()()
	st := r.s.db.st
	if _, ok := st.products[p.ID]; !ok {
		return errors.Wrapf(orders.ErrNotFound, "product %s", p.ID)
	}
	for _, other := range st.products {
		if other.ID != p.ID && other.Name == p.Name {
			return errors.Wrapf(orders.ErrDuplicate, "product %q", p.Name)
		}
	}
	p.UpdatedAt = time.Now().UTC()
	st.products[p.ID] = *p
	return nil
}

func (r productRepo) Delete(_ context.Context, id string) error {
	defer r.s.lock()()
	st := r.s.db.st
	if _, ok := st.products[id]; !ok {
		return errors.Wrapf(orders.ErrNotFound, "product %s", id)
	}
	for _, it := range st.items {
		if it.ProductID == id {
			return errors.Wrapf(orders.ErrReferenced, "product %s", id)
		}
	}
	delete(st.products, id)
	delete(st.order, id)
	return nil
}

func (r productRepo) DecrementStock(_ context.Context, id string, qty int, allowNegative bool) (int, error) {
	defer r.s.lock()()
	st := r.s.db.st
	p, ok := st.products[id]
	if !ok {
		return 0, errors.Wrapf(orders.ErrNotFound, "product %s", id)
	}
	if !allowNegative && p.Stock < qty {
		return p.Stock, errors.Wrapf(orders.ErrInsufficientStock, "product %s has %d, need %d", id, p.Stock, qty)
	}
	p.Stock -= qty
	p.UpdatedAt = time.Now().UTC()
	st.products[id] = p
	return p.Stock, nil
}

type userRepo struct{ s *Store }

func (r userRepo) FindByID(_ context.Context, id string) (orders.User, error) {
	defer r.s.lock()()
	u, ok := r.s.db.st.users[id]
	if !ok {
		return orders.User{}, errors.Wrapf(orders.ErrNotFound, "user %s", id)
	}
	return u, nil
}

func (r userRepo) First(_ context.Context) (orders.User, error) {
	defer r.s.lock()()
	st := r.s.db.st
	var (
		first orders.User
		found bool
	)
	for _, u := range st.users {
		if !found || u.CreatedAt.Before(first.CreatedAt) ||
			(u.CreatedAt.Equal(first.CreatedAt) && st.order[u.ID] < st.order[first.ID]) {
			first, found = u, true
		}
	}
	if !found {
		return orders.User{}, errors.Wrap(orders.ErrNotFound, "no users")
	}
	return first, nil
}

func (r userRepo) Insert(_ context.Context, u *orders.User) error {
	defer r.s.lock()()
	st := r.s.db.st
	for _, other := range st.users {
		if other.ID == u.ID || other.Email == u.Email {
			return errors.Wrapf(orders.ErrDuplicate, "user %s", u.Email)
		}
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	st.users[u.ID] = *u
	st.stamp(u.ID)
	return nil
}

type orderRepo struct{ s *Store }

func (r orderRepo) load(id string) (orders.Order, bool) {
	st := r.s.db.st
	o, ok := st.orders[id]
	if !ok {
		return orders.Order{}, false
	}
	var ids []string
	for itemID, it := range st.items {
		if it.OrderID == id {
			ids = append(ids, itemID)
		}
	}
	o.Items = make([]orders.OrderItem, 0, len(ids))
	for _, itemID := range r.s.sortedIDs(ids) {
		it := st.items[itemID]
		if p, ok := st.products[it.ProductID]; ok {
			it.Product = &p
		}
		o.Items = append(o.Items, it)
	}
	return o, true
}

func (r orderRepo) FindByID(_ context.Context, id string) (orders.Order, error) {
	defer r.s.lock()()
	o, ok := r.load(id)
	if !ok {
		return orders.Order{}, errors.Wrapf(orders.ErrNotFound, "order %s", id)
	}
	return o, nil
}

func (r orderRepo) FindPage(_ context.Context, page orders.Page) ([]orders.Order, int, error) {
	defer r.s.lock()()
	ids := make([]string, 0, len(r.s.db.st.orders))
	for id := range r.s.db.st.orders {
		ids = append(ids, id)
	}
	ids = paginate(r.s.sortedIDs(ids), page)
	out := make([]orders.Order, 0, len(ids))
	for _, id := range ids {
		o, _ := r.load(id)
		out = append(out, o)
	}
	return out, len(r.s.db.st.orders), nil
}

func (r orderRepo) Insert(_ context.Context, o *orders.Order) error {
	defer r.s.lock()()
	st := r.s.db.st
	if _, ok := st.orders[o.ID]; ok {
		return errors.Wrapf(orders.ErrDuplicate, "order %s", o.ID)
	}
	if _, ok := st.users[o.UserID]; !ok {
		return errors.Errorf("order %s references missing user %s", o.ID, o.UserID)
	}
	header := *o
	header.Items = nil
	if header.Status == "" {
		header.Status = orders.StatusPending
	}
	st.orders[o.ID] = header
	st.stamp(o.ID)
	return nil
}

func (r orderRepo) InsertItem(_ context.Context, it *orders.OrderItem) error {
	defer r.s.lock()()
	st := r.s.db.st
	if _, ok := st.orders[it.OrderID]; !ok {
		return errors.Errorf("item %s references missing order %s", it.ID, it.OrderID)
	}
	if _, ok := st.products[it.ProductID]; !ok {
		return errors.Errorf("item %s references missing product %s", it.ID, it.ProductID)
	}
	if it.Quantity <= 0 {
		return errors.Errorf("item %s has non-positive quantity", it.ID)
	}
	row := *it
	row.Product = nil
	st.items[it.ID] = row
	st.stamp(it.ID)
	return nil
}

func (r orderRepo) UpdateStatus(_ context.Context, id string, status orders.Status) error {
	defer r.s.lock()()
	st := r.s.db.st
	o, ok := st.orders[id]
	if !ok {
		return errors.Wrapf(orders.ErrNotFound, "order %s", id)
	}
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	st.orders[id] = o
	return nil
}

func (r orderRepo) Delete(_ context.Context, id string) error {
	defer r.s.lock()()
	st := r.s.db.st
	if _, ok := st.orders[id]; !ok {
		return errors.Wrapf(orders.ErrNotFound, "order %s", id)
	}
	for itemID, it := range st.items {
		if it.OrderID == id {
			delete(st.items, itemID)
			delete(st.order, itemID)
		}
	}
	delete(st.orders, id)
	delete(st.order, id)
	return nil
}
