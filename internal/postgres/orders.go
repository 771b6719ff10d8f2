package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/ariefcatur/go-shop-orders/internal/orders"
)

type OrderRepo struct{ DB dbtx }

const orderCols = `id::text, user_id::text, status, created_at, updated_at`

func scanOrder(row pgx.Row) (orders.Order, error) {
	var (
		o      orders.Order
		status string
	)
	if err := row.Scan(&o.ID, &o.UserID, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return orders.Order{}, err
	}
	o.Status = orders.Status(status)
	return o, nil
}

func (r *OrderRepo) FindByID(ctx context.Context, id string) (orders.Order, error) {
	if !validID(id) {
		return orders.Order{}, errors.Wrapf(orders.ErrNotFound, "order %s", id)
	}
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return orders.Order{}, mapErr(err, "find order")
	}
	items, err := r.itemsOf(ctx, []string{o.ID})
	if err != nil {
		return orders.Order{}, err
	}
	o.Items = items[o.ID]
	return o, nil
}

func (r *OrderRepo) FindPage(ctx context.Context, page orders.Page) ([]orders.Order, int, error) {
	var total int
	if err := r.DB.QueryRow(ctx, `SELECT count(*) FROM orders`).Scan(&total); err != nil {
		return nil, 0, mapErr(err, "count orders")
	}
	rows, err := r.DB.Query(ctx, `SELECT `+orderCols+` FROM orders ORDER BY created_at, id LIMIT $1 OFFSET $2`,
		page.Limit, page.Offset())
	if err != nil {
		return nil, 0, mapErr(err, "list orders")
	}
	list := []orders.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		list = append(list, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, mapErr(err, "list orders")
	}

	ids := make([]string, len(list))
	for i, o := range list {
		ids[i] = o.ID
	}
	items, err := r.itemsOf(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range list {
		list[i].Items = items[list[i].ID]
	}
	return list, total, nil
}

// itemsOf loads the items of the given orders together with their products.
func (r *OrderRepo) itemsOf(ctx context.Context, orderIDs []string) (map[string][]orders.OrderItem, error) {
	out := make(map[string][]orders.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	rows, err := r.DB.Query(ctx, `
		SELECT i.id::text, i.order_id::text, i.product_id::text, i.quantity,
		       p.id::text, p.name, p.description, p.price::text, p.stock, p.image, p.created_at, p.updated_at
		FROM order_items i
		JOIN products p ON p.id = i.product_id
		WHERE i.order_id = ANY($1::text[]::uuid[])
		ORDER BY i.created_at, i.id`, orderIDs)
	if err != nil {
		return nil, mapErr(err, "load order items")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			it    orders.OrderItem
			p     orders.Product
			price string
		)
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity,
			&p.ID, &p.Name, &p.Description, &price, &p.Stock, &p.Image, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scan order item")
		}
		if p.Price, err = parsePrice(price); err != nil {
			return nil, err
		}
		it.Product = &p
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, mapErr(rows.Err(), "load order items")
}

func (r *OrderRepo) Insert(ctx context.Context, o *orders.Order) error {
	status := o.Status
	if status == "" {
		status = orders.StatusPending
	}
	err := r.DB.QueryRow(ctx, `
		INSERT INTO orders (id, user_id, status) VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`,
		o.ID, o.UserID, string(status),
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return mapErr(err, "insert order")
	}
	o.Status = status
	return nil
}

func (r *OrderRepo) InsertItem(ctx context.Context, it *orders.OrderItem) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO order_items (id, order_id, product_id, quantity) VALUES ($1, $2, $3, $4)`,
		it.ID, it.OrderID, it.ProductID, it.Quantity)
	return mapErr(err, "insert order item")
}

func (r *OrderRepo) UpdateStatus(ctx context.Context, id string, status orders.Status) error {
	if !validID(id) {
		return errors.Wrapf(orders.ErrNotFound, "order %s", id)
	}
	ct, err := r.DB.Exec(ctx, `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`, id, string(status))
	if err != nil {
		return mapErr(err, "update order status")
	}
	if ct.RowsAffected() == 0 {
		return errors.Wrapf(orders.ErrNotFound, "order %s", id)
	}
	return nil
}

// Delete removes items first, then the header, in one (sub)transaction.
func (r *OrderRepo) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return errors.Wrapf(orders.ErrNotFound, "order %s", id)
	}
	return pgx.BeginFunc(ctx, r.DB, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, id); err != nil {
			return mapErr(err, "delete order items")
		}
		ct, err := tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
		if err != nil {
			return mapErr(err, "delete order")
		}
		if ct.RowsAffected() == 0 {
			return errors.Wrapf(orders.ErrNotFound, "order %s", id)
		}
		return nil
	})
}
