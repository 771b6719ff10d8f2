package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-shop-orders/internal/orders"
)

type ProductRepo struct{ DB dbtx }

const productCols = `id::text, name, description, price::text, stock, image, created_at, updated_at`

func scanProduct(row pgx.Row) (orders.Product, error) {
	var (
		p     orders.Product
		price string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &price, &p.Stock, &p.Image, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return orders.Product{}, err
	}
	d, err := parsePrice(price)
	if err != nil {
		return orders.Product{}, err
	}
	p.Price = d
	return p, nil
}

func parsePrice(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	return d, errors.Wrapf(err, "parse price %q", s)
}

func (r *ProductRepo) FindByID(ctx context.Context, id string) (orders.Product, error) {
	if !validID(id) {
		return orders.Product{}, errors.Wrapf(orders.ErrNotFound, "product %s", id)
	}
	p, err := scanProduct(r.DB.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id = $1`, id))
	return p, mapErr(err, "find product")
}

func (r *ProductRepo) FindByIDs(ctx context.Context, ids []string) ([]orders.Product, error) {
	ids = validIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.DB.Query(ctx, `SELECT `+productCols+` FROM products WHERE id = ANY($1::text[]::uuid[])`, ids)
	if err != nil {
		return nil, mapErr(err, "find products")
	}
	defer rows.Close()
	var out []orders.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, mapErr(rows.Err(), "find products")
}

func (r *ProductRepo) FindByName(ctx context.Context, name string) (orders.Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE name = $1`, name))
	return p, mapErr(err, "find product by name")
}

func (r *ProductRepo) FindPage(ctx context.Context, page orders.Page) ([]orders.Product, int, error) {
	var total int
	if err := r.DB.QueryRow(ctx, `SELECT count(*) FROM products`).Scan(&total); err != nil {
		return nil, 0, mapErr(err, "count products")
	}
	rows, err := r.DB.Query(ctx, `SELECT `+productCols+` FROM products ORDER BY name LIMIT $1 OFFSET $2`,
		page.Limit, page.Offset())
	if err != nil {
		return nil, 0, mapErr(err, "list products")
	}
	defer rows.Close()
	out := []orders.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, mapErr(rows.Err(), "list products")
}

func (r *ProductRepo) Insert(ctx context.Context, p *orders.Product) error {
	err := r.DB.QueryRow(ctx, `
		INSERT INTO products (id, name, description, price, stock, image)
		VALUES ($1, $2, $3, $4::text::numeric, $5, $6)
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.Description, p.Price.String(), p.Stock, p.Image,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return mapErr(err, "insert product")
}

func (r *ProductRepo) Update(ctx context.Context, p *orders.Product) error {
	if !validID(p.ID) {
		return errors.Wrapf(orders.ErrNotFound, "product %s", p.ID)
	}
	err := r.DB.QueryRow(ctx, `
		UPDATE products
		SET name = $2, description = $3, price = $4::text::numeric, stock = $5, image = $6, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.Name, p.Description, p.Price.String(), p.Stock, p.Image,
	).Scan(&p.UpdatedAt)
	return mapErr(err, "update product")
}

func (r *ProductRepo) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return errors.Wrapf(orders.ErrNotFound, "product %s", id)
	}
	ct, err := r.DB.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return mapErr(err, "delete product")
	}
	if ct.RowsAffected() == 0 {
		return errors.Wrapf(orders.ErrNotFound, "product %s", id)
	}
	return nil
}

// DecrementStock is a single relative UPDATE; in strict mode the WHERE clause
// makes it a compare-and-decrement, so concurrent orders cannot oversell.
func (r *ProductRepo) DecrementStock(ctx context.Context, id string, qty int, allowNegative bool) (int, error) {
	if !validID(id) {
		return 0, errors.Wrapf(orders.ErrNotFound, "product %s", id)
	}
	q := `UPDATE products SET stock = stock - $2, updated_at = now() WHERE id = $1 AND stock >= $2 RETURNING stock`
	if allowNegative {
		q = `UPDATE products SET stock = stock - $2, updated_at = now() WHERE id = $1 RETURNING stock`
	}
	var left int
	err := r.DB.QueryRow(ctx, q, id, qty).Scan(&left)
	if err == nil {
		return left, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) || allowNegative {
		return 0, mapErr(err, "decrement stock")
	}

	var stock int
	if err := r.DB.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, id).Scan(&stock); err != nil {
		return 0, mapErr(err, "read stock")
	}
	return stock, errors.Wrapf(orders.ErrInsufficientStock, "product %s has %d, need %d", id, stock, qty)
}
