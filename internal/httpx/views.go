package httpx

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-shop-orders/internal/orders"
)

// money renders an amount as a JSON number with two decimals.
func money(d decimal.Decimal) json.Number { return json.Number(d.StringFixed(2)) }

type productView struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Price       json.Number `json:"price"`
	Stock       int         `json:"stock"`
	Image       string      `json:"image"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func toProductView(p orders.Product) productView {
	return productView{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       money(p.Price),
		Stock:       p.Stock,
		Image:       p.Image,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

type productLine struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Price    json.Number `json:"price"`
	Stock    *int        `json:"stock,omitempty"`
	Quantity int         `json:"quantity"`
}

type orderView struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	Status    orders.Status `json:"status"`
	Products  []productLine `json:"products"`
	Total     json.Number   `json:"total"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func toOrderView(o orders.Order) orderView {
	v := orderView{
		ID:        o.ID,
		UserID:    o.UserID,
		Status:    o.Status,
		Products:  make([]productLine, 0, len(o.Items)),
		Total:     money(o.Total()),
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
	for _, it := range o.Items {
		line := productLine{ID: it.ProductID, Quantity: it.Quantity}
		if it.Product != nil {
			line.Name = it.Product.Name
			line.Price = money(it.Product.Price)
		}
		v.Products = append(v.Products, line)
	}
	return v
}

type placementView struct {
	ID       string        `json:"id"`
	Status   orders.Status `json:"status"`
	User     orders.User   `json:"user"`
	Products []productLine `json:"products"`
	Total    json.Number   `json:"total"`
}

// toPlacementView shows each product with the stock left after the order.
func toPlacementView(p orders.Placement) placementView {
	v := placementView{
		ID:       p.Order.ID,
		Status:   p.Order.Status,
		User:     p.User,
		Products: make([]productLine, 0, len(p.Products)),
		Total:    money(p.Total()),
	}
	for _, op := range p.Products {
		stock := op.Stock
		v.Products = append(v.Products, productLine{
			ID:       op.ID,
			Name:     op.Name,
			Price:    money(op.Price),
			Stock:    &stock,
			Quantity: op.Quantity,
		})
	}
	return v
}
