package orders

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const MaxNameLen = 50

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Image       string          `json:"image"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type Order struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	Status    Status      `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	Items     []OrderItem `json:"items,omitempty"`
}

// OrderItem is one line of an order. Product is only populated on reads.
type OrderItem struct {
	ID        string   `json:"id"`
	OrderID   string   `json:"order_id"`
	ProductID string   `json:"product_id"`
	Quantity  int      `json:"quantity"`
	Product   *Product `json:"product,omitempty"`
}

// Total sums price*quantity over items whose product is loaded.
func (o Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		if it.Product == nil {
			continue
		}
		total = total.Add(it.Product.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

// LineRequest is one requested {product, quantity} pair. A nil Quantity
// means the caller did not specify one.
type LineRequest struct {
	ProductID string `json:"id"`
	Quantity  *int   `json:"quantity,omitempty"`
}

type PlaceOrderInput struct {
	UserID string        `json:"userId"`
	Lines  []LineRequest `json:"products"`
}

// UnmarshalJSON reads userId and falls back to the older user_id field.
func (in *PlaceOrderInput) UnmarshalJSON(b []byte) error {
	var raw struct {
		UserID string        `json:"userId"`
		Legacy string        `json:"user_id"`
		Lines  []LineRequest `json:"products"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	in.UserID = raw.UserID
	if in.UserID == "" {
		in.UserID = raw.Legacy
	}
	in.Lines = raw.Lines
	return nil
}

// OrderedProduct is a product as it looks after the order adjusted its stock.
type OrderedProduct struct {
	Product
	Quantity int `json:"quantity"`
}

// Placement is the composed result of a successful order creation.
type Placement struct {
	Order    Order
	User     User
	Products []OrderedProduct
}

func (p Placement) Total() decimal.Decimal {
	total := decimal.Zero
	for _, op := range p.Products {
		total = total.Add(op.Price.Mul(decimal.NewFromInt(int64(op.Quantity))))
	}
	return total
}

type Page struct {
	Number int
	Limit  int
}

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// NormalizePage applies defaults to zero or negative values and caps the limit.
func NormalizePage(number, limit int) Page {
	if number < 1 {
		number = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return Page{Number: number, Limit: limit}
}

func (p Page) Offset() int { return (p.Number - 1) * p.Limit }

// TotalPages returns ceil(total/limit).
func (p Page) TotalPages(total int) int {
	if p.Limit <= 0 {
		return 0
	}
	return (total + p.Limit - 1) / p.Limit
}
