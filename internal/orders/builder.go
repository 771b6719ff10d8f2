package orders

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Policy holds the knobs of the order workflow that differ between deployments.
type Policy struct {
	// RequireExplicitUser rejects orders without user_id. When false the
	// oldest user owns such orders.
	RequireExplicitUser bool
	// DefaultQuantity is used for lines that omit quantity.
	DefaultQuantity int
	// AllowNegativeStock switches the stock adjuster to an unconditional
	// decrement. Only meant for reproducing legacy behaviour.
	AllowNegativeStock bool
}

func DefaultPolicy() Policy {
	return Policy{RequireExplicitUser: true, DefaultQuantity: 1}
}

type aggregate struct {
	order    Order
	user     User
	products map[string]Product
}

type mergedLine struct {
	productID string
	qty       int
}

// mergeLines validates the requested lines and folds duplicate product ids
// into one line, keeping first-seen order.
func mergeLines(lines []LineRequest, defaultQty int) ([]mergedLine, error) {
	if len(lines) == 0 {
		return nil, Validation(MsgMissingData)
	}
	if defaultQty < 1 {
		defaultQty = 1
	}
	idx := make(map[string]int, len(lines))
	out := make([]mergedLine, 0, len(lines))
	for _, l := range lines {
		id := strings.TrimSpace(l.ProductID)
		if id == "" {
			return nil, Validation(MsgMissingData)
		}
		qty := defaultQty
		if l.Quantity != nil {
			if *l.Quantity <= 0 {
				return nil, Validation(MsgInvalidQuantity)
			}
			qty = *l.Quantity
		}
		if i, ok := idx[id]; ok {
			out[i].qty += qty
			continue
		}
		idx[id] = len(out)
		out = append(out, mergedLine{productID: id, qty: qty})
	}
	return out, nil
}

// LookupProducts resolves ids to catalog records keyed by id. The caller
// decides what a short result means.
func LookupProducts(ctx context.Context, repo ProductRepository, ids []string) (map[string]Product, error) {
	found, err := repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "find products")
	}
	byID := make(map[string]Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	return byID, nil
}

func resolveUser(ctx context.Context, repo UserRepository, userID string, requireExplicit bool) (User, error) {
	userID = strings.TrimSpace(userID)
	var (
		u   User
		err error
	)
	switch {
	case userID != "":
		u, err = repo.FindByID(ctx, userID)
	case requireExplicit:
		return User{}, Validation(MsgMissingData)
	default:
		u, err = repo.First(ctx)
	}
	if errors.Is(err, ErrNotFound) {
		return User{}, NotFound(MsgUserNotFound)
	}
	if err != nil {
		return User{}, Internal(errors.Wrap(err, "find user"))
	}
	return u, nil
}

func buildAggregate(ctx context.Context, store Store, in PlaceOrderInput, policy Policy) (aggregate, error) {
	lines, err := mergeLines(in.Lines, policy.DefaultQuantity)
	if err != nil {
		return aggregate{}, err
	}

	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.productID
	}
	products, err := LookupProducts(ctx, store.Products(), ids)
	if err != nil {
		return aggregate{}, Internal(err)
	}
	if len(products) != len(ids) {
		return aggregate{}, Validation(MsgProductsMissing)
	}

	user, err := resolveUser(ctx, store.Users(), in.UserID, policy.RequireExplicitUser)
	if err != nil {
		return aggregate{}, err
	}

	now := time.Now().UTC()
	order := Order{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		Items:     make([]OrderItem, 0, len(lines)),
	}
	for _, l := range lines {
		order.Items = append(order.Items, OrderItem{
			ID:        uuid.NewString(),
			OrderID:   order.ID,
			ProductID: l.productID,
			Quantity:  l.qty,
		})
	}
	return aggregate{order: order, user: user, products: products}, nil
}
