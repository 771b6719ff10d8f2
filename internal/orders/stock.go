package orders

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// adjustStock decrements stock for every item and returns the resulting stock
// per product. It relies on the surrounding transaction for rollback.
func adjustStock(ctx context.Context, repo ProductRepository, items []OrderItem, allowNegative bool) (map[string]int, error) {
	left := make(map[string]int, len(items))
	for _, it := range items {
		n, err := repo.DecrementStock(ctx, it.ProductID, it.Quantity, allowNegative)
		switch {
		case errors.Is(err, ErrInsufficientStock):
			return nil, Conflict(fmt.Sprintf(MsgInsufficientFmt, it.ProductID), err)
		case errors.Is(err, ErrNotFound):
			// deleted between lookup and decrement
			return nil, Validation(MsgProductsMissing)
		case err != nil:
			return nil, Internal(errors.Wrapf(err, "decrement stock of %s", it.ProductID))
		}
		left[it.ProductID] = n
	}
	return left, nil
}
