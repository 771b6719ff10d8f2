package orders

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type ProductInput struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int             `json:"stock"`
	Image       string           `json:"image"`
}

// ProductPatch only changes the fields that are set.
type ProductPatch struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int             `json:"stock"`
	Image       *string          `json:"image"`
}

type ProductPage struct {
	Products []Product
	Total    int
	Page     Page
}

// Catalog is the product admin side of the shop.
type Catalog struct {
	store Store
	log   logrus.FieldLogger
}

func NewCatalog(store Store, log logrus.FieldLogger) *Catalog {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Catalog{store: store, log: log}
}

// maxPrice is the first amount a NUMERIC(12,2) price column cannot hold.
var maxPrice = decimal.New(1, 10)

func validateProduct(p Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return Validation(MsgMissingData)
	}
	if utf8.RuneCountInString(p.Name) > MaxNameLen {
		return Validation(MsgProductNameLimit)
	}
	if p.Price.IsNegative() || p.Stock < 0 {
		return Validation(MsgInvalidProduct)
	}
	if !p.Price.Equal(p.Price.Truncate(2)) || p.Price.GreaterThanOrEqual(maxPrice) {
		return Validation(MsgInvalidPrice)
	}
	return nil
}

func (c *Catalog) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	if in.Price == nil || in.Stock == nil || strings.TrimSpace(in.Description) == "" {
		return Product{}, c.fail(Validation(MsgMissingData), "create_product", logrus.Fields{"name": in.Name})
	}
	now := time.Now().UTC()
	p := Product{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Price:       *in.Price,
		Stock:       *in.Stock,
		Image:       in.Image,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := validateProduct(p); err != nil {
		return Product{}, c.fail(err, "create_product", logrus.Fields{"name": in.Name})
	}

	err := c.store.WithinTx(ctx, func(tx Store) error {
		if _, err := tx.Products().FindByName(ctx, p.Name); err == nil {
			return Conflict(MsgProductExists, nil)
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		return duplicateOr(tx.Products().Insert(ctx, &p))
	})
	if err != nil {
		return Product{}, c.fail(err, "create_product", logrus.Fields{"name": p.Name})
	}
	return p, nil
}

func (c *Catalog) GetProduct(ctx context.Context, id string) (Product, error) {
	p, err := c.store.Products().FindByID(ctx, id)
	if err != nil {
		return Product{}, c.fail(notFoundOr(err, MsgProductNotFound), "get_product", logrus.Fields{"product_id": id})
	}
	return p, nil
}

func (c *Catalog) ListProducts(ctx context.Context, page Page) (ProductPage, error) {
	page = NormalizePage(page.Number, page.Limit)
	list, total, err := c.store.Products().FindPage(ctx, page)
	if err != nil {
		return ProductPage{}, c.fail(errors.Wrap(err, "list products"), "list_products", nil)
	}
	return ProductPage{Products: list, Total: total, Page: page}, nil
}

func (c *Catalog) UpdateProduct(ctx context.Context, id string, patch ProductPatch) (Product, error) {
	var updated Product
	err := c.store.WithinTx(ctx, func(tx Store) error {
		p, err := tx.Products().FindByID(ctx, id)
		if err != nil {
			return notFoundOr(err, MsgProductNotFound)
		}
		if patch.Name != nil && strings.TrimSpace(*patch.Name) != p.Name {
			name := strings.TrimSpace(*patch.Name)
			if other, err := tx.Products().FindByName(ctx, name); err == nil && other.ID != p.ID {
				return Conflict(MsgProductExists, nil)
			} else if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			p.Name = name
		}
		if patch.Description != nil {
			p.Description = *patch.Description
		}
		if patch.Price != nil {
			p.Price = *patch.Price
		}
		if patch.Stock != nil {
			p.Stock = *patch.Stock
		}
		if patch.Image != nil {
			p.Image = *patch.Image
		}
		if err := validateProduct(p); err != nil {
			return err
		}
		p.UpdatedAt = time.Now().UTC()
		if err := duplicateOr(tx.Products().Update(ctx, &p)); err != nil {
			return notFoundOr(err, MsgProductNotFound)
		}
		updated = p
		return nil
	})
	if err != nil {
		return Product{}, c.fail(err, "update_product", logrus.Fields{"product_id": id})
	}
	return updated, nil
}

func (c *Catalog) DeleteProduct(ctx context.Context, id string) (Product, error) {
	var deleted Product
	err := c.store.WithinTx(ctx, func(tx Store) error {
		p, err := tx.Products().FindByID(ctx, id)
		if err != nil {
			return notFoundOr(err, MsgProductNotFound)
		}
		err = tx.Products().Delete(ctx, id)
		if errors.Is(err, ErrReferenced) {
			return Conflict(MsgProductInUse, err)
		}
		if err != nil {
			return notFoundOr(err, MsgProductNotFound)
		}
		deleted = p
		return nil
	})
	if err != nil {
		return Product{}, c.fail(err, "delete_product", logrus.Fields{"product_id": id})
	}
	return deleted, nil
}

func (c *Catalog) fail(err error, op string, fields logrus.Fields) error {
	err = classify(err)
	entry := c.log.WithFields(fields).WithField("op", op).WithError(err)
	if KindOf(err) == KindInternal {
		entry.Error("operation failed")
	} else {
		entry.Info("request rejected")
	}
	return err
}

func duplicateOr(err error) error {
	if errors.Is(err, ErrDuplicate) {
		return Conflict(MsgProductExists, err)
	}
	return err
}
