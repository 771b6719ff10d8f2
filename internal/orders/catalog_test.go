package orders_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-shop-orders/internal/memstore"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
)

func newCatalog(t *testing.T) (*orders.Catalog, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	return orders.NewCatalog(store, quietLogger()), store
}

func validInput(name string) orders.ProductInput {
	p := price("19.99")
	return orders.ProductInput{Name: name, Description: "cotton", Price: &p, Stock: qty(10)}
}

func TestCreateProduct(t *testing.T) {
	ctx := context.Background()
	c, _ := newCatalog(t)

	p, err := c.CreateProduct(ctx, validInput("  tee  "))
	require.NoError(t, err)
	assert.Equal(t, "tee", p.Name)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, 10, p.Stock)

	got, err := c.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, p.Price.Equal(got.Price))

	_, err = c.CreateProduct(ctx, validInput("tee"))
	assert.Equal(t, orders.KindConflict, orders.KindOf(err))
	assert.Equal(t, orders.MsgProductExists, orders.PublicMessage(err))
}

func TestCreateProductValidation(t *testing.T) {
	neg := price("-1")
	fractional := price("1.999")
	huge := price("10000000000")
	tests := []struct {
		name   string
		mutate func(*orders.ProductInput)
		msg    string
	}{
		{"missing price", func(in *orders.ProductInput) { in.Price = nil }, orders.MsgMissingData},
		{"missing stock", func(in *orders.ProductInput) { in.Stock = nil }, orders.MsgMissingData},
		{"missing description", func(in *orders.ProductInput) { in.Description = " " }, orders.MsgMissingData},
		{"blank name", func(in *orders.ProductInput) { in.Name = "" }, orders.MsgMissingData},
		{"name too long", func(in *orders.ProductInput) { in.Name = strings.Repeat("x", orders.MaxNameLen+1) }, orders.MsgProductNameLimit},
		{"negative price", func(in *orders.ProductInput) { in.Price = &neg }, orders.MsgInvalidProduct},
		{"negative stock", func(in *orders.ProductInput) { in.Stock = qty(-1) }, orders.MsgInvalidProduct},
		{"three decimals", func(in *orders.ProductInput) { in.Price = &fractional }, orders.MsgInvalidPrice},
		{"too large", func(in *orders.ProductInput) { in.Price = &huge }, orders.MsgInvalidPrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newCatalog(t)
			in := validInput("tee")
			tt.mutate(&in)
			_, err := c.CreateProduct(context.Background(), in)
			assert.Equal(t, orders.KindValidation, orders.KindOf(err))
			assert.Equal(t, tt.msg, orders.PublicMessage(err))
		})
	}
}

func TestUpdateProduct(t *testing.T) {
	ctx := context.Background()
	c, _ := newCatalog(t)
	tee, err := c.CreateProduct(ctx, validInput("tee"))
	require.NoError(t, err)
	_, err = c.CreateProduct(ctx, validInput("cap"))
	require.NoError(t, err)

	name := "long sleeve tee"
	p, err := c.UpdateProduct(ctx, tee.ID, orders.ProductPatch{Name: &name, Stock: qty(4)})
	require.NoError(t, err)
	assert.Equal(t, name, p.Name)
	assert.Equal(t, 4, p.Stock)
	assert.Equal(t, "cotton", p.Description)

	taken := "cap"
	_, err = c.UpdateProduct(ctx, tee.ID, orders.ProductPatch{Name: &taken})
	assert.Equal(t, orders.KindConflict, orders.KindOf(err))

	_, err = c.UpdateProduct(ctx, tee.ID, orders.ProductPatch{Stock: qty(-5)})
	assert.Equal(t, orders.KindValidation, orders.KindOf(err))

	cents := price("4.125")
	_, err = c.UpdateProduct(ctx, tee.ID, orders.ProductPatch{Price: &cents})
	assert.Equal(t, orders.MsgInvalidPrice, orders.PublicMessage(err))
	trailing := price("4.500")
	p, err = c.UpdateProduct(ctx, tee.ID, orders.ProductPatch{Price: &trailing})
	require.NoError(t, err, "trailing zeros are still two decimals")
	assert.True(t, price("4.5").Equal(p.Price))
	ceiling := price("9999999999.99")
	_, err = c.UpdateProduct(ctx, tee.ID, orders.ProductPatch{Price: &ceiling})
	require.NoError(t, err)

	got, err := c.GetProduct(ctx, tee.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Stock)

	_, err = c.UpdateProduct(ctx, uuid.NewString(), orders.ProductPatch{Stock: qty(1)})
	assert.Equal(t, orders.KindNotFound, orders.KindOf(err))
}

func TestDeleteProduct(t *testing.T) {
	ctx := context.Background()
	c, store := newCatalog(t)
	tee, err := c.CreateProduct(ctx, validInput("tee"))
	require.NoError(t, err)
	hat, err := c.CreateProduct(ctx, validInput("cap"))
	require.NoError(t, err)

	user := seedUser(t, store, "buyer@example.com", time.Now().UTC())
	svc := orders.NewService(store, nil, quietLogger(), orders.DefaultPolicy(), "test")
	_, err = svc.PlaceOrder(ctx, orders.PlaceOrderInput{UserID: user.ID, Lines: []orders.LineRequest{{ProductID: tee.ID}}})
	require.NoError(t, err)

	_, err = c.DeleteProduct(ctx, tee.ID)
	assert.Equal(t, orders.KindConflict, orders.KindOf(err))
	assert.Equal(t, orders.MsgProductInUse, orders.PublicMessage(err))

	deleted, err := c.DeleteProduct(ctx, hat.ID)
	require.NoError(t, err)
	assert.Equal(t, "cap", deleted.Name)

	_, err = c.GetProduct(ctx, hat.ID)
	assert.Equal(t, orders.KindNotFound, orders.KindOf(err))
	_, err = c.DeleteProduct(ctx, hat.ID)
	assert.Equal(t, orders.KindNotFound, orders.KindOf(err))
}

func TestListProducts(t *testing.T) {
	ctx := context.Background()
	c, _ := newCatalog(t)
	for _, name := range []string{"c", "a", "b"} {
		_, err := c.CreateProduct(ctx, validInput(name))
		require.NoError(t, err)
	}

	res, err := c.ListProducts(ctx, orders.Page{Number: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	require.Len(t, res.Products, 2)
	assert.Equal(t, "a", res.Products[0].Name)
	assert.Equal(t, "b", res.Products[1].Name)
}

func TestRegisterUser(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	u, err := orders.RegisterUser(ctx, store, " Buyer@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, "buyer@example.com", u.Email)

	_, err = orders.RegisterUser(ctx, store, "buyer@example.com")
	assert.Equal(t, orders.KindConflict, orders.KindOf(err))

	_, err = orders.RegisterUser(ctx, store, "nobody")
	assert.Equal(t, orders.KindValidation, orders.KindOf(err))

	first, err := store.Users().First(ctx)
	require.NoError(t, err)
	assert.Equal(t, u.ID, first.ID)
}
