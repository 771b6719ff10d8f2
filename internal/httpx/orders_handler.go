package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-shop-orders/internal/orders"
)

const IdempotencyHeader = "Idempotency-Key"

// Cache is the read-through and idempotency layer in front of the order
// service. Reads and fills treat failures as misses.
//
// Cached orders only carry the fields the order owns. InvalidateOrder must
// keep SetOrder from refilling the entry for longer than a request can run,
// and reports failures so a write never leaves a stale entry behind.
type Cache interface {
	GetOrder(ctx context.Context, orderID string) ([]byte, bool)
	SetOrder(ctx context.Context, orderID string, body []byte)
	InvalidateOrder(ctx context.Context, orderID string) error
	LookupIdempotent(ctx context.Context, key string) (string, bool)
	RememberIdempotent(ctx context.Context, key, orderID string)
}

type NopCache struct{}

func (NopCache) GetOrder(context.Context, string) ([]byte, bool)         { return nil, false }
func (NopCache) SetOrder(context.Context, string, []byte)                {}
func (NopCache) InvalidateOrder(context.Context, string) error           { return nil }
func (NopCache) LookupIdempotent(context.Context, string) (string, bool) { return "", false }
func (NopCache) RememberIdempotent(context.Context, string, string)      {}

type OrdersHandler struct {
	Service *orders.Service
	Cache   Cache
	Log     logrus.FieldLogger
}

type createOrderResp struct {
	Message    string        `json:"message"`
	Order      placementView `json:"order"`
	Idempotent bool          `json:"idempotent,omitempty"`
}

type updateOrderReq struct {
	Status string `json:"status"`
}

type updateOrderResp struct {
	Message string `json:"message"`
	Data    struct {
		ID     string        `json:"id"`
		UserID string        `json:"user_id"`
		Status orders.Status `json:"status"`
	} `json:"data"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	if h.Cache == nil {
		h.Cache = NopCache{}
	}
	if h.Log == nil {
		h.Log = logrus.StandardLogger()
	}
	r.Route("/v1/orders", func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Get("/", h.listOrders)
		r.Get("/{id}", h.getOrder)
		r.Put("/{id}", h.updateOrder)
		r.Delete("/{id}", h.deleteOrder)
	})
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var in orders.PlaceOrderInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Redis fast path: a known key replays the receipt of the first order.
	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if key != "" {
		if orderID, ok := h.Cache.LookupIdempotent(ctx, key); ok {
			placed, err := h.Service.Receipt(ctx, orderID)
			if err == nil {
				writeJSON(w, http.StatusOK, createOrderResp{Message: "order already created", Order: toPlacementView(placed), Idempotent: true})
				return
			}
			h.Log.WithError(err).WithField("order_id", orderID).Warn("idempotent replay failed, placing a new order")
		}
	}

	placed, err := h.Service.PlaceOrder(ctx, in)
	if err != nil {
		writeError(w, err)
		return
	}
	if key != "" {
		h.Cache.RememberIdempotent(ctx, key, placed.Order.ID)
	}
	writeJSON(w, http.StatusCreated, createOrderResp{Message: "order created", Order: toPlacementView(placed)})
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Service.ListOrders(ctx, pageFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	data := make([]orderView, 0, len(res.Orders))
	for _, o := range res.Orders {
		data = append(data, toOrderView(o))
	}
	writeJSON(w, http.StatusOK, newPageResp(res.Page, res.Total, data))
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if cached, ok := h.cachedOrder(ctx, orderID); ok {
		o, err := h.Service.AttachProducts(ctx, cached)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toOrderView(o))
		return
	}

	o, err := h.Service.GetOrder(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	if b, err := json.Marshal(ownedFields(o)); err == nil {
		h.Cache.SetOrder(ctx, orderID, b)
	}
	writeJSON(w, http.StatusOK, toOrderView(o))
}

func (h *OrdersHandler) cachedOrder(ctx context.Context, orderID string) (orders.Order, bool) {
	b, ok := h.Cache.GetOrder(ctx, orderID)
	if !ok {
		return orders.Order{}, false
	}
	var o orders.Order
	if err := json.Unmarshal(b, &o); err != nil || o.ID != orderID {
		h.Log.WithError(err).WithField("order_id", orderID).Warn("unreadable cached order")
		return orders.Order{}, false
	}
	return o, true
}

// ownedFields drops the product records so cached orders never hold catalog data.
func ownedFields(o orders.Order) orders.Order {
	items := make([]orders.OrderItem, len(o.Items))
	for i, it := range o.Items {
		it.Product = nil
		items[i] = it
	}
	o.Items = items
	return o
}

// invalidate clears the cached order ahead of a write. The write is refused
// when that fails.
func (h *OrdersHandler) invalidate(ctx context.Context, w http.ResponseWriter, orderID string) bool {
	if err := h.Cache.InvalidateOrder(ctx, orderID); err != nil {
		h.Log.WithError(err).WithField("order_id", orderID).Error("order cache invalidate, write refused")
		writeError(w, orders.Internal(errors.Wrap(err, "invalidate cached order")))
		return false
	}
	return true
}

func (h *OrdersHandler) updateOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req updateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if !h.invalidate(ctx, w, orderID) {
		return
	}
	o, err := h.Service.UpdateStatus(ctx, orderID, req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	h.reinvalidate(ctx, orderID)

	resp := updateOrderResp{Message: "order status updated"}
	resp.Data.ID, resp.Data.UserID, resp.Data.Status = o.ID, o.UserID, o.Status
	writeJSON(w, http.StatusOK, resp)
}

func (h *OrdersHandler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if !h.invalidate(ctx, w, orderID) {
		return
	}
	o, err := h.Service.DeleteOrder(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.reinvalidate(ctx, orderID)
	writeJSON(w, http.StatusOK, toOrderView(o))
}

// reinvalidate renews the marker after the write. The one set before the
// write still covers a failure here.
func (h *OrdersHandler) reinvalidate(ctx context.Context, orderID string) {
	if err := h.Cache.InvalidateOrder(ctx, orderID); err != nil {
		h.Log.WithError(err).WithField("order_id", orderID).Warn("order cache invalidate after write")
	}
}
