package orders

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type traceKey struct{}

// WithTraceID attaches a request id that ends up in emitted envelopes.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

func TraceIDFrom(ctx context.Context) string {
	s, _ := ctx.Value(traceKey{}).(string)
	return s
}

// Service runs the order workflow: creation with stock adjustment plus the
// read, status update, delete and list operations.
type Service struct {
	store    Store
	sink     EventSink
	log      logrus.FieldLogger
	policy   Policy
	producer string
}

func NewService(store Store, sink EventSink, log logrus.FieldLogger, policy Policy, producer string) *Service {
	if sink == nil {
		sink = NopSink{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{store: store, sink: sink, log: log, policy: policy, producer: producer}
}

type OrderPage struct {
	Orders []Order
	Total  int
	Page   Page
}

// PlaceOrder builds the aggregate, persists header and items and adjusts
// stock inside one transaction.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (Placement, error) {
	var placed Placement
	err := s.store.WithinTx(ctx, func(tx Store) error {
		agg, err := buildAggregate(ctx, tx, in, s.policy)
		if err != nil {
			return err
		}
		if err := tx.Orders().Insert(ctx, &agg.order); err != nil {
			return Internal(errors.Wrap(err, "insert order"))
		}
		for i := range agg.order.Items {
			if err := tx.Orders().InsertItem(ctx, &agg.order.Items[i]); err != nil {
				return Internal(errors.Wrap(err, "insert order item"))
			}
		}
		left, err := adjustStock(ctx, tx.Products(), agg.order.Items, s.policy.AllowNegativeStock)
		if err != nil {
			return err
		}
		placed = compose(agg, left)
		return nil
	})
	if err != nil {
		return Placement{}, s.fail(err, "place_order", logrus.Fields{"user_id": in.UserID, "lines": len(in.Lines)})
	}

	items := make([]ItemQty, 0, len(placed.Order.Items))
	for _, it := range placed.Order.Items {
		items = append(items, ItemQty{ProductID: it.ProductID, Qty: it.Quantity})
	}
	s.emit(ctx, TopicOrderCreated, EventOrderCreated, placed.Order.ID, OrderCreatedPayload{
		OrderID: placed.Order.ID,
		UserID:  placed.User.ID,
		Items:   items,
		Total:   placed.Total().StringFixed(2),
	})
	s.log.WithFields(logrus.Fields{"order_id": placed.Order.ID, "user_id": placed.User.ID, "items": len(items)}).Info("order placed")
	return placed, nil
}

func compose(agg aggregate, left map[string]int) Placement {
	out := Placement{Order: agg.order, User: agg.user, Products: make([]OrderedProduct, 0, len(agg.order.Items))}
	for i, it := range agg.order.Items {
		p := agg.products[it.ProductID]
		p.Stock = left[it.ProductID]
		out.Order.Items[i].Product = &p
		out.Products = append(out.Products, OrderedProduct{Product: p, Quantity: it.Quantity})
	}
	return out
}

func (s *Service) GetOrder(ctx context.Context, id string) (Order, error) {
	o, err := s.store.Orders().FindByID(ctx, id)
	if err != nil {
		return Order{}, s.fail(notFoundOr(err, MsgOrderNotFound), "get_order", logrus.Fields{"order_id": id})
	}
	return o, nil
}

// AttachProducts loads the current catalog record of every item in o. Items
// whose product is gone are left without one.
func (s *Service) AttachProducts(ctx context.Context, o Order) (Order, error) {
	ids := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		ids = append(ids, it.ProductID)
	}
	list, err := s.store.Products().FindByIDs(ctx, ids)
	if err != nil {
		return Order{}, s.fail(Internal(errors.Wrap(err, "load order products")), "attach_products", logrus.Fields{"order_id": o.ID})
	}
	byID := make(map[string]Product, len(list))
	for _, p := range list {
		byID[p.ID] = p
	}
	items := make([]OrderItem, len(o.Items))
	for i, it := range o.Items {
		it.Product = nil
		if p, ok := byID[it.ProductID]; ok {
			it.Product = &p
		}
		items[i] = it
	}
	o.Items = items
	return o, nil
}

// Receipt rebuilds the placement view of an existing order, with current stock.
func (s *Service) Receipt(ctx context.Context, id string) (Placement, error) {
	o, err := s.GetOrder(ctx, id)
	if err != nil {
		return Placement{}, err
	}
	u, err := s.store.Users().FindByID(ctx, o.UserID)
	if err != nil {
		return Placement{}, s.fail(notFoundOr(err, MsgUserNotFound), "receipt", logrus.Fields{"order_id": id})
	}
	out := Placement{Order: o, User: u, Products: make([]OrderedProduct, 0, len(o.Items))}
	for _, it := range o.Items {
		if it.Product == nil {
			continue
		}
		out.Products = append(out.Products, OrderedProduct{Product: *it.Product, Quantity: it.Quantity})
	}
	return out, nil
}

func (s *Service) ListOrders(ctx context.Context, page Page) (OrderPage, error) {
	page = NormalizePage(page.Number, page.Limit)
	list, total, err := s.store.Orders().FindPage(ctx, page)
	if err != nil {
		return OrderPage{}, s.fail(Internal(errors.Wrap(err, "list orders")), "list_orders", logrus.Fields{"page": page.Number})
	}
	return OrderPage{Orders: list, Total: total, Page: page}, nil
}

// UpdateStatus changes only the status. An unknown status leaves the order untouched.
func (s *Service) UpdateStatus(ctx context.Context, id, status string) (Order, error) {
	var (
		updated Order
		from    Status
	)
	err := s.store.WithinTx(ctx, func(tx Store) error {
		o, err := tx.Orders().FindByID(ctx, id)
		if err != nil {
			return notFoundOr(err, MsgOrderNotFound)
		}
		next, ok := ParseStatus(status)
		if !ok {
			return Validation(MsgInvalidStatus)
		}
		if err := tx.Orders().UpdateStatus(ctx, id, next); err != nil {
			return notFoundOr(err, MsgOrderNotFound)
		}
		from = o.Status
		o.Status = next
		updated = o
		return nil
	})
	if err != nil {
		return Order{}, s.fail(err, "update_order_status", logrus.Fields{"order_id": id, "status": status})
	}
	if from != updated.Status {
		s.emit(ctx, TopicOrderStatusChanged, EventOrderStatusChanged, id, OrderStatusChangedPayload{
			OrderID: id, From: from, To: updated.Status,
		})
	}
	return updated, nil
}

// DeleteOrder removes the order and its items. Stock is not given back.
func (s *Service) DeleteOrder(ctx context.Context, id string) (Order, error) {
	var deleted Order
	err := s.store.WithinTx(ctx, func(tx Store) error {
		o, err := tx.Orders().FindByID(ctx, id)
		if err != nil {
			return notFoundOr(err, MsgOrderNotFound)
		}
		if err := tx.Orders().Delete(ctx, id); err != nil {
			return notFoundOr(err, MsgOrderNotFound)
		}
		deleted = o
		return nil
	})
	if err != nil {
		return Order{}, s.fail(err, "delete_order", logrus.Fields{"order_id": id})
	}
	s.emit(ctx, TopicOrderDeleted, EventOrderDeleted, id, OrderDeletedPayload{OrderID: id, UserID: deleted.UserID})
	return deleted, nil
}

func (s *Service) emit(ctx context.Context, topic, eventType, key string, payload any) {
	env, err := NewEnvelope(eventType, s.producer, key, payload)
	if err != nil {
		s.log.WithError(err).WithField("event_type", eventType).Error("build event")
		return
	}
	env.TraceID = TraceIDFrom(ctx)
	if err := s.sink.Emit(ctx, topic, env); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"event_type": eventType, "key": key}).Warn("emit event")
	}
}

// fail normalizes err into the taxonomy and logs it once.
func (s *Service) fail(err error, op string, fields logrus.Fields) error {
	err = classify(err)
	entry := s.log.WithFields(fields).WithField("op", op).WithError(err)
	switch KindOf(err) {
	case KindInternal:
		entry.Error("operation failed")
	default:
		entry.Info("request rejected")
	}
	return err
}

func classify(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return Internal(err)
}

func notFoundOr(err error, msg string) error {
	if errors.Is(err, ErrNotFound) {
		return NotFound(msg)
	}
	return err
}
