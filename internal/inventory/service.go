package inventory

import (
	"context"

	"github.com/pkg/errors"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	kafkax "github.com/ariefcatur/go-shop-orders/internal/kafka"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
)

type Deduper interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// Service watches placed orders and raises StockLow for products that
// dropped to the threshold or below.
type Service struct {
	Products    orders.ProductRepository
	Dedup       Deduper
	Sink        orders.EventSink
	Threshold   int
	ServiceName string
	Log         logrus.FieldLogger
}

// HandleOrderCreated is installed as the consumer handler.
func (s *Service) HandleOrderCreated(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		return kafkax.Permanent(err)
	}
	if env.EventType != orders.EventOrderCreated {
		return nil
	}
	log := s.Log.WithFields(logrus.Fields{"event_id": env.EventID, "order_id": env.CorrelationID})

	// redis trouble must not stall the partition; worst case is a duplicate alert
	first, err := s.Dedup.Claim(ctx, env.EventID)
	if err != nil {
		log.WithError(err).Warn("dedup unavailable")
	} else if !first {
		log.Debug("duplicate delivery skipped")
		return nil
	}

	if err := s.check(ctx, env, log); err != nil {
		if rerr := s.Dedup.Release(ctx, env.EventID); rerr != nil {
			log.WithError(rerr).Warn("dedup release")
		}
		return err
	}
	return nil
}

func (s *Service) check(ctx context.Context, env orders.Envelope, log logrus.FieldLogger) error {
	p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
	if err != nil {
		return kafkax.Permanent(err)
	}
	ids := make([]string, 0, len(p.Items))
	for _, it := range p.Items {
		ids = append(ids, it.ProductID)
	}
	if len(ids) == 0 {
		return nil
	}
	products, err := s.Products.FindByIDs(ctx, ids)
	if err != nil {
		return errors.Wrap(err, "load ordered products")
	}
	for _, prod := range products {
		if prod.Stock > s.Threshold {
			continue
		}
		ev, err := orders.NewEnvelope(orders.EventStockLow, s.ServiceName, prod.ID, orders.StockLowPayload{
			ProductID: prod.ID,
			Name:      prod.Name,
			Stock:     prod.Stock,
			Threshold: s.Threshold,
		})
		if err != nil {
			return err
		}
		ev.TraceID = env.TraceID
		if err := s.Sink.Emit(ctx, orders.TopicStockLow, ev); err != nil {
			return errors.Wrapf(err, "emit stock low for %s", prod.ID)
		}
		log.WithFields(logrus.Fields{"product_id": prod.ID, "stock": prod.Stock}).Warn("stock low")
	}
	return nil
}
