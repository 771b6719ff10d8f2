// Package rabbitmq publishes order events to a topic exchange, as an
// alternative to Kafka. The routing key is the event topic.
package rabbitmq

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-shop-orders/internal/orders"
)

const dialAttempts = 5

type Publisher struct {
	conn     *amqp.Connection
	mu       sync.Mutex
	channel  *amqp.Channel
	exchange string
	log      logrus.FieldLogger
}

var _ orders.EventSink = (*Publisher)(nil)

// Dial connects with retries and declares a durable topic exchange.
func Dial(ctx context.Context, url, exchange string, log logrus.FieldLogger) (*Publisher, error) {
	if exchange == "" {
		return nil, errors.New("exchange name cannot be empty")
	}
	var (
		conn *amqp.Connection
		err  error
	)
	for i := 0; i < dialAttempts; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		wait := time.Duration(i*i)*time.Second + time.Second
		log.WithError(err).WithField("retry_in", wait).Warn("rabbitmq dial")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, errors.Wrap(err, "connect to rabbitmq")
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, errors.Wrapf(err, "declare exchange %s", exchange)
	}
	log.WithField("exchange", exchange).Info("rabbitmq exchange ready")
	return &Publisher{conn: conn, channel: ch, exchange: exchange, log: log}, nil
}

func publishing(env orders.Envelope) (amqp.Publishing, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return amqp.Publishing{}, errors.Wrap(err, "encode envelope")
	}
	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.EventID,
		Type:          env.EventType,
		CorrelationId: env.CorrelationID,
		Timestamp:     env.OccurredAt,
		Headers:       amqp.Table{"x-event-version": int32(env.EventVersion)},
		Body:          body,
	}, nil
}

func (p *Publisher) Emit(ctx context.Context, topic string, env orders.Envelope) error {
	msg, err := publishing(env)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Wrapf(p.channel.PublishWithContext(ctx, p.exchange, topic, false, false, msg), "publish %s", topic)
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			return errors.Wrap(err, "close channel")
		}
	}
	if p.conn != nil {
		return errors.Wrap(p.conn.Close(), "close connection")
	}
	return nil
}
