package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Handler must return nil only when the message was processed and its offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks a handler error that no retry can fix, such as a message that
// does not decode. The consumer logs it and commits past the message.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r          messageReader
	workers    int
	log        logrus.FieldLogger
	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewConsumer(brokers []string, group, topic string, workers int, log logrus.FieldLogger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // synchronous commits
	})
	return newConsumer(r, workers, log)
}

func newConsumer(r messageReader, workers int, log logrus.FieldLogger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, log: log, minBackoff: 200 * time.Millisecond, maxBackoff: 5 * time.Second}
}

// Start fetches until ctx is done or the reader fails. Workers are drained
// before it returns.
//
// Every partition is pinned to one worker, so its messages are handled and
// committed in offset order. A failing message is retried in place and blocks
// its partition until it succeeds, fails permanently or ctx ends.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	queues := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan kafka.Message, 4)
		wg.Add(1)
		go func(id int, jobs <-chan kafka.Message) {
			defer wg.Done()
			c.work(ctx, c.log.WithField("worker", id), jobs, h)
		}(i, queues[i])
	}
	defer wg.Wait()
	defer func() {
		for _, q := range queues {
			close(q)
		}
	}()

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "fetch message")
		}
		select {
		case queues[m.Partition%c.workers] <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Consumer) work(ctx context.Context, log logrus.FieldLogger, jobs <-chan kafka.Message, h Handler) {
	for m := range jobs {
		if ctx.Err() != nil || !c.handle(ctx, log, m, h) {
			continue
		}
		if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			log.WithError(err).WithFields(logrus.Fields{"partition": m.Partition, "offset": m.Offset}).Error("commit message")
		}
	}
}

// handle runs h until it succeeds or fails permanently. It returns false when
// ctx ended first; the message must then stay uncommitted.
func (c *Consumer) handle(ctx context.Context, log logrus.FieldLogger, m kafka.Message, h Handler) bool {
	wait := c.minBackoff
	for attempt := 1; ; attempt++ {
		err := h(ctx, m)
		if err == nil {
			return true
		}
		entry := log.WithError(err).WithFields(logrus.Fields{
			"topic": m.Topic, "partition": m.Partition, "offset": m.Offset, "attempt": attempt,
		})
		if IsPermanent(err) {
			entry.Error("dropping message")
			return true
		}
		entry.Warn("handle message, retrying")

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}
		if wait *= 2; wait > c.maxBackoff {
			wait = c.maxBackoff
		}
	}
}
