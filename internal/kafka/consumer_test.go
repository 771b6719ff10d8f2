package kafka

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeReader struct {
	msgs     chan kafka.Message
	fetchErr error

	mu      sync.Mutex
	commits map[int][]int64
	closed  bool
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{msgs: make(chan kafka.Message, len(msgs)), commits: map[int][]int64{}}
	for _, m := range msgs {
		r.msgs <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if r.fetchErr != nil {
		return kafka.Message{}, r.fetchErr
	}
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

// CommitMessages moves the partition position like a broker does: committing
// a message sets the group offset to its offset plus one, whatever came before.
func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.commits[m.Partition] = append(r.commits[m.Partition], m.Offset+1)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) position(partition int) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.commits[partition]
	if len(h) == 0 {
		return 0
	}
	return h[len(h)-1]
}

func (r *fakeReader) history(partition int) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.commits[partition]...)
}

// attempts counts handler calls per partition/offset and records successes in order.
type attempts struct {
	mu      sync.Mutex
	calls   map[[2]int64]int
	handled map[int][]int64
}

func newAttempts() *attempts {
	return &attempts{calls: map[[2]int64]int{}, handled: map[int][]int64{}}
}

func (a *attempts) call(m kafka.Message) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	k := [2]int64{int64(m.Partition), m.Offset}
	a.calls[k]++
	return a.calls[k]
}

func (a *attempts) done(m kafka.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handled[m.Partition] = append(a.handled[m.Partition], m.Offset)
}

func (a *attempts) count(partition int, offset int64) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[[2]int64{int64(partition), offset}]
}

func (a *attempts) order(partition int) []int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]int64(nil), a.handled[partition]...)
}

func fastConsumer(r messageReader, workers int) *Consumer {
	c := newConsumer(r, workers, testLogger())
	c.minBackoff = time.Millisecond
	c.maxBackoff = 5 * time.Millisecond
	return c
}

func start(t *testing.T, c *Consumer, h Handler) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, h) }()
	return func() {
		cancel()
		require.NoError(t, <-done)
	}
}

func msg(partition int, offset int64) kafka.Message {
	return kafka.Message{Topic: "t", Partition: partition, Offset: offset}
}

func TestConsumerRetriesFailedMessageInPlace(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := newFakeReader(msg(0, 0), msg(0, 1), msg(0, 2))
	a := newAttempts()
	h := func(_ context.Context, m kafka.Message) error {
		if n := a.call(m); m.Offset == 1 && n < 3 {
			return errors.New("db unavailable")
		}
		a.done(m)
		return nil
	}

	stop := start(t, fastConsumer(r, 3), h)
	require.Eventually(t, func() bool { return r.position(0) == 3 }, 2*time.Second, 5*time.Millisecond)
	stop()

	assert.Equal(t, 3, a.count(0, 1))
	assert.Equal(t, []int64{0, 1, 2}, a.order(0))
	assert.Equal(t, []int64{1, 2, 3}, r.history(0))
	r.mu.Lock()
	assert.True(t, r.closed)
	r.mu.Unlock()
}

func TestConsumerKeepsFailedOffsetUncommitted(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := newFakeReader(msg(0, 0), msg(0, 1), msg(1, 0), msg(0, 2))
	a := newAttempts()
	h := func(_ context.Context, m kafka.Message) error {
		a.call(m)
		if m.Partition == 0 && m.Offset == 1 {
			return errors.New("db unavailable")
		}
		a.done(m)
		return nil
	}

	stop := start(t, fastConsumer(r, 2), h)
	require.Eventually(t, func() bool {
		return r.position(0) == 1 && r.position(1) == 1 && a.count(0, 1) >= 3
	}, 2*time.Second, 5*time.Millisecond)
	stop()

	assert.Equal(t, int64(1), r.position(0), "a later message must not commit past the failing one")
	assert.Zero(t, a.count(0, 2))
	assert.Equal(t, []int64{1}, r.history(1), "other partitions keep flowing")
}

func TestConsumerCommitsPastPermanentFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := newFakeReader(msg(0, 0), msg(0, 1), msg(0, 2))
	a := newAttempts()
	h := func(_ context.Context, m kafka.Message) error {
		a.call(m)
		if m.Offset == 1 {
			return Permanent(errors.New("unexpected end of JSON input"))
		}
		return nil
	}

	stop := start(t, fastConsumer(r, 1), h)
	require.Eventually(t, func() bool { return r.position(0) == 3 }, 2*time.Second, 5*time.Millisecond)
	stop()

	assert.Equal(t, 1, a.count(0, 1))
	assert.Equal(t, []int64{1, 2, 3}, r.history(0))
}

func TestConsumerCommitsEachPartitionInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	const partitions, perPartition = 4, 5
	var msgs []kafka.Message
	for off := int64(0); off < perPartition; off++ {
		for p := 0; p < partitions; p++ {
			msgs = append(msgs, msg(p, off))
		}
	}
	r := newFakeReader(msgs...)
	a := newAttempts()
	h := func(_ context.Context, m kafka.Message) error {
		n := a.call(m)
		time.Sleep(time.Duration(m.Offset%3) * time.Millisecond)
		if m.Offset == 2 && n == 1 {
			return errors.New("transient")
		}
		a.done(m)
		return nil
	}

	stop := start(t, fastConsumer(r, 2), h)
	require.Eventually(t, func() bool {
		for p := 0; p < partitions; p++ {
			if r.position(p) != perPartition {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)
	stop()

	for p := 0; p < partitions; p++ {
		assert.Equal(t, []int64{1, 2, 3, 4, 5}, r.history(p), "partition %d", p)
		assert.Equal(t, []int64{0, 1, 2, 3, 4}, a.order(p), "partition %d", p)
	}
}

func TestConsumerReturnsFetchErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := &fakeReader{fetchErr: errors.New("group coordinator gone")}
	err := newConsumer(r, 0, testLogger()).Start(context.Background(), func(context.Context, kafka.Message) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "group coordinator gone")
	assert.True(t, r.closed)
}

func TestPermanent(t *testing.T) {
	assert.NoError(t, Permanent(nil))
	assert.False(t, IsPermanent(errors.New("plain")))

	cause := errors.New("bad payload")
	err := errors.Wrap(Permanent(cause), "handle")
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, cause)
}
