package stream_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chonlathan-cloud/ProjectMIABackend/internal/bus"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/domain"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/stream"
)

// fakeBus delivers published events to all active subscribers inline.
type fakeBus struct {
	mu       sync.Mutex
	handlers map[int]bus.Handler
	next     int
	failWith error
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: make(map[int]bus.Handler)}
}

func (f *fakeBus) Publish(ctx context.Context, event domain.ChatEvent) (string, error) {
	f.mu.Lock()
	handlers := make([]bus.Handler, 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()

	for _, h := range handlers {
		_ = h(ctx, event)
	}
	return "1-1", nil
}

func (f *fakeBus) Subscribe(ctx context.Context, handler bus.Handler) error {
	if f.failWith != nil {
		return f.failWith
	}

	f.mu.Lock()
	id := f.next
	f.next++
	f.handlers[id] = handler
	f.mu.Unlock()

	<-ctx.Done()

	f.mu.Lock()
	delete(f.handlers, id)
	f.mu.Unlock()
	return nil
}

func (f *fakeBus) subscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

func event(shopID, customerID, content string) domain.ChatEvent {
	return domain.ChatEvent{
		ShopID:     shopID,
		CustomerID: customerID,
		Role:       domain.ChatRoleUser,
		Content:    content,
		Timestamp:  time.Now().UTC(),
	}
}

func waitForSubscriber(t *testing.T, fb *fakeBus) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for fb.subscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never attached")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStreamFiltersExactConversation(t *testing.T) {
	fb := newFakeBus()
	broker := stream.NewBroker(fb, 50*time.Millisecond, zap.NewNop())

	s := broker.OpenStream(context.Background(), "shop-a", "conv-1", 2*time.Second)
	defer s.Close()
	waitForSubscriber(t, fb)

	_, _ = fb.Publish(context.Background(), event("shop-a", "conv-2", "other conversation"))
	_, _ = fb.Publish(context.Background(), event("shop-b", "conv-1", "other shop"))
	_, _ = fb.Publish(context.Background(), event("shop-a", "conv-1", "hello"))

	select {
	case got := <-s.Events():
		require.Equal(t, "hello", got.Content)
		require.Equal(t, "shop-a", got.ShopID)
		require.Equal(t, "conv-1", got.CustomerID)
	case <-time.After(time.Second):
		t.Fatal("matching event never delivered")
	}

	// Nothing else may arrive: the two mismatches were inspected and dropped.
	select {
	case got, ok := <-s.Events():
		if ok {
			t.Fatalf("unexpected event delivered: %+v", got)
		}
	case <-time.After(200 * time.Millisecond):
	}
}

func TestStreamEndsAfterIdleTimeout(t *testing.T) {
	fb := newFakeBus()
	broker := stream.NewBroker(fb, 100*time.Millisecond, zap.NewNop())

	start := time.Now()
	s := broker.OpenStream(context.Background(), "shop-a", "conv-1", time.Second)
	defer s.Close()

	for range s.Events() {
		t.Fatal("no events were published")
	}
	elapsed := time.Since(start)

	require.NoError(t, s.Err())
	require.GreaterOrEqual(t, elapsed, 900*time.Millisecond)
	require.Less(t, elapsed, 3*time.Second)
}

func TestStreamCancelReleasesSubscription(t *testing.T) {
	fb := newFakeBus()
	broker := stream.NewBroker(fb, 50*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	s := broker.OpenStream(ctx, "shop-a", "conv-1", time.Minute)
	waitForSubscriber(t, fb)

	cancel()

	for range s.Events() {
	}

	deadline := time.Now().Add(time.Second)
	for fb.subscriberCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription leaked after cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStreamDropsWhenQueueFull(t *testing.T) {
	fb := newFakeBus()
	broker := stream.NewBroker(fb, 50*time.Millisecond, zap.NewNop())

	s := broker.OpenStream(context.Background(), "shop-a", "conv-1", 2*time.Second)
	defer s.Close()
	waitForSubscriber(t, fb)

	// Publish more matching events than the queue holds while nothing is
	// reading. The callback must stay non-blocking: overflow is dropped,
	// and every Publish call returns.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			_, _ = fb.Publish(context.Background(), event("shop-a", "conv-1", "burst"))
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full stream queue")
	}

	received := 0
	for range s.Events() {
		received++
	}
	require.Positive(t, received)
	require.Less(t, received, 100)
}

func TestStreamSurfacesBusFailure(t *testing.T) {
	fb := newFakeBus()
	fb.failWith = errors.New("broker unavailable")
	broker := stream.NewBroker(fb, 50*time.Millisecond, zap.NewNop())

	s := broker.OpenStream(context.Background(), "shop-a", "conv-1", time.Minute)
	defer s.Close()

	for range s.Events() {
	}
	require.Error(t, s.Err())
}
