package stream

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chonlathan-cloud/ProjectMIABackend/internal/bus"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/domain"
)

const defaultQueueSize = 64

// Broker turns bus subscriptions into per-connection live streams filtered
// to a single conversation.
type Broker struct {
	bus          bus.Bus
	queueSize    int
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewBroker wires the broker. pollInterval bounds each wait for the next
// event and must be shorter than the stream idle timeout.
func NewBroker(b bus.Bus, pollInterval time.Duration, logger *zap.Logger) *Broker {
	if logger == nil {
		logger = zap.L()
	}
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	return &Broker{
		bus:          b,
		queueSize:    defaultQueueSize,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Stream is a cancellable push sequence of chat events for one client
// connection. It is not restartable; open a new stream instead.
type Stream struct {
	out    chan domain.ChatEvent
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

// Events returns the delivery channel. It closes when the idle timeout
// elapses, the client context is cancelled, or the bus fails; check Err
// after close to distinguish the failure case.
func (s *Stream) Events() <-chan domain.ChatEvent {
	return s.out
}

// Err reports a bus failure that terminated the stream, nil on a normal end.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close cancels the underlying subscription. Safe to call more than once.
func (s *Stream) Close() {
	s.cancel()
}

func (s *Stream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// OpenStream subscribes to the bus filtered to exactly (shopID, customerID)
// and relays matches until idleTimeout elapses or ctx is cancelled. Every
// inspected event is acknowledged whether or not it matches; the bounded
// queue decouples the subscription callback from the consumer, and events
// arriving while the queue is full are dropped rather than blocking the bus.
func (b *Broker) OpenStream(ctx context.Context, shopID, customerID string, idleTimeout time.Duration) *Stream {
	subCtx, cancel := context.WithCancel(ctx)
	queue := make(chan domain.ChatEvent, b.queueSize)
	stream := &Stream{
		out:    make(chan domain.ChatEvent),
		cancel: cancel,
	}

	subDone := make(chan struct{})
	go func() {
		defer close(subDone)
		err := b.bus.Subscribe(subCtx, func(_ context.Context, event domain.ChatEvent) error {
			if event.ShopID != shopID || event.CustomerID != customerID {
				return nil
			}
			select {
			case queue <- event:
			default:
				b.logger.Warn("stream queue full, dropping event",
					zap.String("shop_id", shopID),
					zap.String("customer_id", customerID))
			}
			return nil
		})
		if err != nil && subCtx.Err() == nil {
			stream.setErr(err)
		}
		cancel()
	}()

	go func() {
		defer close(stream.out)
		defer cancel()

		deadline := time.Now().Add(idleTimeout)
		timer := time.NewTimer(b.pollInterval)
		defer timer.Stop()

		for {
			if time.Now().After(deadline) {
				return
			}

			wait := b.pollInterval
			if remaining := time.Until(deadline); remaining < wait {
				wait = remaining
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(wait)

			select {
			case event := <-queue:
				select {
				case stream.out <- event:
				case <-subCtx.Done():
					return
				}
			case <-timer.C:
				// Liveness tick; loop re-checks the deadline.
			case <-subCtx.Done():
				return
			case <-subDone:
				return
			}
		}
	}()

	return stream
}
