package bus

import (
	"context"

	"github.com/chonlathan-cloud/ProjectMIABackend/internal/domain"
)

// Handler processes one delivered event. A non-nil error negatively
// acknowledges the delivery and the bus redelivers it (at-least-once).
type Handler func(ctx context.Context, event domain.ChatEvent) error

// Bus is the publish/subscribe boundary for chat events. The wire format of
// the underlying broker is not part of this contract.
type Bus interface {
	// Publish sends an event and returns its broker-assigned id.
	Publish(ctx context.Context, event domain.ChatEvent) (string, error)
	// Subscribe delivers events to handler until ctx is cancelled. Each
	// Subscribe call gets an independent cursor: subscribers do not share
	// deliveries.
	Subscribe(ctx context.Context, handler Handler) error
}
