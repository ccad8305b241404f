package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/chonlathan-cloud/ProjectMIABackend/internal/adapter/line"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/bus"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/domain"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/repository"
)

// CustomerSummary is one row in the inbox customer list.
type CustomerSummary struct {
	CustomerID   string    `json:"customerId"`
	DisplayName  string    `json:"displayName"`
	PictureURL   string    `json:"pictureUrl,omitempty"`
	LastActiveAt time.Time `json:"lastActiveAt"`
	LastMessage  string    `json:"lastMessage,omitempty"`
}

// InboxService serves conversation lists, history and outbound sends for a
// shop operator.
type InboxService struct {
	customers repository.CustomerRepository
	events    repository.ChatEventRepository
	pusher    line.Pusher
	publisher bus.Bus
	node      *snowflake.Node
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewInboxService wires dependencies.
func NewInboxService(customers repository.CustomerRepository, events repository.ChatEventRepository, pusher line.Pusher, publisher bus.Bus, node *snowflake.Node, logger *zap.Logger) *InboxService {
	if logger == nil {
		logger = zap.L()
	}
	return &InboxService{
		customers: customers,
		events:    events,
		pusher:    pusher,
		publisher: publisher,
		node:      node,
		logger:    logger,
		tracer:    otel.Tracer("github.com/chonlathan-cloud/ProjectMIABackend/internal/service"),
	}
}

// Customers lists the shop's conversation participants, most recently
// active first, each with a preview of the latest message.
func (s *InboxService) Customers(ctx context.Context, shopID string) ([]CustomerSummary, error) {
	ctx, span := s.startSpan(ctx, "InboxService.Customers")
	defer span.End()

	customers, err := s.customers.ListByShop(ctx, shopID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list customers: %w", err)
	}

	summaries := make([]CustomerSummary, 0, len(customers))
	for _, customer := range customers {
		summary := CustomerSummary{
			CustomerID:   customer.CustomerID,
			DisplayName:  customer.DisplayName,
			PictureURL:   customer.PictureURL,
			LastActiveAt: customer.LastActiveAt,
		}
		last, err := s.events.LastEvent(ctx, customer.CustomerID)
		switch {
		case err == nil:
			summary.LastMessage = last.Content
		case errors.Is(err, pgx.ErrNoRows):
		default:
			span.RecordError(err)
			return nil, fmt.Errorf("load last event: %w", err)
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// History returns the full conversation transcript, oldest first. The
// customer must belong to the shop.
func (s *InboxService) History(ctx context.Context, shopID, customerID string) ([]domain.ChatEvent, error) {
	ctx, span := s.startSpan(ctx, "InboxService.History")
	defer span.End()

	if _, err := s.customers.GetCustomer(ctx, customerID, shopID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound("Customer not found")
		}
		span.RecordError(err)
		return nil, fmt.Errorf("load customer: %w", err)
	}

	events, err := s.events.ListHistory(ctx, shopID, customerID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list history: %w", err)
	}
	return events, nil
}

// Send pushes an operator message to the customer over the chat channel,
// persists it as an assistant event and fans it out on the bus so open
// streams see it immediately.
func (s *InboxService) Send(ctx context.Context, shop domain.Shop, customerID, text string) (domain.ChatEvent, error) {
	ctx, span := s.startSpan(ctx, "InboxService.Send")
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ChatEvent{}, &AuthError{Status: 400, Detail: "Message text is required"}
	}

	customer, err := s.customers.GetCustomer(ctx, customerID, shop.ShopID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ChatEvent{}, ErrNotFound("Customer not found")
		}
		span.RecordError(err)
		return domain.ChatEvent{}, fmt.Errorf("load customer: %w", err)
	}

	channelToken := shop.LineChannelAccessToken()
	if channelToken == "" {
		return domain.ChatEvent{}, &AuthError{Status: 400, Detail: "Shop has no chat channel configured"}
	}
	if err := s.pusher.PushText(ctx, channelToken, customer.LineUserID, text); err != nil {
		span.RecordError(err)
		return domain.ChatEvent{}, fmt.Errorf("push message: %w", err)
	}

	event := domain.ChatEvent{
		ID:         s.node.Generate().Int64(),
		ShopID:     shop.ShopID,
		CustomerID: customer.CustomerID,
		Role:       domain.ChatRoleAssistant,
		Content:    text,
		Timestamp:  time.Now().UTC(),
	}
	stored, err := s.events.Insert(ctx, event)
	if err != nil {
		span.RecordError(err)
		return domain.ChatEvent{}, fmt.Errorf("store event: %w", err)
	}

	if _, err := s.publisher.Publish(ctx, stored); err != nil {
		// The message is already delivered and stored; live streams just
		// miss this event.
		s.logger.Warn("publish outbound event failed",
			zap.String("shop_id", shop.ShopID),
			zap.String("customer_id", customer.CustomerID),
			zap.Error(err))
	}
	return stored, nil
}

func (s *InboxService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}
