package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dhanbg/traditionalalley-sub002/internal/domain"
	pkgkafka "github.com/dhanbg/traditionalalley-sub002/pkg/kafka"
)

// Kafka topic constants for cart sync domain events.
const (
	TopicCartUpdated    = "storefront.cart.updated"
	TopicItemLinked     = "storefront.cart.item.linked"
	TopicCartReconciled = "storefront.cart.reconciled"
)

// Aggregate type constant.
const AggregateTypeCart = "cart"

// Source identifier for events originating from this service.
const SourceCartSync = "cartsync-service"

// CartUpdatedData is the payload for a cart.updated event.
type CartUpdatedData struct {
	UserID        string         `json:"user_id"`
	Items         []CartItemData `json:"items"`
	ItemCount     int            `json:"item_count"`
	CartTotal     int64          `json:"cart_total"`
	SelectedTotal int64          `json:"selected_total"`
}

// CartItemData is the item payload within cart events.
type CartItemData struct {
	LocalID   string `json:"local_id"`
	ProductID int64  `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Size      string `json:"size,omitempty"`
	Title     string `json:"title"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	State     string `json:"state"`
	Selected  bool   `json:"selected"`
}

// ItemLinkedData is the payload for a cart.item.linked event.
type ItemLinkedData struct {
	UserID               string `json:"user_id"`
	LocalID              string `json:"local_id"`
	RemoteLineID         int64  `json:"remote_line_id"`
	RemoteLineDocumentID string `json:"remote_line_document_id"`
	ProductID            int64  `json:"product_id"`
	Quantity             int    `json:"quantity"`
}

// CartReconciledData is the payload for a cart.reconciled event.
type CartReconciledData struct {
	UserID    string `json:"user_id"`
	ItemCount int    `json:"item_count"`
}

// Producer publishes cart sync domain events to Kafka. Publishing is best
// effort: failures are logged and swallowed, never surfaced to the caller.
// The cart must keep working when the broker is down.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates an event producer. A nil kafka producer disables
// publishing entirely.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID string, data any) {
	if p == nil || p.kafka == nil {
		return
	}

	event, err := pkgkafka.NewEvent(topic, aggregateID, AggregateTypeCart, SourceCartSync, data)
	if err != nil {
		p.logger.ErrorContext(ctx, "create event failed",
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		p.logger.ErrorContext(ctx, "publish event failed",
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
	}
}

// CartUpdated publishes the current cart view after a local mutation.
func (p *Producer) CartUpdated(ctx context.Context, data CartUpdatedData) {
	p.publish(ctx, TopicCartUpdated, data.UserID, data)
}

// ItemLinked publishes a cart.item.linked event after a successful remote
// create or update wrote identifiers back onto a local item.
func (p *Producer) ItemLinked(ctx context.Context, userID string, item domain.LineItem) {
	p.publish(ctx, TopicItemLinked, userID, ItemLinkedData{
		UserID:               userID,
		LocalID:              item.LocalID,
		RemoteLineID:         item.RemoteLineID,
		RemoteLineDocumentID: item.RemoteLineDocumentID,
		ProductID:            item.ProductID,
		Quantity:             item.Quantity,
	})
}

// Reconciled publishes a cart.reconciled event.
func (p *Producer) Reconciled(ctx context.Context, userID string, itemCount int) {
	p.publish(ctx, TopicCartReconciled, userID, CartReconciledData{
		UserID:    userID,
		ItemCount: itemCount,
	})
}

// Ping checks broker reachability for the readiness probe.
func (p *Producer) Ping(ctx context.Context) error {
	if p == nil || p.kafka == nil {
		return nil
	}
	if err := p.kafka.Ping(ctx); err != nil {
		return fmt.Errorf("kafka ping: %w", err)
	}
	return nil
}

// Close shuts down the underlying writer.
func (p *Producer) Close() error {
	if p == nil || p.kafka == nil {
		return nil
	}
	return p.kafka.Close()
}
