// Package events publishes order lifecycle events for downstream consumers
// (notifications, fulfillment). Publishing happens after the database commit
// and a failure never undoes the order.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/Charlsz/localmarket/internal/models"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	TypeOrderPlaced        = "order.placed"
	TypeOrderStatusChanged = "order.status_changed"
)

type OrderEvent struct {
	EventID        string               `json:"event_id"`
	Type           string               `json:"type"`
	OrderID        uuid.UUID            `json:"order_id"`
	OrderNumber    string               `json:"order_number"`
	UserID         uuid.UUID            `json:"user_id"`
	Status         models.OrderStatus   `json:"status"`
	PreviousStatus models.OrderStatus   `json:"previous_status,omitempty"`
	PaymentStatus  models.PaymentStatus `json:"payment_status"`
	Total          decimal.Decimal      `json:"total"`
	ProviderIDs    []uuid.UUID          `json:"provider_ids"`
	ActorID        *uuid.UUID           `json:"actor_id,omitempty"`
	Timestamp      time.Time            `json:"timestamp"`
}

type Publisher interface {
	PublishOrderPlaced(ctx context.Context, order *models.Order) error
	PublishOrderStatusChanged(ctx context.Context, order *models.Order, previous models.OrderStatus, actor uuid.UUID) error
	Close() error
}

func NewOrderPlaced(order *models.Order) OrderEvent {
	return newOrderEvent(TypeOrderPlaced, order)
}

func NewOrderStatusChanged(order *models.Order, previous models.OrderStatus, actor uuid.UUID) OrderEvent {
	event := newOrderEvent(TypeOrderStatusChanged, order)
	event.PreviousStatus = previous
	event.ActorID = &actor
	return event
}

func newOrderEvent(eventType string, order *models.Order) OrderEvent {
	return OrderEvent{
		EventID:       uuid.New().String(),
		Type:          eventType,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		Total:         order.Total,
		ProviderIDs:   providerIDs(order.Items),
		Timestamp:     time.Now().UTC(),
	}
}

// providerIDs lists the distinct providers of the items in a stable order.
func providerIDs(items []models.OrderItem) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	ids := []uuid.UUID{}
	for _, item := range items {
		if _, ok := seen[item.ProviderID]; ok {
			continue
		}
		seen[item.ProviderID] = struct{}{}
		ids = append(ids, item.ProviderID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// Message keys events by order id so every event of one order lands on the
// same partition and keeps its order.
func (e OrderEvent) Message() (kafka.Message, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal %s event: %w", e.Type, err)
	}

	return kafka.Message{
		Key:   []byte(e.OrderID.String()),
		Value: value,
		Time:  e.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}, nil
}

// publishTimeout bounds the metadata lookup WriteMessages does before handing
// the message to the background batcher.
const publishTimeout = 2 * time.Second

type KafkaPublisher struct {
	writer  *kafka.Writer
	timeout time.Duration
	logger  *zap.Logger
}

// NewKafkaPublisher returns an async publisher: messages are batched in the
// background and delivery failures are logged, so a publish holds the caller
// for at most publishTimeout.
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	p := &KafkaPublisher{
		timeout: publishTimeout,
		logger:  logger,
	}

	p.writer = &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
		Async:                  true,
		Completion:             p.delivered,
	}

	return p
}

func (p *KafkaPublisher) delivered(messages []kafka.Message, err error) {
	for _, msg := range messages {
		fields := []zap.Field{
			zap.String("order_id", string(msg.Key)),
			zap.String("type", eventType(msg)),
		}
		if err != nil {
			p.logger.Error("Failed to deliver order event", append(fields, zap.Error(err))...)
			continue
		}
		p.logger.Debug("Order event delivered", fields...)
	}
}

func eventType(msg kafka.Message) string {
	for _, h := range msg.Headers {
		if h.Key == "event_type" {
			return string(h.Value)
		}
	}
	return ""
}

func (p *KafkaPublisher) PublishOrderPlaced(ctx context.Context, order *models.Order) error {
	return p.publish(ctx, NewOrderPlaced(order))
}

func (p *KafkaPublisher) PublishOrderStatusChanged(ctx context.Context, order *models.Order, previous models.OrderStatus, actor uuid.UUID) error {
	return p.publish(ctx, NewOrderStatusChanged(order, previous, actor))
}

func (p *KafkaPublisher) publish(ctx context.Context, event OrderEvent) error {
	msg, err := event.Message()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s event: %w", event.Type, err)
	}

	p.logger.Info("Order event queued",
		zap.String("event_id", event.EventID),
		zap.String("type", event.Type),
		zap.String("order_id", event.OrderID.String()))

	return nil
}

func (p *KafkaPublisher) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

// NopPublisher drops events; used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishOrderPlaced(context.Context, *models.Order) error { return nil }

func (NopPublisher) PublishOrderStatusChanged(context.Context, *models.Order, models.OrderStatus, uuid.UUID) error {
	return nil
}

func (NopPublisher) Close() error { return nil }
