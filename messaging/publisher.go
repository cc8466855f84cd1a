package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Progression event types. The routing key is "progression.<type>".
const (
	EventProblemRecorded     = "problem_recorded"
	EventSessionCompleted    = "session_completed"
	EventQuestCompleted      = "quest_completed"
	EventLayerAdvanced       = "layer_advanced"
	EventWhistleEarned       = "whistle_earned"
	EventAchievementUnlocked = "achievement_unlocked"
	EventRelicFound          = "relic_found"
)

// ProgressionEvent is fanned out to downstream consumers (notifications, feeds).
type ProgressionEvent struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	UserID     string         `json:"user_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// EventPublisher defines the interface for publishing progression events.
type EventPublisher interface {
	Publish(ctx context.Context, event ProgressionEvent) error
}

// NoopPublisher is used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, ProgressionEvent) error { return nil }

// rabbitMQPublisher publishes to a durable topic exchange.
type rabbitMQPublisher struct {
	mu       sync.Mutex
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

// NewRabbitMQPublisher opens a channel on conn and declares the exchange.
func NewRabbitMQPublisher(conn *amqp.Connection, exchange string, logger *zap.Logger) (EventPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("event publisher: failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // auto-delete
		false,    // internal
		false,    // no-wait
		nil,      // args
	); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("event publisher: failed to declare exchange '%s': %w", exchange, err)
	}
	logger.Info("Event publisher ready", zap.String("exchange", exchange))
	return &rabbitMQPublisher{channel: ch, exchange: exchange, logger: logger}, nil
}

func (p *rabbitMQPublisher) Publish(ctx context.Context, event ProgressionEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.Type, err)
	}

	// amqp channels are not safe for concurrent publishing
	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.PublishWithContext(ctx,
		p.exchange,             // exchange
		RoutingKey(event.Type), // routing key
		false,                  // mandatory
		false,                  // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID,
			Timestamp:    event.OccurredAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.Type, err)
	}
	p.logger.Debug("Event published", zap.String("type", event.Type), zap.String("user_id", event.UserID))
	return nil
}

// RoutingKey for an event type.
func RoutingKey(eventType string) string {
	return "progression." + eventType
}
