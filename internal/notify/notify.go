package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/databot/youtube-tracker/internal/config"
	"github.com/databot/youtube-tracker/internal/metrics"
	"github.com/databot/youtube-tracker/pkg/logger"
)

// Event types carried on the notification bus. The Discord command surface
// consumes these to message users.
const (
	EventVerificationResult = "verification.result"
	EventReportReady        = "report.ready"
	EventVideoDiscovered    = "video.discovered"
)

// Envelope wraps every published event.
type Envelope struct {
	ID         uuid.UUID       `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// VerificationResult reports the outcome of a channel ownership check.
type VerificationResult struct {
	DiscordUserID string `json:"discord_user_id"`
	ChannelID     string `json:"channel_id"`
	ChannelName   string `json:"channel_name,omitempty"`
	Verified      bool   `json:"verified"`
	State         string `json:"state"`
}

// ReportReady announces a freshly closed monthly report.
type ReportReady struct {
	DiscordUserID string `json:"discord_user_id"`
	Year          int    `json:"year"`
	Month         int    `json:"month"`
	Videos        int    `json:"videos"`
	TotalViews    int64  `json:"total_views"`
	TotalChange   int64  `json:"total_change"`
}

// VideoDiscovered announces a newly tracked upload found during discovery.
type VideoDiscovered struct {
	DiscordUserID string `json:"discord_user_id"`
	ChannelID     string `json:"channel_id"`
	VideoID       string `json:"video_id"`
	Title         string `json:"title,omitempty"`
}

// Publisher delivers domain events to the command-surface collaborator.
type Publisher interface {
	PublishVerificationResult(ctx context.Context, result VerificationResult) error
	PublishReportReady(ctx context.Context, report ReportReady) error
	PublishVideoDiscovered(ctx context.Context, video VideoDiscovered) error
	IsHealthy() bool
	Close() error
}

// AMQPPublisher is a RabbitMQ-backed Publisher with publisher confirms.
type AMQPPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  *config.RabbitMQConfig
	log     *zap.Logger
	mu      sync.RWMutex
}

// NewAMQPPublisher connects to RabbitMQ and declares the event topology.
func NewAMQPPublisher(cfg *config.RabbitMQConfig) (*AMQPPublisher, error) {
	p := &AMQPPublisher{
		config: cfg,
		log:    logger.Named("notify"),
	}

	if err := p.connect(); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *AMQPPublisher) connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	connURL := fmt.Sprintf("amqp://%s:%s@%s:%d/",
		p.config.User, p.config.Password, p.config.Host, p.config.Port)

	conn, err := amqp.Dial(connURL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	if err := ch.ExchangeDeclare(
		p.config.Exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	_, err = ch.QueueDeclare(
		p.config.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-message-ttl": 86400000, // 24 hours
		},
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	// One queue receives every event type under the routing key prefix.
	if err := ch.QueueBind(
		p.config.Queue,
		p.config.RoutingKey+".#",
		p.config.Exchange,
		false,
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	p.conn = conn
	p.channel = ch

	p.log.Info("Connected to RabbitMQ",
		zap.String("exchange", p.config.Exchange),
		zap.String("queue", p.config.Queue),
	)

	return nil
}

func (p *AMQPPublisher) PublishVerificationResult(ctx context.Context, result VerificationResult) error {
	return p.publish(ctx, EventVerificationResult, result)
}

func (p *AMQPPublisher) PublishReportReady(ctx context.Context, report ReportReady) error {
	return p.publish(ctx, EventReportReady, report)
}

func (p *AMQPPublisher) PublishVideoDiscovered(ctx context.Context, video VideoDiscovered) error {
	return p.publish(ctx, EventVideoDiscovered, video)
}

func (p *AMQPPublisher) publish(ctx context.Context, eventType string, payload any) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.channel == nil {
		return fmt.Errorf("channel is not initialized")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	env := Envelope{
		ID:         uuid.New(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    raw,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	confirms := p.channel.NotifyPublish(make(chan amqp.Confirmation, 1))

	err = p.channel.PublishWithContext(
		ctx,
		p.config.Exchange,
		p.config.RoutingKey+"."+eventType,
		true,  // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Type:         eventType,
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			MessageId:    env.ID.String(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", eventType, err)
	}

	select {
	case confirm := <-confirms:
		if !confirm.Ack {
			return fmt.Errorf("message was not acknowledged by broker")
		}
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for publish confirmation")
	case <-ctx.Done():
		return ctx.Err()
	}

	metrics.EventsPublished.WithLabelValues(eventType).Inc()
	p.log.Debug("Published event",
		zap.String("eventId", env.ID.String()),
		zap.String("type", eventType),
	)

	return nil
}

// IsHealthy reports whether the broker connection is usable.
func (p *AMQPPublisher) IsHealthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.conn != nil && !p.conn.IsClosed() && p.channel != nil
}

// Close shuts down the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing publisher: %v", errs)
	}

	p.log.Info("RabbitMQ publisher closed")
	return nil
}
