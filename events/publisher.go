/*
Package events publishes a message to RabbitMQ after every commit.

PURPOSE:
  Downstream consumers (reporting, notifications) learn that the room
  collection changed without polling. Messages are notifications, not the
  data: they carry the description and room count, never tenant details.

DELIVERY:
  Best effort, after commit. The commit hook only enqueues; a single worker
  goroutine publishes in commit order. A full queue drops the message with
  a warning, and publish failures are logged and swallowed. The local
  commit never depends on the broker.

SEE ALSO:
  - billing/book.go: Commit hooks
*/
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/warp/rent-ledger/billing"
	"github.com/warp/rent-ledger/metrics"
)

// CommitMessage is the published payload.
type CommitMessage struct {
	UserID      string `json:"user_id,omitempty"`
	Desc        string `json:"desc"`
	RoomCount   int    `json:"room_count"`
	Origin      string `json:"origin"`
	CommittedAt string `json:"committed_at"`
}

// NewCommitMessage builds the payload for a commit.
func NewCommitMessage(userID string, ev billing.CommitEvent) CommitMessage {
	return CommitMessage{
		UserID:      userID,
		Desc:        ev.Desc,
		RoomCount:   len(ev.Rooms),
		Origin:      string(ev.Origin),
		CommittedAt: ev.At.UTC().Format(time.RFC3339),
	}
}

// Channel is the subset of *amqp.Channel used for publishing.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Dial connects to the broker and declares the topic exchange.
func Dial(url, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to create channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	return conn, ch, nil
}

// =============================================================================
// PUBLISHER
// =============================================================================

// Publisher queues commit messages and publishes them in order.
type Publisher struct {
	channel    Channel
	exchange   string
	routingKey string
	userID     func() string
	logger     *zap.Logger
	timeout    time.Duration

	queue chan CommitMessage
	wg    sync.WaitGroup
	once  sync.Once
}

// NewPublisher creates a publisher. userID names the active session's user
// and may be nil.
func NewPublisher(ch Channel, exchange, routingKey string, userID func() string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if userID == nil {
		userID = func() string { return "" }
	}
	p := &Publisher{
		channel:    ch,
		exchange:   exchange,
		routingKey: routingKey,
		userID:     userID,
		logger:     logger,
		timeout:    5 * time.Second,
		queue:      make(chan CommitMessage, 256),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// AfterCommit is a billing.CommitHook.
func (p *Publisher) AfterCommit(ev billing.CommitEvent) {
	msg := NewCommitMessage(p.userID(), ev)
	select {
	case p.queue <- msg:
	default:
		p.logger.Warn("event queue full, dropping commit event", zap.String("desc", msg.Desc))
		metrics.EventPublished(fmt.Errorf("dropped"))
	}
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for msg := range p.queue {
		err := p.publish(msg)
		metrics.EventPublished(err)
		if err != nil {
			p.logger.Error("failed to publish commit event",
				zap.String("desc", msg.Desc),
				zap.Error(err),
			)
		}
	}
}

func (p *Publisher) publish(msg CommitMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		p.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("published commit event",
		zap.String("routing_key", p.routingKey),
		zap.String("desc", msg.Desc),
		zap.Int("room_count", msg.RoomCount),
	)
	return nil
}

// Close drains the queue and closes the channel. Commits after Close must
// not reach AfterCommit.
func (p *Publisher) Close() error {
	var err error
	p.once.Do(func() {
		close(p.queue)
		p.wg.Wait()
		err = p.channel.Close()
	})
	return err
}
