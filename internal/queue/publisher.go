package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/OFFIS-RIT/proteus/backend/pkg/analysis"
	"github.com/OFFIS-RIT/proteus/backend/pkg/logger"
	"github.com/OFFIS-RIT/proteus/backend/pkg/store"

	"github.com/rabbitmq/amqp091-go"
)

const (
	ResultExchange   = "analysis_exchange"
	resultKeyPrefix  = "analysis.stored."
	publishTimeout   = 5 * time.Second
	eventContentType = "application/json"
)

type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// ResultEvent is the message body published for every stored result.
type ResultEvent struct {
	Provenance analysis.Provenance      `json:"provenance"`
	StoredAt   time.Time                `json:"stored_at"`
	Result     *analysis.AnalysisResult `json:"result"`
}

// RoutingKey returns the topic a snapshot with provenance is published under.
func RoutingKey(provenance analysis.Provenance) string {
	return resultKeyPrefix + string(provenance)
}

func EncodeResultEvent(snapshot store.Snapshot) ([]byte, error) {
	return json.Marshal(ResultEvent{
		Provenance: snapshot.Provenance,
		StoredAt:   snapshot.StoredAt.UTC(),
		Result:     snapshot.Result,
	})
}

// ResultPublisher announces stored analysis results on a topic exchange.
type ResultPublisher struct {
	mu       sync.Mutex
	ch       channel
	exchange string
}

// NewResultPublisher opens a channel on conn and declares the exchange.
func NewResultPublisher(conn *amqp091.Connection) (*ResultPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	return newResultPublisher(ch, ResultExchange)
}

func newResultPublisher(ch channel, exchange string) (*ResultPublisher, error) {
	if err := SetupExchange(ch, exchange); err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return &ResultPublisher{ch: ch, exchange: exchange}, nil
}

// PublishStored publishes snapshot. Failures are logged and never returned,
// a stored result stays stored whether or not anyone hears about it.
func (p *ResultPublisher) PublishStored(ctx context.Context, snapshot store.Snapshot) {
	if err := p.publish(ctx, snapshot); err != nil {
		logger.Warn("Failed to publish result event", "provenance", snapshot.Provenance, "err", err)
	}
}

func (p *ResultPublisher) publish(ctx context.Context, snapshot store.Snapshot) error {
	body, err := EncodeResultEvent(snapshot)
	if err != nil {
		return err
	}

	// the request context may already be finishing; the event should still go out
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(
		ctx,
		p.exchange,
		RoutingKey(snapshot.Provenance),
		false,
		false,
		amqp091.Publishing{
			ContentType:  eventContentType,
			Body:         body,
			DeliveryMode: amqp091.Persistent,
			Timestamp:    snapshot.StoredAt,
		},
	)
}
