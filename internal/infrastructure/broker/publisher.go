// Package broker publishes recorded observations to an AMQP exchange.
package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/streadway/amqp"

	"netscope/internal/domain"
	"netscope/internal/infra"
)

// RoutingKey is the topic recorded observations are published under.
const RoutingKey = "observation.recorded"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Channel is the subset of *amqp.Channel used by the publisher.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// ObservationRecorded is the event body published for every stored observation.
type ObservationRecorded struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	IP        string    `json:"ip"`
	ISPName   *string   `json:"isp_name,omitempty"`
	Download  string    `json:"dl"`
	Upload    string    `json:"ul"`
	Ping      string    `json:"ping"`
	Jitter    string    `json:"jitter"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
}

// Publisher sends ObservationRecorded events to a topic exchange.
type Publisher struct {
	exchange string
	logger   *infra.Logger

	mu      sync.Mutex
	channel Channel
	conn    io.Closer
}

// Dial connects to the broker at url and declares exchange.
func Dial(ctx context.Context, url, exchange string, logger *infra.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("publisher: dial: %w", err)
	}
	logger.Println(ctx, "publisher: connection established")

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("publisher: open channel: %w", err)
	}

	p, err := NewPublisher(ch, exchange, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

// NewPublisher declares a durable topic exchange on ch.
func NewPublisher(ch Channel, exchange string, logger *infra.Logger) (*Publisher, error) {
	if ch == nil {
		return nil, errors.New("publisher: channel is required")
	}
	if exchange == "" {
		return nil, errors.New("publisher: exchange is required")
	}

	err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("publisher: declare exchange %q: %w", exchange, err)
	}

	return &Publisher{exchange: exchange, logger: logger, channel: ch}, nil
}

// Publish sends an ObservationRecorded event for observation.
func (p *Publisher) Publish(ctx context.Context, observation domain.Observation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(newEvent(observation))
	if err != nil {
		return fmt.Errorf("publisher: encode event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel == nil {
		return errors.New("publisher: closed")
	}

	err = p.channel.Publish(p.exchange, RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    observation.Timestamp,
		MessageId:    fmt.Sprintf("%d", observation.ID),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publisher: publish observation %d: %w", observation.ID, err)
	}
	return nil
}

// Close shuts down the channel and, when dialled, the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil {
		return nil
	}
	err := p.channel.Close()
	p.channel = nil
	if p.conn != nil {
		err = errors.Join(err, p.conn.Close())
	}
	p.logger.Println(context.Background(), "publisher: shutdown OK")
	return err
}

func newEvent(o domain.Observation) ObservationRecorded {
	event := ObservationRecorded{
		ID:        o.ID,
		Timestamp: o.Timestamp.UTC(),
		IP:        o.IP,
		ISPName:   o.ISPName,
		Download:  o.Measurements.Download,
		Upload:    o.Measurements.Upload,
		Ping:      o.Measurements.Ping,
		Jitter:    o.Measurements.Jitter,
	}
	if o.Geo != nil {
		lat, lng := o.Geo.Latitude, o.Geo.Longitude
		event.Latitude, event.Longitude = &lat, &lng
	}
	return event
}

var _ domain.ObservationPublisher = (*Publisher)(nil)
