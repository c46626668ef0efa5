package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/quickshop/product-service/internal/observability"
)

const componentBroker = "rabbitmq"

type Config struct {
	URL          string
	Exchange     string
	Queue        string
	RoutingKey   string
	DialAttempts int
}

// Client owns the AMQP connection and the topology declaration. Ready()
// closes once the exchange and queue exist, giving callers an explicit
// readiness signal instead of a startup sleep.
type Client struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	cfg   Config
	ready chan struct{}
	log   observability.Logger
}

func NewClient(cfg Config, logger observability.Logger) *Client {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if cfg.DialAttempts <= 0 {
		cfg.DialAttempts = 5
	}
	return &Client{
		cfg:   cfg,
		ready: make(chan struct{}),
		log:   logger.With(observability.F("component", componentBroker)),
	}
}

// Connect dials the broker with bounded backoff and declares the fulfillment
// topology. It must complete before Publish or Start are used.
func (c *Client) Connect(ctx context.Context) error {
	if c.cfg.Exchange == "" || c.cfg.Queue == "" {
		return fmt.Errorf("rabbitmq: exchange and queue names are required")
	}

	var conn *amqp.Connection
	var err error
	for attempt := 0; attempt < c.cfg.DialAttempts; attempt++ {
		conn, err = amqp.Dial(c.cfg.URL)
		if err == nil {
			break
		}
		wait := time.Duration(attempt*attempt)*time.Second + time.Second
		c.log.Warn("broker_dial_failed",
			observability.F("attempt", attempt+1),
			observability.F("retry_in", wait.String()),
			observability.F("error", err.Error()),
		)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return fmt.Errorf("rabbitmq: dial after %d attempts: %w", c.cfg.DialAttempts, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq: open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		c.cfg.Exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("rabbitmq: declare exchange %s: %w", c.cfg.Exchange, err)
	}

	q, err := ch.QueueDeclare(
		c.cfg.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("rabbitmq: declare queue %s: %w", c.cfg.Queue, err)
	}

	if err := ch.QueueBind(q.Name, c.cfg.RoutingKey, c.cfg.Exchange, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("rabbitmq: bind queue %s: %w", c.cfg.Queue, err)
	}

	c.conn = conn
	c.ch = ch
	close(c.ready)
	c.log.Info("broker_ready",
		observability.F("exchange", c.cfg.Exchange),
		observability.F("queue", c.cfg.Queue),
	)
	return nil
}

// Ready closes once the broker topology is declared.
func (c *Client) Ready() <-chan struct{} { return c.ready }

// Channel opens a dedicated channel on the shared connection.
func (c *Client) Channel() (*amqp.Channel, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("rabbitmq: not connected")
	}
	return c.conn.Channel()
}

func (c *Client) Close() error {
	if c.ch != nil {
		if err := c.ch.Close(); err != nil {
			return err
		}
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
