// Package amqpsource consumes notification events from a RabbitMQ queue and
// hands them to the notification router.
package amqpsource

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/user/relaybot/internal/notify"
)

const (
	defaultQueue    = "relaybot.notifications"
	defaultPrefetch = 10
	routeTimeout    = 30 * time.Second
)

// Notifier routes a parsed notification event.
type Notifier interface {
	Route(ctx context.Context, e notify.Event) (notify.Report, error)
}

// Config selects the broker and queue.
type Config struct {
	URL        string
	Queue      string
	Exchange   string
	RoutingKey string
	Prefetch   int
}

// Consumer reads notification events from a durable queue with manual acks.
type Consumer struct {
	cfg      Config
	notifier Notifier

	conn *amqp.Connection
	ch   *amqp.Channel
	wg   sync.WaitGroup
	once sync.Once
}

// New creates a Consumer. Nothing is dialed until Start.
func New(cfg Config, notifier Notifier) *Consumer {
	if cfg.Queue == "" {
		cfg.Queue = defaultQueue
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = defaultPrefetch
	}
	return &Consumer{cfg: cfg, notifier: notifier}
}

// Start connects, declares the topology and begins consuming until ctx is
// done or the broker closes the channel.
func (c *Consumer) Start(ctx context.Context) error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	c.conn, c.ch = conn, ch

	deliveries, err := c.setup()
	if err != nil {
		c.Close()
		return err
	}

	c.wg.Add(1)
	go c.loop(ctx, deliveries)
	slog.Info("amqp consumer started", "queue", c.cfg.Queue, "exchange", c.cfg.Exchange, "routing_key", c.cfg.RoutingKey)
	return nil
}

func (c *Consumer) setup() (<-chan amqp.Delivery, error) {
	if err := c.ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	q, err := c.ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if c.cfg.Exchange != "" {
		if err := c.ch.ExchangeDeclare(c.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
			return nil, fmt.Errorf("declare exchange: %w", err)
		}
		if err := c.ch.QueueBind(q.Name, c.cfg.RoutingKey, c.cfg.Exchange, false, nil); err != nil {
			return nil, fmt.Errorf("bind queue: %w", err)
		}
	}
	deliveries, err := c.ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	return deliveries, nil
}

func (c *Consumer) loop(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				slog.Warn("amqp delivery channel closed", "queue", c.cfg.Queue)
				return
			}
			c.handle(ctx, d)
		}
	}
}

// handle acks a delivery once it has been routed. Bodies that do not parse
// are nacked without requeue; delivery failures to chats do not nack.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	event, err := notify.ParseEvent(d.Body)
	if err != nil {
		slog.Warn("reject amqp notification", "delivery_tag", d.DeliveryTag, "error", err)
		if err := d.Nack(false, false); err != nil {
			slog.Error("nack failed", "delivery_tag", d.DeliveryTag, "error", err)
		}
		return
	}

	rctx, cancel := context.WithTimeout(ctx, routeTimeout)
	defer cancel()
	if _, err := c.notifier.Route(rctx, event); err != nil {
		slog.Error("route amqp notification", "delivery_tag", d.DeliveryTag, "error", err)
		if err := d.Nack(false, false); err != nil {
			slog.Error("nack failed", "delivery_tag", d.DeliveryTag, "error", err)
		}
		return
	}
	if err := d.Ack(false); err != nil {
		slog.Error("ack failed", "delivery_tag", d.DeliveryTag, "error", err)
	}
}

// Close stops consuming and closes the connection.
func (c *Consumer) Close() error {
	var err error
	c.once.Do(func() {
		if c.ch != nil {
			_ = c.ch.Close()
		}
		c.wg.Wait()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}
