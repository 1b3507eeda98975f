// Package queue implements the durable job queue on RabbitMQ. Queues are
// declared durable with a single active consumer, so jobs for the same queue
// name never run concurrently even with multiple worker processes attached.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/nemesis-gg/portal-relayer/config"
)

type Handler func(ctx context.Context, payload []byte) error

type Client struct {
	conn    *amqp.Connection
	channel *amqp.Channel

	mu       sync.Mutex
	declared map[string]bool
}

func NewClient(cfg *config.RabbitMQConfig) (*Client, error) {
	connectionString := fmt.Sprintf("amqp://%s:%s@%s:%s/",
		cfg.User, cfg.Password, cfg.Host, strconv.Itoa(cfg.Port))

	conn, err := amqp.Dial(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	return &Client{
		conn:     conn,
		channel:  ch,
		declared: make(map[string]bool),
	}, nil
}

func (c *Client) declareQueue(jobName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.declared[jobName] {
		return nil
	}

	args := amqp.Table{
		// One consumer at a time per queue: two workers never process the
		// same queue concurrently.
		"x-single-active-consumer": true,
	}
	_, err := c.channel.QueueDeclare(
		jobName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		args,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", jobName, err)
	}
	c.declared[jobName] = true
	return nil
}

// Enqueue publishes a job. Payloads are JSON and persisted by the broker.
func (c *Client) Enqueue(ctx context.Context, jobName string, payload interface{}) error {
	if err := c.declareQueue(jobName); err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal job payload: %w", err)
	}

	err = c.channel.PublishWithContext(ctx, "", jobName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish job %s: %w", jobName, err)
	}
	return nil
}

// OnJob registers a handler for a job name and starts consuming. Handler
// failures are logged and the message acked anyway: every job here is
// re-enqueued by the scheduler on its next tick, and all handlers are
// idempotent, so redelivery adds nothing but noise.
func (c *Client) OnJob(ctx context.Context, jobName string, handler Handler) error {
	if err := c.declareQueue(jobName); err != nil {
		return err
	}

	deliveries, err := c.channel.Consume(
		jobName,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer for %s: %w", jobName, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					return
				}
				if err := handler(ctx, delivery.Body); err != nil {
					log.Error().Err(err).Str("job", jobName).Msg("[Queue] [OnJob] job failed")
				}
				if err := delivery.Ack(false); err != nil {
					log.Error().Err(err).Str("job", jobName).Msg("[Queue] [OnJob] failed to ack")
				}
			}
		}
	}()
	return nil
}

func (c *Client) Close() error {
	if err := c.channel.Close(); err != nil {
		return err
	}
	return c.conn.Close()
}
