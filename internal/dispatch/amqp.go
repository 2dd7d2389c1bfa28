package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/yourorg/mailharvest/internal/rate"
)

const (
	jobExchange   = "mailharvest"
	jobQueue      = "mailharvest.fetch"
	jobRoutingKey = "message.fetch"
)

// AMQP publishes job descriptors to a broker and consumes them on the worker
// side. The broker provides the at-least-once guarantee; the submission rate
// ceiling is still imposed here, before publishing.
type AMQP struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	limiter rate.Limiter
	log     *slog.Logger
}

// DialAMQP connects to the broker and declares the job topology.
func DialAMQP(url string, limiter rate.Limiter, log *slog.Logger) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &AMQP{conn: conn, channel: ch, limiter: limiter, log: log}, nil
}

func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(jobExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(jobQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(jobQueue, jobRoutingKey, jobExchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

func (d *AMQP) Submit(ctx context.Context, job Job) error {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	err = d.channel.PublishWithContext(ctx, jobExchange, jobRoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID.String(),
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish job %s: %w", job.ID, err)
	}
	d.log.Debug("job published", "job", job.ID, "message", job.MessageID)
	return nil
}

// Consume delivers queued jobs to handler until ctx is canceled. Failed jobs
// are requeued once; a second failure discards the delivery.
func (d *AMQP) Consume(ctx context.Context, handler Handler) error {
	if err := d.channel.Qos(8, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := d.channel.Consume(jobQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume queue: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return nil
			}
			var job Job
			if err := json.Unmarshal(delivery.Body, &job); err != nil {
				d.log.Error("discarding malformed job", "error", err)
				_ = delivery.Nack(false, false)
				continue
			}
			if err := handler(ctx, job); err != nil {
				d.log.Warn("fetch job failed",
					"job", job.ID, "message", job.MessageID,
					"redelivered", delivery.Redelivered, "error", err)
				_ = delivery.Nack(false, !delivery.Redelivered)
				continue
			}
			_ = delivery.Ack(false)
		}
	}
}

func (d *AMQP) Close() error {
	if err := d.channel.Close(); err != nil {
		d.conn.Close()
		return fmt.Errorf("close channel: %w", err)
	}
	if err := d.conn.Close(); err != nil {
		return fmt.Errorf("close connection: %w", err)
	}
	return nil
}

var _ Dispatcher = (*AMQP)(nil)
