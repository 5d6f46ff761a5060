// Package queue_publisher publishes domain events to RabbitMQ.
// Errors are logged and returned so callers can ignore failures without
// interrupting the main request flow.
package queue_publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	q "github.com/iliyamo/convocation-seating/internal/queue"
)

// Publisher sends events to durable queues on the default exchange.  A
// connection is dialled per publish.
type Publisher struct {
	url    string
	logger *slog.Logger
}

// New returns a Publisher for the broker at url.
func New(url string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{url: url, logger: logger}
}

// PublishSeatsAllocated publishes to the seats.allocated queue.
func (p *Publisher) PublishSeatsAllocated(ctx context.Context, event q.SeatsAllocatedEvent) error {
	return p.publish(ctx, q.SeatsAllocatedQueue, event)
}

// PublishAttendanceConfirmed publishes to the attendance.confirmed queue.
func (p *Publisher) PublishAttendanceConfirmed(ctx context.Context, event q.AttendanceConfirmedEvent) error {
	return p.publish(ctx, q.AttendanceConfirmedQueue, event)
}

// publish marks messages persistent and never panics; any error is
// logged and returned.
func (p *Publisher) publish(ctx context.Context, queue string, event any) error {
	log := p.logger.With(slog.String("queue", queue))

	conn, err := amqp.Dial(p.url)
	if err != nil {
		log.WarnContext(ctx, "rabbitmq: dial failed", slog.String("error", err.Error()))
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.WarnContext(ctx, "rabbitmq: channel open failed", slog.String("error", err.Error()))
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	); err != nil {
		log.WarnContext(ctx, "rabbitmq: queue declare failed", slog.String("error", err.Error()))
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		log.WarnContext(ctx, "rabbitmq: marshal event failed", slog.String("error", err.Error()))
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	if err := ch.PublishWithContext(ctx,
		"",    // default exchange
		queue, // routing key = queue name
		false, // mandatory
		false, // immediate
		pub,
	); err != nil {
		log.WarnContext(ctx, "rabbitmq: publish failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}
