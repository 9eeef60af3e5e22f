package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"marketanalytics/webclient/internal/models"
)

// DefaultNotifyQueue receives action notifications unless configured
// otherwise.
const DefaultNotifyQueue = "analytics_notifications"

// QueueService publishes notifications to RabbitMQ.
type QueueService struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
}

// NewQueueService connects to RabbitMQ and declares the notification queue.
func NewQueueService(url, queue string) (*QueueService, error) {
	if queue == "" {
		queue = DefaultNotifyQueue
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	// Durable, idempotent.
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	return &QueueService{conn: conn, channel: ch, queue: queue}, nil
}

// PublishNotification sends n as a persistent JSON message.
func (q *QueueService) PublishNotification(ctx context.Context, n *models.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}

	return q.channel.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    n.At,
		Type:         n.Action,
	})
}

// Ping checks if RabbitMQ is reachable.
func (q *QueueService) Ping() error {
	if q.conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

// Close tears down the connection.
func (q *QueueService) Close() {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		q.conn.Close()
	}
}
