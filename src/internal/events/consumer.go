package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"challengehub-realtime-svc/src/internal/models"
	"challengehub-realtime-svc/src/internal/notification"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// Message is a business event addressed to one user. When Kind is empty the
// delivery's routing key is used.
type Message struct {
	UserID   string                 `json:"userId"`
	Kind     string                 `json:"kind"`
	Message  string                 `json:"message"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type outcome int

const (
	outcomeAck outcome = iota
	outcomeDrop
	outcomeRetry
)

// Consumer turns queued business events into notifications.
type Consumer struct {
	notifier notification.Notifier
	timeout  time.Duration
}

func NewConsumer(notifier notification.Notifier, timeout time.Duration) *Consumer {
	return &Consumer{
		notifier: notifier,
		timeout:  timeout,
	}
}

// Run handles deliveries until ctx is cancelled or the channel closes.
func (c *Consumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	logrus.Info("Event consumer started")
	defer logrus.Info("Event consumer stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				logrus.Warn("Event delivery channel closed")
				return
			}
			c.settle(d, c.handle(ctx, d))
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) outcome {
	var msg Message
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		logrus.WithError(err).WithField("routing_key", d.RoutingKey).Warn("Malformed event dropped")
		return outcomeDrop
	}
	if msg.Kind == "" {
		msg.Kind = d.RoutingKey
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.notifier.Notify(ctx, msg.UserID, msg.Kind, notification.Payload{
		Message:  msg.Message,
		Metadata: msg.Metadata,
	})
	switch {
	case err == nil:
		return outcomeAck
	case errors.Is(err, models.ErrInvalidParams):
		logrus.WithError(err).WithField("routing_key", d.RoutingKey).Warn("Invalid event dropped")
		return outcomeDrop
	default:
		logrus.WithError(err).WithFields(logrus.Fields{
			"user_id": msg.UserID,
			"kind":    msg.Kind,
		}).Error("Failed to dispatch notification, requeueing")
		return outcomeRetry
	}
}

func (c *Consumer) settle(d amqp.Delivery, o outcome) {
	var err error
	switch o {
	case outcomeAck:
		err = d.Ack(false)
	case outcomeDrop:
		err = d.Nack(false, false)
	case outcomeRetry:
		err = d.Nack(false, true)
	}
	if err != nil {
		logrus.WithError(err).WithField("delivery_tag", d.DeliveryTag).Error("Failed to settle delivery")
	}
}
