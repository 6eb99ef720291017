package clients

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"challengehub-realtime-svc/src/internal/config"
	"challengehub-realtime-svc/src/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// AMQPPublisher is the subset of *amqp.Channel used to publish.
type AMQPPublisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// ActivityClient publishes activity messages to the events exchange.
type ActivityClient struct {
	channel AMQPPublisher
	cfg     *config.RabbitMQConfig
}

func NewActivityClient(cfg *config.RabbitMQConfig, channel AMQPPublisher) *ActivityClient {
	return &ActivityClient{
		channel: channel,
		cfg:     cfg,
	}
}

// PublishActivity publishes msg under the activity routing key.
func (c *ActivityClient) PublishActivity(msg *models.ActivityMessage) error {
	if c == nil || c.channel == nil {
		return nil
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal activity message: %w", err)
	}

	err = c.channel.Publish(
		c.cfg.Exchange,
		c.cfg.ActivityKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
			Timestamp:   msg.Timestamp,
		},
	)
	if err != nil {
		logrus.WithError(err).Error("Failed to publish activity message")
		return errors.Join(models.ErrQueuePublish, err)
	}

	logrus.WithFields(logrus.Fields{
		"user_id":     msg.UserID,
		"service":     msg.ServiceName,
		"action":      msg.Action,
		"exchange":    c.cfg.Exchange,
		"routing_key": c.cfg.ActivityKey,
	}).Debug("Activity message published")

	return nil
}
