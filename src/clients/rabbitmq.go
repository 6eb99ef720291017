package clients

import (
	"fmt"

	"challengehub-realtime-svc/src/internal/config"
	"challengehub-realtime-svc/src/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

type RabbitMQ struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
	cfg     *config.RabbitMQConfig
}

func NewRabbitMQ(cfg *config.RabbitMQConfig) (*RabbitMQ, error) {
	log.Info("Connecting to RabbitMQ...")
	conn, err := amqp.Dial(cfg.Url)
	if err != nil {
		log.WithError(err).Errorf("Failed to connect to RabbitMQ: %v", err)
		return nil, err
	}

	channel, err := conn.Channel()
	if err != nil {
		log.WithError(err).Errorf("Failed to open a channel: %v", err)
		_ = conn.Close()
		return nil, err
	}

	log.WithField("exchange", cfg.Exchange).Info("Connected to RabbitMQ")

	return &RabbitMQ{
		Conn:    conn,
		Channel: channel,
		cfg:     cfg,
	}, nil
}

func (r *RabbitMQ) Close() error {
	var firstErr error

	if r.Channel != nil {
		if err := r.Channel.Close(); err != nil {
			log.WithError(err).Error("Failed to close RabbitMQ channel")
			firstErr = err
		} else {
			log.Info("RabbitMQ channel closed")
		}
	}

	if r.Conn != nil {
		if err := r.Conn.Close(); err != nil {
			log.WithError(err).Error("Failed to close RabbitMQ connection")
			if firstErr == nil {
				firstErr = err
			}
		} else {
			log.Info("RabbitMQ connection closed")
		}
	}

	return firstErr
}

// SetupQueue declares the exchange and the events queue, and binds the queue
// to every configured business-event routing key.
func (r *RabbitMQ) SetupQueue() error {
	err := r.Channel.ExchangeDeclare(
		r.cfg.Exchange,
		r.cfg.ExchangeType,
		r.cfg.Durable,
		r.cfg.AutoDelete,
		r.cfg.Internal,
		r.cfg.NoWait,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %v", err)
	}

	queue, err := r.Channel.QueueDeclare(
		r.cfg.EventsQueue,
		r.cfg.Durable,
		r.cfg.AutoDelete,
		r.cfg.Exclusive,
		r.cfg.NoWait,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %v", err)
	}

	for _, key := range r.cfg.EventRoutingKeys {
		if err := r.Channel.QueueBind(queue.Name, key, r.cfg.Exchange, r.cfg.NoWait, nil); err != nil {
			return fmt.Errorf("failed to bind queue to %s: %v", key, err)
		}
	}

	if r.cfg.PrefetchCount > 0 {
		if err := r.Channel.Qos(r.cfg.PrefetchCount, 0, false); err != nil {
			return fmt.Errorf("failed to set qos: %v", err)
		}
	}

	log.WithFields(logrus.Fields{
		"queue":        queue.Name,
		"routing_keys": r.cfg.EventRoutingKeys,
	}).Info("RabbitMQ queue ready")

	return nil
}

// Consume starts delivering messages from the events queue.
func (r *RabbitMQ) Consume() (<-chan amqp.Delivery, error) {
	deliveries, err := r.Channel.Consume(
		r.cfg.EventsQueue,
		r.cfg.Consumer,
		false, // auto-ack
		r.cfg.Exclusive,
		false, // no-local
		r.cfg.NoWait,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrQueueConsume, err)
	}
	return deliveries, nil
}
