package db

import (
	"fmt"

	"github.com/Abhinavchoudhary2005/AlertIQ/internal/config"

	amqp "github.com/rabbitmq/amqp091-go"
)

var dialAMQPFn = amqp.Dial

// Broker is an open RabbitMQ connection with one channel for publishing.
type Broker struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
}

// Chan returns the publishing channel, or nil for a nil broker.
func (b *Broker) Chan() *amqp.Channel {
	if b == nil {
		return nil
	}
	return b.Channel
}

func (b *Broker) Close() {
	if b == nil {
		return
	}
	if b.Channel != nil {
		_ = b.Channel.Close()
	}
	if b.Conn != nil {
		_ = b.Conn.Close()
	}
}

// ConnectAMQP returns nil when no URL is configured.
func ConnectAMQP(cfg config.Config) (*Broker, error) {
	if cfg.AMQPURL == "" {
		return nil, nil
	}

	conn, err := dialAMQPFn(cfg.AMQPURL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	return &Broker{Conn: conn, Channel: ch}, nil
}
