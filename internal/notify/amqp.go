package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Abhinavchoudhary2005/AlertIQ/internal/logging"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	sosExchangeName = "sos_topic"
	smsRoutingKey   = "sos.sms"
)

// Channel is the subset of *amqp.Channel the sender needs.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// SMSJob is the message an SMS gateway consumes from the sos exchange.
type SMSJob struct {
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// AMQPSender hands each message to a gateway through a durable topic exchange.
type AMQPSender struct {
	ch  Channel
	log *slog.Logger
	now func() time.Time
}

func NewAMQPSender(ch Channel, log *slog.Logger) (*AMQPSender, error) {
	if log == nil {
		log = logging.Discard()
	}
	if err := ch.ExchangeDeclare(sosExchangeName, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPSender{ch: ch, log: log, now: time.Now}, nil
}

func (s *AMQPSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(SMSJob{Name: msg.Name, Phone: msg.Phone, Body: msg.Body, CreatedAt: s.now()})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	err = s.ch.PublishWithContext(ctx, sosExchangeName, smsRoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		s.log.Error("failed to publish sms job", "phone", msg.Phone, "error", err)
		return fmt.Errorf("publish: %w", err)
	}
	s.log.Info("sms job published", "phone", msg.Phone)
	return nil
}
