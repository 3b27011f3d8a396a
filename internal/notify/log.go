package notify

import (
	"context"
	"log/slog"

	"github.com/Abhinavchoudhary2005/AlertIQ/internal/logging"
)

// LogSender only logs messages. It is used when no broker is configured.
type LogSender struct {
	log *slog.Logger
}

func NewLogSender(log *slog.Logger) *LogSender {
	if log == nil {
		log = logging.Discard()
	}
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.log.Warn("sms delivery not configured, message logged only", "name", msg.Name, "phone", msg.Phone, "body", msg.Body)
	return nil
}
