// Package notify delivers SOS messages to emergency contacts.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"
)

type Status string

const (
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

var ErrNoRecipient = errors.New("recipient phone is empty")

type Message struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Body  string `json:"body"`
}

type Result struct {
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SendAll delivers every message concurrently, each bounded by timeout.
// One result per message is returned in input order; failures never abort
// the other sends.
func SendAll(ctx context.Context, sender Sender, msgs []Message, timeout time.Duration) []Result {
	results := make([]Result, len(msgs))
	var wg sync.WaitGroup
	for i, msg := range msgs {
		wg.Add(1)
		go func(i int, msg Message) {
			defer wg.Done()
			results[i] = sendOne(ctx, sender, msg, timeout)
		}(i, msg)
	}
	wg.Wait()
	return results
}

func sendOne(ctx context.Context, sender Sender, msg Message, timeout time.Duration) Result {
	res := Result{Name: msg.Name, Phone: msg.Phone, Status: StatusSent}
	if msg.Phone == "" {
		res.Status = StatusFailed
		res.Error = ErrNoRecipient.Error()
		return res
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() { done <- sender.Send(ctx, msg) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
	}
	return res
}
