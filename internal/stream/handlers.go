package stream

import (
	"bufio"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/valyala/fasthttp"
)

const heartbeatInterval = 15 * time.Second

// Subscriber attaches viewers to a session. Subscribe fails when the session
// does not exist; Unsubscribe must be safe to call more than once.
type Subscriber interface {
	Subscribe(sessionID string) (*Client, error)
	Unsubscribe(client *Client)
}

func RegisterRoutes(r fiber.Router, subs Subscriber) {
	r.Get("/stream/:sessionID", sseHandler(subs, heartbeatInterval))

	r.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	r.Get("/ws/:sessionID", websocket.New(func(c *websocket.Conn) {
		client, err := subs.Subscribe(c.Params("sessionID"))
		if err != nil {
			_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
			return
		}
		defer subs.Unsubscribe(client)

		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = pump(client, 0, func(ev Event) error {
				return c.WriteMessage(websocket.TextMessage, ev.Payload())
			}, nil)
			_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
			// Closing the hijacked conn does not wake ReadMessage; an expired
			// deadline does, even when the peer never answers the close frame.
			_ = c.SetReadDeadline(time.Now())
			_ = c.Close()
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		subs.Unsubscribe(client)
		<-done
	}))
}

func sseHandler(subs Subscriber, heartbeat time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		client, err := subs.Subscribe(c.Params("sessionID"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}

		c.Set(fiber.HeaderContentType, "text/event-stream")
		c.Set(fiber.HeaderCacheControl, "no-cache")
		c.Set(fiber.HeaderConnection, "keep-alive")
		c.Set("X-Accel-Buffering", "no")

		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			defer subs.Unsubscribe(client)
			_ = pump(client, heartbeat, func(ev Event) error {
				return writeSSE(w, ev)
			}, func() error {
				if _, err := w.WriteString(": ping\n\n"); err != nil {
					return err
				}
				return w.Flush()
			})
		}))
		return nil
	}
}

// pump forwards a client's events to write until the session ends or a write
// fails. Queued updates are flushed before the terminal event.
func pump(client *Client, heartbeat time.Duration, write func(Event) error, ping func() error) error {
	var tick <-chan time.Time
	if heartbeat > 0 && ping != nil {
		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case ev, ok := <-client.Send:
			if !ok {
				return nil
			}
			if err := write(ev); err != nil {
				return err
			}
		case <-client.Ended:
			return drain(client, write)
		case <-tick:
			if err := ping(); err != nil {
				return err
			}
		}
	}
}

func drain(client *Client, write func(Event) error) error {
	for {
		select {
		case ev, ok := <-client.Send:
			if !ok {
				return write(Event{Type: EventEnded})
			}
			if err := write(ev); err != nil {
				return err
			}
		default:
			return write(Event{Type: EventEnded})
		}
	}
}

// writeSSE emits unnamed events; viewers dispatch on the "type" field of the payload.
func writeSSE(w *bufio.Writer, ev Event) error {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", ev.Payload()); err != nil {
		return err
	}
	return w.Flush()
}
