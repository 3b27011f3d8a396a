// Package escalation turns an unanswered alert into an SOS: it opens a live
// tracking session and notifies the owner's emergency contacts.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Abhinavchoudhary2005/AlertIQ/internal/contacts"
	"github.com/Abhinavchoudhary2005/AlertIQ/internal/logging"
	"github.com/Abhinavchoudhary2005/AlertIQ/internal/notify"
	"github.com/Abhinavchoudhary2005/AlertIQ/internal/shared/geo"
	"github.com/Abhinavchoudhary2005/AlertIQ/internal/tracking"
)

const defaultOwnerName = "User"

var ErrMissingOwner = errors.New("owner id required")

// Directory resolves owners and their contacts and keeps the alert audit.
type Directory interface {
	Owner(ctx context.Context, uid string) (contacts.Owner, error)
	Contacts(ctx context.Context, uid string) ([]contacts.Contact, error)
	RecordAlert(ctx context.Context, alert contacts.Alert) (contacts.Alert, error)
}

type Sessions interface {
	Create(ownerID, userName string, initial tracking.Location) string
}

type Config struct {
	PublicBaseURL string
	NotifyTimeout time.Duration
}

type Result struct {
	SessionID   string          `json:"sessionId"`
	TrackingURL string          `json:"trackingUrl"`
	Results     []notify.Result `json:"results"`
}

type Coordinator struct {
	dir      Directory
	sessions Sessions
	sender   notify.Sender
	cfg      Config
	log      *slog.Logger
}

func NewCoordinator(dir Directory, sessions Sessions, sender notify.Sender, cfg Config, log *slog.Logger) *Coordinator {
	if log == nil {
		log = logging.Discard()
	}
	if sender == nil {
		sender = notify.NewLogSender(log)
	}
	return &Coordinator{dir: dir, sessions: sessions, sender: sender, cfg: cfg, log: log}
}

// Escalate opens a tracking session and notifies every contact. Send and
// lookup failures are reported in the result, never returned as errors.
func (c *Coordinator) Escalate(ctx context.Context, ownerID string, at geo.Point) (Result, error) {
	if ownerID == "" {
		return Result{}, ErrMissingOwner
	}
	log := c.log.With("owner_id", ownerID)

	owner, recipients := c.lookup(ctx, ownerID, log)

	sessionID := c.sessions.Create(ownerID, owner.Name, tracking.Location{Lat: at.Lat, Lng: at.Lng})
	trackingURL := tracking.TrackingURL(c.cfg.PublicBaseURL, sessionID)

	body := Message(owner.Name, at, trackingURL)
	msgs := make([]notify.Message, 0, len(recipients))
	for _, rc := range recipients {
		msgs = append(msgs, notify.Message{Name: rc.Name, Phone: rc.Phone, Body: body})
	}
	results := notify.SendAll(ctx, c.sender, msgs, c.cfg.NotifyTimeout)

	sent := 0
	for _, r := range results {
		if r.Status == notify.StatusSent {
			sent++
		}
	}
	log.Warn("sos escalated", "session_id", sessionID, "sent", sent, "failed", len(results)-sent)

	if c.dir != nil {
		alert := contacts.Alert{
			OwnerID:   ownerID,
			SessionID: sessionID,
			Lat:       at.Lat,
			Lng:       at.Lng,
			Sent:      sent,
			Failed:    len(results) - sent,
		}
		if _, err := c.dir.RecordAlert(ctx, alert); err != nil {
			log.Error("failed to record sos alert", "session_id", sessionID, "error", err)
		}
	}

	return Result{SessionID: sessionID, TrackingURL: trackingURL, Results: results}, nil
}

func (c *Coordinator) lookup(ctx context.Context, ownerID string, log *slog.Logger) (contacts.Owner, []contacts.Contact) {
	owner := contacts.Owner{ID: ownerID, Name: defaultOwnerName}
	if c.dir == nil {
		return owner, nil
	}

	if o, err := c.dir.Owner(ctx, ownerID); err != nil {
		log.Warn("owner lookup failed", "error", err)
	} else if o.Name != "" {
		owner = o
	}

	list, err := c.dir.Contacts(ctx, ownerID)
	if err != nil {
		log.Error("contact lookup failed", "error", err)
		return owner, nil
	}
	return owner, list
}

// Message is the SOS text sent to every contact.
func Message(ownerName string, at geo.Point, trackingURL string) string {
	if ownerName == "" {
		ownerName = defaultOwnerName
	}
	return fmt.Sprintf("SOS ALERT: %s needs help! Last known location: https://maps.google.com/?q=%g,%g Live tracking: %s",
		ownerName, at.Lat, at.Lng, trackingURL)
}
