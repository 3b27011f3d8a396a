package deviation

import (
	"errors"
	"math"
	"strings"
	"time"
)

type State string

const (
	StateSafe         State = "SAFE"
	StateAlertPending State = "ALERT_PENDING"
	StateCooldown     State = "COOLDOWN"
)

type Status string

const (
	StatusSafe   Status = "SAFE"
	StatusUnsafe Status = "UNSAFE"
)

var ErrInvalidTransition = errors.New("invalid deviation transition")

// ParseStatus normalises a classifier status. Anything other than SAFE or
// UNSAFE (ANOMALY, empty, garbage) is not an event.
func ParseStatus(raw string) (Status, bool) {
	switch s := Status(strings.ToUpper(strings.TrimSpace(raw))); s {
	case StatusSafe, StatusUnsafe:
		return s, true
	}
	return "", false
}

// Verdict is one periodic result from the safety classifier.
type Verdict struct {
	Status       Status `json:"status"`
	FarIndicator bool   `json:"far_indicator"`
}

func (v Verdict) triggers() bool {
	return v.Status == StatusUnsafe && v.FarIndicator
}

type Config struct {
	Countdown time.Duration
	Cooldown  time.Duration
}

func DefaultConfig() Config {
	return Config{Countdown: 10 * time.Second, Cooldown: time.Minute}
}

// Transition describes the effect of one input on the monitor.
// Escalate is set exactly once per expired countdown.
type Transition struct {
	From     State
	To       State
	Escalate bool
}

func (t Transition) Changed() bool {
	return t.From != t.To
}

// Monitor is the per-journey deviation state machine. It holds no timers:
// callers feed it wall-clock instants through Observe, Tick and ConfirmSafe,
// which keeps it deterministic under test. Not safe for concurrent use; the
// journey loop owns it.
type Monitor struct {
	cfg           Config
	state         State
	deadline      time.Time
	cooldownUntil time.Time
}

func NewMonitor(cfg Config) *Monitor {
	if cfg.Countdown <= 0 {
		cfg.Countdown = DefaultConfig().Countdown
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig().Cooldown
	}
	return &Monitor{cfg: cfg, state: StateSafe}
}

func (m *Monitor) State() State {
	return m.state
}

// CountdownRemaining is the whole seconds left before escalation, 0 outside ALERT_PENDING.
func (m *Monitor) CountdownRemaining(now time.Time) int {
	if m.state != StateAlertPending {
		return 0
	}
	return ceilSeconds(m.deadline.Sub(now))
}

// CooldownRemaining is the whole seconds left in COOLDOWN, 0 in any other state.
func (m *Monitor) CooldownRemaining(now time.Time) int {
	if m.state != StateCooldown {
		return 0
	}
	return ceilSeconds(m.cooldownUntil.Sub(now))
}

func (m *Monitor) CooldownUntil() time.Time {
	if m.state != StateCooldown {
		return time.Time{}
	}
	return m.cooldownUntil
}

// Observe applies a classifier verdict.
func (m *Monitor) Observe(v Verdict, now time.Time) Transition {
	t := m.advance(now)
	if t.Escalate {
		return t
	}

	switch m.state {
	case StateSafe:
		if v.triggers() {
			m.state = StateAlertPending
			m.deadline = now.Add(m.cfg.Countdown)
		}
	case StateAlertPending:
		// further UNSAFE verdicts leave the running countdown untouched
		if v.Status == StatusSafe {
			m.state = StateSafe
			m.deadline = time.Time{}
		}
	}
	t.To = m.state
	return t
}

// Tick advances timers; the journey loop calls it once per second.
func (m *Monitor) Tick(now time.Time) Transition {
	return m.advance(now)
}

// ConfirmSafe is the explicit "I am safe" answer to a pending alert.
func (m *Monitor) ConfirmSafe(now time.Time) (Transition, error) {
	t := m.advance(now)
	if t.Escalate || m.state != StateAlertPending {
		return t, ErrInvalidTransition
	}
	m.enterCooldown(now)
	t.To = m.state
	return t, nil
}

func (m *Monitor) advance(now time.Time) Transition {
	t := Transition{From: m.state}
	switch m.state {
	case StateAlertPending:
		if !now.Before(m.deadline) {
			m.enterCooldown(now)
			t.Escalate = true
		}
	case StateCooldown:
		if !now.Before(m.cooldownUntil) {
			m.state = StateSafe
			m.cooldownUntil = time.Time{}
		}
	}
	t.To = m.state
	return t
}

func (m *Monitor) enterCooldown(now time.Time) {
	m.state = StateCooldown
	m.deadline = time.Time{}
	m.cooldownUntil = now.Add(m.cfg.Cooldown)
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
