package journey

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Abhinavchoudhary2005/AlertIQ/internal/classifier"
	"github.com/Abhinavchoudhary2005/AlertIQ/internal/deviation"
	"github.com/Abhinavchoudhary2005/AlertIQ/internal/escalation"
	"github.com/Abhinavchoudhary2005/AlertIQ/internal/shared/geo"
	"github.com/Abhinavchoudhary2005/AlertIQ/internal/tracking"
)

var ErrStopped = errors.New("journey is no longer active")

type Escalator interface {
	Escalate(ctx context.Context, ownerID string, at geo.Point) (escalation.Result, error)
}

// LocationSink receives positions once an escalation has opened a session.
type LocationSink interface {
	AppendLocation(id string, loc tracking.Location) (tracking.AppendResult, error)
}

type Config struct {
	Tracker           TrackerConfig
	Monitor           deviation.Config
	CheckInterval     time.Duration
	TickInterval      time.Duration
	ClassifierTimeout time.Duration
	EscalateTimeout   time.Duration
	Now               func() time.Time
}

func DefaultConfig() Config {
	return Config{
		Tracker:           DefaultTrackerConfig(),
		Monitor:           deviation.DefaultConfig(),
		CheckInterval:     10 * time.Second,
		TickInterval:      time.Second,
		ClassifierTimeout: 5 * time.Second,
		EscalateTimeout:   30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.CheckInterval <= 0 {
		c.CheckInterval = def.CheckInterval
	}
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	if c.ClassifierTimeout <= 0 {
		c.ClassifierTimeout = def.ClassifierTimeout
	}
	if c.EscalateTimeout <= 0 {
		c.EscalateTimeout = def.EscalateTimeout
	}
	if c.Tracker == (TrackerConfig{}) {
		c.Tracker = def.Tracker
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Position is one device sample.
type Position struct {
	Point geo.Point
	Accel [3]float64
	Gyro  [3]float64
	At    time.Time
}

type Status struct {
	OwnerID            string          `json:"ownerId"`
	Active             bool            `json:"active"`
	Arrived            bool            `json:"arrived"`
	FurthestIndex      int             `json:"furthestIndex"`
	ProgressPercent    int             `json:"progressPercent"`
	TraveledMeters     float64         `json:"traveledMeters"`
	TotalMeters        float64         `json:"totalMeters"`
	State              deviation.State `json:"state"`
	CountdownRemaining int             `json:"countdownRemaining"`
	CooldownRemaining  int             `json:"cooldownRemaining"`
	LastPosition       *geo.Point      `json:"lastPosition,omitempty"`
	LastMatch          *Update         `json:"lastMatch,omitempty"`
	SessionID          string          `json:"sessionId,omitempty"`
	StartedAt          time.Time       `json:"startedAt"`
}

type positionRequest struct {
	pos   Position
	reply chan Status
}

type confirmReply struct {
	status Status
	err    error
}

type checkResult struct {
	result classifier.Result
	err    error
}

// Journey owns one tracker and one deviation monitor. All state below the
// channels is touched only by the run goroutine.
type Journey struct {
	ownerID    string
	cfg        Config
	classifier classifier.Classifier
	escalator  Escalator
	sink       LocationSink
	log        *slog.Logger

	positions chan positionRequest
	confirms  chan chan confirmReply
	statuses  chan chan Status
	checks    chan checkResult
	escalated chan escalation.Result
	stop      chan struct{}
	done      chan struct{}
	stopOnce  sync.Once

	finalMu sync.Mutex
	final   Status

	tracker   *Tracker
	monitor   *deviation.Monitor
	route     []geo.Point
	startedAt time.Time
	last      *Position
	lastMatch *Update
	lastCheck time.Time
	checking  bool
	sessionID string
}

func newJourney(ownerID string, route []geo.Point, cfg Config, deps Deps, log *slog.Logger) *Journey {
	cfg = cfg.withDefaults()
	return &Journey{
		ownerID:    ownerID,
		cfg:        cfg,
		classifier: deps.Classifier,
		escalator:  deps.Escalator,
		sink:       deps.Sink,
		log:        log.With("owner_id", ownerID),
		positions:  make(chan positionRequest),
		confirms:   make(chan chan confirmReply),
		statuses:   make(chan chan Status),
		checks:     make(chan checkResult, 1),
		escalated:  make(chan escalation.Result, 1),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		tracker:    NewTracker(route, cfg.Tracker),
		monitor:    deviation.NewMonitor(cfg.Monitor),
		route:      route,
	}
}

func (j *Journey) OwnerID() string { return j.ownerID }

func (j *Journey) Done() <-chan struct{} { return j.done }

// Stop ends the loop. Results from in-flight classifier calls or escalations
// are discarded afterwards.
func (j *Journey) Stop() {
	j.stopOnce.Do(func() { close(j.stop) })
	<-j.done
}

// Submit feeds one position and returns the status after processing it.
func (j *Journey) Submit(ctx context.Context, pos Position) (Status, error) {
	req := positionRequest{pos: pos, reply: make(chan Status, 1)}
	select {
	case j.positions <- req:
	case <-j.done:
		return j.finalStatus(), ErrStopped
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
	return <-req.reply, nil
}

func (j *Journey) ConfirmSafe(ctx context.Context) (Status, error) {
	reply := make(chan confirmReply, 1)
	select {
	case j.confirms <- reply:
	case <-j.done:
		return j.finalStatus(), ErrStopped
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
	r := <-reply
	return r.status, r.err
}

// Status returns a live snapshot, or the final one once the loop exited.
func (j *Journey) Status(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	select {
	case j.statuses <- reply:
	case <-j.done:
		return j.finalStatus(), nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
	return <-reply, nil
}

func (j *Journey) finalStatus() Status {
	j.finalMu.Lock()
	defer j.finalMu.Unlock()
	return j.final
}

func (j *Journey) run(ctx context.Context) {
	j.startedAt = j.cfg.Now()
	j.lastCheck = j.startedAt

	initCtx, cancelInit := context.WithCancel(ctx)
	initDone := j.initClassifier(initCtx)

	defer func() {
		final := j.status(j.cfg.Now())
		final.Active = false
		j.finalMu.Lock()
		j.final = final
		j.finalMu.Unlock()
		// the route must be registered before it can be forgotten
		cancelInit()
		<-initDone
		if f, ok := j.classifier.(interface{ Forget(string) }); ok {
			f.Forget(j.ownerID)
		}
		close(j.done)
	}()

	ticker := time.NewTicker(j.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.stop:
			return
		case req := <-j.positions:
			j.handlePosition(req.pos)
			req.reply <- j.status(j.cfg.Now())
			if j.tracker.Arrived() {
				j.log.Info("journey destination reached")
				return
			}
		case res := <-j.checks:
			j.checking = false
			j.handleCheck(ctx, res)
		case reply := <-j.confirms:
			now := j.cfg.Now()
			tr, err := j.monitor.ConfirmSafe(now)
			if err == nil {
				j.log.Info("alert confirmed safe")
			}
			// a confirmation that arrives after the deadline still escalates
			j.apply(ctx, tr)
			reply <- confirmReply{status: j.status(now), err: err}
		case reply := <-j.statuses:
			reply <- j.status(j.cfg.Now())
		case res := <-j.escalated:
			j.sessionID = res.SessionID
		case <-ticker.C:
			now := j.cfg.Now()
			j.apply(ctx, j.monitor.Tick(now))
			if !j.checking && j.last != nil && now.Sub(j.lastCheck) >= j.cfg.CheckInterval {
				j.startCheck(ctx, now)
			}
		}
	}
}

// initClassifier registers the route in the background. The returned channel
// closes once InitRoute has returned.
func (j *Journey) initClassifier(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if j.classifier == nil {
		close(done)
		return done
	}
	route := j.route
	go func() {
		defer close(done)
		cctx, cancel := context.WithTimeout(ctx, j.cfg.ClassifierTimeout)
		defer cancel()
		if err := j.classifier.InitRoute(cctx, j.ownerID, route); err != nil {
			j.log.Warn("classifier route init failed", "error", err)
		}
	}()
	return done
}

func (j *Journey) handlePosition(pos Position) {
	if pos.At.IsZero() {
		pos.At = j.cfg.Now()
	}
	u := j.tracker.Update(pos.Point)
	j.last = &pos
	j.lastMatch = &u

	if j.sessionID != "" && j.sink != nil {
		_, err := j.sink.AppendLocation(j.sessionID, tracking.Location{Lat: pos.Point.Lat, Lng: pos.Point.Lng, Timestamp: pos.At})
		if errors.Is(err, tracking.ErrNotFound) || errors.Is(err, tracking.ErrSessionEnded) {
			j.sessionID = ""
		}
	}
}

func (j *Journey) startCheck(ctx context.Context, now time.Time) {
	if j.classifier == nil {
		return
	}
	j.checking = true
	j.lastCheck = now
	sample := classifier.NewSample(j.ownerID, j.last.Point, j.last.Accel, j.last.Gyro, j.last.At)

	go func() {
		cctx, cancel := context.WithTimeout(ctx, j.cfg.ClassifierTimeout)
		defer cancel()
		res, err := j.classifier.Classify(cctx, sample)
		select {
		case j.checks <- checkResult{result: res, err: err}:
		case <-j.done:
		}
	}()
}

func (j *Journey) handleCheck(ctx context.Context, res checkResult) {
	if res.err != nil {
		j.log.Debug("safety check unavailable", "error", res.err)
		return
	}
	v, ok := res.result.Verdict()
	if !ok {
		j.log.Debug("safety check ignored", "status", res.result.Status, "reason", res.result.Reason)
		return
	}
	j.apply(ctx, j.monitor.Observe(v, j.cfg.Now()))
}

func (j *Journey) apply(ctx context.Context, tr deviation.Transition) {
	if tr.Changed() {
		j.log.Info("deviation state changed", "from", tr.From, "to", tr.To)
	}
	if !tr.Escalate || j.escalator == nil {
		return
	}

	at := j.route[0]
	if j.last != nil {
		at = j.last.Point
	}
	go func() {
		ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), j.cfg.EscalateTimeout)
		defer cancel()
		res, err := j.escalator.Escalate(ectx, j.ownerID, at)
		if err != nil {
			j.log.Error("escalation failed", "error", err)
			return
		}
		select {
		case j.escalated <- res:
		case <-j.done:
		}
	}()
}

func (j *Journey) status(now time.Time) Status {
	st := Status{
		OwnerID:            j.ownerID,
		Active:             !j.tracker.Arrived(),
		Arrived:            j.tracker.Arrived(),
		FurthestIndex:      j.tracker.FurthestIndex(),
		ProgressPercent:    j.tracker.ProgressPercent(),
		TraveledMeters:     j.tracker.TraveledMeters(),
		TotalMeters:        j.tracker.TotalMeters(),
		State:              j.monitor.State(),
		CountdownRemaining: j.monitor.CountdownRemaining(now),
		CooldownRemaining:  j.monitor.CooldownRemaining(now),
		LastMatch:          j.lastMatch,
		SessionID:          j.sessionID,
		StartedAt:          j.startedAt,
	}
	if j.last != nil {
		p := j.last.Point
		st.LastPosition = &p
	}
	return st
}
