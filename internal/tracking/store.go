package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Abhinavchoudhary2005/AlertIQ/internal/logging"
	"github.com/Abhinavchoudhary2005/AlertIQ/internal/stream"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("tracking session not found or expired")
	ErrSessionEnded = errors.New("tracking session has ended")
)

type Config struct {
	SessionTTL    time.Duration
	SweepInterval time.Duration
	MaxLocations  int
	Now           func() time.Time
	// Mirror, when set, shares session records with other instances.
	Mirror        Mirror
	MirrorTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{SessionTTL: 24 * time.Hour, SweepInterval: 5 * time.Minute, MaxLocations: 100, MirrorTimeout: 2 * time.Second}
}

type session struct {
	mu        sync.Mutex
	id        string
	ownerID   string
	userName  string
	locations []Location
	viewers   int
	createdAt time.Time
	ended     bool
	endedAt   time.Time
	evicted   bool
}

// Store is the in-memory registry of live-tracking sessions. The map is
// guarded by mu; every field of a session is guarded by that session's mu.
// Stream events are published while the session lock is held so a new
// subscriber's snapshot can never interleave with an append.
//
// With a Mirror configured, sessions owned by other instances can be read
// and watched: their viewers are attached to the hub relay and counted in
// the mirror, where the owner includes them in its viewer gate.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session
	remote   map[*stream.Client]struct{}
	hub      *stream.Hub
	cfg      Config
	log      *slog.Logger
}

func NewStore(hub *stream.Hub, cfg Config, log *slog.Logger) *Store {
	def := DefaultConfig()
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = def.SessionTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.MaxLocations <= 0 {
		cfg.MaxLocations = def.MaxLocations
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MirrorTimeout <= 0 {
		cfg.MirrorTimeout = def.MirrorTimeout
	}
	if hub == nil {
		hub = stream.NewHub(nil, log)
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Store{
		sessions: map[string]*session{},
		remote:   map[*stream.Client]struct{}{},
		hub:      hub,
		cfg:      cfg,
		log:      log,
	}
}

// Create opens a session seeded with the owner's current location.
func (s *Store) Create(ownerID, userName string, initial Location) string {
	now := s.cfg.Now()
	if initial.Timestamp.IsZero() {
		initial.Timestamp = now
	}
	sess := &session{
		id:        uuid.NewString(),
		ownerID:   ownerID,
		userName:  userName,
		locations: []Location{initial},
		createdAt: now,
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	sess.mu.Lock()
	s.mirror(sess)
	sess.mu.Unlock()

	s.log.Info("tracking session created", "session_id", sess.id, "owner_id", ownerID)
	return sess.id
}

// AppendLocation records a location only while someone is watching.
func (s *Store) AppendLocation(id string, loc Location) (AppendResult, error) {
	sess, unlock, err := s.acquire(id)
	if err != nil {
		return AppendResult{}, err
	}
	defer unlock()

	if sess.ended {
		return AppendResult{}, ErrSessionEnded
	}
	viewers := sess.viewers + s.remoteViewers(id)
	if viewers == 0 {
		return AppendResult{Viewers: 0}, nil
	}

	if loc.Timestamp.IsZero() {
		loc.Timestamp = s.cfg.Now()
	}
	sess.locations = append(sess.locations, loc)
	if over := len(sess.locations) - s.cfg.MaxLocations; over > 0 {
		sess.locations = append([]Location(nil), sess.locations[over:]...)
	}

	s.mirror(sess)

	payload, _ := json.Marshal(updateMessage{Type: string(stream.EventUpdate), Location: loc})
	s.hub.Broadcast(id, stream.Event{Type: stream.EventUpdate, Data: payload})
	return AppendResult{Recorded: true, Viewers: viewers}, nil
}

// EndSession marks the session ended; ending twice keeps the first endedAt.
func (s *Store) EndSession(id string) error {
	sess, unlock, err := s.acquire(id)
	if err != nil {
		return err
	}
	defer unlock()

	if sess.ended {
		return nil
	}
	sess.ended = true
	sess.endedAt = s.cfg.Now()
	s.mirror(sess)
	s.hub.Finish(id)
	s.log.Info("tracking session ended", "session_id", id)
	return nil
}

// Subscribe attaches a viewer. The returned client's first event is the init
// snapshot; for an ended session its Ended channel is already closed.
func (s *Store) Subscribe(id string) (*stream.Client, error) {
	sess, unlock, err := s.acquire(id)
	if errors.Is(err, ErrNotFound) && s.servesRemote(id) {
		return s.subscribeRemote(id)
	}
	if err != nil {
		return nil, err
	}
	defer unlock()

	client := s.hub.Register(id)
	sess.viewers++

	payload, _ := json.Marshal(initMessage{Type: string(stream.EventInit), Session: sess.snapshot()})
	s.hub.Deliver(client, stream.Event{Type: stream.EventInit, Data: payload})
	if sess.ended {
		s.hub.FinishClient(client)
	}
	s.log.Debug("viewer subscribed", "session_id", id, "viewers", sess.viewers)
	return client, nil
}

// Unsubscribe detaches a viewer. Repeated calls for the same client are no-ops.
func (s *Store) Unsubscribe(client *stream.Client) {
	if client == nil || !s.hub.Unregister(client) {
		return
	}

	s.mu.Lock()
	_, remote := s.remote[client]
	delete(s.remote, client)
	sess, ok := s.sessions[client.SessionID]
	s.mu.Unlock()
	if remote {
		s.dropRemoteViewer(client.SessionID)
		return
	}
	if !ok {
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.viewers > 0 {
		sess.viewers--
	}
	s.log.Debug("viewer unsubscribed", "session_id", client.SessionID, "viewers", sess.viewers)
}

func (s *Store) Get(id string) (Snapshot, error) {
	sess, unlock, err := s.acquire(id)
	if errors.Is(err, ErrNotFound) && s.servesRemote(id) {
		ctx, cancel := s.mirrorContext()
		defer cancel()
		return s.loadRemote(ctx, id)
	}
	if err != nil {
		return Snapshot{}, err
	}
	defer unlock()
	snap := sess.snapshot()
	snap.Viewers += s.remoteViewers(id)
	return snap, nil
}

func (s *Store) Viewers(id string) (int, error) {
	snap, err := s.Get(id)
	if err != nil {
		return 0, err
	}
	return snap.Viewers, nil
}

// Sweep evicts every session older than the TTL, ended or not, and returns
// how many were removed. Remaining viewers receive the terminal signal.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	var expired []*session
	for id, sess := range s.sessions {
		if now.Sub(sess.createdAt) > s.cfg.SessionTTL {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		sess.mu.Lock()
		sess.evicted = true
		s.hub.Finish(sess.id)
		sess.mu.Unlock()
		s.forgetRemote(sess.id)
	}
	return len(expired)
}

// Run sweeps on SweepInterval until ctx is done.
func (s *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(s.cfg.Now()); n > 0 {
				s.log.Info("expired tracking sessions evicted", "count", n)
			}
		}
	}
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// acquire returns the live session locked. A session past its TTL is
// reported missing even before the sweeper removes it.
func (s *Store) acquire(id string) (*session, func(), error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrNotFound
	}

	sess.mu.Lock()
	if sess.evicted || s.cfg.Now().Sub(sess.createdAt) > s.cfg.SessionTTL {
		sess.mu.Unlock()
		return nil, nil, ErrNotFound
	}
	return sess, sess.mu.Unlock, nil
}

// snapshot must be called with sess.mu held.
func (sess *session) snapshot() Snapshot {
	snap := Snapshot{
		ID:        sess.id,
		UserID:    sess.ownerID,
		UserName:  sess.userName,
		Locations: append([]Location(nil), sess.locations...),
		Ended:     sess.ended,
		CreatedAt: sess.createdAt,
		Viewers:   sess.viewers,
	}
	if sess.ended {
		endedAt := sess.endedAt
		snap.EndedAt = &endedAt
	}
	return snap
}

func (s *Store) mirrorContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.cfg.MirrorTimeout)
}

// remaining is how long a session created at createdAt stays live.
func (s *Store) remaining(createdAt time.Time) time.Duration {
	return createdAt.Add(s.cfg.SessionTTL).Sub(s.cfg.Now())
}

// mirror writes the session record; called with sess.mu held so records
// reach the mirror before the matching stream event is published.
func (s *Store) mirror(sess *session) {
	if s.cfg.Mirror == nil {
		return
	}
	ttl := s.remaining(sess.createdAt)
	if ttl <= 0 {
		return
	}
	ctx, cancel := s.mirrorContext()
	defer cancel()
	if err := s.cfg.Mirror.Save(ctx, sess.snapshot(), ttl); err != nil {
		s.log.Warn("mirror session failed", "session_id", sess.id, "error", err)
	}
}

func (s *Store) forgetRemote(id string) {
	if s.cfg.Mirror == nil {
		return
	}
	ctx, cancel := s.mirrorContext()
	defer cancel()
	if err := s.cfg.Mirror.Delete(ctx, id); err != nil {
		s.log.Warn("mirror delete failed", "session_id", id, "error", err)
	}
}

func (s *Store) remoteViewers(id string) int {
	if s.cfg.Mirror == nil {
		return 0
	}
	ctx, cancel := s.mirrorContext()
	defer cancel()
	n, err := s.cfg.Mirror.Viewers(ctx, id)
	if err != nil {
		s.log.Warn("mirror viewer count failed", "session_id", id, "error", err)
		return 0
	}
	return n
}

// servesRemote reports whether id should be looked up in the mirror: sessions
// this instance created never are, even once they expire locally.
func (s *Store) servesRemote(id string) bool {
	if s.cfg.Mirror == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, local := s.sessions[id]
	return !local
}

func (s *Store) loadRemote(ctx context.Context, id string) (Snapshot, error) {
	snap, err := s.cfg.Mirror.Load(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	if s.remaining(snap.CreatedAt) < 0 {
		return Snapshot{}, ErrNotFound
	}
	n, err := s.cfg.Mirror.Viewers(ctx, id)
	if err != nil {
		s.log.Warn("mirror viewer count failed", "session_id", id, "error", err)
	}
	snap.Viewers = n
	return snap, nil
}

// subscribeRemote attaches a viewer to a session owned by another instance.
// The snapshot is read with the hub locked, so every update the owner
// publishes after that read reaches the client behind its init event.
func (s *Store) subscribeRemote(id string) (*stream.Client, error) {
	ctx, cancel := s.mirrorContext()
	defer cancel()

	client, err := s.hub.Attach(id, func() (stream.Event, bool, error) {
		snap, err := s.loadRemote(ctx, id)
		if err != nil {
			return stream.Event{}, false, err
		}
		n, err := s.cfg.Mirror.AddViewers(ctx, id, 1, s.remaining(snap.CreatedAt))
		if err != nil {
			return stream.Event{}, false, err
		}
		snap.Viewers = n
		payload, _ := json.Marshal(initMessage{Type: string(stream.EventInit), Session: snap})
		return stream.Event{Type: stream.EventInit, Data: payload}, snap.Ended, nil
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.remote[client] = struct{}{}
	s.mu.Unlock()
	s.log.Debug("remote viewer subscribed", "session_id", id)
	return client, nil
}

func (s *Store) dropRemoteViewer(id string) {
	ctx, cancel := s.mirrorContext()
	defer cancel()
	if _, err := s.cfg.Mirror.AddViewers(ctx, id, -1, 0); err != nil {
		s.log.Warn("mirror viewer release failed", "session_id", id, "error", err)
	}
	s.log.Debug("remote viewer unsubscribed", "session_id", id)
}
