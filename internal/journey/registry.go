package journey

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/Abhinavchoudhary2005/AlertIQ/internal/classifier"
	"github.com/Abhinavchoudhary2005/AlertIQ/internal/logging"
	"github.com/Abhinavchoudhary2005/AlertIQ/internal/shared/geo"
)

var (
	ErrAlreadyActive = errors.New("journey already active for owner")
	ErrNotFound      = errors.New("no active journey for owner")
	ErrEmptyRoute    = errors.New("route must contain at least one point")
)

type Deps struct {
	Classifier classifier.Classifier
	Escalator  Escalator
	Sink       LocationSink
}

// Registry holds at most one live journey per owner.
type Registry struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	journeys map[string]*Journey
	wg       sync.WaitGroup
}

func NewRegistry(cfg Config, deps Deps, log *slog.Logger) *Registry {
	if log == nil {
		log = logging.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		cfg:      cfg,
		deps:     deps,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		journeys: map[string]*Journey{},
	}
}

func (r *Registry) Start(ownerID string, route []geo.Point) (*Journey, error) {
	if len(route) == 0 {
		return nil, ErrEmptyRoute
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ctx.Err(); err != nil {
		return nil, err
	}
	if _, ok := r.journeys[ownerID]; ok {
		return nil, ErrAlreadyActive
	}

	j := newJourney(ownerID, route, r.cfg, r.deps, r.log)
	r.journeys[ownerID] = j

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		j.run(r.ctx)
	}()
	go func() {
		defer r.wg.Done()
		<-j.Done()
		r.release(j)
	}()

	r.log.Info("journey started", "owner_id", ownerID, "route_points", len(route))
	return j, nil
}

func (r *Registry) Get(ownerID string) (*Journey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.journeys[ownerID]
	if !ok {
		return nil, ErrNotFound
	}
	return j, nil
}

// Stop ends the owner's journey and returns its final status.
func (r *Registry) Stop(ownerID string) (Status, error) {
	j, err := r.Get(ownerID)
	if err != nil {
		return Status{}, err
	}
	j.Stop()
	r.release(j)
	r.log.Info("journey stopped", "owner_id", ownerID)
	return j.finalStatus(), nil
}

func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.journeys)
}

// Close stops every journey and waits for their loops to exit.
func (r *Registry) Close() {
	r.cancel()
	r.wg.Wait()
}

// release drops j only if it is still the owner's registered journey.
func (r *Registry) release(j *Journey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.journeys[j.ownerID]; ok && cur == j {
		delete(r.journeys, j.ownerID)
	}
}
