package classifier

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/Abhinavchoudhary2005/AlertIQ/internal/shared/geo"
)

type RuleConfig struct {
	NearM          float64
	FarM           float64
	ShockThreshold float64
}

func DefaultRuleConfig() RuleConfig {
	return RuleConfig{NearM: 50, FarM: 150, ShockThreshold: 30}
}

// Rules classifies samples locally by distance from the route and by
// acceleration magnitude. It is used when no remote classifier is configured.
type Rules struct {
	cfg    RuleConfig
	mu     sync.RWMutex
	routes map[string][]geo.Point
}

func NewRules(cfg RuleConfig) *Rules {
	return &Rules{cfg: cfg, routes: map[string][]geo.Point{}}
}

func (r *Rules) InitRoute(_ context.Context, uid string, route []geo.Point) error {
	points := make([]geo.Point, len(route))
	copy(points, route)

	r.mu.Lock()
	r.routes[uid] = points
	r.mu.Unlock()
	return nil
}

func (r *Rules) Forget(uid string) {
	r.mu.Lock()
	delete(r.routes, uid)
	r.mu.Unlock()
}

func (r *Rules) Classify(_ context.Context, s Sample) (Result, error) {
	r.mu.RLock()
	route, ok := r.routes[s.UID]
	r.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: route not initialized for %s", ErrUnavailable, s.UID)
	}

	if magnitude(s.Accel) >= r.cfg.ShockThreshold {
		return Result{Status: "ANOMALY", Reason: "SHOCK_DETECTED"}, nil
	}

	dist := geo.NearestPointOnRoute(geo.Point{Lat: s.Lat, Lng: s.Lng}, route).Distance
	switch {
	case dist > r.cfg.FarM:
		return Result{Status: "UNSAFE", RiskLevel: "HIGH", Distance: dist, FarIndicator: true}, nil
	case dist > r.cfg.NearM:
		return Result{Status: "UNSAFE", RiskLevel: "MEDIUM", Distance: dist}, nil
	default:
		return Result{Status: "SAFE", Distance: dist}, nil
	}
}

func magnitude(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}
