package journey

import (
	"math"

	"github.com/Abhinavchoudhary2005/AlertIQ/internal/shared/geo"
)

// MatchKind classifies how a position related to the route.
type MatchKind string

const (
	MatchOffRoute  MatchKind = "off_route"
	MatchForward   MatchKind = "forward"
	MatchReconfirm MatchKind = "reconfirm"
	MatchBacktrack MatchKind = "backtrack"
)

type TrackerConfig struct {
	TraveledThresholdM float64
	DestinationRadiusM float64
	BacktrackWindow    int
}

func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{TraveledThresholdM: 10, DestinationRadiusM: 20, BacktrackWindow: 5}
}

type Update struct {
	NearestIndex int       `json:"nearest_index"`
	Distance     float64   `json:"distance_m"`
	Arrived      bool      `json:"arrived"`
	Kind         MatchKind `json:"kind"`
}

// Tracker follows forward progress along a fixed route. furthest only grows
// and traversed only gains members while the tracker lives.
type Tracker struct {
	cfg       TrackerConfig
	route     []geo.Point
	furthest  int
	progress  bool
	traversed map[int]struct{}
	arrived   bool
}

func NewTracker(route []geo.Point, cfg TrackerConfig) *Tracker {
	points := make([]geo.Point, len(route))
	copy(points, route)
	return &Tracker{
		cfg:       cfg,
		route:     points,
		traversed: map[int]struct{}{},
	}
}

func (t *Tracker) Update(p geo.Point) Update {
	if len(t.route) == 0 {
		return Update{NearestIndex: -1, Distance: math.Inf(1), Kind: MatchOffRoute}
	}
	nearest := geo.NearestPointOnRoute(p, t.route)
	u := Update{NearestIndex: nearest.Index, Distance: nearest.Distance, Arrived: t.arrived}
	if t.arrived {
		u.Kind = MatchReconfirm
		return u
	}

	if nearest.Distance >= t.cfg.TraveledThresholdM {
		u.Kind = MatchOffRoute
		return u
	}

	switch {
	case nearest.Index > t.furthest || (len(t.route) == 1 && !t.progress):
		t.markUpTo(nearest.Index)
		t.furthest = nearest.Index
		t.progress = true
		u.Kind = MatchForward
	case nearest.Index >= t.furthest-t.cfg.BacktrackWindow:
		t.markUpTo(nearest.Index)
		u.Kind = MatchReconfirm
		return u
	default:
		u.Kind = MatchBacktrack
		return u
	}

	// arrival is only judged on forward progress
	last := len(t.route) - 1
	if nearest.Index == last || geo.DistanceMeters(p, t.route[last]) <= t.cfg.DestinationRadiusM {
		t.arrived = true
		u.Arrived = true
	}
	return u
}

func (t *Tracker) markUpTo(index int) {
	for i := 0; i <= index; i++ {
		t.traversed[i] = struct{}{}
	}
}

func (t *Tracker) FurthestIndex() int {
	return t.furthest
}

func (t *Tracker) Arrived() bool {
	return t.arrived
}

// Traversed reports whether index has been reached.
func (t *Tracker) Traversed(index int) bool {
	_, ok := t.traversed[index]
	return ok
}

func (t *Tracker) TraversedCount() int {
	return len(t.traversed)
}

// ProgressPercent is furthest/(len-1) as a rounded percentage, 0 until the
// first forward match.
func (t *Tracker) ProgressPercent() int {
	if !t.progress {
		return 0
	}
	if len(t.route) <= 1 {
		return 100
	}
	pct := int(math.Round(float64(t.furthest) / float64(len(t.route)-1) * 100))
	return min(max(pct, 0), 100)
}

func (t *Tracker) TraveledMeters() float64 {
	return geo.TraveledMeters(t.route, t.traversed)
}

func (t *Tracker) TotalMeters() float64 {
	return geo.RouteLengthMeters(t.route)
}
