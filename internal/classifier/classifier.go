// Package classifier obtains periodic safety verdicts for a journey, either
// from the remote anomaly service or from local distance and shock rules.
package classifier

import (
	"context"
	"errors"
	"time"

	"github.com/Abhinavchoudhary2005/AlertIQ/internal/deviation"
	"github.com/Abhinavchoudhary2005/AlertIQ/internal/shared/geo"
)

var ErrUnavailable = errors.New("classifier unavailable")

// Sample is one live reading from the owner's device.
type Sample struct {
	UID       string     `json:"uid"`
	Lat       float64    `json:"lat"`
	Lng       float64    `json:"lng"`
	Accel     [3]float64 `json:"accel"`
	Gyro      [3]float64 `json:"gyro"`
	Timestamp float64    `json:"timestamp"`
}

func NewSample(uid string, p geo.Point, accel, gyro [3]float64, at time.Time) Sample {
	return Sample{
		UID:       uid,
		Lat:       p.Lat,
		Lng:       p.Lng,
		Accel:     accel,
		Gyro:      gyro,
		Timestamp: float64(at.UnixMilli()) / 1000,
	}
}

// Result is the raw classifier answer. Status may be SAFE, UNSAFE or
// something the deviation monitor does not act on, such as ANOMALY.
type Result struct {
	Status       string  `json:"status"`
	Reason       string  `json:"reason,omitempty"`
	RiskLevel    string  `json:"risk_level,omitempty"`
	Distance     float64 `json:"distance,omitempty"`
	FarIndicator bool    `json:"far_indicator"`
}

// Verdict converts the result into a monitor input. ok is false when the
// status is not one the monitor understands.
func (r Result) Verdict() (deviation.Verdict, bool) {
	status, ok := deviation.ParseStatus(r.Status)
	if !ok {
		return deviation.Verdict{}, false
	}
	return deviation.Verdict{Status: status, FarIndicator: r.FarIndicator}, true
}

type Classifier interface {
	InitRoute(ctx context.Context, uid string, route []geo.Point) error
	Classify(ctx context.Context, s Sample) (Result, error)
}
