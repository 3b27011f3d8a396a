package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/Abhinavchoudhary2005/AlertIQ/internal/deviation"
	"github.com/Abhinavchoudhary2005/AlertIQ/internal/shared/geo"
)

func TestRulesClassify(t *testing.T) {
	rules := NewRules(DefaultRuleConfig())
	route := []geo.Point{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 0.01}}
	if err := rules.InitRoute(context.Background(), "user-1", route); err != nil {
		t.Fatalf("init: %v", err)
	}

	// 0.0001 deg of latitude is about 11 m.
	cases := []struct {
		name    string
		sample  Sample
		status  string
		far     bool
		verdict bool
	}{
		{"on route", Sample{UID: "user-1", Lat: 0.0001, Lng: 0.005}, "SAFE", false, true},
		{"medium distance", Sample{UID: "user-1", Lat: 0.0008, Lng: 0.005}, "UNSAFE", false, true},
		{"far away", Sample{UID: "user-1", Lat: 0.002, Lng: 0.005}, "UNSAFE", true, true},
		{"shock", Sample{UID: "user-1", Lat: 0, Lng: 0.005, Accel: [3]float64{20, 20, 10}}, "ANOMALY", false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := rules.Classify(context.Background(), tc.sample)
			if err != nil {
				t.Fatalf("classify: %v", err)
			}
			if res.Status != tc.status || res.FarIndicator != tc.far {
				t.Fatalf("got %+v", res)
			}
			if _, ok := res.Verdict(); ok != tc.verdict {
				t.Fatalf("verdict ok = %v, want %v", ok, tc.verdict)
			}
		})
	}
}

func TestRulesFarVerdictTriggersMonitor(t *testing.T) {
	rules := NewRules(DefaultRuleConfig())
	_ = rules.InitRoute(context.Background(), "u", []geo.Point{{Lat: 0, Lng: 0}})

	res, _ := rules.Classify(context.Background(), Sample{UID: "u", Lat: 0.01, Lng: 0})
	v, ok := res.Verdict()
	if !ok || v.Status != deviation.StatusUnsafe || !v.FarIndicator {
		t.Fatalf("unexpected verdict %+v", v)
	}
}

func TestRulesUnknownRoute(t *testing.T) {
	rules := NewRules(DefaultRuleConfig())
	_ = rules.InitRoute(context.Background(), "u", []geo.Point{{Lat: 0, Lng: 0}})
	rules.Forget("u")

	if _, err := rules.Classify(context.Background(), Sample{UID: "u"}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
