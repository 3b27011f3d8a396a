package journey

import (
	"context"
	"errors"
	"testing"
)

func TestRegistryOneJourneyPerOwner(t *testing.T) {
	reg := NewRegistry(testConfig(), Deps{}, nil)
	defer reg.Close()

	first, err := reg.Start("user-1", straightRoute(3))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := reg.Start("user-1", straightRoute(3)); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}
	if _, err := reg.Start("user-2", straightRoute(3)); err != nil {
		t.Fatalf("other owner: %v", err)
	}
	if reg.Active() != 2 {
		t.Fatalf("expected 2 active journeys, got %d", reg.Active())
	}

	got, err := reg.Get("user-1")
	if err != nil || got != first {
		t.Fatalf("get returned %v %v", got, err)
	}

	st, err := reg.Stop("user-1")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if st.Active || st.OwnerID != "user-1" {
		t.Fatalf("unexpected final status %+v", st)
	}
	if _, err := reg.Get("user-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after stop, got %v", err)
	}
	if _, err := reg.Stop("user-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second stop, got %v", err)
	}

	if _, err := reg.Start("user-1", straightRoute(3)); err != nil {
		t.Fatalf("restart after stop: %v", err)
	}
}

func TestRegistryRejectsEmptyRoute(t *testing.T) {
	reg := NewRegistry(testConfig(), Deps{}, nil)
	defer reg.Close()

	if _, err := reg.Start("user-1", nil); !errors.Is(err, ErrEmptyRoute) {
		t.Fatalf("expected ErrEmptyRoute, got %v", err)
	}
}

func TestRegistryCloseStopsJourneys(t *testing.T) {
	reg := NewRegistry(testConfig(), Deps{}, nil)
	j, _ := reg.Start("user-1", straightRoute(3))

	reg.Close()
	select {
	case <-j.Done():
	default:
		t.Fatalf("journey still running after Close")
	}
	if reg.Active() != 0 {
		t.Fatalf("expected no active journeys")
	}
	if _, err := reg.Start("user-2", straightRoute(3)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled after Close, got %v", err)
	}
}
