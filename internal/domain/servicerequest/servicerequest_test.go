package servicerequest

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestParseStatus_NormalisesLegacyNames(t *testing.T) {
	tests := []struct {
		in   string
		want Status
	}{
		{"pending", StatusPending},
		{"assigned", StatusAssigned},
		{"accepted", StatusAssigned},
		{"in-service", StatusAssigned},
		{"in-progress", StatusInProgress},
		{"in_progress", StatusInProgress},
		{"completed", StatusCompleted},
		{"cancelled", StatusCancelled},
	}
	for _, tt := range tests {
		got, err := ParseStatus(tt.in)
		if err != nil || got != tt.want {
			t.Fatalf("ParseStatus(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseStatus("done"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestCanTransitionTo(t *testing.T) {
	all := []Status{StatusPending, StatusAssigned, StatusInProgress, StatusCompleted, StatusCancelled}
	allowed := map[[2]Status]bool{
		{StatusPending, StatusAssigned}:     true,
		{StatusPending, StatusCancelled}:    true,
		{StatusAssigned, StatusInProgress}:  true,
		{StatusInProgress, StatusCompleted}: true,
	}
	for _, from := range all {
		for _, to := range all {
			r := &ServiceRequest{Status: from}
			if got := r.CanTransitionTo(to); got != allowed[[2]Status{from, to}] {
				t.Fatalf("%s -> %s = %v", from, to, got)
			}
			if allowed[[2]Status{from, to}] && to.Rank() <= from.Rank() {
				t.Fatalf("%s -> %s does not advance rank", from, to)
			}
		}
	}
}

func TestLifecycleMethods(t *testing.T) {
	doctor := uuid.New()
	now := time.Now()
	r := &ServiceRequest{Status: StatusPending}

	if err := r.Start(now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("start from pending: %v", err)
	}
	if err := r.Assign(doctor, now); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := r.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := r.Cancel(now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("cancel after assignment: %v", err)
	}
	if err := r.Advance(StatusInProgress, now); err != nil {
		t.Fatalf("advance in-progress: %v", err)
	}
	if err := r.Advance(StatusCompleted, now); err != nil {
		t.Fatalf("advance completed: %v", err)
	}
	if !r.Status.IsTerminal() || r.CompletedAt == nil {
		t.Fatalf("unexpected state: %+v", r)
	}
}

func TestCheckMutation(t *testing.T) {
	doctor := uuid.New()
	prev := &ServiceRequest{ID: uuid.New(), PatientID: uuid.New(), Status: StatusAssigned, DoctorID: &doctor}

	moved := prev.Clone()
	moved.Location.Latitude = 1
	if err := CheckMutation(prev, moved); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("location change: %v", err)
	}

	cleared := prev.Clone()
	cleared.DoctorID = nil
	if err := CheckMutation(prev, cleared); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("doctor cleared: %v", err)
	}

	started := prev.Clone()
	started.Status = StatusInProgress
	if err := CheckMutation(prev, started); err != nil {
		t.Fatalf("valid mutation rejected: %v", err)
	}
}
