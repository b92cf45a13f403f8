package model

import (
	"math"
	"testing"
	"time"
)

func TestHaversineKm(t *testing.T) {
	// Paris to Lyon, roughly 392 km great-circle.
	d := HaversineKm(48.8566, 2.3522, 45.7640, 4.8357)
	if math.Abs(d-392) > 5 {
		t.Fatalf("Paris-Lyon distance = %.1f km, expected ~392", d)
	}
	if d := HaversineKm(48.85, 2.35, 48.85, 2.35); d != 0 {
		t.Fatalf("zero distance expected for identical points, got %f", d)
	}
	// Symmetry.
	a := HaversineKm(48.85, 2.35, 50.0, 3.0)
	b := HaversineKm(50.0, 3.0, 48.85, 2.35)
	if math.Abs(a-b) > 1e-9 {
		t.Fatalf("distance not symmetric: %f vs %f", a, b)
	}
}

func TestTravelTime(t *testing.T) {
	if got := TravelTime(40); got != time.Hour {
		t.Fatalf("40 km at 40 km/h = %v, expected 1h", got)
	}
	if got := TravelTime(10); got != 15*time.Minute {
		t.Fatalf("10 km = %v, expected 15m", got)
	}
	if got := TravelTime(0); got != 0 {
		t.Fatalf("zero distance = %v, expected 0", got)
	}
	if got := TravelTime(-3); got != 0 {
		t.Fatalf("negative distance = %v, expected 0", got)
	}
}

func TestInterventionStatusString(t *testing.T) {
	cases := map[InterventionStatus]string{
		StatusNew:               "new",
		StatusAssigned:          "assigned",
		StatusOnRoute:           "on_route",
		StatusArrived:           "arrived",
		StatusInProgress:        "in_progress",
		StatusToReassign:        "to_reassign",
		StatusCompleted:         "completed",
		StatusCancelled:         "cancelled",
		InterventionStatus(999): "unknown",
	}
	for st, want := range cases {
		if got := st.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", st, got, want)
		}
	}
}

func TestInterventionValidate(t *testing.T) {
	base := Intervention{ID: "iv-1", Latitude: 48.85, Longitude: 2.35, Status: StatusNew}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid intervention rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Intervention)
	}{
		{"missing id", func(iv *Intervention) { iv.ID = "" }},
		{"latitude out of range", func(iv *Intervention) { iv.Latitude = 91 }},
		{"longitude out of range", func(iv *Intervention) { iv.Longitude = -181 }},
		{"assigned without technician", func(iv *Intervention) { iv.Status = StatusOnRoute }},
		{"technician on open job", func(iv *Intervention) { iv.TechnicianID = "t1" }},
	}
	for _, tc := range cases {
		iv := base
		tc.mutate(&iv)
		if err := iv.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestInterventionAssigned(t *testing.T) {
	iv := Intervention{ID: "iv-1", Status: StatusOnRoute, TechnicianID: "t1"}
	if !iv.Assigned() {
		t.Fatal("on_route with technician should be assigned")
	}
	iv.Status = StatusToReassign
	iv.TechnicianID = ""
	if iv.Assigned() {
		t.Fatal("to_reassign should not be assigned")
	}
}

func TestAttemptExpired(t *testing.T) {
	now := time.Now()
	a := DispatchAttempt{
		Status:     AttemptPending,
		NotifiedAt: now.Add(-10 * time.Minute),
		TimeoutAt:  now.Add(-5 * time.Minute),
	}
	if !a.Expired(now) {
		t.Fatal("overdue pending attempt should be expired")
	}

	fresh := a
	fresh.TimeoutAt = now.Add(5 * time.Minute)
	if fresh.Expired(now) {
		t.Fatal("attempt inside its window should not be expired")
	}

	// A queued attempt that was never sent has no window to miss.
	queued := DispatchAttempt{Status: AttemptPending}
	if queued.Expired(now) {
		t.Fatal("unnotified attempt should not expire")
	}

	done := a
	done.Status = AttemptRejected
	if done.Expired(now) {
		t.Fatal("terminal attempt should not expire")
	}
}

func TestAttemptStatusTerminal(t *testing.T) {
	if AttemptPending.Terminal() {
		t.Fatal("pending is not terminal")
	}
	for _, st := range []AttemptStatus{AttemptAccepted, AttemptRejected, AttemptCancelled, AttemptTimeout} {
		if !st.Terminal() {
			t.Fatalf("%s should be terminal", st)
		}
	}
}

func TestTechnicianHasSkill(t *testing.T) {
	tech := Technician{Skills: []string{"Plumbing", " electrical "}}
	if !tech.HasSkill("plumbing") {
		t.Fatal("skill match should be case-insensitive")
	}
	if !tech.HasSkill("ELECTRICAL") {
		t.Fatal("skill match should trim whitespace")
	}
	if tech.HasSkill("hvac") {
		t.Fatal("unexpected skill match")
	}
}

func TestTechnicianGeolocated(t *testing.T) {
	if (Technician{}).Geolocated() {
		t.Fatal("zero position should not count as geolocated")
	}
	if !(Technician{Latitude: 48.85, Longitude: 2.35}).Geolocated() {
		t.Fatal("positioned technician should be geolocated")
	}
}
