package rating

import (
	"context"
	"math"
	"path/filepath"
	"testing"
)

func TestAverageRatingColdStart(t *testing.T) {
	r, err := NewSQLiteRatings(filepath.Join(t.TempDir(), "ratings.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRatings: %v", err)
	}
	defer func() { _ = r.Close() }()

	_, ok, err := r.AverageRating(context.Background(), "tech-new")
	if err != nil {
		t.Fatalf("AverageRating: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for unrated technician")
	}
}

func TestAverageRatingMean(t *testing.T) {
	r, err := NewSQLiteRatings(filepath.Join(t.TempDir(), "ratings.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRatings: %v", err)
	}
	defer func() { _ = r.Close() }()

	ctx := context.Background()
	for i, mark := range []float64{4.0, 5.0, 3.5} {
		id := string(rune('a' + i))
		if err := r.AddMark(ctx, "tech-1", "iv-"+id, mark); err != nil {
			t.Fatalf("AddMark: %v", err)
		}
	}
	avg, ok, err := r.AverageRating(ctx, "tech-1")
	if err != nil {
		t.Fatalf("AverageRating: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
	if math.Abs(avg-4.166666) > 1e-5 {
		t.Fatalf("expected mean 4.1667, got %f", avg)
	}

	// Marks for another technician stay isolated.
	if err := r.AddMark(ctx, "tech-2", "iv-x", 1.0); err != nil {
		t.Fatalf("AddMark: %v", err)
	}
	avg, _, err = r.AverageRating(ctx, "tech-1")
	if err != nil {
		t.Fatalf("AverageRating: %v", err)
	}
	if math.Abs(avg-4.166666) > 1e-5 {
		t.Fatalf("mean changed unexpectedly: %f", avg)
	}
}
