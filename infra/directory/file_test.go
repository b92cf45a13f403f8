package directory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const roster = `[
  {"id": "t1", "approved": true, "active": true, "latitude": 48.85, "longitude": 2.35, "skills": ["plumbing"]},
  {"id": "t2", "approved": false, "active": true, "latitude": 48.86, "longitude": 2.36},
  {"id": "t3", "approved": true, "active": true, "latitude": 0, "longitude": 0}
]`

func writeRoster(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roster.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write roster: %v", err)
	}
	return path
}

func TestFileDirectoryFiltersPool(t *testing.T) {
	d, err := NewFileDirectory(writeRoster(t, roster), time.Minute)
	if err != nil {
		t.Fatalf("NewFileDirectory: %v", err)
	}
	techs, err := d.ActiveTechnicians(context.Background(), "plumbing")
	if err != nil {
		t.Fatalf("ActiveTechnicians: %v", err)
	}
	// t2 is not approved, t3 has no position.
	if len(techs) != 1 || techs[0].ID != "t1" {
		t.Fatalf("unexpected pool: %+v", techs)
	}
	if !techs[0].HasSkill("Plumbing") {
		t.Fatal("expected case-insensitive skill match")
	}
}

func TestFileDirectoryReload(t *testing.T) {
	path := writeRoster(t, roster)
	d, err := NewFileDirectory(path, 0)
	if err != nil {
		t.Fatalf("NewFileDirectory: %v", err)
	}
	fresh := `[{"id": "t9", "approved": true, "active": true, "latitude": 1, "longitude": 1}]`
	if err := os.WriteFile(path, []byte(fresh), 0o644); err != nil {
		t.Fatalf("rewrite roster: %v", err)
	}
	techs, err := d.ActiveTechnicians(context.Background(), "")
	if err != nil {
		t.Fatalf("ActiveTechnicians: %v", err)
	}
	if len(techs) != 1 || techs[0].ID != "t9" {
		t.Fatalf("expected reloaded roster, got %+v", techs)
	}
}

func TestFileDirectoryBadFile(t *testing.T) {
	if _, err := NewFileDirectory(filepath.Join(t.TempDir(), "missing.json"), time.Minute); err == nil {
		t.Fatal("expected error for missing roster")
	}
	if _, err := NewFileDirectory(writeRoster(t, "{not json"), time.Minute); err == nil {
		t.Fatal("expected error for malformed roster")
	}
}
