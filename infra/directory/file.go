// Package directory provides a file-backed technician directory. The roster
// lives in a JSON file maintained by the back office and is reloaded on a
// fixed interval so edits show up without a restart.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	coredirectory "github.com/nroult/fieldops/core/directory"
	"github.com/nroult/fieldops/core/model"
)

// technicianRecord is the on-disk shape of a roster entry.
type technicianRecord struct {
	ID            string   `json:"id"`
	Approved      bool     `json:"approved"`
	Active        bool     `json:"active"`
	Available     bool     `json:"available"`
	Latitude      float64  `json:"latitude"`
	Longitude     float64  `json:"longitude"`
	Skills        []string `json:"skills"`
	MaxActiveJobs int      `json:"max_active_jobs"`
}

// FileDirectory serves technicians from a JSON roster file.
type FileDirectory struct {
	path string
	ttl  time.Duration

	mu       sync.Mutex
	pool     []model.Technician
	loadedAt time.Time
}

var _ coredirectory.TechnicianDirectory = (*FileDirectory)(nil)

// NewFileDirectory loads the roster once and caches it for ttl. A zero ttl
// means every call re-reads the file.
func NewFileDirectory(path string, ttl time.Duration) (*FileDirectory, error) {
	d := &FileDirectory{path: path, ttl: ttl}
	if err := d.reload(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *FileDirectory) reload() error {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return fmt.Errorf("read roster: %w", err)
	}
	var records []technicianRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("decode roster: %w", err)
	}
	pool := make([]model.Technician, 0, len(records))
	for _, r := range records {
		pool = append(pool, model.Technician{
			ID:            r.ID,
			Approved:      r.Approved,
			Active:        r.Active,
			Available:     r.Available,
			Latitude:      r.Latitude,
			Longitude:     r.Longitude,
			Skills:        r.Skills,
			MaxActiveJobs: r.MaxActiveJobs,
		})
	}
	d.pool = pool
	d.loadedAt = time.Now()
	return nil
}

// ActiveTechnicians returns the approved, active, geolocated subset of the
// roster, reloading the file when the cache is stale. A failed reload keeps
// serving the previous roster.
func (d *FileDirectory) ActiveTechnicians(_ context.Context, _ string) ([]model.Technician, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if time.Since(d.loadedAt) >= d.ttl {
		if err := d.reload(); err != nil && len(d.pool) == 0 {
			return nil, err
		}
	}
	var out []model.Technician
	for _, t := range d.pool {
		if t.Approved && t.Active && t.Geolocated() {
			out = append(out, t)
		}
	}
	return out, nil
}
