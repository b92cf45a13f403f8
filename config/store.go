package config

import "fmt"

// StoreConfig selects the dispatch state backend.
type StoreConfig struct {
	// Backend selects the store type: "memory" or "sqlite".
	Backend string `json:"backend"`
	// Path is the database file location for the sqlite backend.
	Path string `json:"path"`
}

// SetDefaults applies sane defaults.
func (c *StoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
	if c.Backend == "sqlite" && c.Path == "" {
		c.Path = "dispatch.db"
	}
}

// Validate checks mandatory fields.
func (c StoreConfig) Validate() error {
	if c.Backend != "memory" && c.Backend != "sqlite" {
		return fmt.Errorf("unknown backend %s", c.Backend)
	}
	if c.Backend == "sqlite" && c.Path == "" {
		return fmt.Errorf("path is required for the sqlite backend")
	}
	return nil
}

// RatingConfig points at the job rating database.
type RatingConfig struct {
	// Enabled turns the rating source on; disabled deployments score
	// every technician with the cold-start default.
	Enabled bool `json:"enabled"`
	// Path is the ratings database file location.
	Path string `json:"path"`
}

// SetDefaults applies sane defaults.
func (c *RatingConfig) SetDefaults() {
	if c.Enabled && c.Path == "" {
		c.Path = "ratings.db"
	}
}

// DirectoryConfig points at the technician roster file.
type DirectoryConfig struct {
	// Path is the JSON roster file location.
	Path string `json:"path"`
	// ReloadSeconds is the roster cache lifetime.
	ReloadSeconds int `json:"reload_seconds"`
}

// SetDefaults applies sane defaults.
func (c *DirectoryConfig) SetDefaults() {
	if c.ReloadSeconds == 0 {
		c.ReloadSeconds = 60
	}
}

// Validate checks mandatory fields.
func (c DirectoryConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("directory path is required")
	}
	return nil
}
