package dispatch

import "fmt"

// Config defines dispatch engine settings.
type Config struct {
	// RoundSize is the number of candidates notified in parallel per
	// round.
	RoundSize int `json:"round_size"`
	// OfferTimeoutSeconds is the response window per offer.
	OfferTimeoutSeconds int `json:"offer_timeout_seconds"`
	// MaxActiveJobs caps concurrent assignments per technician unless
	// the technician carries an own limit.
	MaxActiveJobs int `json:"max_active_jobs"`
	// SkillAliases maps an intervention category to additional skill
	// names considered a direct match.
	SkillAliases map[string][]string `json:"skill_aliases"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.RoundSize == 0 {
		c.RoundSize = 3
	}
	if c.OfferTimeoutSeconds == 0 {
		c.OfferTimeoutSeconds = 300
	}
	if c.MaxActiveJobs == 0 {
		c.MaxActiveJobs = 3
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.RoundSize < 1 {
		return fmt.Errorf("round_size must be at least 1")
	}
	if c.OfferTimeoutSeconds < 1 {
		return fmt.Errorf("offer_timeout_seconds must be positive")
	}
	if c.MaxActiveJobs < 1 {
		return fmt.Errorf("max_active_jobs must be positive")
	}
	return nil
}
