package service

import "time"

// Config holds the tunables of the authentication services
type Config struct {
	NonceTTL       time.Duration // Lifetime of a sign-in challenge
	AccessTTL      time.Duration // Lifetime of an access token
	RefreshTTL     time.Duration // Lifetime of a refresh token
	DefaultChainID int64         // Chain used when a challenge request names none

	// Clock returns the current time; nil means time.Now
	Clock func() time.Time
}

// DefaultConfig returns the default service configuration
func DefaultConfig() Config {
	return Config{
		NonceTTL:       5 * time.Minute,
		AccessTTL:      15 * time.Minute,
		RefreshTTL:     7 * 24 * time.Hour,
		DefaultChainID: 1,
	}
}

// withDefaults fills zero values from DefaultConfig
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.NonceTTL <= 0 {
		c.NonceTTL = d.NonceTTL
	}
	if c.AccessTTL <= 0 {
		c.AccessTTL = d.AccessTTL
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = d.RefreshTTL
	}
	if c.DefaultChainID <= 0 {
		c.DefaultChainID = d.DefaultChainID
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}
