package server

import "time"

// Config is the HTTP server configuration.
type Config struct {
	// Address to listen on (e.g., ":8501")
	ListenAddr string

	// MaxImageBytes caps a single image upload.
	MaxImageBytes int

	// SweepInterval is how often idle sessions are reaped. Zero uses one minute.
	SweepInterval time.Duration
}

func (c Config) sweepInterval() time.Duration {
	if c.SweepInterval <= 0 {
		return time.Minute
	}
	return c.SweepInterval
}
