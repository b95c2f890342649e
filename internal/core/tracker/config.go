package tracker

import "time"

// Config holds eviction and abort timing. The grace periods keep terminal
// entries visible briefly so UI surfaces can show the final state before the
// entry disappears.
type Config struct {
	CompletedGrace time.Duration
	ErrorGrace     time.Duration
	CancelledGrace time.Duration

	SweepInterval time.Duration
	SweepCutoff   time.Duration

	AbortTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		CompletedGrace: 5 * time.Second,
		ErrorGrace:     10 * time.Second,
		CancelledGrace: 3 * time.Second,

		SweepInterval: 5 * time.Minute,
		SweepCutoff:   30 * time.Minute,

		AbortTimeout: 10 * time.Second,
	}
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	if out.CompletedGrace <= 0 {
		out.CompletedGrace = def.CompletedGrace
	}
	if out.ErrorGrace <= 0 {
		out.ErrorGrace = def.ErrorGrace
	}
	if out.CancelledGrace <= 0 {
		out.CancelledGrace = def.CancelledGrace
	}
	if out.SweepInterval <= 0 {
		out.SweepInterval = def.SweepInterval
	}
	if out.SweepCutoff <= 0 {
		out.SweepCutoff = def.SweepCutoff
	}
	if out.AbortTimeout <= 0 {
		out.AbortTimeout = def.AbortTimeout
	}
	return out
}
