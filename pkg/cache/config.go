package cache

import "time"

// Default protocol settings.
const (
	DefaultTTL                = time.Hour
	DefaultHitWeight          = 1
	DefaultValidationWeight   = 5
	DefaultPromoteThreshold   = 25
	DefaultInitialScore       = 0
	DefaultSweepInterval      = time.Minute
	DefaultGraduationInterval = 5 * time.Minute
	DefaultMaxFanout          = 100
	DefaultRetryAttempts      = 3
	DefaultRetryBase          = 100 * time.Millisecond
	DefaultRetryMax           = 5 * time.Second
)

// Config holds the protocol settings shared by the cache components.
type Config struct {
	// TTL is the lifetime stamped on promoted edges.
	TTL time.Duration

	// HitWeight is the score delta for a cache hit event.
	HitWeight int64

	// ValidationWeight is the score delta for an explicit external
	// confirmation.
	ValidationWeight int64

	// PromoteThreshold is the score at which an edge becomes validated.
	PromoteThreshold int64

	// InitialScore is the confidence a freshly promoted edge starts with.
	InitialScore int64

	// PromoteDocumentNodes includes owning Document nodes in promotion;
	// when false only Paragraph endpoints are copied.
	PromoteDocumentNodes bool

	// SweepInterval is the cadence of the background sweeper.
	SweepInterval time.Duration

	// GraduationInterval is the cadence of the background graduation scan.
	GraduationInterval time.Duration

	// MaxFanout bounds the subgraph size of any neighbourhood fetch.
	MaxFanout int

	// RetryAttempts bounds retries against an unavailable store.
	RetryAttempts int

	// RetryBase and RetryMax shape the exponential backoff between retries.
	RetryBase time.Duration
	RetryMax  time.Duration
}

// DefaultConfig returns the protocol defaults.
func DefaultConfig() Config {
	return Config{
		TTL:                DefaultTTL,
		HitWeight:          DefaultHitWeight,
		ValidationWeight:   DefaultValidationWeight,
		PromoteThreshold:   DefaultPromoteThreshold,
		InitialScore:       DefaultInitialScore,
		SweepInterval:      DefaultSweepInterval,
		GraduationInterval: DefaultGraduationInterval,
		MaxFanout:          DefaultMaxFanout,
		RetryAttempts:      DefaultRetryAttempts,
		RetryBase:          DefaultRetryBase,
		RetryMax:           DefaultRetryMax,
	}
}
