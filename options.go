package upload

import (
	"log/slog"

	"github.com/awslabs/visual-asset-management-system-sub005/internal/planner"
	"github.com/awslabs/visual-asset-management-system-sub005/kvstore"
)

// DefaultConcurrency is the default bound on part uploads in flight.
const DefaultConcurrency = 4

// taskConfig collects the tunables threaded through task construction so
// tests can override any of them per task.
type taskConfig struct {
	concurrency int
	partSize    int64
	maxParts    int
	store       kvstore.KV
	storageKey  string
	ledger      *Ledger
	displayName string
	logger      *slog.Logger
}

// Option configures an upload task.
type Option func(*taskConfig)

func defaultConfig() taskConfig {
	return taskConfig{
		concurrency: DefaultConcurrency,
		partSize:    planner.DefaultPartSize,
		maxParts:    planner.DefaultMaxParts,
		storageKey:  DefaultStorageKey,
	}
}

// WithConcurrency sets the maximum number of part uploads in flight.
// Default is 4.
func WithConcurrency(concurrency int) Option {
	return func(c *taskConfig) {
		if concurrency > 0 {
			c.concurrency = concurrency
		}
	}
}

// WithPartSize sets the part-size floor for planning. The planner doubles
// it as needed to stay within the part-count limit. Default is 5 MiB.
func WithPartSize(partSize int64) Option {
	return func(c *taskConfig) {
		if partSize > 0 {
			c.partSize = partSize
		}
	}
}

// WithMaxParts sets the protocol upper bound on parts per upload session.
// Default is 10000.
func WithMaxParts(maxParts int) Option {
	return func(c *taskConfig) {
		if maxParts > 0 {
			c.maxParts = maxParts
		}
	}
}

// WithStore sets the durable key-value store backing the upload ledger.
// Default is an in-memory store, which does not survive a process
// restart; use kvstore.NewFileStore for cross-run resumability.
func WithStore(store kvstore.KV) Option {
	return func(c *taskConfig) {
		c.store = store
	}
}

// WithStorageKey sets the well-known key the ledger serializes under.
// Default is DefaultStorageKey.
func WithStorageKey(key string) Option {
	return func(c *taskConfig) {
		if key != "" {
			c.storageKey = key
		}
	}
}

// WithLedger injects a shared ledger instance. Tasks for different files
// can share one ledger; this overrides WithStore and WithStorageKey.
func WithLedger(ledger *Ledger) Option {
	return func(c *taskConfig) {
		c.ledger = ledger
	}
}

// WithDisplayName sets the human-readable transfer name recorded in the
// ledger. Default is the source name, or the destination key's base name
// for anonymous sources.
func WithDisplayName(name string) Option {
	return func(c *taskConfig) {
		c.displayName = name
	}
}

// WithLogger sets an optional structured logger for task lifecycle and
// part activity. Default is no logging.
func WithLogger(logger *slog.Logger) Option {
	return func(c *taskConfig) {
		c.logger = logger
	}
}
