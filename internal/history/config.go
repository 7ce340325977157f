package history

import (
	"strings"
	"time"

	"codeberg.org/mutker/co2scale/internal/errors"
)

const (
	defaultDirPerm      = 0o755
	defaultDSN          = "file:co2scale?mode=memory&cache=shared"
	defaultBatchSize    = 10
	defaultBatchTimeout = 5 * time.Second
	defaultMaxBuffered  = 1000
)

type Config struct {
	DSN          string
	BatchSize    int
	BatchTimeout time.Duration
	// MaxBuffered bounds the samples held while the database is failing.
	// The oldest are dropped first. Zero means the default.
	MaxBuffered int
	Enabled     bool
}

func DefaultConfig() Config {
	return Config{
		DSN:          defaultDSN,
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
		MaxBuffered:  defaultMaxBuffered,
		Enabled:      false, // Disabled by default
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate the DSN if history is enabled
	if c.Enabled && strings.TrimSpace(c.DSN) == "" {
		return errFactory.New(ErrInvalidDSN)
	}
	if c.BatchSize < 0 || c.BatchTimeout < 0 || c.MaxBuffered < 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "history batch settings must not be negative")
	}
	return nil
}

// maxBuffered never lets the cap fall below one batch.
func (c Config) maxBuffered() int {
	limit := c.MaxBuffered
	if limit == 0 {
		limit = defaultMaxBuffered
	}
	return max(limit, c.BatchSize, 1)
}

// isFile reports whether the DSN names a database file rather than an
// in-memory database.
func (c Config) isFile() bool {
	dsn := strings.TrimSpace(c.DSN)
	return dsn != ":memory:" && !strings.Contains(dsn, "mode=memory")
}

// isPlainPath reports whether the DSN is a bare file path, which gets its
// directory created and WAL pragmas appended.
func (c Config) isPlainPath() bool {
	return c.isFile() && !strings.HasPrefix(c.DSN, "file:") && !strings.Contains(c.DSN, "?")
}
