package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/co2scale/internal/errors"
	"codeberg.org/mutker/co2scale/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

type repository struct {
	db            *sql.DB
	logger        logger.Logger
	cfg           Config
	mu            sync.Mutex
	buffer        []*Sample
	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
	closeOnce     sync.Once
}

// NewRepository opens the SQLite database named by cfg.DSN and makes sure
// its schema is current.
func NewRepository(cfg Config, log logger.Logger) (Repository, error) {
	errFactory := errors.New()

	if cfg.DSN == "" {
		return nil, errFactory.New(ErrInvalidDSN)
	}

	dsn := cfg.DSN
	if cfg.isPlainPath() {
		if err := os.MkdirAll(filepath.Dir(dsn), defaultDirPerm); err != nil {
			return nil, errFactory.WithData(ErrStorageInit, struct {
				Phase string
				Path  string
				Error string
			}{
				Phase: "create_directory",
				Path:  dsn,
				Error: err.Error(),
			})
		}
		dsn += "?_journal=WAL&_auto_vacuum=2"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	// A shared in-memory database lives only as long as one connection.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	repo, err := newRepository(db, cfg, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	return repo, nil
}

func newRepository(db *sql.DB, cfg Config, log logger.Logger) (*repository, error) {
	if err := ValidateAndUpdateSchema(db, log); err != nil {
		return nil, errors.New().WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Info().
		Str("dsn", cfg.DSN).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Dur("batch_timeout", cfg.BatchTimeout).
		Int("max_buffered", cfg.maxBuffered()).
		Msg("History repository initialized")

	repo := &repository{
		db:            db,
		logger:        log,
		cfg:           cfg,
		buffer:        make([]*Sample, 0, max(cfg.BatchSize, 1)),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	if cfg.BatchSize > 1 && cfg.BatchTimeout > 0 {
		repo.flushTicker = time.NewTicker(cfg.BatchTimeout)
		go repo.flusher()
	} else {
		close(repo.flushDoneChan)
	}

	return repo, nil
}

func (r *repository) Record(sample *Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, sample)
	if over := len(r.buffer) - r.cfg.maxBuffered(); over > 0 {
		clear(r.buffer[:over])
		r.buffer = r.buffer[over:]
		r.logger.Warn().Int("dropped", over).Msg("History buffer full, dropping oldest samples")
	}

	if len(r.buffer) >= r.cfg.BatchSize {
		return r.flush()
	}

	return nil
}

// Usage flushes buffered samples and aggregates everything since since.
func (r *repository) Usage(ctx context.Context, since time.Time) ([]DailyUsage, error) {
	errFactory := errors.New()

	r.mu.Lock()
	err := r.flush()
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, usageSQL, since.UnixMilli())
	if err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}
	defer rows.Close()

	usage := make([]DailyUsage, 0)
	for rows.Next() {
		var d DailyUsage
		if err := rows.Scan(&d.Day, &d.Used, &d.Samples); err != nil {
			return nil, errFactory.Wrap(ErrQueryFailed, err)
		}
		usage = append(usage, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}

	return usage, nil
}

func (r *repository) Close() error {
	var closeErr error

	r.closeOnce.Do(func() {
		close(r.shutdownChan)
		if r.flushTicker != nil {
			r.flushTicker.Stop()
		}

		// Wait for the flusher to finish its final flush
		<-r.flushDoneChan

		if r.flushTicker == nil {
			r.mu.Lock()
			if err := r.flush(); err != nil {
				r.logger.Warn().Err(err).Msg("Failed to flush history on close")
			}
			r.mu.Unlock()
		}

		if r.cfg.isPlainPath() {
			if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
				closeErr = errors.New().WithData(ErrStorageClose, struct {
					Phase string
					Error string
				}{
					Phase: "checkpoint_wal",
					Error: err.Error(),
				})
				return
			}
		}

		if err := r.db.Close(); err != nil {
			closeErr = errors.New().WithData(ErrStorageClose, struct {
				Phase string
				Error string
			}{
				Phase: "close_database",
				Error: err.Error(),
			})
			return
		}

		r.logger.Info().Msg("History repository closed")
	})

	return closeErr
}

func (r *repository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.C:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				r.logger.Warn().Err(err).Msg("Periodic history flush failed")
			}
			r.mu.Unlock()
		case <-r.shutdownChan:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				r.logger.Warn().Err(err).Msg("Final history flush failed")
			}
			r.mu.Unlock()
			return
		}
	}
}

// flush writes the buffer in one transaction. Callers hold r.mu. On failure
// the buffer is kept for the next attempt.
func (r *repository) flush() error {
	if len(r.buffer) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := r.db.Begin()
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to begin transaction")
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	stmt, err := tx.Prepare(insertSampleSQL)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to prepare statement")
		if err := tx.Rollback(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to roll back transaction")
		}
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	for _, sample := range r.buffer {
		if _, err := stmt.Exec(
			sample.ID,
			sample.SampledAt.UnixMilli(),
			sample.Load,
			sample.ContainedCo2,
			sample.UsedMass,
			sample.RemainingMass,
		); err != nil {
			r.logger.Error().Err(err).Msg("Failed to execute insert")
			if err := tx.Rollback(); err != nil {
				r.logger.Error().Err(err).Msg("Failed to roll back transaction")
			}
			return errFactory.Wrap(ErrTransactionFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error().Err(err).Msg("Failed to commit transaction")
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	r.logger.Debug().Int("records", len(r.buffer)).Msg("Flushed samples to history")
	r.buffer = r.buffer[:0]

	return nil
}
