package history

import (
	"database/sql"

	"codeberg.org/mutker/co2scale/internal/errors"
	"codeberg.org/mutker/co2scale/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS samples (
	       id             TEXT PRIMARY KEY,
	       sampled_at     INTEGER NOT NULL CHECK (typeof(sampled_at) = 'integer'),
	       load           REAL NOT NULL,
	       contained_co2  REAL NOT NULL,
	       used_mass      REAL NOT NULL CHECK (used_mass >= 0),
	       remaining_mass REAL NOT NULL
	   );
	   CREATE INDEX IF NOT EXISTS samples_sampled_at ON samples (sampled_at);`

	insertSampleSQL = `
    INSERT INTO samples (
        id, sampled_at,
        load, contained_co2,
        used_mass, remaining_mass
    ) VALUES (?, ?, ?, ?, ?, ?)`

	// sampled_at is stored in milliseconds.
	usageSQL = `
    SELECT strftime('%Y-%m-%d', sampled_at / 1000, 'unixepoch') AS day,
           MAX(used_mass) - MIN(used_mass) AS used,
           COUNT(*) AS samples
    FROM samples
    WHERE sampled_at >= ?
    GROUP BY day
    ORDER BY day`
)

// InitSchema creates a new database schema with the current version
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Msg("Creating history database...")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Debug().Err(err).Msg("Failed to rollback transaction")
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "create_tables",
		})
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "record_version",
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Info().
		Int("version", SchemaVersion).
		Msg("History schema initialized")

	return nil
}

// GetSchemaVersion returns the current schema version, or 0 for an empty
// database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

func TableExists(db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errors.New().WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}
	return exists, nil
}
