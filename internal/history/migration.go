package history

import (
	"database/sql"

	"codeberg.org/mutker/co2scale/internal/errors"
	"codeberg.org/mutker/co2scale/internal/logger"
)

// ValidateAndUpdateSchema checks the schema version and recreates it if
// needed. History is a convenience log, so an outdated schema is dropped
// rather than migrated.
func ValidateAndUpdateSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	version, err := GetSchemaVersion(db)
	if err != nil {
		return errFactory.Wrap(ErrSchemaValidationFailed, err)
	}

	if version == SchemaVersion {
		log.Debug().Int("version", version).Msg("History schema is current")
		return nil
	}

	if version != 0 {
		log.Warn().
			Int("found", version).
			Int("expected", SchemaVersion).
			Msg("Discarding history with outdated schema")
	}

	if err := dropTables(db, log); err != nil {
		return err
	}
	return InitSchema(db, log)
}

func dropTables(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaMigrationFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Debug().Err(err).Msg("Failed to rollback drop tables")
			}
		}
	}()

	for _, table := range []string{"samples", "schema_versions"} {
		if _, err := tx.Exec("DROP TABLE IF EXISTS " + table); err != nil {
			return errFactory.WithData(ErrSchemaMigrationFailed, struct {
				Phase string
				Table string
				Error string
			}{
				Phase: "drop_table",
				Table: table,
				Error: err.Error(),
			})
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaMigrationFailed, err)
	}
	committed = true

	return nil
}
