package history

import "codeberg.org/mutker/co2scale/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDSN    = errors.ErrorCode("history_invalid_dsn")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("history_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("history_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("history_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("history_transaction_failed")

	// Storage Errors
	ErrStorageInit  = errors.ErrInitFailed
	ErrStorageClose = errors.ErrShutdownFailed
	ErrQueryFailed  = errors.ErrorCode("history_query_failed")

	// Service Errors
	ErrServiceShutdown = errors.ErrShutdownFailed
	ErrInvalidSample   = errors.ErrorCode("history_invalid_sample")
	ErrRecordFailed    = errors.ErrorCode("history_record_failed")
	ErrInvalidDays     = errors.ErrInvalidArgument

	// Operation Errors
	ErrOperationTimeout = errors.ErrTimeout
)
