package observability

import "codeberg.org/mutker/co2scale/internal/errors"

const (
	ErrRegisterCollector = errors.ErrorCode("observability_register_collector_failed")
	ErrTracingInit       = errors.ErrInitFailed
	ErrTracingExporter   = errors.ErrorCode("observability_unsupported_exporter")
)
