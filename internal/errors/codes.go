package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrAlreadyRunning  ErrorCode = "already_running"

	// Taxonomy roots
	ErrValidation ErrorCode = "validation_failed"
	ErrTransport  ErrorCode = "transport_failed"
	ErrProtocol   ErrorCode = "protocol_violation"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"
	ErrInvalidAddress  ErrorCode = "invalid_address"
	ErrInvalidPolicy   ErrorCode = "invalid_overlap_policy"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Input errors
	ErrEmptyInput     ErrorCode = "empty_input"
	ErrNotANumber     ErrorCode = "not_a_number"
	ErrNonFiniteValue ErrorCode = "non_finite_value"

	// Scale service errors
	ErrRequestFailed    ErrorCode = "request_failed"
	ErrTimeout          ErrorCode = "operation_timeout"
	ErrUnexpectedStatus ErrorCode = "unexpected_status"
	ErrDecodeResponse   ErrorCode = "decode_response_failed"
	ErrMissingField     ErrorCode = "missing_field"

	// Lifecycle errors
	ErrInitFailed       ErrorCode = "initialization_failed"
	ErrShutdownFailed   ErrorCode = "shutdown_failed"
	ErrInvalidOperation ErrorCode = "invalid_operation"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:         "Internal error occurred",
	ErrInvalidArgument:  "Invalid argument provided",
	ErrAlreadyRunning:   "Another instance is already running",
	ErrValidation:       "Validation failed",
	ErrTransport:        "Scale unreachable",
	ErrProtocol:         "Unexpected response from scale",
	ErrInvalidConfig:    "Invalid configuration",
	ErrReadConfig:       "Failed to read configuration",
	ErrInvalidInterval:  "Invalid interval value",
	ErrInvalidAddress:   "Invalid scale address",
	ErrInvalidPolicy:    "Invalid overlap policy",
	ErrInvalidLogLevel:  "Invalid log level",
	ErrEmptyInput:       "Input is empty",
	ErrNotANumber:       "Input is not a number",
	ErrNonFiniteValue:   "Value is not a finite number",
	ErrRequestFailed:    "Request to scale failed",
	ErrTimeout:          "Operation timed out",
	ErrUnexpectedStatus: "Scale answered with an unexpected status",
	ErrDecodeResponse:   "Failed to decode scale response",
	ErrMissingField:     "Scale response is missing a field",
	ErrInitFailed:       "Initialization failed",
	ErrShutdownFailed:   "Shutdown failed",
	ErrInvalidOperation: "Invalid operation",
}

var errorKinds = map[ErrorCode]Kind{
	ErrValidation:       KindValidation,
	ErrInvalidArgument:  KindValidation,
	ErrInvalidConfig:    KindValidation,
	ErrInvalidInterval:  KindValidation,
	ErrInvalidAddress:   KindValidation,
	ErrInvalidPolicy:    KindValidation,
	ErrInvalidLogLevel:  KindValidation,
	ErrEmptyInput:       KindValidation,
	ErrNotANumber:       KindValidation,
	ErrNonFiniteValue:   KindValidation,
	ErrTransport:        KindTransport,
	ErrRequestFailed:    KindTransport,
	ErrTimeout:          KindTransport,
	ErrProtocol:         KindProtocol,
	ErrUnexpectedStatus: KindProtocol,
	ErrDecodeResponse:   KindProtocol,
	ErrMissingField:     KindProtocol,
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}

// KindOf returns the category a code belongs to.
func KindOf(code ErrorCode) Kind {
	return errorKinds[code]
}
