package errors

// ErrorCode represents a unique identifier for each error type
type ErrorCode string

// Error represents a domain-specific error with context
type Error interface {
	error
	Code() ErrorCode
	Kind() Kind
	WithMessage(msg string) Error
	WithData(data any) Error
	GetData() any
	Unwrap() error
}

// Factory defines methods for creating domain errors
type Factory interface {
	New(code ErrorCode) Error
	Wrap(code ErrorCode, err error) Error
	WithMessage(code ErrorCode, msg string) Error
	WithData(code ErrorCode, data any) Error
}

// Kind groups error codes into the categories callers act on.
type Kind int

const (
	KindInternal Kind = iota
	// KindValidation is bad input, rejected before any I/O.
	KindValidation
	// KindTransport is an unreachable device or a timed out request.
	KindTransport
	// KindProtocol is a response the client could not make sense of.
	KindProtocol
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	default:
		return "internal"
	}
}
