package scale

import (
	"context"
	"encoding/json"
	"time"
)

// Client is the set of operations the scale service offers. Implementations
// do not retry or cache; callers decide.
type Client interface {
	// ReadLoad fetches the current load and the contained CO2 the device
	// holds.
	ReadLoad(ctx context.Context) (Reading, error)

	// SetBaseline stores a new contained CO2 value on the device. Non-finite
	// values are rejected before any request is made.
	SetBaseline(ctx context.Context, grams float64) (Confirmation, error)

	// Tare zeroes the load reference of the device.
	Tare(ctx context.Context) (Confirmation, error)
}

// Reading is one sample received from the scale. Load is signed: tension and
// compression both count as usage.
type Reading struct {
	ID           string    `json:"id"`
	Load         float64   `json:"load"`
	ContainedCo2 float64   `json:"contained_co2"`
	SampledAt    time.Time `json:"sampled_at"`
	// RequestedAt is when the read was issued. A baseline committed after
	// it is newer than the ContainedCo2 this reading carries.
	RequestedAt time.Time `json:"requested_at"`
}

// Confirmation is the device's acknowledgement of a write.
type Confirmation struct {
	// Info is the device's status text, usually "OK".
	Info string `json:"info,omitempty"`
	// Value is the acknowledged contained CO2 for SetBaseline. The device may
	// clamp, so it is taken from the response when present.
	Value float64 `json:"value"`
	// Raw is the acknowledgement body as received.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// Operation names a scale service call for metrics and traces.
type Operation string

const (
	OpReadLoad    Operation = "read_load"
	OpSetBaseline Operation = "set_baseline"
	OpTare        Operation = "tare"
)

// Outcome classifies how a request ended.
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeTransport Outcome = "transport_error"
	OutcomeProtocol  Outcome = "protocol_error"
	OutcomeInternal  Outcome = "internal_error"
)

// Recorder receives one observation per completed request.
type Recorder interface {
	ObserveRequest(op Operation, outcome Outcome, elapsed time.Duration)
}

// Service paths, relative to the configured address.
const (
	PathLoad         = "/api/v1/load"
	PathContainedCo2 = "/api/v1/contained-co2"
	PathTare         = "/api/v1/tare"
)
