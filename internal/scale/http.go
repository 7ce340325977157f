package scale

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/co2scale/internal/errors"
	"codeberg.org/mutker/co2scale/internal/logger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxResponseBody = 64 << 10
	maxErrorBody    = 512
	tracerName      = "codeberg.org/mutker/co2scale/internal/scale"
)

// HTTPClient talks to the scale service over HTTP. It is safe for
// concurrent use; overlapping calls are not serialized.
type HTTPClient struct {
	client   *http.Client
	timeout  time.Duration
	origin   string
	recorder Recorder
	tracer   trace.Tracer
	logger   logger.Logger

	mu      sync.RWMutex
	baseURL string
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithTimeout bounds every request. Zero, the default, leaves timing to the
// caller's context and the transport.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) {
		c.timeout = d
	}
}

// WithTransport replaces the underlying RoundTripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *HTTPClient) {
		if rt != nil {
			c.client.Transport = rt
		}
	}
}

// WithOrigin sets the Origin header sent with every request.
func WithOrigin(origin string) Option {
	return func(c *HTTPClient) {
		c.origin = strings.TrimSpace(origin)
	}
}

// WithRecorder reports every request outcome to r.
func WithRecorder(r Recorder) Option {
	return func(c *HTTPClient) {
		c.recorder = r
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(log logger.Logger) Option {
	return func(c *HTTPClient) {
		if log != nil {
			c.logger = log
		}
	}
}

// NewHTTPClient builds a client for the scale service at address.
func NewHTTPClient(address string, opts ...Option) (*HTTPClient, error) {
	baseURL, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	c := &HTTPClient{
		client:  &http.Client{},
		baseURL: baseURL,
		tracer:  otel.Tracer(tracerName),
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// BaseURL returns the address requests are currently sent to.
func (c *HTTPClient) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// SetAddress points the client at a new scale. Requests already in flight
// keep their original target.
func (c *HTTPClient) SetAddress(address string) error {
	baseURL, err := NormalizeAddress(address)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.baseURL != baseURL {
		c.logger.Info().Str("from", c.baseURL).Str("to", baseURL).Msg("Scale address changed")
		c.baseURL = baseURL
	}

	return nil
}

type loadResponse struct {
	Info         string   `json:"info"`
	Load         *float64 `json:"load"`
	ContainedCo2 *float64 `json:"contained_co2"`
}

// validate rejects the {"info": "Scale error"} answer the device gives when
// its load cell cannot be read.
func (r *loadResponse) validate() error {
	errFactory := errors.New()

	if r.Load == nil {
		return errFactory.WithData(errors.ErrMissingField, missingFieldData("load", r.Info))
	}

	if r.ContainedCo2 == nil {
		return errFactory.WithData(errors.ErrMissingField, missingFieldData("contained_co2", r.Info))
	}

	return nil
}

// parseAck reads what it can from an acknowledgement whose shape the
// device does not guarantee: a string "info" and a finite numeric
// "contained_co2" of an object, or a bare JSON string as info. Anything
// else is ignored.
func parseAck(raw json.RawMessage) (info string, value *float64) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return s, nil
		}
		return "", nil
	}

	if s, ok := fields["info"].(string); ok {
		info = s
	}
	if v, ok := fields["contained_co2"].(float64); ok && CheckFinite(v) == nil {
		value = &v
	}

	return info, value
}

type setBaselineRequest struct {
	ContainedCo2 float64 `json:"contained_co2"`
}

func (c *HTTPClient) ReadLoad(ctx context.Context) (Reading, error) {
	requested := time.Now()

	var resp loadResponse
	if err := c.do(ctx, OpReadLoad, http.MethodGet, PathLoad, nil, &resp); err != nil {
		return Reading{}, err
	}

	return Reading{
		ID:           uuid.NewString(),
		Load:         *resp.Load,
		ContainedCo2: *resp.ContainedCo2,
		SampledAt:    time.Now().UTC(),
		RequestedAt:  requested,
	}, nil
}

func (c *HTTPClient) SetBaseline(ctx context.Context, grams float64) (Confirmation, error) {
	if err := CheckFinite(grams); err != nil {
		return Confirmation{}, err
	}

	var raw json.RawMessage
	if err := c.do(ctx, OpSetBaseline, http.MethodPost, PathContainedCo2, setBaselineRequest{ContainedCo2: grams}, &raw); err != nil {
		return Confirmation{}, err
	}

	info, acked := parseAck(raw)
	confirmed := grams
	if acked != nil {
		confirmed = *acked
	}

	return Confirmation{Info: info, Value: confirmed, Raw: raw}, nil
}

func (c *HTTPClient) Tare(ctx context.Context) (Confirmation, error) {
	var raw json.RawMessage
	if err := c.do(ctx, OpTare, http.MethodPost, PathTare, nil, &raw); err != nil {
		return Confirmation{}, err
	}

	info, _ := parseAck(raw)
	return Confirmation{Info: info, Raw: raw}, nil
}

// do performs one request and decodes a JSON object into out.
func (c *HTTPClient) do(ctx context.Context, op Operation, method, path string, body, out any) (err error) {
	errFactory := errors.New()
	start := time.Now()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	url := c.BaseURL() + path

	ctx, span := c.tracer.Start(ctx, "scale."+string(op),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", url),
		),
	)
	defer func() {
		outcome := outcomeOf(err)
		span.SetAttributes(attribute.String("scale.outcome", string(outcome)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		if c.recorder != nil {
			c.recorder.ObserveRequest(op, outcome, time.Since(start))
		}
	}()

	var reader io.Reader = http.NoBody
	if body != nil {
		payload, merr := json.Marshal(body)
		if merr != nil {
			return errFactory.Wrap(errors.ErrInternal, merr)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.origin != "" {
		req.Header.Set("Origin", c.origin)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return errFactory.Wrap(errors.ErrTimeout, err)
		}
		return errFactory.Wrap(errors.ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return c.protocolFailure(errFactory.WithData(errors.ErrUnexpectedStatus,
			strings.TrimSpace(fmt.Sprintf("%s %s", resp.Status, snippet))))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return errFactory.Wrap(errors.ErrTimeout, err)
		}
		return errFactory.Wrap(errors.ErrRequestFailed, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return c.protocolFailure(errFactory.Wrap(errors.ErrDecodeResponse, err))
	}

	if v, ok := out.(interface{ validate() error }); ok {
		if err := v.validate(); err != nil {
			return c.protocolFailure(err)
		}
	}

	return nil
}

func (c *HTTPClient) protocolFailure(err error) error {
	c.logger.Debug().Err(err).Msg("Unexpected scale response")
	return err
}

func missingFieldData(field, info string) string {
	if info == "" {
		return field
	}
	return fmt.Sprintf("%s (device says %q)", field, info)
}

func outcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.IsTransport(err):
		return OutcomeTransport
	case errors.IsProtocol(err):
		return OutcomeProtocol
	default:
		return OutcomeInternal
	}
}
