// Package api serves the local dashboard API: JSON endpoints for state and
// settings, a websocket sample stream and the Prometheus endpoint.
package api

import (
	"context"
	"net/http"

	"codeberg.org/mutker/co2scale/internal/calibration"
	"codeberg.org/mutker/co2scale/internal/history"
	"codeberg.org/mutker/co2scale/internal/logger"
	"codeberg.org/mutker/co2scale/internal/monitor"
	"codeberg.org/mutker/co2scale/internal/scale"
	"codeberg.org/mutker/co2scale/internal/store"
	"github.com/gin-gonic/gin"
)

// Samples is the live view the API reports on.
type Samples interface {
	Latest() (monitor.Sample, bool)
	Subscribe() (<-chan monitor.Sample, func())
}

// Settings is the editable configuration.
type Settings interface {
	Snapshot() store.Snapshot
	SetPendingAddress(raw string)
	SetPendingBaseline(raw string)
	DiscardPending()
}

// Calibrator performs the write actions.
type Calibrator interface {
	SaveSettings(ctx context.Context) (calibration.SaveResult, error)
	Tare(ctx context.Context) (scale.Confirmation, error)
}

// Usage answers daily usage queries.
type Usage interface {
	Usage(ctx context.Context, days int) ([]history.DailyUsage, error)
	Enabled() bool
}

// Handler wires the HTTP layer to the application components.
type Handler struct {
	samples    Samples
	settings   Settings
	calibrator Calibrator
	usage      Usage
	metrics    http.Handler
	logger     logger.Logger
}

type Option func(*Handler)

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(hd *Handler) {
		hd.metrics = h
	}
}

func WithUsage(u Usage) Option {
	return func(h *Handler) {
		h.usage = u
	}
}

func WithLogger(log logger.Logger) Option {
	return func(h *Handler) {
		if log != nil {
			h.logger = log
		}
	}
}

func NewHandler(samples Samples, settings Settings, calibrator Calibrator, opts ...Option) *Handler {
	h := &Handler{
		samples:    samples,
		settings:   settings,
		calibrator: calibrator,
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}

	return h
}

// InitRoutes builds the gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), h.requestLogger, cors)

	router.GET("/health", h.health)
	router.GET("/ws", h.wsConnect)

	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics))
	}

	api := router.Group("/api/v1")
	{
		api.GET("/state", h.getState)

		settings := api.Group("/settings")
		{
			settings.GET("", h.getSettings)
			settings.PUT("", h.putSettings)
			settings.DELETE("/pending", h.discardPending)
			settings.POST("/save", h.saveSettings)
		}

		api.POST("/tare", h.tare)
		api.GET("/usage", h.getUsage)
	}

	return router
}
