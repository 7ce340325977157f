package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	statusOK       = "ok"
	defaultDays    = 7
	errNoSample    = "no sample received yet"
	errInvalidBody = "invalid body: "
	errInvalidDays = "days must be a positive integer"
)

// rawInput accepts a JSON string or number and keeps the text as typed, so
// validation happens in one place.
type rawInput string

func (r *rawInput) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = rawInput(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*r = rawInput(n.String())
	return nil
}

type settingsRequest struct {
	Address      *rawInput `json:"address"`
	ContainedCo2 *rawInput `json:"contained_co2"`
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": statusOK})
}

func (h *Handler) getState(c *gin.Context) {
	sample, ok := h.samples.Latest()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": errNoSample})
		return
	}
	c.JSON(http.StatusOK, sample)
}

func (h *Handler) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.settings.Snapshot())
}

// putSettings records pending edits. Nothing is validated or sent to the
// scale until the settings are saved.
func (h *Handler) putSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBody + err.Error()})
		return
	}

	if req.Address != nil {
		h.settings.SetPendingAddress(string(*req.Address))
	}
	if req.ContainedCo2 != nil {
		h.settings.SetPendingBaseline(string(*req.ContainedCo2))
	}

	c.JSON(http.StatusOK, h.settings.Snapshot())
}

func (h *Handler) discardPending(c *gin.Context) {
	h.settings.DiscardPending()
	c.JSON(http.StatusOK, h.settings.Snapshot())
}

func (h *Handler) saveSettings(c *gin.Context) {
	result, err := h.calibrator.SaveSettings(c.Request.Context())
	if err != nil {
		h.respondError(c, err, gin.H{
			"result":   result,
			"settings": h.settings.Snapshot(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"result":   result,
		"settings": h.settings.Snapshot(),
	})
}

func (h *Handler) tare(c *gin.Context) {
	conf, err := h.calibrator.Tare(c.Request.Context())
	if err != nil {
		h.respondError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": statusOK, "info": conf.Info})
}

func (h *Handler) getUsage(c *gin.Context) {
	days := defaultDays
	if s := c.Query("days"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidDays})
			return
		}
		days = v
	}

	if h.usage == nil || !h.usage.Enabled() {
		c.JSON(http.StatusOK, gin.H{"enabled": false, "days": days, "usage": []any{}})
		return
	}

	usage, err := h.usage.Usage(c.Request.Context(), days)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{"enabled": true, "days": days, "usage": usage})
}
