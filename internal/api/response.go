package api

import (
	"net/http"

	"codeberg.org/mutker/co2scale/internal/errors"
	"github.com/gin-gonic/gin"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Kind  string `json:"kind"`
}

// statusFor maps the error taxonomy onto HTTP: bad input is the client's
// fault, anything the scale got wrong is a bad gateway.
func statusFor(err error) int {
	switch {
	case errors.IsValidation(err):
		return http.StatusBadRequest
	case errors.IsTransport(err), errors.IsProtocol(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorBodies flattens joined errors so each failure is reported.
func errorBodies(err error) []errorBody {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []errorBody
		for _, e := range joined.Unwrap() {
			out = append(out, errorBodies(e)...)
		}
		return out
	}

	body := errorBody{Error: err.Error(), Kind: errors.KindOfErr(err).String()}
	if code, ok := errors.CodeOf(err); ok {
		body.Code = string(code)
	}
	return []errorBody{body}
}

func (h *Handler) respondError(c *gin.Context, err error, extra gin.H) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warn().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}

	bodies := errorBodies(err)
	resp := gin.H{
		"error":  bodies[0].Error,
		"code":   bodies[0].Code,
		"kind":   bodies[0].Kind,
		"errors": bodies,
	}
	for k, v := range extra {
		resp[k] = v
	}
	c.JSON(status, resp)
}
