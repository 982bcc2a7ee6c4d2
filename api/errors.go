package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Domenick1991/skymiles/internal/domain"
	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusOf maps a declared error to its HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrInsufficientCapacity), errors.Is(err, domain.ErrInsufficientPoints):
		return http.StatusBadRequest
	}
	switch domain.KindOf(err) {
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	code := statusOf(err)
	body := errorResponse{Error: domain.CodeOf(err), Message: err.Error()}

	var declared *domain.Error
	if !errors.As(err, &declared) {
		slog.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		body.Message = "internal error"
	}
	c.JSON(code, body)
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: "InvalidRequest", Message: message})
}
