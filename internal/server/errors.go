package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shouni/go-zenith-comic-kit/pkg/ai"
	"github.com/shouni/go-zenith-comic-kit/pkg/collection"
	"github.com/shouni/go-zenith-comic-kit/pkg/domain"
	"github.com/shouni/go-zenith-comic-kit/pkg/phase"
	"github.com/shouni/go-zenith-comic-kit/pkg/runner"
	"github.com/shouni/go-zenith-comic-kit/pkg/session"
	"github.com/shouni/go-zenith-comic-kit/pkg/workflow"
)

// statusFor はエラーの種類から HTTP ステータスを決めます。
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrMissingVisualDescription):
		return http.StatusBadRequest
	case errors.Is(err, collection.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrBusy), errors.Is(err, phase.ErrStale):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrAPIKeyRequired):
		return http.StatusServiceUnavailable
	case errors.Is(err, runner.ErrInvalidOutput), errors.Is(err, runner.ErrNoImage),
		errors.Is(err, ai.ErrEmptyResponse), errors.Is(err, phase.ErrInterrupted):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError はエラーを JSON で返します。extra があれば同じオブジェクトに含めます。
func respondError(c *gin.Context, err error, extra gin.H) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "Request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	}
	body := gin.H{"error": err.Error()}
	for k, v := range extra {
		body[k] = v
	}
	c.AbortWithStatusJSON(status, body)
}
