// Package middleware carries the cross-cutting gin handlers of the control
// surface: error mapping, panic recovery, rate limiting, auth and tracing.
package middleware

import (
	"errors"
	"net/http"

	"safespace/internal/core/domain"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandlerMiddleware maps domain errors collected on the gin context to
// HTTP responses.
func ErrorHandlerMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		status := statusForError(err)
		if status == http.StatusInternalServerError {
			logger.Errorw("unhandled error",
				"error", err,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)
		} else {
			logger.Warnw("request failed",
				"error", err,
				"status", status,
				"path", c.Request.URL.Path,
			)
		}

		c.JSON(status, gin.H{"error": err.Error()})
	}
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrCallInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoIncomingCall), errors.Is(err, domain.ErrNoActiveCall):
		return http.StatusConflict
	case errors.Is(err, domain.ErrConnectionNotFound), errors.Is(err, domain.ErrPeerLinkNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrMediaUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrRegistryClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RecoveryMiddleware recovers from handler panics.
func RecoveryMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorw("panic recovered",
					"error", r,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "internal server error",
				})
			}
		}()

		c.Next()
	}
}
