package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"voiceref/internal/calls"
	"voiceref/internal/checks"
	"voiceref/internal/invite"
	"voiceref/internal/reporting"
	"voiceref/pkg/logger"

	"github.com/gin-gonic/gin"
)

// writeError maps domain errors to HTTP responses. Internal error text never leaves the
// process; validation and conflict messages do.
func writeError(c *gin.Context, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		logger.FromGin(c).Error("request failed", "err", err, "status", status)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, invite.ErrLinkExpired):
		return http.StatusGone, "link expired"
	case errors.Is(err, invite.ErrLinkInvalid):
		return http.StatusNotFound, "link invalid"
	case errors.Is(err, checks.ErrAlreadyCompleted):
		return http.StatusGone, "reference check already completed"

	case errors.Is(err, checks.ErrInvalidArgument):
		return http.StatusBadRequest, detail(err, checks.ErrInvalidArgument)
	case errors.Is(err, calls.ErrInvalidArgument):
		return http.StatusBadRequest, detail(err, calls.ErrInvalidArgument)
	case errors.Is(err, reporting.ErrInvalidRequest):
		return http.StatusBadRequest, detail(err, reporting.ErrInvalidRequest)

	case errors.Is(err, checks.ErrNotFound), errors.Is(err, calls.ErrNotFound):
		return http.StatusNotFound, "not found"

	case errors.Is(err, checks.ErrConflict):
		return http.StatusConflict, detail(err, checks.ErrConflict)
	case errors.Is(err, calls.ErrConflict):
		return http.StatusConflict, detail(err, calls.ErrConflict)

	case errors.Is(err, calls.ErrPlatform):
		return http.StatusBadGateway, "voice platform unavailable, please try again"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// detail returns the text wrapped after the sentinel, e.g. "checks: invalid argument: x" -> "x".
func detail(err, sentinel error) string {
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if i := strings.Index(msg, prefix); i >= 0 {
		return msg[i+len(prefix):]
	}
	s := sentinel.Error()
	if i := strings.Index(s, ": "); i >= 0 {
		return s[i+2:]
	}
	return s
}
