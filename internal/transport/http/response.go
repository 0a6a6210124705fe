package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/radubobirnac/vocallocal-sub003/internal/platform/errors"
)

// APIResponse is the envelope shared by every JSON endpoint.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
	Code    int         `json:"code"`
}

// RespondSuccess writes a success envelope.
func RespondSuccess(c *gin.Context, httpStatus int, data interface{}, message string) {
	if message == "" {
		message = "ok"
	}

	resp := APIResponse{
		Success: true,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	}

	c.JSON(httpStatus, resp)
}

// RespondError writes a failure envelope.
func RespondError(c *gin.Context, httpStatus int, message string, data interface{}) {
	resp := APIResponse{
		Success: false,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	}

	c.JSON(httpStatus, resp)
}

// RespondDomainError maps a classified domain error onto an HTTP status
// so clients can distinguish "fix your request" from "retry later" from
// "upgrade your plan".
func RespondDomainError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.IsKind(err, errors.KindInvalidInput):
		status = http.StatusBadRequest
	case errors.IsKind(err, errors.KindRateLimit):
		status = http.StatusTooManyRequests
	case errors.IsKind(err, errors.KindQuota):
		status = http.StatusForbidden
	case errors.IsKind(err, errors.KindProvider), errors.IsKind(err, errors.KindExtraction):
		status = http.StatusBadGateway
	}
	RespondError(c, status, err.Error(), nil)
}
