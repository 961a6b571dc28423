package router

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/compozy/techrag/pkg/logger"
	"github.com/gin-gonic/gin"
)

// Error codes
const (
	ErrInternalCode           = "INTERNAL_ERROR"
	ErrBadRequestCode         = "BAD_REQUEST"
	ErrNotFoundCode           = "NOT_FOUND"
	ErrRequestTimeoutCode     = "REQUEST_TIMEOUT"
	ErrServiceUnavailableCode = "SERVICE_UNAVAILABLE"
)

// RequestError represents errors that can occur during request handling
type RequestError struct {
	Reason     string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func NewRequestError(statusCode int, reason string, err error) *RequestError {
	return &RequestError{
		StatusCode: statusCode,
		Reason:     reason,
		Err:        err,
	}
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// GetErrorInfo extracts error information for the standardized response
func (e *RequestError) GetErrorInfo() *ErrorInfo {
	var details string
	if e.Err != nil {
		details = e.Err.Error()
	}
	code := ErrInternalCode
	switch e.StatusCode {
	case http.StatusBadRequest:
		code = ErrBadRequestCode
	case http.StatusNotFound:
		code = ErrNotFoundCode
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		code = ErrRequestTimeoutCode
	case http.StatusServiceUnavailable:
		code = ErrServiceUnavailableCode
	}
	return &ErrorInfo{
		Code:    code,
		Message: e.Reason,
		Details: details,
	}
}

// RespondOK writes the standard success envelope.
func RespondOK(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, gin.H{
		"data":    data,
		"message": message,
	})
}

// RespondWithError writes the standard error envelope and aborts the chain.
// Errors that are not a *RequestError are reported as internal errors.
func RespondWithError(c *gin.Context, err error) {
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		reqErr = NewRequestError(http.StatusInternalServerError, "internal server error", err)
	}
	info := reqErr.GetErrorInfo()
	log := logger.FromContext(c.Request.Context())
	if reqErr.StatusCode >= http.StatusInternalServerError {
		log.Error("Request failed", "path", c.Request.URL.Path, "code", info.Code, "error", err)
		// internal details stay in the log
		info.Details = ""
	} else {
		log.Debug("Request rejected", "path", c.Request.URL.Path, "code", info.Code, "reason", info.Message)
	}
	c.AbortWithStatusJSON(reqErr.StatusCode, gin.H{"error": info})
}
