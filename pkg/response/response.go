package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/licensewatch/pkg/errors"
)

// Response is the JSON envelope returned by every API endpoint.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

// RequestIDKey is the gin context key holding the request identifier that
// error responses echo back.
const RequestIDKey = "requestID"

// ErrorInfo describes a failed request. RequestID lets a user quote the
// failure when reporting it.
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Meta carries offset pagination details for list endpoints.
type Meta struct {
	Skip  int   `json:"skip"`
	Limit int   `json:"limit"`
	Count int64 `json:"count"`
}

// Success writes a JSON success response.
func Success(c *gin.Context, statusCode int, data any) {
	c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
	})
}

// List writes a page of results together with the total row count.
func List(c *gin.Context, data any, skip, limit int, count int64) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
		Meta: &Meta{
			Skip:  skip,
			Limit: limit,
			Count: count,
		},
	})
}

// Message writes a success response carrying only a human readable message.
func Message(c *gin.Context, message string) {
	Success(c, http.StatusOK, gin.H{"message": message})
}

// Error writes a JSON error response derived from an AppError.
func Error(c *gin.Context, err error) {
	ErrorWithDetails(c, err, nil)
}

// ErrorWithDetails writes an error response with structured details such as
// field failures. Server errors are also recorded on the context so the access
// log carries the underlying cause, which the client never sees.
func ErrorWithDetails(c *gin.Context, err error, details any) {
	if err == nil {
		err = appErrors.ErrInternalServer
	}

	appErr := appErrors.FromError(err)
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err).SetType(gin.ErrorTypePrivate)
	}

	c.JSON(status, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:      appErr.Code,
			Message:   appErr.Message,
			Details:   details,
			RequestID: c.GetString(RequestIDKey),
		},
	})
}
