package utils

import (
	"errors"
	"net/http"

	"telemed-server/internal/apperr"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ResponseData represents the structure of a standard API response.
type ResponseData struct {
	Status    int         `json:"status"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Code      apperr.Kind `json:"code,omitempty"`
	Retryable bool        `json:"retryable,omitempty"`
}

// Success sends a standard success response.
func Success(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, ResponseData{
		Status:  http.StatusOK,
		Message: message,
		Data:    data,
	})
}

// Created sends a standard resource created response.
func Created(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, ResponseData{
		Status:  http.StatusCreated,
		Message: message,
		Data:    data,
	})
}

// Error sends a standard error response.
func Error(c *gin.Context, statusCode int, errorMessage string) {
	c.JSON(statusCode, ResponseData{
		Status:  statusCode,
		Message: "An error occurred",
		Error:   errorMessage,
	})
}

// BadRequest sends a 400 Bad Request error response.
func BadRequest(c *gin.Context, errorMessage string) {
	Error(c, http.StatusBadRequest, errorMessage)
}

// Unauthorized sends a 401 Unauthorized error response.
func Unauthorized(c *gin.Context, errorMessage string) {
	Error(c, http.StatusUnauthorized, errorMessage)
}

// Forbidden sends a 403 Forbidden error response.
func Forbidden(c *gin.Context, errorMessage string) {
	Error(c, http.StatusForbidden, errorMessage)
}

// NotFound sends a 404 Not Found error response.
func NotFound(c *gin.Context, errorMessage string) {
	Error(c, http.StatusNotFound, errorMessage)
}

// InternalServerError sends a 500 Internal Server Error response.
func InternalServerError(c *gin.Context, errorMessage string) {
	Error(c, http.StatusInternalServerError, errorMessage)
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindInvalidTransition:
		return http.StatusConflict
	case apperr.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondError renders err with the status of its kind. Concealed errors are
// rendered as NotFound with their own message, which matches the message of
// the missing-resource case. Internal details never reach the client.
func RespondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	message := "An unexpected error occurred"

	var appErr *apperr.Error
	errors.As(err, &appErr)

	switch {
	case apperr.IsConcealed(err):
		kind = apperr.KindNotFound
		message = appErr.Message
	case kind == apperr.KindUnavailable:
		message = "service temporarily unavailable, please retry"
	case kind != apperr.KindInternal && appErr != nil:
		message = appErr.Message
	}

	status := StatusFor(kind)
	logger := zerolog.Ctx(c.Request.Context())
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	} else {
		logger.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("request rejected")
	}

	c.AbortWithStatusJSON(status, ResponseData{
		Status:    status,
		Message:   "An error occurred",
		Error:     message,
		Code:      kind,
		Retryable: kind == apperr.KindUnavailable,
	})
}
