package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/claude-watch/relay/apperror"
)

// =============================================================================
// Standard API Response Types
// =============================================================================
//
// This file defines the unified response structure for all relay endpoints.
// Every handler uses these helpers so the response shape stays consistent.

// -----------------------------------------------------------------------------
// Error Response Types
// -----------------------------------------------------------------------------

// ErrorResponse is the standard error response structure.
type ErrorResponse struct {
	Error struct {
		Code    apperror.Code `json:"code"`
		Message string        `json:"message"`
	} `json:"error"`
}

// -----------------------------------------------------------------------------
// Success Response Types
// -----------------------------------------------------------------------------

// DataResponse wraps a single resource or object response.
type DataResponse[T any] struct {
	Data T `json:"data"`
}

// ListResponse wraps a collection of resources.
type ListResponse[T any] struct {
	Data []T `json:"data"`
}

// -----------------------------------------------------------------------------
// Response Helpers
// -----------------------------------------------------------------------------

// RespondData sends a successful response with a single data object.
func RespondData[T any](c *gin.Context, data T) {
	c.JSON(http.StatusOK, DataResponse[T]{Data: data})
}

// RespondCreated sends a 201 Created response with the created resource.
func RespondCreated[T any](c *gin.Context, data T) {
	c.JSON(http.StatusCreated, DataResponse[T]{Data: data})
}

// RespondList sends a successful response with a list of items.
func RespondList[T any](c *gin.Context, data []T) {
	if data == nil {
		data = []T{}
	}
	c.JSON(http.StatusOK, ListResponse[T]{Data: data})
}

// RespondNoContent sends a 204 No Content response.
func RespondNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// -----------------------------------------------------------------------------
// Error Helpers
// -----------------------------------------------------------------------------

// statusForCode maps the apperror taxonomy to an HTTP status.
func statusForCode(code apperror.Code) int {
	switch code {
	case apperror.InvalidInput:
		return http.StatusBadRequest
	case apperror.NotFound:
		return http.StatusNotFound
	case apperror.Conflict:
		return http.StatusConflict
	case apperror.Exhausted:
		return http.StatusConflict
	case apperror.UpstreamUnavailable:
		return http.StatusServiceUnavailable
	case apperror.Cancelled:
		return http.StatusGone
	case apperror.Crypto, apperror.Transport:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// respondCode writes the error body directly, bypassing statusForCode when
// the caller already knows the status (used for the plain helpers below).
func respondCode(c *gin.Context, status int, code apperror.Code, message string) {
	resp := ErrorResponse{}
	resp.Error.Code = code
	resp.Error.Message = message
	c.JSON(status, resp)
}

// RespondError inspects err and writes the HTTP status/body the apperror
// taxonomy maps it to. Errors not wrapped in *apperror.Error are treated as
// internal errors and their message is not leaked to the client.
func RespondError(c *gin.Context, err error) {
	code := apperror.CodeOf(err)
	message := err.Error()
	if code == "" {
		respondCode(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
		return
	}
	respondCode(c, statusForCode(code), code, message)
}

// RespondBadRequest sends a 400 with apperror.InvalidInput.
func RespondBadRequest(c *gin.Context, message string) {
	respondCode(c, http.StatusBadRequest, apperror.InvalidInput, message)
}

// RespondNotFound sends a 404 with apperror.NotFound.
func RespondNotFound(c *gin.Context, message string) {
	respondCode(c, http.StatusNotFound, apperror.NotFound, message)
}

// RespondConflict sends a 409 with apperror.Conflict.
func RespondConflict(c *gin.Context, message string) {
	respondCode(c, http.StatusConflict, apperror.Conflict, message)
}

// RespondInternalError sends a 500 for an unclassified error.
func RespondInternalError(c *gin.Context, message string) {
	respondCode(c, http.StatusInternalServerError, "INTERNAL_ERROR", message)
}
