package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuemby/netpanel/pkg/collection"
	"github.com/cuemby/netpanel/pkg/inventory"
	"github.com/cuemby/netpanel/pkg/network"
	"github.com/cuemby/netpanel/pkg/security"
)

// Fixed response messages the web UI matches on
const (
	detailUnauthorized = "Could not validate credentials."
	detailForbidden    = "User does not belong to the access group."
	detailBadLogin     = "Incorrect username or password."
	detailInternal     = "Internal server error."
	detailRateLimited  = "Too many login attempts, try again later."
)

// errorResponse is the body of every non-2xx response
type errorResponse struct {
	Detail string `json:"detail"`
}

// badRequestError marks malformed input detected by a handler
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string {
	return e.msg
}

func badRequest(msg string) error {
	return &badRequestError{msg: msg}
}

// statusFor maps a service error onto an HTTP status
func statusFor(err error) int {
	var bad *badRequestError
	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest
	case errors.Is(err, collection.ErrNotFound), errors.Is(err, inventory.ErrMachineNotFound):
		return http.StatusNotFound
	case errors.Is(err, collection.ErrInvalidName), errors.Is(err, network.ErrInvalidConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, collection.ErrConflict), errors.Is(err, collection.ErrProtected):
		return http.StatusConflict
	case errors.Is(err, security.ErrInvalidToken), errors.Is(err, security.ErrUserNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, security.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes the response for err and stops the handler chain.
// Unexpected errors are logged and hidden behind a generic message.
func (s *Server) abortWithError(c *gin.Context, err error) {
	switch status := statusFor(err); status {
	case http.StatusUnauthorized:
		abortUnauthorized(c)
	case http.StatusForbidden:
		abortDetail(c, status, detailForbidden)
	case http.StatusInternalServerError:
		s.logger.Error().
			Err(err).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Msg("Request failed")
		abortDetail(c, status, detailInternal)
	default:
		abortDetail(c, status, err.Error())
	}
}

func abortDetail(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, errorResponse{Detail: detail})
}

func abortUnauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", "Bearer")
	abortDetail(c, http.StatusUnauthorized, detailUnauthorized)
}
