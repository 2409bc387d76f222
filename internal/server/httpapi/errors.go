package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/neoma/internal/common"
	"github.com/dmitrijs2005/neoma/internal/logging"
	"github.com/gin-gonic/gin"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

// ordered: the first matching sentinel wins
var errorMappings = []errorMapping{
	{common.ErrLimitReached, http.StatusTooManyRequests, "limit_reached"},
	{common.ErrMissingCredentials, http.StatusBadRequest, "missing_credentials"},
	{common.ErrValidation, http.StatusBadRequest, "validation_error"},
	{common.ErrInvalidAmount, http.StatusInternalServerError, "invalid_amount"},
	{common.ErrTokenExpired, http.StatusUnauthorized, "token_expired"},
	{common.ErrInvalidToken, http.StatusUnauthorized, "invalid_token"},
	{common.ErrorUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{common.ErrAlreadyExists, http.StatusConflict, "already_exists"},
	{common.ErrAlreadyClaimed, http.StatusConflict, "already_claimed"},
	{common.ErrSignatureInvalid, http.StatusBadRequest, "invalid_signature"},
	{common.ErrProcessorUnavailable, http.StatusBadGateway, "processor_unavailable"},
	{common.ErrorNotFound, http.StatusNotFound, "not_found"},
}

func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError renders err as JSON. Client errors carry the error text;
// server errors are logged and answered with a generic message.
func writeError(c *gin.Context, l logging.Logger, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	switch {
	case status >= http.StatusInternalServerError && status != http.StatusBadGateway:
		l.Error(c.Request.Context(), "request failed", "path", c.Request.URL.Path, "error", err)
		msg = "internal error"
	case status == http.StatusBadGateway:
		l.Error(c.Request.Context(), "upstream failed", "path", c.Request.URL.Path, "error", err)
		msg = "payment processor unavailable, please retry"
	}
	c.JSON(status, errorBody{Error: code, Message: msg})
}
