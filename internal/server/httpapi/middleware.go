package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/neoma/internal/common"
	"github.com/dmitrijs2005/neoma/internal/server/auth"
	"github.com/dmitrijs2005/neoma/internal/server/metrics"
	"github.com/dmitrijs2005/neoma/internal/server/models"
	"github.com/gin-gonic/gin"
)

const (
	headerVisitorID = common.VisitorIDHeaderName
	maxVisitorIDLen = common.MaxVisitorIDLength

	keyUserID    = "neoma.user_id"
	keyVisitorID = "neoma.visitor_id"
)

// visitorID reads the device identifier the browser keeps in local storage.
func (s *Server) visitorID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(headerVisitorID))
		if len(id) > maxVisitorIDLen {
			writeError(c, s.logger, common.ErrValidation)
			c.Abort()
			return
		}
		if id != "" {
			c.Set(keyVisitorID, id)
		}
		c.Next()
	}
}

// authenticate validates a bearer token when one is sent. A bad token is
// rejected even on routes that allow anonymous access.
func (s *Server) authenticate(required bool) gin.HandlerFunc {
	secret := []byte(s.opts.JWTSecret)
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" {
			if required {
				writeError(c, s.logger, common.ErrorUnauthorized)
				c.Abort()
				return
			}
			c.Next()
			return
		}

		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(c, s.logger, common.ErrInvalidToken)
			c.Abort()
			return
		}

		userID, err := auth.GetUserIDFromToken(strings.TrimSpace(token), secret)
		if err != nil {
			writeError(c, s.logger, err)
			c.Abort()
			return
		}
		c.Set(keyUserID, userID)
		c.Next()
	}
}

func (s *Server) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(keyUserID) == "" {
			writeError(c, s.logger, common.ErrorUnauthorized)
			c.Abort()
			return
		}
		c.Next()
	}
}

func principal(c *gin.Context) models.Principal {
	return models.Principal{UserID: c.GetString(keyUserID), VisitorID: c.GetString(keyVisitorID)}
}

func (s *Server) requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		args := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if status >= http.StatusInternalServerError {
			s.logger.Warn(c.Request.Context(), "request", args...)
			return
		}
		s.logger.Debug(c.Request.Context(), "request", args...)
	}
}
