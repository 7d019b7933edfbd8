package api

import (
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuemby/netpanel/pkg/events"
	"github.com/cuemby/netpanel/pkg/metrics"
	"github.com/cuemby/netpanel/pkg/types"
)

const userKey = "netpanel_user"

// currentUser returns the user stored by requireUser
func currentUser(c *gin.Context) *types.User {
	if v, ok := c.Get(userKey); ok {
		if u, ok := v.(*types.User); ok {
			return u
		}
	}
	return nil
}

// extractBearerToken returns the token of an "Authorization: Bearer" header
// or "" when the header is missing or malformed
func extractBearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// requireUser authenticates the bearer token. The token subject must still
// be a known, enabled user.
func (s *Server) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			abortUnauthorized(c)
			return
		}

		username, err := s.deps.Tokens.Verify(token)
		if err != nil {
			s.logger.Debug().Err(err).Msg("Rejected bearer token")
			abortUnauthorized(c)
			return
		}

		user, err := s.deps.Identity.Lookup(username)
		if err != nil || user.Disabled {
			s.logger.Debug().Str("user", username).Msg("Token subject is unknown or disabled")
			abortUnauthorized(c)
			return
		}

		c.Set(userKey, user)
		c.Request = c.Request.WithContext(events.WithActor(c.Request.Context(), user.Username))
		c.Next()
	}
}

// requireGroup admits only members of the access group. It must run after
// requireUser.
func (s *Server) requireGroup() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.deps.Authorizer.Authorize(currentUser(c)); err != nil {
			s.abortWithError(c, err)
			return
		}
		c.Next()
	}
}

// limitLogins applies the per-client login rate limit
func (s *Server) limitLogins() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Allow(c.ClientIP()) {
			s.logger.Warn().Str("client_ip", c.ClientIP()).Msg("Login rate limit exceeded")
			metrics.LoginAttempts.WithLabelValues("rate_limited").Inc()
			c.Header("Retry-After", "1")
			abortDetail(c, http.StatusTooManyRequests, detailRateLimited)
			return
		}
		c.Next()
	}
}

// cors answers browser preflights and decorates responses for allowed
// origins. Credentials are allowed, so origins are echoed, never "*".
func (s *Server) cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}

		allowed := slices.Contains(s.cfg.AllowedOrigins, origin) || slices.Contains(s.cfg.AllowedOrigins, "*")
		preflight := c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != ""

		if !allowed {
			if preflight {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Next()
			return
		}

		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Add("Vary", "Origin")

		if preflight {
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			if req := c.GetHeader("Access-Control-Request-Headers"); req != "" {
				h.Set("Access-Control-Allow-Headers", req)
			}
			h.Set("Access-Control-Max-Age", "600")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// observe records request metrics by route template
func observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := metrics.NewTimer()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		metrics.APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		timer.ObserveDurationVec(metrics.APIRequestDuration, method, route)
	}
}

// accessLog writes one line per request
func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := s.logger.Info()
		if status >= http.StatusInternalServerError {
			entry = s.logger.Error()
		}
		entry = entry.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP())
		if u := currentUser(c); u != nil {
			entry = entry.Str("user", u.Username)
		}
		entry.Msg("Request handled")
	}
}

// recovery turns handler panics into the generic 500 response
func (s *Server) recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		s.logger.Error().
			Str("panic", fmt.Sprint(recovered)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("stack", string(debug.Stack())).
			Msg("Handler panicked")
		abortDetail(c, http.StatusInternalServerError, detailInternal)
	})
}
