package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuemby/netpanel/pkg/metrics"
)

// loginForm is the OAuth2 password-grant form posted to /token
type loginForm struct {
	Username string `form:"username" binding:"required"`
	Password string `form:"password" binding:"required"`
}

// login handles POST /token
func (s *Server) login(c *gin.Context) {
	var form loginForm
	if err := c.ShouldBind(&form); err != nil {
		metrics.LoginAttempts.WithLabelValues("invalid").Inc()
		abortDetail(c, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := s.deps.Identity.Authenticate(form.Username, form.Password)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("rejected").Inc()
		s.logger.Info().Str("user", form.Username).Str("client_ip", c.ClientIP()).Msg("Login rejected")
		c.Header("WWW-Authenticate", "Bearer")
		abortDetail(c, http.StatusUnauthorized, detailBadLogin)
		return
	}

	token, err := s.deps.Tokens.Issue(user.Username)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	metrics.LoginAttempts.WithLabelValues("ok").Inc()
	s.logger.Info().Str("user", user.Username).Msg("Login succeeded")
	c.JSON(http.StatusOK, token)
}

// me handles GET /user
func (s *Server) me(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}
