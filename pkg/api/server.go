package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/cuemby/netpanel/pkg/collection"
	"github.com/cuemby/netpanel/pkg/inventory"
	"github.com/cuemby/netpanel/pkg/log"
	"github.com/cuemby/netpanel/pkg/network"
	"github.com/cuemby/netpanel/pkg/preset"
	"github.com/cuemby/netpanel/pkg/security"
	"github.com/cuemby/netpanel/pkg/snapshot"
	"github.com/cuemby/netpanel/pkg/storage"
)

// shutdownTimeout bounds how long in-flight requests may run after Run's
// context is cancelled
const shutdownTimeout = 10 * time.Second

// Config holds the HTTP settings of the API server
type Config struct {
	Listen         string
	AllowedOrigins []string
	LoginRate      float64
	LoginBurst     int
}

// Deps are the services the API exposes
type Deps struct {
	Store      storage.DocumentStore
	Snapshots  *snapshot.Service
	Presets    *preset.Service
	Network    *network.Service
	Inventory  inventory.Inventory
	Identity   security.IdentityProvider
	Tokens     *security.TokenIssuer
	Authorizer security.Authorizer
}

func (d Deps) validate() error {
	switch {
	case d.Store == nil:
		return errors.New("document store is required")
	case d.Snapshots == nil, d.Presets == nil, d.Network == nil:
		return errors.New("snapshot, preset and network services are required")
	case d.Inventory == nil:
		return errors.New("inventory is required")
	case d.Identity == nil, d.Tokens == nil:
		return errors.New("identity provider and token issuer are required")
	}
	return nil
}

// Server is the netpanel HTTP API
type Server struct {
	cfg     Config
	deps    Deps
	engine  *gin.Engine
	limiter *loginLimiter
	logger  zerolog.Logger
}

var registerValidation sync.Once

// NewServer builds the router. A nil Authorizer admits every
// authenticated user.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.Authorizer == nil {
		deps.Authorizer = security.NewGroupAuthorizer("")
	}
	if cfg.LoginRate <= 0 {
		cfg.LoginRate = 1
	}
	if cfg.LoginBurst < 1 {
		cfg.LoginBurst = 5
	}

	var regErr error
	registerValidation.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			regErr = collection.RegisterNameValidation(v)
		}
	})
	if regErr != nil {
		return nil, fmt.Errorf("failed to register validation: %w", regErr)
	}

	s := &Server{
		cfg:     cfg,
		deps:    deps,
		limiter: newLoginLimiter(cfg.LoginRate, cfg.LoginBurst),
		logger:  log.WithComponent("api"),
	}
	s.engine = s.routes()
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	// client IPs come from the socket, forwarded headers are not trusted
	_ = r.SetTrustedProxies(nil)

	r.Use(s.recovery(), observe(), s.accessLog(), s.cors())
	r.NoRoute(func(c *gin.Context) {
		abortDetail(c, http.StatusNotFound, "Not Found")
	})
	r.NoMethod(func(c *gin.Context) {
		abortDetail(c, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	s.registerHealth(r)

	r.POST("/token", s.limitLogins(), s.login)

	authed := r.Group("/", s.requireUser())
	authed.GET("/user", s.me)

	panel := authed.Group("/", s.requireGroup())
	{
		nw := panel.Group("/network")
		nw.GET("/configuration", s.getConfiguration)
		nw.PUT("/configuration/intnets", s.putIntnets)
		nw.PUT("/configuration/panelstate", s.putPanelState)

		nw.POST("/snapshot", s.createSnapshot)
		nw.GET("/snapshot/all", s.listSnapshots)
		nw.GET("/snapshot/:id", s.getSnapshot)
		nw.POST("/snapshot/:id/rename/:name", s.renameSnapshot)
		nw.DELETE("/snapshot/:id", s.deleteSnapshot)

		nw.GET("/preset/all", s.listPresets)
		nw.GET("/preset/:id", s.getPreset)

		vm := panel.Group("/vm")
		vm.GET("/all/networkdata", s.allNetworkData)
		vm.GET("/all/state", s.allStates)
		vm.GET("/:uuid/networkdata", s.networkData)
		vm.GET("/:uuid/state", s.state)
	}

	return r
}

// Handler returns the router for embedding or testing
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves HTTP on the configured address until ctx is cancelled, then
// shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, lis)
}

// Serve is Run on an existing listener
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	limiterCtx, stopLimiter := context.WithCancel(ctx)
	defer stopLimiter()
	go s.limiter.Run(limiterCtx, time.Minute)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(lis)
	}()
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("API listening")
	s.markReady(true, "serving")

	select {
	case err := <-errCh:
		s.markReady(false, "stopped")
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.markReady(false, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info().Msg("API stopped")
	return nil
}
