package server

import (
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/loomworklabs/parley/internal/config"
	"github.com/loomworklabs/parley/internal/core/ports"
	"github.com/loomworklabs/parley/internal/core/services"
	"github.com/loomworklabs/parley/internal/server/ws"
	"github.com/loomworklabs/parley/internal/store"
)

const serviceName = "parley"

// Deps bundles everything the route table needs.
type Deps struct {
	Repo        store.Repository
	Registry    ports.Registry
	Credentials *services.CredentialService
	Sessions    *services.SessionService
	Teams       *services.TeamService
	Generator   *services.Generator
	Quota       *services.QuotaService
}

type Server struct {
	router *gin.Engine
	config *config.Config
	logger *zap.Logger
	deps   Deps
	ws     *ws.Handler
}

func New(cfg *config.Config, logger *zap.Logger, deps Deps) *Server {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	engine.Use(ginzap.RecoveryWithZap(logger, true))
	engine.Use(otelgin.Middleware(serviceName))

	s := &Server{
		router: engine,
		config: cfg,
		logger: logger,
		deps:   deps,
		ws:     ws.NewHandler(deps.Repo, deps.Generator, deps.Quota),
	}

	s.setupRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}
