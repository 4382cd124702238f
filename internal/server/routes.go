package server

import (
	"github.com/loomworklabs/parley/internal/server/middleware"
	v1 "github.com/loomworklabs/parley/internal/server/v1"
)

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ErrorHandler(s.logger))

	limiter := middleware.NewRateLimiter(s.config.RateLimit.RequestsPerSecond, s.config.RateLimit.Burst, s.logger)
	s.router.Use(limiter.Middleware())

	healthHandler := v1.NewHealthHandler(s.config.Server.Version)
	s.router.GET("/health", healthHandler.Health)

	// the websocket transport authenticates inside the handshake, its
	// credentials ride in the subprotocol list; POST on the same path is
	// the blocking endpoint below
	s.router.GET("/v1/sessions/:id/generate", s.ws.Serve)

	api := s.router.Group("/v1")
	api.Use(middleware.Auth(s.deps.Repo))
	{
		teamHandler := v1.NewTeamHandler(s.deps.Teams)
		api.POST("/teams", teamHandler.Create)
		api.DELETE("/teams/:id", teamHandler.Delete)

		tenant := api.Group("")
		tenant.Use(middleware.RequireTeam(s.deps.Repo))
		{
			providerHandler := v1.NewProviderHandler(s.deps.Registry)
			tenant.GET("/providers", providerHandler.List)
			tenant.GET("/providers/:provider", providerHandler.Get)
			tenant.GET("/providers/:provider/models", providerHandler.ListModels)
			tenant.GET("/providers/:provider/models/:model", providerHandler.GetModel)

			credentialHandler := v1.NewCredentialHandler(s.deps.Credentials)
			tenant.PUT("/providers/:provider/credentials", credentialHandler.Enroll)
			tenant.GET("/providers/:provider/credentials", credentialHandler.Get)
			tenant.DELETE("/providers/:provider/credentials", credentialHandler.Delete)

			sessionHandler := v1.NewSessionHandler(s.deps.Sessions)
			tenant.POST("/sessions", sessionHandler.Create)
			tenant.GET("/sessions", sessionHandler.List)
			tenant.GET("/sessions/:id", sessionHandler.Get)
			tenant.POST("/sessions/:id/name", sessionHandler.Rename)
			tenant.DELETE("/sessions/:id", sessionHandler.Delete)
			tenant.GET("/sessions/:id/messages", sessionHandler.Messages)
			tenant.POST("/sessions/:id/files", sessionHandler.AttachFile)

			generateHandler := v1.NewGenerateHandler(s.deps.Generator)
			tenant.POST("/sessions/:id/generate", generateHandler.Generate)
		}
	}
}
