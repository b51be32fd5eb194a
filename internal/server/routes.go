package server

import (
	"github.com/labstack/echo-contrib/echoprometheus"

	"github.com/nfrund/gobychat/internal/handlers"
	"github.com/nfrund/gobychat/internal/middleware"
)

// RegisterRoutes sets up all the application routes.
func (s *Server) RegisterRoutes() {
	a := s.App

	authHandler := handlers.NewAuthHandler(a.Accounts, a.Config.IsProduction())
	messageHandler := handlers.NewMessageHandler(a.Dispatcher, a.Directory, a.Users)
	presenceHandler := handlers.NewPresenceHandler(a.Registry)

	requireAuth := middleware.Auth(a.Accounts)
	rateLimiter := middleware.RateLimiter(a.Config.HTTPRateLimit)

	api := s.E.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.POST("/signup", authHandler.SignUp, rateLimiter)
	authGroup.POST("/login", authHandler.Login, rateLimiter)
	authGroup.POST("/logout", authHandler.Logout)
	authGroup.GET("/check", authHandler.Check, requireAuth)

	messages := api.Group("/messages", requireAuth)
	messages.GET("/users", messageHandler.Users)
	messages.GET("/:id", messageHandler.History)
	messages.POST("/send/:id", messageHandler.Send)

	api.GET("/presence", presenceHandler.GetPresence, requireAuth)

	s.E.GET("/ws", a.Bridge.Handler())
	s.E.GET("/healthz", handlers.Health(a.Health))
	s.E.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: a.Prometheus}))
}
