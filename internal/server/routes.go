package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"memorialqr/internal/auth"
	"memorialqr/internal/gateway"
	"memorialqr/internal/guard"
	"memorialqr/internal/pages"
	"memorialqr/internal/pathpolicy"
	"memorialqr/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes builds the router.
//
// /health and /metrics sit outside the request gate. Every other path, unknown
// ones included, passes the gate first.
func (s *Server) RegisterRoutes() http.Handler {
	routes := s.cfg.Routes
	cookie := s.cookie()

	resolver := session.NewResolver(s.sessions, cookie, s.logger).WithMetrics(s.metrics)
	g := guard.New(resolver, routes, s.metrics)
	gate := gateway.RequestGate(routes, gateway.GateDeps{
		Sessions: s.sessions,
		Cookie:   cookie,
		Metrics:  s.metrics,
		Logger:   s.logger,
	})

	authService := auth.NewService(s.accounts, session.NewManager(s.sessions, s.cfg.Session.Lifetime), s.logger)
	authHandler := auth.NewHandler(authService, cookie, pathpolicy.New(routes), routes, s.logger)
	page := pages.NewHandler(routes)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gateway.RequestIDMiddleware())
	r.Use(gateway.LoggingMiddleware(s.logger))
	r.Use(gateway.CORSMiddleware(s.cfg.CORSOrigins))

	r.GET("/health", s.healthHandler)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	// API routes authorize themselves
	api := r.Group(strings.TrimSuffix(routes.APIPrefix, "/"), gate)
	{
		api.POST("/login", authHandler.Login)
		api.POST("/logout", authHandler.Logout)
		api.GET("/session", g.API(guard.AnyAuthenticated), authHandler.Session)
	}

	site := r.Group("/", gate)
	{
		site.GET("/", page.Static("home"))
		site.GET("/como-funciona", page.Static("como-funciona"))
		site.GET("/login", page.Login)
		site.GET("/qr/:code", page.QR)

		site.GET("/elegir-perfil", g.Page(guard.AnyAuthenticated), page.ChooseProfile)

		site.GET("/admin", g.Page(guard.AdminOnly), page.Admin)
		site.GET("/admin/:section", g.Page(guard.AdminOnly), page.Admin)

		site.GET("/panel", g.Page(guard.OwnerOnly), page.Static("panel"))
		site.GET("/crear-memorial", g.Page(guard.OwnerOnly), page.Static("crear-memorial"))
		site.GET("/memorial/:id", g.Page(guard.OwnerOnly), page.Memorial)
		site.GET("/escanear", g.Page(guard.OwnerOnly), page.Static("escanear"))
	}

	r.NoRoute(gate, func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return r
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	response := make(map[string]any)
	status := http.StatusOK

	if s.db != nil {
		dbHealth := s.db.Health()
		if dbHealth["status"] != "up" {
			status = http.StatusServiceUnavailable
		}
		response["database"] = dbHealth
	}

	sessionHealth := map[string]string{
		"backend": string(s.cfg.Session.Backend),
		"status":  "up",
	}
	if err := s.sessions.Ping(ctx); err != nil {
		sessionHealth["status"] = "down"
		sessionHealth["error"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	response["sessions"] = sessionHealth

	c.JSON(status, response)
}
