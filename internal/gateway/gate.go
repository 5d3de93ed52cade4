// Package gateway holds the middleware every request passes through before
// reaching a page or API handler.
package gateway

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"memorialqr/internal/config"
	"memorialqr/internal/metrics"
	"memorialqr/internal/pathpolicy"
	"memorialqr/internal/session"

	"github.com/gin-gonic/gin"
)

// GateDeps are the collaborators of the request gate
type GateDeps struct {
	Sessions session.Reader
	Cookie   session.CookieOptions
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Now      func() time.Time
}

// RequestGate is the coarse filter in front of every page. It checks only that
// a session token is present and unexpired; role checks belong to the route.
//
//	no token          -> redirect to login
//	token, not valid  -> redirect to login and clear the cookie
//	token, valid      -> continue
//
// Lookup errors count as "not valid".
func RequestGate(routes config.Routes, deps GateDeps) gin.HandlerFunc {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if Exempt(routes, path) {
			deps.Metrics.Gate(metrics.GateSkip)
			c.Next()
			return
		}

		from := c.Request.URL.RequestURI()

		token := deps.Cookie.Token(c)
		if token == "" {
			deps.Metrics.Gate(metrics.GateNoToken)
			c.Redirect(http.StatusSeeOther, pathpolicy.LoginURL(routes.LoginPath, from))
			c.Abort()
			return
		}

		start := time.Now()
		active, err := deps.Sessions.Active(c.Request.Context(), token, now())
		deps.Metrics.Lookup("active", time.Since(start))
		if err != nil {
			logger.ErrorContext(c.Request.Context(), "Session check failed",
				"error", err,
				"path", path,
				"request_id", c.GetString("request_id"),
			)
		}

		if err != nil || !active {
			deps.Metrics.Gate(metrics.GateInvalidToken)
			deps.Cookie.Clear(c)
			c.Redirect(http.StatusSeeOther, pathpolicy.LoginURL(routes.LoginPath, from))
			c.Abort()
			return
		}

		deps.Metrics.Gate(metrics.GatePass)
		c.Next()
	}
}

// Exempt reports whether the gate lets path through without looking at the
// session: build assets, static files, the favicon, the API (which authorizes
// itself) and the public paths.
func Exempt(routes config.Routes, path string) bool {
	switch {
	case routes.AssetPrefix != "" && strings.HasPrefix(path, routes.AssetPrefix):
		return true
	case routes.StaticPrefix != "" && strings.HasPrefix(path, routes.StaticPrefix):
		return true
	case routes.FaviconPath != "" && path == routes.FaviconPath:
		return true
	case routes.APIPrefix != "" && strings.HasPrefix(path, routes.APIPrefix):
		return true
	}
	return pathpolicy.Matches(path, routes.PublicPaths)
}
