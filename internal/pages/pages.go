// Package pages serves the site's page routes. Rendering is minimal: each page
// answers with a JSON description of what it would show, which is enough for
// the frontend shell and for exercising the route guards.
package pages

import (
	"net/http"

	"memorialqr/internal/config"
	"memorialqr/internal/guard"
	"memorialqr/internal/pathpolicy"

	"github.com/gin-gonic/gin"
)

// Page is the body every page handler returns
type Page struct {
	Name    string         `json:"page"`
	Account any            `json:"account,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// Handler serves the page routes
type Handler struct {
	routes config.Routes
}

// NewHandler creates a page handler
func NewHandler(routes config.Routes) *Handler {
	return &Handler{routes: routes}
}

func (h *Handler) render(c *gin.Context, name string, data map[string]any) {
	page := Page{Name: name, Data: data}
	if p, ok := guard.PrincipalFrom(c); ok {
		page.Account = p.Account
	}
	c.JSON(http.StatusOK, page)
}

// Static returns a handler for a page with no parameters
func (h *Handler) Static(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h.render(c, name, nil)
	}
}

// Login renders the login page. A from value that is not a safe local path is dropped.
func (h *Handler) Login(c *gin.Context) {
	data := map[string]any{"action": "/api/login"}
	if from := c.Query("from"); pathpolicy.Safe(from) {
		data["from"] = from
	}
	if c.Query("error") != "" {
		data["error"] = "invalid email or password"
	}
	h.render(c, "login", data)
}

// ChooseProfile renders the denial page reached when the caller's role does not
// fit the page they asked for.
func (h *Handler) ChooseProfile(c *gin.Context) {
	data := map[string]any{
		"admin_home": h.routes.AdminHome,
		"owner_home": h.routes.OwnerHome,
	}
	switch denied := c.Query("denied"); denied {
	case guard.AdminOnly.String(), guard.OwnerOnly.String():
		data["denied"] = denied
	}
	if from := c.Query("from"); pathpolicy.Safe(from) {
		data["from"] = from
	}
	h.render(c, "elegir-perfil", data)
}

// Memorial renders one memorial page
func (h *Handler) Memorial(c *gin.Context) {
	h.render(c, "memorial", map[string]any{"id": c.Param("id")})
}

// QR renders the public landing page for a scanned code
func (h *Handler) QR(c *gin.Context) {
	h.render(c, "qr", map[string]any{"code": c.Param("code")})
}

// Admin renders the admin area. Sub-paths share one handler.
func (h *Handler) Admin(c *gin.Context) {
	h.render(c, "admin", map[string]any{"section": c.Param("section")})
}
