package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"memorialqr/internal/config"
	"memorialqr/internal/guard"
	"memorialqr/internal/pathpolicy"
	"memorialqr/internal/session"

	"github.com/gin-gonic/gin"
)

// Handler handles authentication-related HTTP requests
type Handler struct {
	service Service
	cookie  session.CookieOptions
	policy  pathpolicy.Policy
	routes  config.Routes
	logger  *slog.Logger
}

// NewHandler creates a new authentication handler
func NewHandler(service Service, cookie session.CookieOptions, policy pathpolicy.Policy, routes config.Routes, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		cookie:  cookie,
		policy:  policy,
		routes:  routes,
		logger:  logger,
	}
}

// Home returns the landing page for a role
func (h *Handler) Home(role session.Role) string {
	switch role {
	case session.RoleAdmin:
		return h.routes.AdminHome
	case session.RoleOwner:
		return h.routes.OwnerHome
	default:
		return h.routes.LoginPath
	}
}

// wantsJSON distinguishes API clients from plain HTML form posts
func wantsJSON(c *gin.Context) bool {
	return c.ContentType() == gin.MIMEJSON || c.NegotiateFormat(gin.MIMEJSON, gin.MIMEHTML) == gin.MIMEJSON
}

// Login handles POST /api/login
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		h.loginFailed(c, http.StatusBadRequest, "invalid login request", req.From)
		return
	}

	login, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			h.loginFailed(c, http.StatusUnauthorized, "invalid email or password", req.From)
			return
		}
		h.logger.ErrorContext(c.Request.Context(), "Login failed", "error", err, "request_id", c.GetString("request_id"))
		h.loginFailed(c, http.StatusInternalServerError, "login unavailable", req.From)
		return
	}

	// A session the browser still carries from an earlier login is ended.
	if previous := h.cookie.Token(c); previous != "" && previous != login.Session.Token {
		if err := h.service.Logout(c.Request.Context(), previous); err != nil {
			h.logger.WarnContext(c.Request.Context(), "Failed to end previous session", "error", err)
		}
	}

	h.cookie.Set(c, login.Session.Token)
	redirect := h.policy.SafeRedirect(req.From, login.Account.Role, h.Home(login.Account.Role))
	if req.From != "" && redirect != req.From {
		attrs := []any{"account_id", login.Account.ID, "role", login.Account.Role.String(), "redirect", redirect}
		if pathpolicy.Safe(req.From) {
			attrs = append(attrs, "requested_class", h.policy.Classify(req.From).String())
		} else {
			attrs = append(attrs, "requested_class", "unsafe")
		}
		h.logger.InfoContext(c.Request.Context(), "Login destination replaced", attrs...)
	}

	if wantsJSON(c) {
		c.JSON(http.StatusOK, LoginResponse{Account: login.Account, Redirect: redirect})
		return
	}
	c.Redirect(http.StatusSeeOther, redirect)
}

func (h *Handler) loginFailed(c *gin.Context, status int, message, from string) {
	if wantsJSON(c) {
		c.JSON(status, gin.H{"error": message})
		return
	}

	q := url.Values{"error": {"1"}}
	if pathpolicy.Safe(from) {
		q.Set("from", from)
	}
	c.Redirect(http.StatusSeeOther, h.routes.LoginPath+"?"+q.Encode())
}

// Logout handles POST /api/logout
func (h *Handler) Logout(c *gin.Context) {
	if err := h.service.Logout(c.Request.Context(), h.cookie.Token(c)); err != nil {
		h.logger.WarnContext(c.Request.Context(), "Failed to delete session", "error", err)
	}

	h.cookie.Clear(c)

	if wantsJSON(c) {
		c.JSON(http.StatusOK, gin.H{"message": "logged out"})
		return
	}
	c.Redirect(http.StatusSeeOther, h.routes.LoginPath)
}

// Session handles GET /api/session. It must sit behind guard.API.
func (h *Handler) Session(c *gin.Context) {
	p, ok := guard.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, SessionResponse{Account: p.Account})
}
