package session

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// CookieOptions describes how the session cookie is issued.
// HttpOnly, SameSite=Lax and Path=/ are always applied.
type CookieOptions struct {
	Name     string
	Secure   bool
	Lifetime time.Duration
}

// Token returns the session cookie value of the request, or "" when absent.
func (o CookieOptions) Token(c *gin.Context) string {
	token, err := c.Cookie(o.Name)
	if err != nil {
		return ""
	}
	return token
}

// Set issues the session cookie with Max-Age equal to the session lifetime.
func (o CookieOptions) Set(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(o.Name, token, int(o.Lifetime/time.Second), "/", "", o.Secure, true)
}

// Clear expires the session cookie on the client.
func (o CookieOptions) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(o.Name, "", -1, "/", "", o.Secure, true)
}
