package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"memorialqr/internal/config"
	"memorialqr/internal/guard"
	"memorialqr/internal/logger"
	"memorialqr/internal/pathpolicy"
	"memorialqr/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeAccounts struct {
	byEmail map[string]session.Account
}

func (f *fakeAccounts) FindByEmail(ctx context.Context, email string) (*session.Account, error) {
	acc, ok := f.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &acc, nil
}

func (f *fakeAccounts) Create(ctx context.Context, email, role, passwordHash string) (*session.Account, error) {
	if _, ok := f.byEmail[email]; ok {
		return nil, ErrEmailExists
	}
	acc := session.Account{ID: "new-" + email, Email: email, Role: role, PasswordHash: passwordHash}
	f.byEmail[email] = acc
	return &acc, nil
}

type fakeManager struct {
	started []session.Account
	ended   []string
}

func (f *fakeManager) Start(ctx context.Context, account session.Account) (session.Session, error) {
	f.started = append(f.started, account)
	return session.Session{
		Token:     "token-" + account.ID,
		AccountID: account.ID,
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil
}

func (f *fakeManager) End(ctx context.Context, token string) error {
	f.ended = append(f.ended, token)
	return session.ErrSessionNotFound
}

func (f *fakeManager) Sweep(ctx context.Context) (int64, error) { return 0, nil }

// tokenResolver resolves whatever token the fake manager issued
type tokenResolver struct {
	principals map[string]*session.Principal
}

func (r tokenResolver) Resolve(c *gin.Context) *session.Principal {
	return r.principals[cookieOpts.Token(c)]
}

var cookieOpts = session.CookieOptions{Name: "memorial_session", Lifetime: time.Hour}

func hash(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func setup(t *testing.T) (*gin.Engine, *fakeManager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	accounts := &fakeAccounts{byEmail: map[string]session.Account{
		"staff@example.com":   {ID: "a1", Email: "staff@example.com", Role: "admin", PasswordHash: hash(t, "secreto-admin")},
		"familia@example.com": {ID: "o1", Email: "familia@example.com", Role: "owner", PasswordHash: hash(t, "secreto-owner")},
		"raro@example.com":    {ID: "x1", Email: "raro@example.com", Role: "superuser", PasswordHash: hash(t, "secreto-raro")},
	}}
	mgr := &fakeManager{}
	routes := config.DefaultRoutes()
	log := logger.Discard()

	h := NewHandler(NewService(accounts, mgr, log), cookieOpts, pathpolicy.New(routes), routes, log)
	g := guard.New(tokenResolver{principals: map[string]*session.Principal{
		"token-o1": {Token: "token-o1", Account: session.Identity{ID: "o1", Email: "familia@example.com", Role: session.RoleOwner}},
	}}, routes, nil)

	r := gin.New()
	r.POST("/api/login", h.Login)
	r.POST("/api/logout", h.Logout)
	r.GET("/api/session", g.API(guard.AnyAuthenticated), h.Session)
	return r, mgr
}

func postJSON(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == cookieOpts.Name {
			return c
		}
	}
	return nil
}

func TestLogin_RedirectFollowsPolicy(t *testing.T) {
	tests := []struct {
		name, email, password, from, want string
	}{
		{"admin keeps admin path", "staff@example.com", "secreto-admin", "/admin/usuarios", "/admin/usuarios"},
		{"admin cannot land on owner path", "staff@example.com", "secreto-admin", "/panel", "/admin"},
		{"owner cannot land on admin path", "familia@example.com", "secreto-owner", "/admin", "/panel"},
		{"owner keeps memorial path", "familia@example.com", "secreto-owner", "/memorial/9", "/memorial/9"},
		{"external target ignored", "familia@example.com", "secreto-owner", "//evil.example", "/panel"},
		{"no from goes home", "STAFF@example.com", "secreto-admin", "", "/admin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := setup(t)
			body, _ := json.Marshal(LoginRequest{Email: tt.email, Password: tt.password, From: tt.from})
			w := postJSON(r, "/api/login", string(body))

			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			var resp LoginResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			require.Equal(t, tt.want, resp.Redirect)

			c := sessionCookie(w)
			require.NotNil(t, c)
			require.True(t, c.HttpOnly)
			require.Equal(t, 3600, c.MaxAge)
		})
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	r, mgr := setup(t)
	w := postJSON(r, "/api/login", `{"email":"familia@example.com","password":"nope-nope"}`)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Nil(t, sessionCookie(w))
	require.Empty(t, mgr.started)
}

func TestLogin_UnknownEmailAndRole(t *testing.T) {
	r, mgr := setup(t)

	w := postJSON(r, "/api/login", `{"email":"nadie@example.com","password":"whatever1"}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = postJSON(r, "/api/login", `{"email":"raro@example.com","password":"secreto-raro"}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Empty(t, mgr.started)
}

func TestLogin_BadRequest(t *testing.T) {
	r, _ := setup(t)
	w := postJSON(r, "/api/login", `{"email":"not-an-email"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogin_FormPostRedirects(t *testing.T) {
	r, _ := setup(t)

	form := url.Values{"email": {"familia@example.com"}, "password": {"secreto-owner"}, "from": {"/crear-memorial"}}
	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/html")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusSeeOther, w.Code)
	require.Equal(t, "/crear-memorial", w.Header().Get("Location"))

	form.Set("password", "incorrecta")
	req = httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/html")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusSeeOther, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/login", loc.Path)
	require.Equal(t, "/crear-memorial", loc.Query().Get("from"))
}

func TestLogout_ClearsCookie(t *testing.T) {
	r, mgr := setup(t)

	req := httptest.NewRequest(http.MethodPost, "/api/logout", nil)
	req.Header.Set("Accept", "application/json")
	req.AddCookie(&http.Cookie{Name: cookieOpts.Name, Value: "token-o1"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []string{"token-o1"}, mgr.ended)
	c := sessionCookie(w)
	require.NotNil(t, c)
	require.Less(t, c.MaxAge, 0)
}

func TestSession_Endpoint(t *testing.T) {
	r, _ := setup(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.AddCookie(&http.Cookie{Name: cookieOpts.Name, Value: "token-o1"})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"account":{"id":"o1","email":"familia@example.com","role":"owner"}}`, w.Body.String())
}

func TestService_Register(t *testing.T) {
	accounts := &fakeAccounts{byEmail: map[string]session.Account{}}
	svc := NewService(accounts, &fakeManager{}, logger.Discard())

	_, err := svc.Register(context.Background(), "nuevo@example.com", "larga-clave", "staff")
	require.ErrorIs(t, err, ErrInvalidRole)

	_, err = svc.Register(context.Background(), "nuevo@example.com", "corta", "owner")
	require.Error(t, err)

	acc, err := svc.Register(context.Background(), "nuevo@example.com", "larga-clave", "owner")
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte("larga-clave")))

	_, err = svc.Register(context.Background(), "nuevo@example.com", "larga-clave", "owner")
	require.ErrorIs(t, err, ErrEmailExists)
}

func TestLogin_EndsPreviousSession(t *testing.T) {
	r, mgr := setup(t)

	req := httptest.NewRequest(http.MethodPost, "/api/login",
		strings.NewReader(`{"email":"staff@example.com","password":"secreto-admin"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: cookieOpts.Name, Value: "token-o1"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []string{"token-o1"}, mgr.ended)
	require.Equal(t, "token-a1", sessionCookie(w).Value)
}

func TestLogin_FailedLoginKeepsPreviousSession(t *testing.T) {
	r, mgr := setup(t)

	req := httptest.NewRequest(http.MethodPost, "/api/login",
		strings.NewReader(`{"email":"staff@example.com","password":"incorrecta"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: cookieOpts.Name, Value: "token-o1"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Empty(t, mgr.ended)
}

func TestLogin_DotSegmentsDoNotEscapeRole(t *testing.T) {
	tests := []struct {
		email, password, from, want string
	}{
		{"familia@example.com", "secreto-owner", "/panel/../admin/usuarios", "/panel"},
		{"familia@example.com", "secreto-owner", "/memorial/%2e%2e/admin", "/panel"},
		{"staff@example.com", "secreto-admin", "/admin/../panel", "/admin"},
	}

	for _, tt := range tests {
		r, _ := setup(t)

		form := url.Values{"email": {tt.email}, "password": {tt.password}, "from": {tt.from}}
		req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "text/html")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusSeeOther, w.Code, tt.from)
		require.Equal(t, tt.want, w.Header().Get("Location"), tt.from)
	}
}

func TestLogin_LogsReplacedDestinationClass(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, slog.LevelInfo, logger.FormatJSON)
	accounts := &fakeAccounts{byEmail: map[string]session.Account{
		"familia@example.com": {ID: "o1", Email: "familia@example.com", Role: "owner", PasswordHash: hash(t, "secreto-owner")},
	}}
	routes := config.DefaultRoutes()
	h := NewHandler(NewService(accounts, &fakeManager{}, log), cookieOpts, pathpolicy.New(routes), routes, log)

	r := gin.New()
	r.POST("/api/login", h.Login)

	tests := []struct {
		from, class string
	}{
		{"/admin/usuarios", "admin"},
		{"/nowhere", "none"},
		{"/panel/../admin", "unsafe"},
	}

	for _, tt := range tests {
		buf.Reset()
		w := postJSON(r, "/api/login", `{"email":"familia@example.com","password":"secreto-owner","from":"`+tt.from+`"}`)
		require.Equal(t, http.StatusOK, w.Code, tt.from)

		var entry map[string]any
		for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
			var e map[string]any
			require.NoError(t, json.Unmarshal([]byte(line), &e))
			if e["msg"] == "Login destination replaced" {
				entry = e
			}
		}
		require.NotNil(t, entry, tt.from)
		require.Equal(t, tt.class, entry["requested_class"], tt.from)
		require.Equal(t, "/panel", entry["redirect"], tt.from)
	}

	buf.Reset()
	w := postJSON(r, "/api/login", `{"email":"familia@example.com","password":"secreto-owner","from":"/panel"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotContains(t, buf.String(), "Login destination replaced")
}
