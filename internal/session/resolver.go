package session

import (
	"context"
	"log/slog"
	"time"

	"memorialqr/internal/metrics"

	"github.com/gin-gonic/gin"
)

// Resolver turns the session cookie of a request into a Principal.
// Every failure, including store errors, resolves to nil. Callers should
// resolve once per request and reuse the result.
type Resolver struct {
	reader  Reader
	cookie  CookieOptions
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewResolver creates a resolver reading sessions from reader
func NewResolver(reader Reader, cookie CookieOptions, logger *slog.Logger) *Resolver {
	return &Resolver{
		reader: reader,
		cookie: cookie,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock returns a copy of the resolver using now as its time source.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	cp := *r
	cp.now = now
	return &cp
}

// WithMetrics returns a copy of the resolver that records lookup latency in m.
func (r *Resolver) WithMetrics(m *metrics.Metrics) *Resolver {
	cp := *r
	cp.metrics = m
	return &cp
}

// Resolve reads the session cookie from the request and resolves it.
func (r *Resolver) Resolve(c *gin.Context) *Principal {
	return r.ResolveToken(c.Request.Context(), r.cookie.Token(c))
}

// ResolveToken resolves a raw token. An empty token is "no session".
func (r *Resolver) ResolveToken(ctx context.Context, token string) *Principal {
	if token == "" {
		return nil
	}

	start := time.Now()
	rec, err := r.reader.Lookup(ctx, token, r.now())
	r.metrics.Lookup("lookup", time.Since(start))
	if err != nil {
		r.logger.ErrorContext(ctx, "Session lookup failed", "error", err)
		return nil
	}
	if rec == nil {
		return nil
	}

	if rec.Account == nil {
		r.logger.WarnContext(ctx, "Session references a missing account",
			"account_id", rec.Session.AccountID,
		)
		return nil
	}

	role, ok := ParseRole(rec.Account.Role)
	if !ok {
		r.logger.WarnContext(ctx, "Account has an unrecognised role",
			"account_id", rec.Account.ID,
			"role", rec.Account.Role,
		)
		return nil
	}

	return &Principal{
		Token: rec.Session.Token,
		Account: Identity{
			ID:    rec.Account.ID,
			Email: rec.Account.Email,
			Role:  role,
		},
	}
}
