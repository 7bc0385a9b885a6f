// Package httptransport assembles the public router: platform middleware,
// health probes, metrics, and the sign-in routes.
package httptransport

import (
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"

	"afenda/internal/platform/health"
	signinhandler "afenda/internal/signin/handler"
	"afenda/pkg/platform/middleware/admin"
	"afenda/pkg/platform/middleware/metadata"
	request "afenda/pkg/platform/middleware/request"
	"afenda/pkg/platform/middleware/requesttime"
)

// MaxBodyBytes caps every request body the service reads or forwards.
const MaxBodyBytes = 1 << 20

type Deps struct {
	Logger         *slog.Logger
	SignIn         *signinhandler.Handler
	Health         *health.Handler
	Metrics        *request.Metrics
	MetricsHandler http.Handler
	TrustedProxies []netip.Prefix
	AdminToken     string
}

// NewRouter wires all public endpoints with middleware. Admin routes are
// mounted only when an admin token is configured.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(request.Recovery(d.Logger))
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.NewMiddleware(&metadata.Config{TrustedProxies: d.TrustedProxies}).Handler)
	r.Use(request.Logger(d.Logger))
	r.Use(request.LatencyMiddleware(d.Metrics))
	r.Use(request.BodyLimit(MaxBodyBytes))

	if d.Health != nil {
		d.Health.Register(r)
	}
	if d.MetricsHandler != nil {
		r.Handle("/metrics", d.MetricsHandler)
	}

	d.SignIn.Register(r)
	if d.AdminToken != "" {
		r.Group(func(r chi.Router) {
			r.Use(admin.RequireAdminToken(d.AdminToken, d.Logger))
			d.SignIn.RegisterAdmin(r)
		})
	}
	return r
}
