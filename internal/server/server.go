// internal/server/server.go
// Package server assembles the lending services over one store and mounts
// their handlers on a chi router.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"lendnexus/internal/catalog"
	"lendnexus/internal/circulation"
	"lendnexus/internal/domain"
	"lendnexus/internal/feed"
	"lendnexus/internal/httpx"
	"lendnexus/internal/membership"
	"lendnexus/internal/metrics"
	"lendnexus/internal/reservation"
	"lendnexus/internal/store"
)

// Options tune the services. Zero values keep each service's defaults.
type Options struct {
	Clock                  circulation.Clock
	DueSoonDays            int
	RentalView             *feed.View[*domain.Rental]
	RegistrationsPerMinute int
	CodeAttemptsPerMinute  int
}

// Services are the four lending services sharing one store.
type Services struct {
	Catalog     catalog.Service
	Membership  membership.Service
	Circulation circulation.Service
	Reservation reservation.Service
}

// Wire builds every service on st. Catalog and reservations read
// availability through the circulation service.
func Wire(st store.Store, opts Options) Services {
	var circOpts []circulation.Option
	var memberOpts []membership.Option
	if opts.Clock != nil {
		circOpts = append(circOpts, circulation.WithClock(opts.Clock))
		memberOpts = append(memberOpts, membership.WithNow(opts.Clock.Now))
	}
	if opts.DueSoonDays > 0 {
		circOpts = append(circOpts, circulation.WithDueSoonDays(opts.DueSoonDays))
	}
	if opts.RentalView != nil {
		circOpts = append(circOpts, circulation.WithRentalView(opts.RentalView))
	}
	if opts.RegistrationsPerMinute != 0 {
		memberOpts = append(memberOpts, membership.WithRegistrationLimit(opts.RegistrationsPerMinute))
	}
	var resOpts []reservation.Option
	if opts.CodeAttemptsPerMinute != 0 {
		resOpts = append(resOpts, reservation.WithAttemptLimit(opts.CodeAttemptsPerMinute))
	}

	circ := circulation.NewService(st, circOpts...)
	return Services{
		Catalog:     catalog.NewService(st, circ),
		Membership:  membership.NewService(st, memberOpts...),
		Circulation: circ,
		Reservation: reservation.NewService(st, circ, resOpts...),
	}
}

// NewRouter mounts every handler plus /healthz and /metrics.
func NewRouter(s Services) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.NotFound(httpx.NotFound)

	r.Get("/healthz", httpx.Healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	catalog.NewHandler(s.Catalog).Register(r)
	membership.NewHandler(s.Membership).Register(r)
	circulation.NewHandler(s.Circulation).Register(r)
	reservation.NewHandler(s.Reservation).Register(r)
	return r
}
