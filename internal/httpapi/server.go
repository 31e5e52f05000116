// Package httpapi exposes a hub or core tier over HTTP: login, sync
// push/pull, the scoring, prediction and allocation helpers, and the
// exchange (offers, requests, matches).
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/roach88/ataa/internal/allocate"
	"github.com/roach88/ataa/internal/auth"
	"github.com/roach88/ataa/internal/matching"
	"github.com/roach88/ataa/internal/metrics"
	"github.com/roach88/ataa/internal/model"
	"github.com/roach88/ataa/internal/orchestrator"
	"github.com/roach88/ataa/internal/predict"
	"github.com/roach88/ataa/internal/scoring"
	"github.com/roach88/ataa/internal/store"
)

// Services are the components the routes call into.
type Services struct {
	Store         *store.Store
	Orchestrator  *orchestrator.Orchestrator
	Authenticator *auth.Authenticator
	Issuer        *auth.Issuer
	Scorer        *scoring.Scorer
	Predictor     *predict.Predictor
	Optimizer     *allocate.Optimizer
	Matching      *matching.Engine
	Metrics       *metrics.Metrics
	Limiter       *RateLimiter
}

var (
	staff      = []model.Role{model.RoleAdmin, model.RoleFieldWorker}
	adminOnly  = []model.Role{model.RoleAdmin}
	offerRoles = []model.Role{model.RoleAdmin, model.RoleFieldWorker, model.RoleDonor}
	anyRole    []model.Role
)

type server struct {
	svc    Services
	logger *slog.Logger
}

// NewHandler builds the router.
func NewHandler(svc Services, logger *slog.Logger) http.Handler {
	s := &server{svc: svc, logger: logger}

	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return svc.Metrics.Instrument(routeTemplate, next)
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, req, logger, model.Errorf(model.ErrCodeNotFound, "no route for %s %s", req.Method, req.URL.Path))
	})

	r.Handle("/healthz", http.HandlerFunc(s.healthz)).Methods(http.MethodGet)
	r.Handle("/metrics", svc.Metrics.Handler()).Methods(http.MethodGet)
	r.Handle("/auth/token", svc.Limiter.Handler(http.HandlerFunc(s.login))).Methods(http.MethodPost)

	api := r.NewRoute().Subrouter()
	api.Use(func(next http.Handler) http.Handler { return authenticate(svc.Issuer, logger, next) })
	api.Use(svc.Limiter.Handler)

	api.Handle("/sync/push", requireRole(logger, staff, s.push)).Methods(http.MethodPost)
	api.Handle("/sync/pull", requireRole(logger, staff, s.pull)).Methods(http.MethodPost)
	api.Handle("/sync/status", requireRole(logger, anyRole, s.status)).Methods(http.MethodGet)
	api.Handle("/sync/log", requireRole(logger, anyRole, s.syncLog)).Methods(http.MethodGet)

	api.Handle("/ai/priority/{id}", requireRole(logger, staff, s.priority)).Methods(http.MethodGet)
	api.Handle("/ai/recalculate", requireRole(logger, adminOnly, s.recalculate)).Methods(http.MethodPost)
	api.Handle("/ai/predict/{id}", requireRole(logger, staff, s.predict)).Methods(http.MethodGet)
	api.Handle("/ai/allocate", requireRole(logger, staff, s.allocate)).Methods(http.MethodPost)
	api.Handle("/ai/allocate/apply", requireRole(logger, staff, s.applyAllocation)).Methods(http.MethodPost)
	api.Handle("/distributions/{id}/complete", requireRole(logger, staff, s.completeDistribution)).Methods(http.MethodPost)
	api.Handle("/distributions/{id}/cancel", requireRole(logger, staff, s.cancelDistribution)).Methods(http.MethodPost)

	api.Handle("/exchange/offers", requireRole(logger, offerRoles, s.createOffer)).Methods(http.MethodPost)
	api.Handle("/exchange/requests", requireRole(logger, staff, s.createRequest)).Methods(http.MethodPost)
	api.Handle("/exchange/matches/{id}", requireRole(logger, offerRoles, s.transitionMatch)).Methods(http.MethodPatch)

	return r
}

// routeTemplate labels metrics by the matched route, so IDs in paths do not
// create new series.
func routeTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return ""
	}
	tpl, err := route.GetPathTemplate()
	if err != nil {
		return ""
	}
	return tpl
}

func (s *server) actor(r *http.Request) model.Actor {
	a, _ := ActorFrom(r.Context())
	return a
}

func (s *server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
