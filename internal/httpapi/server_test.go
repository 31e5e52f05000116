package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/ataa/internal/allocate"
	"github.com/roach88/ataa/internal/auth"
	"github.com/roach88/ataa/internal/matching"
	"github.com/roach88/ataa/internal/metrics"
	"github.com/roach88/ataa/internal/model"
	"github.com/roach88/ataa/internal/orchestrator"
	"github.com/roach88/ataa/internal/predict"
	"github.com/roach88/ataa/internal/queue"
	"github.com/roach88/ataa/internal/rules"
	"github.com/roach88/ataa/internal/scoring"
	"github.com/roach88/ataa/internal/testutil"
)

type harness struct {
	handler http.Handler
	issuer  *auth.Issuer
}

func newHarness(t *testing.T, limiter *RateLimiter) harness {
	t.Helper()
	st := testutil.NewStore(t)
	clk := testutil.NewClock()
	log := testutil.Logger()
	ids := model.NewSequenceGenerator("id")
	m := metrics.New()
	r := rules.Defaults()
	rec := queue.Direct{Clock: clk}
	testutil.Seed(t, st, testutil.Zone("z1"), testutil.PickupPoint("pp1", "z1"), testutil.Household("h1", "z1"))

	issuer, err := auth.NewIssuer("secret", time.Hour, clk)
	require.NoError(t, err)
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)
	accounts := map[string]auth.Account{"admin": {PasswordHash: string(hash), Role: model.RoleAdmin}}

	eng := matching.New(st, nil, rec, ids, clk, log, m)
	h := NewHandler(Services{
		Store:         st,
		Orchestrator:  orchestrator.New(st, nil, nil, eng, ids, clk, log, m, orchestrator.Options{PullExchange: true}),
		Authenticator: auth.NewAuthenticator(accounts, issuer),
		Issuer:        issuer,
		Scorer:        scoring.New(st, &r, clk, log, m),
		Predictor:     predict.New(st, &r, clk, log),
		Optimizer:     allocate.New(st, &r, rec, ids, clk, log, m),
		Matching:      eng,
		Metrics:       m,
		Limiter:       limiter,
	}, log)
	return harness{handler: h, issuer: issuer}
}

func (h harness) token(t *testing.T, role model.Role) string {
	t.Helper()
	tok, err := h.issuer.Issue(string(role)+"-1", role)
	require.NoError(t, err)
	return tok.Token
}

func (h harness) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestLoginAndPush(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodPost, "/auth/token", "", loginRequest{Username: "admin", Password: "pw"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	tok := decode[auth.Token](t, rec)
	assert.Equal(t, model.RoleAdmin, tok.Role)

	p := model.NewPushPayload("hub-1", testutil.T0)
	require.NoError(t, p.Add(testutil.Household("h2", "z1")))
	require.NoError(t, p.Add(testutil.Household("h3", "z404")))
	rec = h.do(t, http.MethodPost, "/sync/push", tok.Token, p)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[model.PushResponse](t, rec)
	assert.Equal(t, model.OutcomePartial, resp.Status)
	assert.Equal(t, 1, resp.RecordsAccepted)
	require.Len(t, resp.Conflicts, 1)
	assert.Equal(t, "h3", resp.Conflicts[0].EntityID)

	rec = h.do(t, http.MethodGet, "/sync/status", tok.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[orchestrator.Status](t, rec)
	require.NotNil(t, status.LastSync)
	assert.Equal(t, model.OutcomePartial, status.LastSync.Outcome)

	rec = h.do(t, http.MethodGet, "/sync/log", tok.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.SyncLogEntry](t, rec), 1)
}

func TestLogin_BadPassword(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodPost, "/auth/token", "", loginRequest{Username: "admin", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decode[errorBody](t, rec).Error.Code)
}

func TestPull(t *testing.T) {
	h := newHarness(t, nil)
	tok := h.token(t, model.RoleFieldWorker)

	rec := h.do(t, http.MethodPost, "/sync/pull", tok, model.PullRequest{HubID: "hub-1", ZoneID: "z1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[model.PullResponse](t, rec)
	require.Len(t, resp.Updates.Households, 1)
	assert.Equal(t, "h1", resp.Updates.Households[0].ID)

	rec = h.do(t, http.MethodPost, "/sync/pull", tok, model.PullRequest{HubID: "hub-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION", decode[errorBody](t, rec).Error.Code)
}

func TestAuthRequired(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodPost, "/sync/push", "", model.NewPushPayload("hub-1", testutil.T0))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/sync/push", "garbage", model.NewPushPayload("hub-1", testutil.T0))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/sync/push", h.token(t, model.RoleDonor), model.NewPushPayload("hub-1", testutil.T0))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", decode[errorBody](t, rec).Error.Code)

	rec = h.do(t, http.MethodPost, "/ai/recalculate", h.token(t, model.RoleFieldWorker), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPriorityAndPredict(t *testing.T) {
	h := newHarness(t, nil)
	tok := h.token(t, model.RoleAdmin)

	rec := h.do(t, http.MethodGet, "/ai/priority/h1", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	score := decode[scoring.Score](t, rec)
	assert.Equal(t, "h1", score.HouseholdID)
	assert.Positive(t, score.Total)

	rec = h.do(t, http.MethodGet, "/ai/priority/missing", tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decode[errorBody](t, rec).Error.Code)

	rec = h.do(t, http.MethodGet, "/ai/predict/h1", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pr := decode[predictResponse](t, rec)
	assert.Equal(t, "h1", pr.HouseholdID)
	assert.NotEmpty(t, pr.Predictions)

	rec = h.do(t, http.MethodPost, "/ai/recalculate", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[scoring.RecomputeResult](t, rec).Updated)
}

func TestAllocate(t *testing.T) {
	h := newHarness(t, nil)
	tok := h.token(t, model.RoleFieldWorker)

	rec := h.do(t, http.MethodPost, "/ai/allocate", tok, allocate.Options{ZoneID: "z1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	plan := decode[allocate.Plan](t, rec)
	assert.Zero(t, plan.Households)

	rec = h.do(t, http.MethodPost, "/ai/allocate", tok, allocate.Options{MaxHouseholds: -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExchangeFlow(t *testing.T) {
	h := newHarness(t, nil)
	donor := h.token(t, model.RoleDonor)
	worker := h.token(t, model.RoleFieldWorker)

	rec := h.do(t, http.MethodPost, "/exchange/offers", donor, model.Offer{
		ZoneID: "z1", Category: model.CategoryShelter, Quantity: 1,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	offer := decode[offerResponse](t, rec)
	assert.Equal(t, "donor-1", offer.Offer.CreatedBy)
	assert.Empty(t, offer.Matches)

	rec = h.do(t, http.MethodPost, "/exchange/requests", donor, model.Request{
		ZoneID: "z1", Category: model.CategoryShelter, Quantity: 1,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodPost, "/exchange/requests", worker, model.Request{
		ZoneID: "z1", Category: model.CategoryShelter, Quantity: 1,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	req := decode[requestResponse](t, rec)
	require.Len(t, req.Matches, 1)
	match := req.Matches[0]
	assert.Equal(t, offer.Offer.ID, match.OfferID)

	rec = h.do(t, http.MethodPatch, "/exchange/matches/"+match.ID, worker, transitionRequest{Status: model.MatchAccepted})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.MatchAccepted, decode[model.Match](t, rec).Status)

	rec = h.do(t, http.MethodPatch, "/exchange/matches/"+match.ID, worker, transitionRequest{Status: model.MatchCompleted})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMalformedBody(t *testing.T) {
	h := newHarness(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/sync/push", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Authorization", "Bearer "+h.token(t, model.RoleAdmin))
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decode[errorBody](t, rec).Error.Code)
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, NewRateLimiter(0.001, 1, testutil.Logger()))
	body := loginRequest{Username: "admin", Password: "nope"}

	rec := h.do(t, http.MethodPost, "/auth/token", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = h.do(t, http.MethodPost, "/auth/token", "", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestMetricsUseRouteTemplates(t *testing.T) {
	h := newHarness(t, nil)
	tok := h.token(t, model.RoleAdmin)
	h.do(t, http.MethodGet, "/ai/priority/h1", tok, nil)

	rec := h.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `path="/ai/priority/{id}"`)
	assert.NotContains(t, rec.Body.String(), `path="/ai/priority/h1"`)
}

func TestStatusFor(t *testing.T) {
	cases := map[model.ErrorCode]int{
		model.ErrCodeNotFound:          http.StatusNotFound,
		model.ErrCodeValidation:        http.StatusBadRequest,
		model.ErrCodeConflict:          http.StatusConflict,
		model.ErrCodeStale:             http.StatusConflict,
		model.ErrCodeAuthExpired:       http.StatusUnauthorized,
		model.ErrCodeForbidden:         http.StatusForbidden,
		model.ErrCodeConnectivity:      http.StatusServiceUnavailable,
		model.ErrCodeAlreadyInProgress: http.StatusTooManyRequests,
		model.ErrCodeServer:            http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, statusFor(code), code)
	}
}
