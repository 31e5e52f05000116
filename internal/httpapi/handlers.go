package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/roach88/ataa/internal/allocate"
	"github.com/roach88/ataa/internal/model"
	"github.com/roach88/ataa/internal/orchestrator"
	"github.com/roach88/ataa/internal/predict"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	tok, err := s.svc.Authenticator.Login(req.Username, req.Password)
	if err != nil {
		s.logger.Warn("login failed", "username", req.Username, "error", err)
		writeError(w, r, s.logger, err)
		return
	}
	s.logger.Info("login", "username", req.Username, "role", tok.Role)
	writeJSON(w, http.StatusOK, tok)
}

func (s *server) push(w http.ResponseWriter, r *http.Request) {
	var p model.PushPayload
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	resp, err := s.svc.Orchestrator.Push(r.Context(), &p)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) pull(w http.ResponseWriter, r *http.Request) {
	var req model.PullRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	resp, err := s.svc.Orchestrator.Pull(r.Context(), &req)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) status(w http.ResponseWriter, r *http.Request) {
	st, err := orchestrator.ReadStatus(r.Context(), s.svc.Store)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *server) syncLog(w http.ResponseWriter, r *http.Request) {
	entries, err := orchestrator.RecentLog(r.Context(), s.svc.Store)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *server) priority(w http.ResponseWriter, r *http.Request) {
	score, err := s.svc.Scorer.Score(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

func (s *server) recalculate(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Scorer.RecomputeAll(r.Context())
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type predictResponse struct {
	HouseholdID string               `json:"household_id"`
	Predictions []predict.Prediction `json:"predictions"`
}

func (s *server) predict(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	preds, err := s.svc.Predictor.Predict(r.Context(), id)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if preds == nil {
		preds = []predict.Prediction{}
	}
	writeJSON(w, http.StatusOK, predictResponse{HouseholdID: id, Predictions: preds})
}

func (s *server) allocate(w http.ResponseWriter, r *http.Request) {
	var opts allocate.Options
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &opts); err != nil {
			writeError(w, r, s.logger, err)
			return
		}
	}
	plan, err := s.svc.Optimizer.Optimize(r.Context(), opts)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

type applyRequest struct {
	Suggestion allocate.Suggestion `json:"suggestion"`
	LocationID string              `json:"location_id"`
}

func (s *server) applyAllocation(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	d, err := s.svc.Optimizer.Apply(r.Context(), req.Suggestion, req.LocationID, s.actor(r))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *server) completeDistribution(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.Optimizer.Complete(r.Context(), mux.Vars(r)["id"], s.actor(r))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *server) cancelDistribution(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.Optimizer.Cancel(r.Context(), mux.Vars(r)["id"], s.actor(r))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type offerResponse struct {
	Offer   *model.Offer  `json:"offer"`
	Matches []model.Match `json:"matches"`
}

type requestResponse struct {
	Request *model.Request `json:"request"`
	Matches []model.Match  `json:"matches"`
}

func (s *server) createOffer(w http.ResponseWriter, r *http.Request) {
	var o model.Offer
	if err := decodeJSON(w, r, &o); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	ms, err := s.svc.Matching.CreateOffer(r.Context(), &o, s.actor(r))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if ms == nil {
		ms = []model.Match{}
	}
	writeJSON(w, http.StatusCreated, offerResponse{Offer: &o, Matches: ms})
}

func (s *server) createRequest(w http.ResponseWriter, r *http.Request) {
	var req model.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	ms, err := s.svc.Matching.CreateRequest(r.Context(), &req, s.actor(r))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if ms == nil {
		ms = []model.Match{}
	}
	writeJSON(w, http.StatusCreated, requestResponse{Request: &req, Matches: ms})
}

type transitionRequest struct {
	Status model.MatchStatus `json:"status"`
}

func (s *server) transitionMatch(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	m, err := s.svc.Matching.Transition(r.Context(), mux.Vars(r)["id"], req.Status, s.actor(r))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
