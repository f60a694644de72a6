package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"badewanne/internal/model"
	"badewanne/internal/scheduler"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Orchestrator is the part of the scheduler exposed over HTTP.
type Orchestrator interface {
	StartCampaign(ctx context.Context, ids []int64) ([]int64, error)
	StopCampaign(ctx context.Context, ids []int64) ([]int64, error)
	TriggerCycle(kind model.CycleKind) (string, error)
	StageCounts(ctx context.Context) (map[model.Stage]int, error)
}

type Server struct {
	orch Orchestrator
	log  zerolog.Logger
}

func New(orch Orchestrator, log zerolog.Logger) *Server {
	return &Server{
		orch: orch,
		log:  log.With().Str("component", "http").Logger(),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Get("/stages", s.handleStages)

	r.Route("/campaign", func(r chi.Router) {
		r.Post("/start", s.handleStart)
		r.Post("/stop", s.handleStop)
	})
	r.Post("/cycle/run", s.handleRunCycle)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) handleStages(w http.ResponseWriter, r *http.Request) {
	counts, err := s.orch.StageCounts(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("count stages failed")
		respondError(w, http.StatusInternalServerError, "BADEWANNE_INTERNAL", err.Error())
		return
	}
	out := make(map[string]int, len(model.AllStages))
	for _, st := range model.AllStages {
		out[string(st)] = counts[st]
	}
	respondJSON(w, http.StatusOK, out)
}

type idsRequest struct {
	IDs []int64 `json:"ids"`
}

type movedResponse struct {
	Requested int     `json:"requested"`
	Moved     []int64 `json:"moved"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.handleMove(w, r, "start", s.orch.StartCampaign)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.handleMove(w, r, "stop", s.orch.StopCampaign)
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request, action string,
	move func(context.Context, []int64) ([]int64, error)) {
	var req idsRequest
	if err := decodeJSON(w, r, &req, 1<<20); err != nil {
		respondError(w, http.StatusBadRequest, "BADEWANNE_BAD_REQUEST", err.Error())
		return
	}
	if len(req.IDs) == 0 {
		respondError(w, http.StatusBadRequest, "BADEWANNE_BAD_REQUEST", "ids are required")
		return
	}
	moved, err := move(r.Context(), req.IDs)
	if err != nil {
		s.log.Error().Err(err).Str("action", action).Msg("campaign trigger failed")
		respondError(w, http.StatusInternalServerError, "BADEWANNE_INTERNAL", err.Error())
		return
	}
	if moved == nil {
		moved = []int64{}
	}
	respondJSON(w, http.StatusAccepted, movedResponse{Requested: len(req.IDs), Moved: moved})
}

func (s *Server) handleRunCycle(w http.ResponseWriter, r *http.Request) {
	id, err := s.orch.TriggerCycle(model.KindManual)
	if errors.Is(err, scheduler.ErrCycleInFlight) {
		respondError(w, http.StatusConflict, "BADEWANNE_CYCLE_IN_FLIGHT", err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "BADEWANNE_INTERNAL", err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"cycle_id": id})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}, limit int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code, msg string) {
	respondJSON(w, status, map[string]string{
		"error": msg,
		"code":  code,
	})
}
