// Package api exposes the tracking core over a small JSON HTTP surface.
// The mobile web UI owns all rendering; these endpoints only hand it the
// latest snapshot and accept its user signals (search, reset, visibility,
// activity).
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/koreameme/daegu-bus-realtime/internal/model"
	"github.com/koreameme/daegu-bus-realtime/internal/resolve"
	"github.com/koreameme/daegu-bus-realtime/internal/tracker"
)

// Server wires the tracking core into HTTP handlers.
type Server struct {
	tracker        *tracker.Tracker
	board          *tracker.Board
	history        *resolve.History
	allowedOrigins []string
}

// NewServer creates the HTTP surface over the given core components.
func NewServer(t *tracker.Tracker, b *tracker.Board, h *resolve.History, allowedOrigins []string) *Server {
	return &Server{
		tracker:        t,
		board:          b,
		history:        h,
		allowedOrigins: allowedOrigins,
	}
}

// Router builds the chi router with CORS for the web UI origin.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	r.Get("/health", s.health)

	r.Post("/api/routes/{routeNo}/track", s.track)
	r.Post("/api/reset", s.reset)
	r.Post("/api/refresh", s.refresh)
	r.Post("/api/visibility", s.visibility)
	r.Post("/api/activity", s.activity)
	r.Get("/api/snapshot", s.snapshot)
	r.Get("/api/arrivals", s.arrivals)
	r.Get("/api/history", s.historyList)

	return r
}

// ErrorResponse is the JSON error shape.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SnapshotResponse wraps the tracker state for the UI.
type SnapshotResponse struct {
	State    string            `json:"state"`
	Error    string            `json:"error,omitempty"`
	Snapshot *tracker.Snapshot `json:"snapshot,omitempty"`
}

// ArrivalsResponse is the arrivals-board payload.
type ArrivalsResponse struct {
	StopID   string          `json:"stopId"`
	Arrivals []model.Arrival `json:"arrivals"`
	Count    int             `json:"count"`
	PolledAt time.Time       `json:"polledAt"`
}

// HistoryResponse lists recent route-number searches, newest first.
type HistoryResponse struct {
	Routes []string `json:"routes"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) track(w http.ResponseWriter, r *http.Request) {
	routeNo := strings.TrimSpace(chi.URLParam(r, "routeNo"))
	if routeNo == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "route number required"})
		return
	}

	s.tracker.Touch()
	err := s.tracker.Track(r.Context(), routeNo)
	if err != nil {
		if errors.Is(err, resolve.ErrRouteNotFound) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{
				Error: fmt.Sprintf("%s번 노선을 찾을 수 없습니다.", routeNo),
			})
			return
		}
		writeJSON(w, http.StatusBadGateway, ErrorResponse{
			Error: "노선 정보를 가져오는 중 오류가 발생했습니다.",
		})
		return
	}

	s.history.Add(r.Context(), routeNo)
	s.writeSnapshot(w, r)
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	s.tracker.Touch()
	s.tracker.Reset()
	writeJSON(w, http.StatusOK, SnapshotResponse{State: s.tracker.State().String()})
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	s.tracker.Touch()
	s.tracker.Refresh(r.Context())
	s.writeSnapshot(w, r)
}

func (s *Server) visibility(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Visible bool `json:"visible"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
		return
	}
	s.tracker.SetVisible(r.Context(), body.Visible)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) activity(w http.ResponseWriter, r *http.Request) {
	s.tracker.Touch()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) {
	s.writeSnapshot(w, r)
}

func (s *Server) writeSnapshot(w http.ResponseWriter, r *http.Request) {
	filter := tracker.ParseFilter(r.URL.Query().Get("direction"))

	resp := SnapshotResponse{State: s.tracker.State().String()}
	if err := s.tracker.Err(); err != nil {
		resp.Error = err.Error()
	}
	if snap, ok := s.tracker.Snapshot(filter); ok {
		resp.Snapshot = &snap
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) arrivals(w http.ResponseWriter, r *http.Request) {
	arrivals, polledAt := s.board.Arrivals()
	writeJSON(w, http.StatusOK, ArrivalsResponse{
		StopID:   s.board.StopID(),
		Arrivals: arrivals,
		Count:    len(arrivals),
		PolledAt: polledAt,
	})
}

func (s *Server) historyList(w http.ResponseWriter, r *http.Request) {
	routes := s.history.List(r.Context())
	if routes == nil {
		routes = []string{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Routes: routes})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
