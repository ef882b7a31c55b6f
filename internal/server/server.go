// Package server exposes the scheduler over an API-key protected JSON API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clambin/tado-scheduler/internal/schedule"
	"github.com/clambin/tado-scheduler/internal/state"
	"github.com/clambin/tado-scheduler/internal/tadoclient"
)

type Manager interface {
	Activate(ctx context.Context, name string, refresh bool, overrides map[string]string) error
	SetVariables(ctx context.Context, update map[string]string) error
	ActiveSchedule() (state.ActiveSchedule, error)
	Pull(ctx context.Context) (map[string][]schedule.WireBlock, error)
}

type ScheduleSource interface {
	Schedules(schedule.Request) (map[string]schedule.Schedule, error)
	Variables(schedule.Request) (map[string]*schedule.Variables, error)
}

type PresenceClient interface {
	SetPresence(context.Context, string) error
	Presence(context.Context) (string, error)
}

type Server struct {
	manager   Manager
	schedules ScheduleSource
	presence  PresenceClient
	version   string
	apiKey    string
	logger    *slog.Logger
	handler   http.Handler
}

func New(version, apiKey string, manager Manager, schedules ScheduleSource, presence PresenceClient, logger *slog.Logger) *Server {
	s := Server{
		manager:   manager,
		schedules: schedules,
		presence:  presence,
		version:   version,
		apiKey:    apiKey,
		logger:    logger,
	}

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(s.authenticate)
	api.HandleFunc("/", s.root).Methods(http.MethodGet)
	api.HandleFunc("/schedules", s.listSchedules).Methods(http.MethodGet)
	api.HandleFunc("/schedules/{schedule}", s.getSchedule).Methods(http.MethodGet)
	api.HandleFunc("/schedules/{schedule}/activate", s.activateSchedule).Methods(http.MethodPost)
	api.HandleFunc("/active", s.activeSchedule).Methods(http.MethodGet)
	api.HandleFunc("/timetables", s.timetables).Methods(http.MethodGet)
	api.HandleFunc("/variables", s.setVariables).Methods(http.MethodPut)
	api.HandleFunc("/presence/{presence}", s.setPresence).Methods(http.MethodPost)

	s.handler = handlers.RecoveryHandler()(r)
	return &s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" || r.Header.Get("x-api-key") != s.apiKey {
			http.Error(w, "invalid or missing API key", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) root(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]string{"version": s.version})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	if _, err := s.schedules.Variables(schedule.Request{}); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) listSchedules(w http.ResponseWriter, _ *http.Request) {
	variables, err := s.schedules.Variables(schedule.Request{})
	if err != nil {
		s.error(w, err)
		return
	}
	response := make(map[string]map[string]string, len(variables))
	for name, vars := range variables {
		response[name] = vars.Values()
	}
	s.writeJSON(w, response)
}

func (s *Server) getSchedule(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["schedule"]
	schedules, err := s.schedules.Schedules(schedule.Request{Name: name})
	if err != nil {
		s.error(w, err)
		return
	}
	selected := schedules[name]
	zones := make(map[string][]schedule.WireBlock, len(selected.Zones))
	for zone, timetable := range selected.Zones {
		zones[zone] = schedule.Render(timetable)
	}
	s.writeJSON(w, struct {
		Name      string                          `json:"name"`
		Variables map[string]string               `json:"variables"`
		Zones     map[string][]schedule.WireBlock `json:"zones"`
	}{
		Name:      selected.Name,
		Variables: selected.Variables.Values(),
		Zones:     zones,
	})
}

type activateRequest struct {
	Refresh   bool              `json:"refresh"`
	Variables map[string]string `json:"variables"`
}

func (s *Server) activateSchedule(w http.ResponseWriter, r *http.Request) {
	var request activateRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	name := mux.Vars(r)["schedule"]
	if err := s.manager.Activate(r.Context(), name, request.Refresh, request.Variables); err != nil {
		s.error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) activeSchedule(w http.ResponseWriter, _ *http.Request) {
	record, err := s.manager.ActiveSchedule()
	if err != nil {
		s.error(w, err)
		return
	}
	s.writeJSON(w, record)
}

func (s *Server) timetables(w http.ResponseWriter, r *http.Request) {
	timetables, err := s.manager.Pull(r.Context())
	if err != nil {
		s.error(w, err)
		return
	}
	s.writeJSON(w, timetables)
}

func (s *Server) setVariables(w http.ResponseWriter, r *http.Request) {
	var update map[string]string
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.manager.SetVariables(r.Context(), update); err != nil {
		s.error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setPresence(w http.ResponseWriter, r *http.Request) {
	var presence string
	switch mux.Vars(r)["presence"] {
	case "home":
		presence = tadoclient.PresenceHome
	case "away":
		presence = tadoclient.PresenceAway
	default:
		http.Error(w, "presence must be home or away", http.StatusBadRequest)
		return
	}
	if err := s.presence.SetPresence(r.Context(), presence); err != nil {
		s.error(w, err)
		return
	}
	if current, err := s.presence.Presence(r.Context()); err != nil || current != presence {
		http.Error(w, "failed to update presence", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeJSON(w http.ResponseWriter, response any) {
	w.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		s.logger.Error("failed to write response", "err", err)
	}
}

func (s *Server) error(w http.ResponseWriter, err error) {
	s.logger.Error("request failed", "err", err)
	http.Error(w, err.Error(), statusFromError(err))
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, schedule.ErrScheduleNotFound), errors.Is(err, schedule.ErrZoneNotFound):
		return http.StatusNotFound
	case errors.Is(err, schedule.ErrAmbiguousOverrides),
		errors.Is(err, schedule.ErrInvalidStaticTime),
		errors.Is(err, schedule.ErrInvalidDynamicTime),
		errors.Is(err, schedule.ErrVariableNotFound),
		errors.Is(err, schedule.ErrNoSchedules):
		return http.StatusBadRequest
	case errors.Is(err, tadoclient.ErrUnsupportedTimetable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
