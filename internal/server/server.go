package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"studygroup-tracker/internal/api"
	"studygroup-tracker/internal/retry"
	"studygroup-tracker/internal/service"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Server exposes the merged stats and group operations as JSON over HTTP.
type Server struct {
	groupSvc  *service.GroupService
	playerSvc *service.PlayerService
	statsSvc  *service.TeamStatsService
	riot      *api.RiotClient
	logger    zerolog.Logger
}

func New(groupSvc *service.GroupService, playerSvc *service.PlayerService, statsSvc *service.TeamStatsService, riot *api.RiotClient, logger zerolog.Logger) *Server {
	return &Server{
		groupSvc:  groupSvc,
		playerSvc: playerSvc,
		statsSvc:  statsSvc,
		riot:      riot,
		logger:    logger,
	}
}

func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	apiRouter := r.PathPrefix("/api").Subrouter()

	apiRouter.HandleFunc("/study-groups", s.handleListGroups).Methods(http.MethodGet)
	apiRouter.HandleFunc("/study-groups", s.handleCreateGroup).Methods(http.MethodPost)
	apiRouter.HandleFunc("/study-groups/{id:[0-9]+}", s.handleUpdateGroup).Methods(http.MethodPut)
	apiRouter.HandleFunc("/study-groups/{id:[0-9]+}/members/{riotID}", s.handleLeaveGroup).Methods(http.MethodDelete)
	apiRouter.HandleFunc("/study-groups/{id:[0-9]+}/stats", s.handleTeamStats).Methods(http.MethodGet)
	apiRouter.HandleFunc("/study-groups/{id:[0-9]+}/stats/refresh", s.handleRefreshStats).Methods(http.MethodPost)
	apiRouter.HandleFunc("/study-groups/{id:[0-9]+}/stats/refresh-live", s.handleRefreshLive).Methods(http.MethodPost)
	apiRouter.HandleFunc("/free-agents", s.handleListFreeAgents).Methods(http.MethodGet)
	apiRouter.HandleFunc("/users/{userID}/study-groups", s.handleMyGroups).Methods(http.MethodGet)
	apiRouter.HandleFunc("/players/{riotID}/card", s.handlePlayerCard).Methods(http.MethodGet)
	apiRouter.HandleFunc("/players/{riotID}/history", s.handlePlayerHistory).Methods(http.MethodGet)
	apiRouter.HandleFunc("/cache/stats", s.handleCacheStats).Methods(http.MethodGet)
	apiRouter.HandleFunc("/cache/clear", s.handleCacheClear).Methods(http.MethodPost)
	apiRouter.HandleFunc("/rate-limit", s.handleRateLimit).Methods(http.MethodGet)

	return r
}

func listParams(r *http.Request) api.ListParams {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	return api.ListParams{
		Page:     page,
		PageSize: pageSize,
		Sort:     q.Get("sort"),
		Filter:   q.Get("filter"),
		Search:   q.Get("search"),
	}
}

func sinceParam(r *http.Request) time.Time {
	if raw := r.URL.Query().Get("start_date"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.groupSvc.ListGroups(r.Context(), listParams(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleListFreeAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.groupSvc.ListFreeAgents(r.Context(), listParams(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, agents)
}

func (s *Server) handleMyGroups(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]
	groups, err := s.groupSvc.GetMyGroups(r.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrGroupsTimeout) {
			s.writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": err.Error()})
			return
		}
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var payload api.GroupPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	group, err := s.groupSvc.CreateGroup(r.Context(), payload)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, group)
}

func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	groupID, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	var payload api.GroupPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	group, err := s.groupSvc.UpdateGroup(r.Context(), groupID, payload)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, group)
}

func (s *Server) handleLeaveGroup(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	groupID, _ := strconv.ParseInt(vars["id"], 10, 64)
	if err := s.groupSvc.LeaveGroup(r.Context(), groupID, vars["riotID"]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTeamStats(w http.ResponseWriter, r *http.Request) {
	groupID, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	includeLive := r.URL.Query().Get("live") == "true"

	merged, err := s.statsSvc.GetTeamStats(r.Context(), groupID, sinceParam(r), includeLive)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, merged)
}

func (s *Server) handleRefreshStats(w http.ResponseWriter, r *http.Request) {
	groupID, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	includeLive := r.URL.Query().Get("live") == "true"

	merged, err := s.statsSvc.Refresh(r.Context(), groupID, sinceParam(r), includeLive)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, merged)
}

func (s *Server) handleRefreshLive(w http.ResponseWriter, r *http.Request) {
	groupID, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	merged, err := s.statsSvc.RefreshLive(r.Context(), groupID, sinceParam(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, merged)
}

func (s *Server) handlePlayerCard(w http.ResponseWriter, r *http.Request) {
	card, err := s.playerSvc.GetPlayerCard(r.Context(), mux.Vars(r)["riotID"], sinceParam(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, card)
}

func (s *Server) handlePlayerHistory(w http.ResponseWriter, r *http.Request) {
	events, err := s.playerSvc.GetPlayerHistory(r.Context(), mux.Vars(r)["riotID"], sinceParam(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	size, keys := s.statsSvc.CacheStats()
	s.writeJSON(w, http.StatusOK, map[string]any{"size": size, "keys": keys})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	s.statsSvc.ClearCache()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRateLimit(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.riot.GetRateLimitInfo())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError maps upstream failures onto response codes: 404s pass
// through, other client errors keep their status, everything else is a
// bad-gateway with the upstream message attached.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, api.ErrNotFound) {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	var serr *api.StatusError
	if errors.As(err, &serr) && retry.IsClientError(err) {
		s.writeJSON(w, serr.Code, map[string]string{"error": serr.Error()})
		return
	}
	s.writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
}
