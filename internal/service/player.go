package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"studygroup-tracker/internal/api"
	"studygroup-tracker/internal/constants"
	"studygroup-tracker/internal/domain"
	"studygroup-tracker/internal/repository"
	"studygroup-tracker/internal/stats"

	"github.com/rs/zerolog"
)

type PlayerService struct {
	backend   *api.BackendClient
	riot      *api.RiotClient
	auditRepo *repository.AuditRepository
	logger    zerolog.Logger
}

func NewPlayerService(backend *api.BackendClient, riot *api.RiotClient, auditRepo *repository.AuditRepository, logger zerolog.Logger) *PlayerService {
	return &PlayerService{backend: backend, riot: riot, auditRepo: auditRepo, logger: logger}
}

// PlayerCard is the composite payload assembled when a player card is
// opened. Branches settle independently: BranchErrors carries per-branch
// failures so one failed lookup does not blank the whole card.
type PlayerCard struct {
	RiotID       string                  `json:"riot_id"`
	Live         *domain.LivePlayerData  `json:"live,omitempty"`
	Events       []domain.RankAuditEvent `json:"events"`
	Series       []domain.ChartPoint     `json:"series"`
	BranchErrors map[string]string       `json:"branchErrors,omitempty"`
}

// GetPlayerCard fans out the live-rank lookup and the audit-history fetch
// concurrently and settles each branch on its own. The call errors only
// when every branch failed.
func (s *PlayerService) GetPlayerCard(ctx context.Context, riotID string, since time.Time) (*PlayerCard, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
	defer cancel()

	s.logger.Info().Str("riot_id", riotID).Msg("assembling player card")

	var (
		wg      sync.WaitGroup
		live    *domain.LivePlayerData
		liveErr error
		events  []domain.RankAuditEvent
		evErr   error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		live, liveErr = s.riot.GetLivePlayer(ctx, riotID)
	}()
	go func() {
		defer wg.Done()
		events, evErr = s.backend.GetPlayerStats(ctx, riotID, since)
	}()
	wg.Wait()

	branchErrors := map[string]string{}
	if liveErr != nil {
		s.logger.Warn().Err(liveErr).Str("riot_id", riotID).Msg("live lookup failed")
		branchErrors["live"] = liveErr.Error()
		live = nil
	}
	if evErr != nil {
		s.logger.Warn().Err(evErr).Str("riot_id", riotID).Msg("stats fetch failed")
		branchErrors["stats"] = evErr.Error()
		events = nil
	}

	if liveErr != nil && evErr != nil {
		return nil, fmt.Errorf("player card unavailable: %w", evErr)
	}

	if len(events) > 0 {
		if err := s.auditRepo.UpsertBatch(ctx, events); err != nil {
			s.logger.Warn().Err(err).Str("riot_id", riotID).Msg("failed to persist rank audit events")
		}
	}

	card := &PlayerCard{
		RiotID: riotID,
		Live:   live,
		Events: events,
		Series: stats.BuildPlayerSeries(events, live),
	}
	if len(branchErrors) > 0 {
		card.BranchErrors = branchErrors
	}
	return card, nil
}

// GetPlayerHistory returns the persisted audit history for a player,
// falling back to the local store when the backend fails.
func (s *PlayerService) GetPlayerHistory(ctx context.Context, riotID string, since time.Time) ([]domain.RankAuditEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	events, err := s.backend.GetPlayerStats(ctx, riotID, since)
	if err == nil {
		if perr := s.auditRepo.UpsertBatch(ctx, events); perr != nil {
			s.logger.Warn().Err(perr).Str("riot_id", riotID).Msg("failed to persist rank audit events")
		}
		return events, nil
	}

	stored, serr := s.auditRepo.GetByRiotID(ctx, riotID, since)
	if serr != nil || len(stored) == 0 {
		return nil, err
	}
	s.logger.Warn().Err(err).Str("riot_id", riotID).Msg("backend unavailable, serving stored history")
	return stored, nil
}
