package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"studygroup-tracker/internal/api"
	"studygroup-tracker/internal/cache"
	"studygroup-tracker/internal/constants"
	"studygroup-tracker/internal/domain"
	"studygroup-tracker/internal/repository"
	"studygroup-tracker/internal/stats"

	"github.com/rs/zerolog"
)

// teamStatsEntry keeps the normalized fetch alongside its merged output,
// so a live-only refresh can re-merge without re-fetching base data.
type teamStatsEntry struct {
	result *api.TeamStatsResult
	merged *domain.TeamStats
}

// TeamStatsService fetches, persists and merges team rank data. Merged
// results are cached per (group, since, includeLive) key; concurrent
// misses for one key share a single upstream fetch.
type TeamStatsService struct {
	backend    *api.BackendClient
	riot       *api.RiotClient
	auditRepo  *repository.AuditRepository
	memberRepo *repository.MemberRepository
	cache      *cache.Store[*teamStatsEntry]
	logger     zerolog.Logger

	liveMu      sync.Mutex
	liveQueries map[string]liveQuery
}

// liveQuery remembers the parameters behind a cached live entry so the
// background refresher can re-issue it without parsing cache keys.
type liveQuery struct {
	groupID int64
	since   time.Time
}

func NewTeamStatsService(
	backend *api.BackendClient,
	riot *api.RiotClient,
	auditRepo *repository.AuditRepository,
	memberRepo *repository.MemberRepository,
	logger zerolog.Logger,
) *TeamStatsService {
	return &TeamStatsService{
		backend:     backend,
		riot:        riot,
		auditRepo:   auditRepo,
		memberRepo:  memberRepo,
		cache:       cache.NewStore[*teamStatsEntry](),
		logger:      logger,
		liveQueries: make(map[string]liveQuery),
	}
}

func statsKey(groupID int64, since time.Time, includeLive bool) string {
	return fmt.Sprintf("team-stats:%d:%s:%t", groupID, since.Format("2006-01-02"), includeLive)
}

// GetTeamStats returns the merged stats for a group, serving from cache
// when possible.
func (s *TeamStatsService) GetTeamStats(ctx context.Context, groupID int64, since time.Time, includeLive bool) (*domain.TeamStats, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	entry, err := s.cache.GetOrFetch(ctx, statsKey(groupID, since, includeLive), func(ctx context.Context) (*teamStatsEntry, error) {
		return s.fetchAndMerge(ctx, groupID, since, includeLive)
	})
	if err != nil {
		return nil, err
	}
	if includeLive {
		s.trackLive(groupID, since)
	}
	return entry.merged, nil
}

// Refresh bypasses the cache for the base (historical) data and
// refetches unconditionally.
func (s *TeamStatsService) Refresh(ctx context.Context, groupID int64, since time.Time, includeLive bool) (*domain.TeamStats, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	s.cache.Invalidate(statsKey(groupID, since, true))
	s.cache.Invalidate(statsKey(groupID, since, false))

	entry, err := s.fetchAndMerge(ctx, groupID, since, includeLive)
	if err != nil {
		return nil, err
	}
	s.cache.Set(statsKey(groupID, since, includeLive), entry)
	if includeLive {
		s.trackLive(groupID, since)
	}
	return entry.merged, nil
}

// RefreshLive refetches only the live snapshots, re-merging against the
// cached base data. The base data is never invalidated by a live
// failure, and absent base data triggers one full fetch instead.
func (s *TeamStatsService) RefreshLive(ctx context.Context, groupID int64, since time.Time) (*domain.TeamStats, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
	defer cancel()

	key := statsKey(groupID, since, true)
	entry, ok := s.cache.Get(key)
	if !ok {
		return s.Refresh(ctx, groupID, since, true)
	}

	liveData, liveErrs := s.fetchLive(ctx, entry.result)
	for id, lerr := range liveErrs {
		s.logger.Warn().Err(lerr).Str("riot_id", id).Int64("group_id", groupID).Msg("live refresh failed for player")
	}
	if len(liveData) == 0 && len(liveErrs) > 0 {
		return entry.merged, fmt.Errorf("live data refresh failed for all %d players", len(liveErrs))
	}

	refreshed := &teamStatsEntry{
		result: &api.TeamStatsResult{
			Events:      entry.result.Events,
			MemberNames: entry.result.MemberNames,
			LiveData:    liveData,
		},
		merged: stats.Merge(entry.result.Events, liveData, entry.result.MemberNames),
	}
	s.cache.Set(key, refreshed)
	return refreshed.merged, nil
}

// ClearCache drops every cached entry for every key, process-wide, and
// forgets the live queries the background refresher was keeping warm.
func (s *TeamStatsService) ClearCache() {
	s.cache.Clear()
	s.liveMu.Lock()
	s.liveQueries = make(map[string]liveQuery)
	s.liveMu.Unlock()
	s.logger.Debug().Msg("team stats cache cleared")
}

// CacheStats exposes read-only cache introspection for diagnostics.
func (s *TeamStatsService) CacheStats() (int, []string) {
	return s.cache.Size(), s.cache.Keys()
}

func (s *TeamStatsService) trackLive(groupID int64, since time.Time) {
	s.liveMu.Lock()
	defer s.liveMu.Unlock()
	s.liveQueries[statsKey(groupID, since, true)] = liveQuery{groupID: groupID, since: since}
}

// StartLiveRefresher keeps every cached live entry warm by refreshing its
// live snapshots on the given interval until ctx ends. Per-group failures
// are logged and skipped; the loop never stops on error.
func (s *TeamStatsService) StartLiveRefresher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = constants.LiveRefreshInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.refreshAllLive(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *TeamStatsService) refreshAllLive(ctx context.Context) {
	s.liveMu.Lock()
	queries := make([]liveQuery, 0, len(s.liveQueries))
	for _, q := range s.liveQueries {
		queries = append(queries, q)
	}
	s.liveMu.Unlock()

	for _, q := range queries {
		if _, err := s.RefreshLive(ctx, q.groupID, q.since); err != nil {
			s.logger.Warn().Err(err).Int64("group_id", q.groupID).Msg("background live refresh failed")
		}
	}
}

func (s *TeamStatsService) fetchAndMerge(ctx context.Context, groupID int64, since time.Time, includeLive bool) (*teamStatsEntry, error) {
	result, err := s.backend.GetTeamStats(ctx, groupID, since)
	if err != nil {
		// Immutable history survives locally; serve it when the backend
		// is down rather than failing the chart outright.
		fallback, fbErr := s.loadStored(ctx, groupID, since)
		if fbErr != nil || fallback == nil {
			return nil, fmt.Errorf("failed to fetch team stats: %w", err)
		}
		s.logger.Warn().Err(err).Int64("group_id", groupID).Msg("backend unavailable, serving stored history")
		return fallback, nil
	}

	if err := s.auditRepo.UpsertBatch(ctx, result.Events); err != nil {
		s.logger.Warn().Err(err).Int64("group_id", groupID).Msg("failed to persist rank audit events")
	}
	// The name mapping changes rarely; re-writing it every fetch is
	// skipped while the stored copy is within its TTL.
	if refresh, rerr := s.memberRepo.ShouldRefresh(ctx, groupID, constants.MemberRefreshTTL); rerr != nil || refresh {
		if err := s.memberRepo.UpsertNames(ctx, groupID, result.MemberNames); err != nil {
			s.logger.Warn().Err(err).Int64("group_id", groupID).Msg("failed to persist member names")
		}
	}

	liveData := result.LiveData
	if includeLive {
		fetched, liveErrs := s.fetchLive(ctx, result)
		for id, lerr := range liveErrs {
			s.logger.Warn().Err(lerr).Str("riot_id", id).Int64("group_id", groupID).Msg("live lookup failed for player")
		}
		if len(fetched) > 0 {
			liveData = fetched
		}
	} else {
		liveData = nil
	}

	s.logger.Info().
		Int64("group_id", groupID).
		Int("event_count", len(result.Events)).
		Int("live_count", len(liveData)).
		Bool("include_live", includeLive).
		Msg("team stats merged")

	normalized := &api.TeamStatsResult{
		Events:      result.Events,
		MemberNames: result.MemberNames,
		LiveData:    liveData,
	}
	return &teamStatsEntry{
		result: normalized,
		merged: stats.Merge(result.Events, liveData, result.MemberNames),
	}, nil
}

// fetchLive resolves the member set to query and fans out live lookups.
// Players the backend already supplied live data for keep that snapshot
// when the direct lookup fails.
func (s *TeamStatsService) fetchLive(ctx context.Context, result *api.TeamStatsResult) (map[string]domain.LivePlayerData, map[string]error) {
	ids := make([]string, 0, len(result.MemberNames))
	for id := range result.MemberNames {
		ids = append(ids, id)
	}

	liveData, errs := s.riot.GetLivePlayers(ctx, ids)
	for id, live := range result.LiveData {
		if _, ok := liveData[id]; !ok {
			liveData[id] = live
			delete(errs, id)
		}
	}
	return liveData, errs
}

func (s *TeamStatsService) loadStored(ctx context.Context, groupID int64, since time.Time) (*teamStatsEntry, error) {
	dbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.DatabaseTimeout)
	defer cancel()

	names, err := s.memberRepo.GetNames(dbCtx, groupID)
	if err != nil || len(names) == 0 {
		return nil, err
	}

	ids := make([]string, 0, len(names))
	for id := range names {
		ids = append(ids, id)
	}

	events, err := s.auditRepo.GetByRiotIDs(dbCtx, ids, since)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	return &teamStatsEntry{
		result: &api.TeamStatsResult{Events: events, MemberNames: names},
		merged: stats.Merge(events, nil, names),
	}, nil
}
