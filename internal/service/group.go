package service

import (
	"context"
	"errors"
	"fmt"

	"studygroup-tracker/internal/api"
	"studygroup-tracker/internal/constants"
	"studygroup-tracker/internal/domain"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrGroupsTimeout marks the composite my-groups fetch exceeding its hard
// ceiling. Distinct from ordinary network failures so the caller can
// render it differently.
var ErrGroupsTimeout = errors.New("fetching groups timed out")

type GroupService struct {
	backend *api.BackendClient
	logger  zerolog.Logger
}

func NewGroupService(backend *api.BackendClient, logger zerolog.Logger) *GroupService {
	return &GroupService{backend: backend, logger: logger}
}

func (s *GroupService) ListGroups(ctx context.Context, params api.ListParams) (*api.StudyGroupList, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	s.logger.Debug().Int("page", params.Page).Str("sort", params.Sort).Msg("listing study groups")
	return s.backend.ListStudyGroups(ctx, params)
}

func (s *GroupService) ListFreeAgents(ctx context.Context, params api.ListParams) (*api.FreeAgentList, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	s.logger.Debug().Int("page", params.Page).Str("filter", params.Filter).Msg("listing free agents")
	return s.backend.ListFreeAgents(ctx, params)
}

// MyGroups is the composite result of the my-groups fetch: the groups the
// user belongs to plus each group's detail, assembled concurrently.
type MyGroups struct {
	Groups []domain.StudyGroup `json:"groups"`
}

// GetMyGroups assembles the user's groups under a hard 30-second ceiling.
// Hitting the ceiling surfaces ErrGroupsTimeout, not a network error.
func (s *GroupService) GetMyGroups(ctx context.Context, userID string) (*MyGroups, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.GroupsFetchTimeout)
	defer cancel()

	s.logger.Info().Str("user_id", userID).Msg("fetching my groups")

	groups, err := s.backend.GetMyGroups(ctx, userID)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			s.logger.Error().Str("user_id", userID).Msg("my groups fetch exceeded ceiling")
			return nil, ErrGroupsTimeout
		}
		return nil, fmt.Errorf("failed to fetch groups: %w", err)
	}

	// Hydrate each group's detail concurrently; the ceiling covers the
	// whole join.
	g, gCtx := errgroup.WithContext(ctx)
	detailed := make([]domain.StudyGroup, len(groups))
	for i, group := range groups {
		i, group := i, group
		g.Go(func() error {
			full, err := s.backend.GetStudyGroup(gCtx, group.ID)
			if err != nil {
				return fmt.Errorf("failed to fetch group %d: %w", group.ID, err)
			}
			detailed[i] = *full
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			s.logger.Error().Str("user_id", userID).Msg("my groups fetch exceeded ceiling")
			return nil, ErrGroupsTimeout
		}
		return nil, err
	}

	s.logger.Info().Str("user_id", userID).Int("count", len(detailed)).Msg("my groups fetched")
	return &MyGroups{Groups: detailed}, nil
}

func (s *GroupService) CreateGroup(ctx context.Context, payload api.GroupPayload) (*domain.StudyGroup, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	group, err := s.backend.CreateStudyGroup(ctx, payload)
	if err != nil {
		s.logger.Error().Err(err).Str("name", payload.Name).Msg("failed to create study group")
		return nil, err
	}
	s.logger.Info().Int64("group_id", group.ID).Str("name", group.Name).Msg("study group created")
	return group, nil
}

func (s *GroupService) UpdateGroup(ctx context.Context, groupID int64, payload api.GroupPayload) (*domain.StudyGroup, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	group, err := s.backend.UpdateStudyGroup(ctx, groupID, payload)
	if err != nil {
		s.logger.Error().Err(err).Int64("group_id", groupID).Msg("failed to update study group")
		return nil, err
	}
	return group, nil
}

func (s *GroupService) LeaveGroup(ctx context.Context, groupID int64, riotID string) error {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	if err := s.backend.LeaveStudyGroup(ctx, groupID, riotID); err != nil {
		s.logger.Error().Err(err).Int64("group_id", groupID).Str("riot_id", riotID).Msg("failed to leave study group")
		return err
	}
	s.logger.Info().Int64("group_id", groupID).Str("riot_id", riotID).Msg("left study group")
	return nil
}
