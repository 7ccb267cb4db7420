package fx

import (
	"studygroup-tracker/internal/api"
	"studygroup-tracker/internal/config"
	"studygroup-tracker/internal/database"
	"studygroup-tracker/internal/logger"
	"studygroup-tracker/internal/repository"
	"studygroup-tracker/internal/server"
	"studygroup-tracker/internal/service"

	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewAuditRepository),
	fx.Provide(repository.NewMemberRepository),
	// api clients
	fx.Provide(api.NewBackendClient),
	fx.Provide(api.NewRiotClient),
	// svc
	fx.Provide(service.NewTeamStatsService),
	fx.Provide(service.NewGroupService),
	fx.Provide(service.NewPlayerService),
	// server
	fx.Provide(server.New),
)
