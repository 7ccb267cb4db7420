package service

import (
	"context"
	"sync"
	"time"

	"studygroup-tracker/internal/domain"

	"github.com/rs/zerolog"
)

// TeamStatsController is the stateful consumer-facing wrapper over
// TeamStatsService for one (group, since, includeLive) query: it tracks
// base and live loading/error state independently, drives the optional
// live auto-refresh ticker, and guards against stale writes.
type TeamStatsController struct {
	svc         *TeamStatsService
	groupID     int64
	since       time.Time
	includeLive bool
	logger      zerolog.Logger

	mu       sync.Mutex
	data     *domain.TeamStats
	loading  bool
	err      error
	liveLoad bool
	liveErr  error

	// Base and live fetches are superseded independently.
	baseGen uint64
	liveGen uint64

	stopOnce sync.Once
	stop     chan struct{}
}

func NewTeamStatsController(svc *TeamStatsService, groupID int64, since time.Time, includeLive bool, logger zerolog.Logger) *TeamStatsController {
	return &TeamStatsController{
		svc:         svc,
		groupID:     groupID,
		since:       since,
		includeLive: includeLive,
		logger:      logger,
		stop:        make(chan struct{}),
	}
}

// Load performs the initial fetch for the controller's key. Repeated
// calls hit the service cache and do not refetch.
func (c *TeamStatsController) Load(ctx context.Context) {
	gen := c.begin(false)

	data, err := c.svc.GetTeamStats(ctx, c.groupID, c.since, c.includeLive)
	c.commit(gen, false, data, err)
}

// Refresh forces an unconditional refetch of the base data, bypassing
// the cache.
func (c *TeamStatsController) Refresh(ctx context.Context) {
	gen := c.begin(false)

	data, err := c.svc.Refresh(ctx, c.groupID, c.since, c.includeLive)
	c.commit(gen, false, data, err)
}

// RefreshLiveData refetches only the live snapshots. Base data and its
// error state are untouched, whatever the outcome.
func (c *TeamStatsController) RefreshLiveData(ctx context.Context) {
	gen := c.begin(true)

	data, err := c.svc.RefreshLive(ctx, c.groupID, c.since)
	c.commit(gen, true, data, err)
}

// ClearCache drops every cached team-stats entry process-wide, not just
// this controller's key.
func (c *TeamStatsController) ClearCache() {
	c.svc.ClearCache()
}

// State returns the current data plus independent base and live
// loading/error flags.
func (c *TeamStatsController) State() (data *domain.TeamStats, loading bool, err error, liveLoading bool, liveErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data, c.loading, c.err, c.liveLoad, c.liveErr
}

// StartAutoRefresh drives RefreshLiveData on the given interval until
// Stop is called or ctx ends. It does nothing when live data is not part
// of this controller's query.
func (c *TeamStatsController) StartAutoRefresh(ctx context.Context, interval time.Duration) {
	if !c.includeLive {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.RefreshLiveData(ctx)
			case <-c.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the auto-refresh ticker and marks the controller retired;
// in-flight results from before Stop are discarded on arrival.
func (c *TeamStatsController) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
		c.mu.Lock()
		c.baseGen++
		c.liveGen++
		c.mu.Unlock()
	})
}

// begin bumps the generation and flips the relevant loading flag.
func (c *TeamStatsController) begin(live bool) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if live {
		c.liveGen++
		c.liveLoad = true
		return c.liveGen
	}
	c.baseGen++
	c.loading = true
	return c.baseGen
}

// commit applies a fetch result unless a newer operation (or Stop)
// superseded it while it was in flight.
func (c *TeamStatsController) commit(gen uint64, live bool, data *domain.TeamStats, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.baseGen
	if live {
		current = c.liveGen
	}
	if gen != current {
		c.logger.Debug().
			Uint64("generation", gen).
			Uint64("current", current).
			Bool("live", live).
			Msg("discarding stale fetch result")
		return
	}

	if live {
		c.liveLoad = false
		c.liveErr = err
		// A live failure must not clear already-loaded base data.
		if err == nil && data != nil {
			c.data = data
		}
		return
	}

	c.loading = false
	c.err = err
	if err == nil {
		c.data = data
	}
}
