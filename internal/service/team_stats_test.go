package service

import (
	"context"
	"testing"
	"time"
)

func TestGetTeamStatsCachesResult(t *testing.T) {
	env := newTestEnv(t)
	svc := env.teamStatsService()
	ctx := context.Background()

	first, err := svc.GetTeamStats(ctx, 1, time.Time{}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.GetTeamStats(ctx, 1, time.Time{}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stats, _, _ := env.upstream.counts()
	if stats != 1 {
		t.Errorf("second call must be served from cache, got %d fetches", stats)
	}
	if first != second {
		t.Error("cached call must return the same merged result")
	}
	if first.Summary == nil || first.Summary.MemberCount != 2 {
		t.Errorf("unexpected summary: %+v", first.Summary)
	}
}

func TestRefreshBypassesCache(t *testing.T) {
	env := newTestEnv(t)
	svc := env.teamStatsService()
	ctx := context.Background()

	if _, err := svc.GetTeamStats(ctx, 1, time.Time{}, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Refresh(ctx, 1, time.Time{}, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stats, _, _ := env.upstream.counts()
	if stats != 2 {
		t.Errorf("refresh must refetch, got %d fetches", stats)
	}
}

func TestRefreshLiveReusesBaseData(t *testing.T) {
	env := newTestEnv(t)
	svc := env.teamStatsService()
	ctx := context.Background()

	if _, err := svc.GetTeamStats(ctx, 1, time.Time{}, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	statsBefore, _, riotBefore := env.upstream.counts()
	if riotBefore != 2 {
		t.Fatalf("expected one live lookup per member, got %d", riotBefore)
	}

	merged, err := svc.RefreshLive(ctx, 1, time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	statsAfter, _, riotAfter := env.upstream.counts()
	if statsAfter != statsBefore {
		t.Errorf("live refresh must not refetch base data, got %d extra fetches", statsAfter-statsBefore)
	}
	if riotAfter != riotBefore+2 {
		t.Errorf("live refresh must refetch every member, got %d lookups", riotAfter-riotBefore)
	}
	// Both members live at GOLD II 45: wins 11+11, losses 5+5.
	if merged.Summary == nil || merged.Summary.TotalWins != 22 || merged.Summary.TotalLosses != 10 {
		t.Errorf("live snapshots must override history in the summary: %+v", merged.Summary)
	}
}

func TestRefreshLiveAllFailKeepsCachedData(t *testing.T) {
	env := newTestEnv(t)
	env.upstream.setRiotDown(true)
	svc := env.teamStatsService()
	ctx := context.Background()

	// Base load succeeds even though every live lookup fails.
	base, err := svc.GetTeamStats(ctx, 1, time.Time{}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.Summary == nil || base.Summary.TotalWins != 18 {
		t.Errorf("history alone should drive the summary: %+v", base.Summary)
	}

	merged, err := svc.RefreshLive(ctx, 1, time.Time{})
	if err == nil {
		t.Fatal("expected an error when every live lookup fails")
	}
	if merged == nil || merged.Summary == nil {
		t.Fatal("the cached merge must still be returned alongside the error")
	}
	if merged.Summary.TotalWins != base.Summary.TotalWins {
		t.Errorf("cached base data must survive a failed live refresh: %+v", merged.Summary)
	}
}

func TestBackendDownServesStoredHistory(t *testing.T) {
	env := newTestEnv(t)
	svc := env.teamStatsService()
	ctx := context.Background()

	// A successful fetch persists events and names locally.
	if _, err := svc.GetTeamStats(ctx, 1, time.Time{}, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	svc.ClearCache()
	env.upstream.setBackendDown(true)

	merged, err := svc.GetTeamStats(ctx, 1, time.Time{}, false)
	if err != nil {
		t.Fatalf("expected stored history to cover the outage, got: %v", err)
	}
	if merged.Summary == nil || merged.Summary.MemberCount != 2 {
		t.Errorf("stored history must reconstruct the summary: %+v", merged.Summary)
	}
	if merged.Summary.TotalWins != 18 || merged.Summary.TotalLosses != 12 {
		t.Errorf("unexpected totals from stored history: %+v", merged.Summary)
	}
}

func TestLiveRefresherKeepsEntriesWarm(t *testing.T) {
	env := newTestEnv(t)
	svc := env.teamStatsService()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := svc.GetTeamStats(ctx, 1, time.Time{}, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	statsBefore, _, riotBefore := env.upstream.counts()

	svc.StartLiveRefresher(ctx, 20*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, _, riotNow := env.upstream.counts(); riotNow > riotBefore {
			if statsNow, _, _ := env.upstream.counts(); statsNow != statsBefore {
				t.Errorf("the refresher must only touch live data, got %d base fetches", statsNow-statsBefore)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("background refresher never refreshed the live entry")
}

func TestCacheStats(t *testing.T) {
	env := newTestEnv(t)
	svc := env.teamStatsService()
	ctx := context.Background()

	if _, err := svc.GetTeamStats(ctx, 1, time.Time{}, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.GetTeamStats(ctx, 2, time.Time{}, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	size, keys := svc.CacheStats()
	if size != 2 || len(keys) != 2 {
		t.Errorf("expected 2 cached entries, got size=%d keys=%v", size, keys)
	}

	svc.ClearCache()
	if size, _ := svc.CacheStats(); size != 0 {
		t.Errorf("clear must empty the cache, got %d", size)
	}
}
