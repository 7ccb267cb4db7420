package service

import (
	"context"
	"testing"
	"time"

	"studygroup-tracker/internal/domain"
)

func TestGetPlayerCard(t *testing.T) {
	env := newTestEnv(t)
	svc := NewPlayerService(env.backend, env.riot, env.auditRepo, env.logger)

	card, err := svc.GetPlayerCard(context.Background(), "p1", time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if card.Live == nil || card.Live.Elo != 1445 {
		t.Errorf("unexpected live data: %+v", card.Live)
	}
	if len(card.Events) != 2 {
		t.Errorf("expected 2 history events, got %d", len(card.Events))
	}
	if len(card.BranchErrors) != 0 {
		t.Errorf("no branch should have failed: %+v", card.BranchErrors)
	}
	// Two history points plus the trailing live point.
	if len(card.Series) != 3 {
		t.Fatalf("expected 3 series points, got %d", len(card.Series))
	}
	last := card.Series[len(card.Series)-1]
	if last.X != domain.CurrentLabel || !last.IsLive {
		t.Errorf("the series must end with the live point: %+v", last)
	}
}

func TestGetPlayerCardSettlesBranchesIndependently(t *testing.T) {
	env := newTestEnv(t)
	env.upstream.setRiotDown(true)
	svc := NewPlayerService(env.backend, env.riot, env.auditRepo, env.logger)

	card, err := svc.GetPlayerCard(context.Background(), "p1", time.Time{})
	if err != nil {
		t.Fatalf("one healthy branch must carry the card: %v", err)
	}
	if card.Live != nil {
		t.Error("the failed live branch must not contribute data")
	}
	if len(card.Events) != 2 {
		t.Errorf("the history branch must survive, got %d events", len(card.Events))
	}
	if _, ok := card.BranchErrors["live"]; !ok {
		t.Errorf("the live failure must be recorded: %+v", card.BranchErrors)
	}
	// No live point appended when the live branch failed.
	if len(card.Series) != 2 {
		t.Errorf("expected history-only series, got %d points", len(card.Series))
	}
}

func TestGetPlayerCardAllBranchesFail(t *testing.T) {
	env := newTestEnv(t)
	env.upstream.setRiotDown(true)
	env.upstream.setBackendDown(true)
	svc := NewPlayerService(env.backend, env.riot, env.auditRepo, env.logger)

	if _, err := svc.GetPlayerCard(context.Background(), "p1", time.Time{}); err == nil {
		t.Fatal("expected an error when every branch fails")
	}
}

func TestGetPlayerHistoryFallsBackToStore(t *testing.T) {
	env := newTestEnv(t)
	svc := NewPlayerService(env.backend, env.riot, env.auditRepo, env.logger)
	ctx := context.Background()

	// A successful fetch persists the events locally.
	events, err := svc.GetPlayerHistory(ctx, "p1", time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	env.upstream.setBackendDown(true)

	stored, err := svc.GetPlayerHistory(ctx, "p1", time.Time{})
	if err != nil {
		t.Fatalf("expected the local store to cover the outage: %v", err)
	}
	if len(stored) != 2 {
		t.Errorf("expected 2 stored events, got %d", len(stored))
	}
}
