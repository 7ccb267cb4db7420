package service

import (
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"studygroup-tracker/internal/api"
	"studygroup-tracker/internal/config"
	"studygroup-tracker/internal/database"
	"studygroup-tracker/internal/repository"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// fakeUpstream stands in for both the studygroup backend and the league
// API. Tests flip the down flags to simulate outages and read the call
// counters to assert what was actually fetched.
type fakeUpstream struct {
	mu          sync.Mutex
	statsCalls  int
	playerCalls int
	riotCalls   int
	backendDown bool
	riotDown    bool
}

func (f *fakeUpstream) setBackendDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backendDown = down
}

func (f *fakeUpstream) setRiotDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.riotDown = down
}

func (f *fakeUpstream) counts() (stats, player, riot int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statsCalls, f.playerCalls, f.riotCalls
}

func (f *fakeUpstream) backendHandler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/study-groups/{id}/stats", func(w http.ResponseWriter, req *http.Request) {
		f.mu.Lock()
		f.statsCalls++
		down := f.backendDown
		f.mu.Unlock()
		if down {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"events": [
				{"id": "e1", "riot_id": "p1", "elo": 800, "wins": 10, "losses": 5, "created_at": "2024-01-01T10:00:00Z"},
				{"id": "e2", "riot_id": "p2", "elo": 1000, "wins": 8, "losses": 7, "created_at": "2024-01-01T11:00:00Z"}
			],
			"memberNames": {"p1": "Alice", "p2": "Bob"}
		}`))
	})

	r.HandleFunc("/api/players/{id}/stats", func(w http.ResponseWriter, req *http.Request) {
		f.mu.Lock()
		f.playerCalls++
		down := f.backendDown
		f.mu.Unlock()
		if down {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"events": [
				{"id": "e1", "riot_id": "p1", "elo": 800, "wins": 10, "losses": 5, "created_at": "2024-01-01T10:00:00Z"},
				{"id": "e3", "riot_id": "p1", "elo": 850, "wins": 12, "losses": 6, "created_at": "2024-01-02T10:00:00Z"}
			]
		}`))
	})

	r.HandleFunc("/api/users/{userID}/study-groups", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"groups": [{"id": 1, "group_name": "Climbers"}, {"id": 2, "group_name": "Night Owls"}]}`))
	})

	r.HandleFunc("/api/study-groups/{id}", func(w http.ResponseWriter, req *http.Request) {
		id := mux.Vars(req)["id"]
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id": %s, "group_name": "Group %s", "owner_id": "u1", "max_size": 5}`, id, id)
	})

	return r
}

func (f *fakeUpstream) riotHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		f.mu.Lock()
		f.riotCalls++
		down := f.riotDown
		f.mu.Unlock()
		if down {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"summonerName": "Live", "tier": "GOLD", "rank": "II", "leaguePoints": 45, "wins": 11, "losses": 5}`))
	})
}

type testEnv struct {
	upstream   *fakeUpstream
	backend    *api.BackendClient
	riot       *api.RiotClient
	db         *sql.DB
	auditRepo  *repository.AuditRepository
	memberRepo *repository.MemberRepository
	logger     zerolog.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	upstream := &fakeUpstream{}
	backendSrv := httptest.NewServer(upstream.backendHandler())
	t.Cleanup(backendSrv.Close)
	riotSrv := httptest.NewServer(upstream.riotHandler())
	t.Cleanup(riotSrv.Close)

	logger := zerolog.Nop()
	db, err := database.New(&config.Config{DBPath: filepath.Join(t.TempDir(), "test.db")}, logger)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return &testEnv{
		upstream:   upstream,
		backend:    api.NewBackendClientForTest(backendSrv.URL),
		riot:       api.NewRiotClientForTest(riotSrv.URL),
		db:         db,
		auditRepo:  repository.NewAuditRepository(db, logger),
		memberRepo: repository.NewMemberRepository(db, logger),
		logger:     logger,
	}
}

func (e *testEnv) teamStatsService() *TeamStatsService {
	return NewTeamStatsService(e.backend, e.riot, e.auditRepo, e.memberRepo, e.logger)
}
