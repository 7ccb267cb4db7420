package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"studygroup-tracker/internal/config"
	"studygroup-tracker/internal/domain"
	"studygroup-tracker/internal/rank"
	"studygroup-tracker/internal/retry"

	"github.com/valyala/fasthttp"
)

// BackendClient talks to the studygroup backend. Every call goes through
// the retry policy; 4xx responses and parse failures are surfaced without
// retrying.
type BackendClient struct {
	baseURL   string
	client    *fasthttp.Client
	retryOpts []retry.Option
}

func NewBackendClient(cfg *config.Config) *BackendClient {
	return &BackendClient{
		baseURL: cfg.BackendBaseURL,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
	}
}

// NewBackendClientForTest points the client at a fake backend and speeds
// up the retry schedule.
func NewBackendClientForTest(baseURL string) *BackendClient {
	c := NewBackendClient(&config.Config{BackendBaseURL: baseURL})
	c.retryOpts = []retry.Option{
		retry.WithBaseDelay(1 * time.Millisecond),
		retry.WithMaxDelay(5 * time.Millisecond),
		retry.WithMaxJitter(1 * time.Millisecond),
	}
	return c
}

// ListParams carries the filter/sort/pagination parameters of the list
// endpoints.
type ListParams struct {
	Page     int
	PageSize int
	Sort     string
	Filter   string
	Search   string
}

func (p ListParams) query() string {
	q := url.Values{}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(p.PageSize))
	}
	if p.Sort != "" {
		q.Set("sort", p.Sort)
	}
	if p.Filter != "" {
		q.Set("filter", p.Filter)
	}
	if p.Search != "" {
		q.Set("search", p.Search)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

type StudyGroupList struct {
	Items      []domain.StudyGroup `json:"items"`
	Pagination domain.Pagination   `json:"pagination"`
}

type FreeAgentList struct {
	Items      []domain.FreeAgent `json:"items"`
	Pagination domain.Pagination  `json:"pagination"`
}

// TeamStatsResult is the normalized form of the team-stats endpoint,
// regardless of which wire shape the backend produced.
type TeamStatsResult struct {
	Events      []domain.RankAuditEvent
	MemberNames domain.MemberNames
	LiveData    map[string]domain.LivePlayerData
}

func (c *BackendClient) ListStudyGroups(ctx context.Context, params ListParams) (*StudyGroupList, error) {
	u := fmt.Sprintf("%s/api/study-groups%s", c.baseURL, params.query())
	return doRequest[StudyGroupList](ctx, c, fasthttp.MethodGet, u, nil)
}

func (c *BackendClient) ListFreeAgents(ctx context.Context, params ListParams) (*FreeAgentList, error) {
	u := fmt.Sprintf("%s/api/free-agents%s", c.baseURL, params.query())
	return doRequest[FreeAgentList](ctx, c, fasthttp.MethodGet, u, nil)
}

func (c *BackendClient) GetStudyGroup(ctx context.Context, groupID int64) (*domain.StudyGroup, error) {
	u := fmt.Sprintf("%s/api/study-groups/%d", c.baseURL, groupID)
	return doRequest[domain.StudyGroup](ctx, c, fasthttp.MethodGet, u, nil)
}

func (c *BackendClient) GetMyGroups(ctx context.Context, userID string) ([]domain.StudyGroup, error) {
	u := fmt.Sprintf("%s/api/users/%s/study-groups", c.baseURL, url.PathEscape(userID))
	resp, err := doRequest[struct {
		Groups []domain.StudyGroup `json:"groups"`
	}](ctx, c, fasthttp.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return resp.Groups, nil
}

type GroupPayload struct {
	Name        string `json:"group_name"`
	Description string `json:"description"`
	MaxSize     int    `json:"max_size"`
}

func (c *BackendClient) CreateStudyGroup(ctx context.Context, payload GroupPayload) (*domain.StudyGroup, error) {
	u := fmt.Sprintf("%s/api/study-groups", c.baseURL)
	return doRequest[domain.StudyGroup](ctx, c, fasthttp.MethodPost, u, payload)
}

func (c *BackendClient) UpdateStudyGroup(ctx context.Context, groupID int64, payload GroupPayload) (*domain.StudyGroup, error) {
	u := fmt.Sprintf("%s/api/study-groups/%d", c.baseURL, groupID)
	return doRequest[domain.StudyGroup](ctx, c, fasthttp.MethodPut, u, payload)
}

func (c *BackendClient) LeaveStudyGroup(ctx context.Context, groupID int64, riotID string) error {
	u := fmt.Sprintf("%s/api/study-groups/%d/members/%s", c.baseURL, groupID, url.PathEscape(riotID))
	_, err := doRequest[struct{}](ctx, c, fasthttp.MethodDelete, u, nil)
	return err
}

// GetPlayerStats returns a player's rank-audit history since the given
// date (zero time for all history).
func (c *BackendClient) GetPlayerStats(ctx context.Context, riotID string, since time.Time) ([]domain.RankAuditEvent, error) {
	u := fmt.Sprintf("%s/api/players/%s/stats", c.baseURL, url.PathEscape(riotID))
	if !since.IsZero() {
		u += "?start_date=" + url.QueryEscape(since.Format("2006-01-02"))
	}
	resp, err := doRequest[struct {
		Events []auditEventWire `json:"events"`
	}](ctx, c, fasthttp.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	events := make([]domain.RankAuditEvent, 0, len(resp.Events))
	for _, e := range resp.Events {
		events = append(events, e.toDomain())
	}
	return events, nil
}

// GetTeamStats fetches and normalizes the team-stats payload. The backend
// serves two shapes: the combined {events, memberNames, liveData} object
// and a legacy map of display name to event list. Both decode into the
// same TeamStatsResult.
func (c *BackendClient) GetTeamStats(ctx context.Context, groupID int64, since time.Time) (*TeamStatsResult, error) {
	u := fmt.Sprintf("%s/api/study-groups/%d/stats", c.baseURL, groupID)
	if !since.IsZero() {
		u += "?start_date=" + url.QueryEscape(since.Format("2006-01-02"))
	}
	raw, err := retry.Do(ctx, func(ctx context.Context) ([]byte, error) {
		return c.roundTrip(ctx, fasthttp.MethodGet, u, nil)
	}, c.retryOpts...)
	if err != nil {
		return nil, err
	}
	return normalizeTeamStats(raw)
}

// auditEventWire parses created_at defensively: the backend emits full
// RFC3339 timestamps, the legacy shape sometimes bare dates.
type auditEventWire struct {
	ID        string `json:"id"`
	RiotID    string `json:"riot_id"`
	Elo       int    `json:"elo"`
	Wins      int    `json:"wins"`
	Losses    int    `json:"losses"`
	CreatedAt string `json:"created_at"`
}

func (e auditEventWire) toDomain() domain.RankAuditEvent {
	return domain.RankAuditEvent{
		ID:        e.ID,
		RiotID:    e.RiotID,
		Elo:       e.Elo,
		Wins:      e.Wins,
		Losses:    e.Losses,
		CreatedAt: parseTimestamp(e.CreatedAt),
	}
}

func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

type livePlayerWire struct {
	RiotID       string `json:"riot_id"`
	SummonerName string `json:"summoner_name"`
	Tier         string `json:"tier"`
	Rank         string `json:"rank"`
	LeaguePoints int    `json:"leaguePoints"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
	Elo          int    `json:"elo"`
	CreatedAt    string `json:"created_at"`
}

func (l livePlayerWire) toDomain() domain.LivePlayerData {
	elo := l.Elo
	if elo == 0 && l.Tier != "" {
		elo = rank.ToElo(l.Tier, l.Rank, l.LeaguePoints)
	}
	createdAt := parseTimestamp(l.CreatedAt)
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return domain.LivePlayerData{
		RiotID:       l.RiotID,
		SummonerName: l.SummonerName,
		Tier:         l.Tier,
		Rank:         l.Rank,
		LeaguePoints: l.LeaguePoints,
		Wins:         l.Wins,
		Losses:       l.Losses,
		Elo:          elo,
		CreatedAt:    createdAt,
	}
}

func normalizeTeamStats(raw []byte) (*TeamStatsResult, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("malformed team stats response: %w", err)
	}

	if _, ok := probe["events"]; ok {
		var combined struct {
			Events      []auditEventWire          `json:"events"`
			MemberNames domain.MemberNames        `json:"memberNames"`
			LiveData    map[string]livePlayerWire `json:"liveData"`
		}
		if err := json.Unmarshal(raw, &combined); err != nil {
			return nil, fmt.Errorf("malformed team stats response: %w", err)
		}
		result := &TeamStatsResult{
			Events:      make([]domain.RankAuditEvent, 0, len(combined.Events)),
			MemberNames: combined.MemberNames,
			LiveData:    make(map[string]domain.LivePlayerData, len(combined.LiveData)),
		}
		if result.MemberNames == nil {
			result.MemberNames = domain.MemberNames{}
		}
		for _, e := range combined.Events {
			result.Events = append(result.Events, e.toDomain())
		}
		for id, l := range combined.LiveData {
			if l.RiotID == "" {
				l.RiotID = id
			}
			result.LiveData[id] = l.toDomain()
		}
		return result, nil
	}

	// Legacy shape: a plain map of display name to events, no name map.
	// The identity mapping is the best available.
	var legacy map[string][]auditEventWire
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return nil, fmt.Errorf("malformed team stats response: %w", err)
	}
	result := &TeamStatsResult{
		MemberNames: make(domain.MemberNames, len(legacy)),
		LiveData:    map[string]domain.LivePlayerData{},
	}
	for name, events := range legacy {
		result.MemberNames[name] = name
		for _, e := range events {
			result.Events = append(result.Events, e.toDomain())
		}
	}
	return result, nil
}

// roundTrip performs one HTTP exchange and maps non-2xx statuses to
// StatusError, preferring the server-supplied message over the generic
// "HTTP {status}" fallback.
func (c *BackendClient) roundTrip(ctx context.Context, method, url string, body any) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(method)
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(encoded)
	}

	deadline, ok := ctx.Deadline()
	if ok {
		if err := c.client.DoDeadline(req, resp, deadline); err != nil {
			return nil, err
		}
	} else {
		if err := c.client.Do(req, resp); err != nil {
			return nil, err
		}
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		serr := &StatusError{Code: status, Status: fasthttp.StatusMessage(status)}
		var eb errorBody
		if err := json.Unmarshal(resp.Body(), &eb); err == nil {
			if eb.Error != "" {
				serr.Message = eb.Error
			} else if eb.Message != "" {
				serr.Message = eb.Message
			}
		}
		return nil, serr
	}

	out := make([]byte, len(resp.Body()))
	copy(out, resp.Body())
	return out, nil
}

func doRequest[T any](ctx context.Context, c *BackendClient, method, url string, body any) (*T, error) {
	raw, err := retry.Do(ctx, func(ctx context.Context) ([]byte, error) {
		return c.roundTrip(ctx, method, url, body)
	}, c.retryOpts...)
	if err != nil {
		return nil, err
	}

	var result T
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("malformed response: %w", err)
		}
	}
	return &result, nil
}
