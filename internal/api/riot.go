package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"studygroup-tracker/internal/config"
	"studygroup-tracker/internal/domain"
	"studygroup-tracker/internal/rank"
	"studygroup-tracker/internal/retry"

	"github.com/valyala/fasthttp"
)

// RiotClient fetches current league standings. The elo field is derived
// locally from tier/rank/LP; upstream never supplies it.
type RiotClient struct {
	apiKey      string
	baseURL     string
	client      *fasthttp.Client
	retryOpts   []retry.Option
	rateLimitMu sync.RWMutex
	rateLimit   RateLimitInfo
}

type RateLimitInfo struct {
	Bucket    string `json:"bucket"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`

	// seconds until reset
	Reset int `json:"reset"`

	UpdatedAt time.Time `json:"updated_at"`
}

const defaultRiotBaseURL = "https://americas.api.riotgames.com"

func NewRiotClient(cfg *config.Config) *RiotClient {
	return &RiotClient{
		apiKey:  cfg.RiotAPIKey,
		baseURL: defaultRiotBaseURL,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		rateLimit: RateLimitInfo{
			Limit:     100,
			Remaining: 100,
			Reset:     120,
			UpdatedAt: time.Now(),
		},
	}
}

// NewRiotClientForTest points the client at a fake league API and speeds
// up the retry schedule.
func NewRiotClientForTest(baseURL string) *RiotClient {
	c := NewRiotClient(&config.Config{RiotAPIKey: "test-key"})
	c.baseURL = baseURL
	c.retryOpts = []retry.Option{
		retry.WithBaseDelay(1 * time.Millisecond),
		retry.WithMaxDelay(5 * time.Millisecond),
		retry.WithMaxJitter(1 * time.Millisecond),
	}
	return c
}

func (c *RiotClient) GetRateLimitInfo() RateLimitInfo {
	c.rateLimitMu.RLock()
	defer c.rateLimitMu.RUnlock()
	return c.rateLimit
}

func (c *RiotClient) updateRateLimit(resp *fasthttp.Response) {
	c.rateLimitMu.Lock()
	defer c.rateLimitMu.Unlock()

	if bucket := string(resp.Header.Peek("X-Ratelimit-Bucket")); bucket != "" {
		c.rateLimit.Bucket = bucket
	}
	if limit := string(resp.Header.Peek("X-Ratelimit-Limit")); limit != "" {
		if val, err := strconv.Atoi(limit); err == nil {
			c.rateLimit.Limit = val
		}
	}
	if remaining := string(resp.Header.Peek("X-Ratelimit-Remaining")); remaining != "" {
		if val, err := strconv.Atoi(remaining); err == nil {
			c.rateLimit.Remaining = val
		}
	}
	if reset := string(resp.Header.Peek("X-Ratelimit-Reset")); reset != "" {
		if val, err := strconv.Atoi(reset); err == nil {
			c.rateLimit.Reset = val
		}
	}
	c.rateLimit.UpdatedAt = time.Now()
}

type leagueEntryResponse struct {
	RiotID       string `json:"riot_id"`
	SummonerName string `json:"summonerName"`
	Tier         string `json:"tier"`
	Rank         string `json:"rank"`
	LeaguePoints int    `json:"leaguePoints"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
}

// GetLivePlayer fetches a player's current league entry and stamps it as
// a live snapshot dated now.
func (c *RiotClient) GetLivePlayer(ctx context.Context, riotID string) (*domain.LivePlayerData, error) {
	u := fmt.Sprintf("%s/tft/league/v1/by-riot-id/%s", c.baseURL, url.PathEscape(riotID))

	raw, err := retry.Do(ctx, func(ctx context.Context) ([]byte, error) {
		return c.fetchLeagueEntry(ctx, u)
	}, c.retryOpts...)
	if err != nil {
		return nil, err
	}

	var entry leagueEntryResponse
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("malformed league entry response: %w", err)
	}

	live := &domain.LivePlayerData{
		RiotID:       riotID,
		SummonerName: entry.SummonerName,
		Tier:         entry.Tier,
		Rank:         entry.Rank,
		LeaguePoints: entry.LeaguePoints,
		Wins:         entry.Wins,
		Losses:       entry.Losses,
		Elo:          rank.ToElo(entry.Tier, entry.Rank, entry.LeaguePoints),
		CreatedAt:    time.Now(),
	}
	return live, nil
}

// GetLivePlayers fans out one lookup per riot id and collects whatever
// succeeded. A player that cannot be fetched is simply absent from the
// result; per-player errors are returned alongside for logging.
func (c *RiotClient) GetLivePlayers(ctx context.Context, riotIDs []string) (map[string]domain.LivePlayerData, map[string]error) {
	type outcome struct {
		id   string
		live *domain.LivePlayerData
		err  error
	}

	results := make(chan outcome, len(riotIDs))
	var wg sync.WaitGroup
	for _, id := range riotIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			live, err := c.GetLivePlayer(ctx, id)
			results <- outcome{id: id, live: live, err: err}
		}(id)
	}
	wg.Wait()
	close(results)

	out := make(map[string]domain.LivePlayerData, len(riotIDs))
	errs := map[string]error{}
	for r := range results {
		if r.err != nil {
			errs[r.id] = r.err
			continue
		}
		out[r.id] = *r.live
	}
	return out, errs
}

func (c *RiotClient) fetchLeagueEntry(ctx context.Context, url string) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("X-Riot-Token", c.apiKey)

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

	c.updateRateLimit(resp)

	status := resp.StatusCode()
	if status != fasthttp.StatusOK {
		serr := &StatusError{Code: status, Status: fasthttp.StatusMessage(status)}
		var eb struct {
			Status struct {
				Message string `json:"message"`
			} `json:"status"`
		}
		if err := json.Unmarshal(resp.Body(), &eb); err == nil && eb.Status.Message != "" {
			serr.Message = eb.Status.Message
		}
		return nil, serr
	}

	out := make([]byte, len(resp.Body()))
	copy(out, resp.Body())
	return out, nil
}
