package domain

import (
	"time"
)

// RankAuditEvent is an immutable historical snapshot of a player's rank,
// recorded by the upstream audit process. Events arrive unsorted.
type RankAuditEvent struct {
	ID        string    `json:"id"`
	RiotID    string    `json:"riot_id"`
	Elo       int       `json:"elo"`
	Wins      int       `json:"wins"`
	Losses    int       `json:"losses"`
	CreatedAt time.Time `json:"created_at"`
}

// LivePlayerData is a current, never-persisted snapshot fetched from the
// league API. Elo is derived locally; upstream only supplies the raw
// tier/rank/LP triple.
type LivePlayerData struct {
	RiotID       string    `json:"riot_id"`
	SummonerName string    `json:"summoner_name"`
	Tier         string    `json:"tier"`
	Rank         string    `json:"rank"`
	LeaguePoints int       `json:"leaguePoints"`
	Wins         int       `json:"wins"`
	Losses       int       `json:"losses"`
	Elo          int       `json:"elo"`
	CreatedAt    time.Time `json:"created_at"`
}

// MemberNames maps a riot_id to a display name. Legacy responses carry no
// mapping, in which case it is synthesized as the identity function.
type MemberNames map[string]string

type StudyGroup struct {
	ID          int64     `json:"id"`
	Name        string    `json:"group_name"`
	Description string    `json:"description"`
	OwnerID     string    `json:"owner_id"`
	MaxSize     int       `json:"max_size"`
	MemberIDs   []string  `json:"member_ids"`
	AvgElo      int       `json:"avg_elo"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type FreeAgent struct {
	RiotID       string    `json:"riot_id"`
	SummonerName string    `json:"summoner_name"`
	Rank         string    `json:"rank"`
	Elo          int       `json:"elo"`
	Wins         int       `json:"wins"`
	Losses       int       `json:"losses"`
	Availability string    `json:"availability"`
	CreatedAt    time.Time `json:"created_at"`
}

type Pagination struct {
	CurrentPage  int  `json:"current_page"`
	TotalPages   int  `json:"total_pages"`
	TotalItems   int  `json:"total_items"`
	ItemsPerPage int  `json:"items_per_page"`
	HasNext      bool `json:"has_next"`
	HasPrev      bool `json:"has_prev"`
}

// CurrentLabel is the x label of the single live point appended to a
// series. It is not a date; under lexical date-string ordering it sorts
// after every ISO date, which keeps it last.
const CurrentLabel = "Current"

// ChartPoint is one point of a player or team series. X is a date-only
// string ("2006-01-02") or CurrentLabel.
type ChartPoint struct {
	X      string `json:"x"`
	Y      int    `json:"y"`
	Wins   int    `json:"wins"`
	Losses int    `json:"losses"`
	IsLive bool   `json:"isLive"`
}

type PlayerSeries struct {
	Name   string       `json:"name"`
	Points []ChartPoint `json:"points"`
}

// TeamSummary is the current-snapshot aggregate. A nil *TeamSummary means
// "no data available", which is distinct from a zeroed summary.
type TeamSummary struct {
	AverageElo  int    `json:"averageElo"`
	TotalWins   int    `json:"totalWins"`
	TotalLosses int    `json:"totalLosses"`
	WinRate     string `json:"winRate"`
	MemberCount int    `json:"memberCount"`
}

// TeamStats is the merged output served to chart consumers.
type TeamStats struct {
	Players     []PlayerSeries `json:"players"`
	TeamAverage PlayerSeries   `json:"teamAverage"`
	Summary     *TeamSummary   `json:"summary,omitempty"`
}
