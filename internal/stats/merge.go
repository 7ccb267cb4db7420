// Package stats merges historical rank-audit events with live snapshots
// into chart-ready series and the current-snapshot team aggregate.
package stats

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"studygroup-tracker/internal/domain"
)

// ResolveName maps a riot_id to its display name, falling back to the raw
// id verbatim when no mapping entry exists. Ids are matched
// case-insensitively since the two data sources disagree on casing.
func ResolveName(names domain.MemberNames, riotID string) string {
	if name, ok := names[riotID]; ok && name != "" {
		return name
	}
	for id, name := range names {
		if SameMember(id, riotID) && name != "" {
			return name
		}
	}
	return riotID
}

// SameMember compares two display names the way member records are matched
// against event-derived names: case-insensitive, to tolerate inconsistent
// casing between data sources.
func SameMember(a, b string) bool {
	return strings.EqualFold(a, b)
}

// BuildPlayerSeries sorts a player's events by timestamp and appends at
// most one trailing live point labelled CurrentLabel. The live point is
// always last, whatever the current date.
func BuildPlayerSeries(events []domain.RankAuditEvent, live *domain.LivePlayerData) []domain.ChartPoint {
	sorted := make([]domain.RankAuditEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	points := make([]domain.ChartPoint, 0, len(sorted)+1)
	for _, e := range sorted {
		points = append(points, domain.ChartPoint{
			X:      e.CreatedAt.Format("2006-01-02"),
			Y:      e.Elo,
			Wins:   e.Wins,
			Losses: e.Losses,
			IsLive: false,
		})
	}

	if live != nil {
		points = append(points, domain.ChartPoint{
			X:      domain.CurrentLabel,
			Y:      live.Elo,
			Wins:   live.Wins,
			Losses: live.Losses,
			IsLive: true,
		})
	}

	return points
}

// BuildAllPlayerSeries groups events by resolved display name and builds
// one series per player. Live snapshots are matched by riot_id.
func BuildAllPlayerSeries(events []domain.RankAuditEvent, liveData map[string]domain.LivePlayerData, names domain.MemberNames) []domain.PlayerSeries {
	byPlayer := make(map[string][]domain.RankAuditEvent)
	liveByName := make(map[string]*domain.LivePlayerData)

	for _, e := range events {
		name := ResolveName(names, e.RiotID)
		byPlayer[name] = append(byPlayer[name], e)
	}
	for id := range liveData {
		live := liveData[id]
		name := ResolveName(names, id)
		liveByName[name] = &live
		if _, ok := byPlayer[name]; !ok {
			byPlayer[name] = nil
		}
	}

	playerNames := make([]string, 0, len(byPlayer))
	for name := range byPlayer {
		playerNames = append(playerNames, name)
	}
	sort.Strings(playerNames)

	series := make([]domain.PlayerSeries, 0, len(playerNames))
	for _, name := range playerNames {
		series = append(series, domain.PlayerSeries{
			Name:   name,
			Points: BuildPlayerSeries(byPlayer[name], liveByName[name]),
		})
	}
	return series
}

// BuildTeamAverage aligns all player series by x label and averages elo
// per label. Players with no point at a label are skipped, never
// forward-filled: a date's average covers only the players who actually
// reported on that date. Wins and losses are cumulative counts, so they
// are summed across contributors rather than averaged.
func BuildTeamAverage(players []domain.PlayerSeries) domain.PlayerSeries {
	type bucket struct {
		eloSum int
		count  int
		wins   int
		losses int
		isLive bool
	}
	buckets := make(map[string]*bucket)

	for _, p := range players {
		for _, pt := range p.Points {
			b, ok := buckets[pt.X]
			if !ok {
				b = &bucket{}
				buckets[pt.X] = b
			}
			b.eloSum += pt.Y
			b.count++
			b.wins += pt.Wins
			b.losses += pt.Losses
			if pt.IsLive {
				b.isLive = true
			}
		}
	}

	labels := make([]string, 0, len(buckets))
	for label := range buckets {
		labels = append(labels, label)
	}
	// Lexical ordering is chronological for date-only labels, and the
	// "Current" sentinel sorts after every ISO date.
	sort.Strings(labels)

	points := make([]domain.ChartPoint, 0, len(labels))
	for _, label := range labels {
		b := buckets[label]
		points = append(points, domain.ChartPoint{
			X:      label,
			Y:      int(math.Round(float64(b.eloSum) / float64(b.count))),
			Wins:   b.wins,
			Losses: b.losses,
			IsLive: b.isLive,
		})
	}

	return domain.PlayerSeries{Name: "Team Average", Points: points}
}

// Summarize computes the current-snapshot aggregate. Each player's latest
// point is the live snapshot when one exists (recency wins over
// magnitude), otherwise the newest historical event. A nil return means
// no data at all, which callers render as "no data", not zeros.
func Summarize(events []domain.RankAuditEvent, liveData map[string]domain.LivePlayerData, names domain.MemberNames) *domain.TeamSummary {
	type latest struct {
		elo    int
		wins   int
		losses int
	}
	latestByPlayer := make(map[string]latest)
	newestAt := make(map[string]int64)

	for _, e := range events {
		name := ResolveName(names, e.RiotID)
		ts := e.CreatedAt.UnixNano()
		if prev, ok := newestAt[name]; !ok || ts > prev {
			newestAt[name] = ts
			latestByPlayer[name] = latest{elo: e.Elo, wins: e.Wins, losses: e.Losses}
		}
	}

	// Live data overrides history unconditionally, even when the live elo
	// is lower.
	for id, live := range liveData {
		name := ResolveName(names, id)
		latestByPlayer[name] = latest{elo: live.Elo, wins: live.Wins, losses: live.Losses}
	}

	if len(latestByPlayer) == 0 {
		return nil
	}

	var eloSum, totalWins, totalLosses int
	for _, l := range latestByPlayer {
		eloSum += l.elo
		totalWins += l.wins
		totalLosses += l.losses
	}

	memberCount := len(names)
	if memberCount == 0 {
		// No identity mapping at all; fall back to the players seen in
		// the data so the count is never zero while data exists.
		memberCount = len(latestByPlayer)
	}

	return &domain.TeamSummary{
		AverageElo:  int(math.Round(float64(eloSum) / float64(len(latestByPlayer)))),
		TotalWins:   totalWins,
		TotalLosses: totalLosses,
		WinRate:     formatWinRate(totalWins, totalLosses),
		MemberCount: memberCount,
	}
}

func formatWinRate(wins, losses int) string {
	total := wins + losses
	if total == 0 {
		return "0.0"
	}
	return fmt.Sprintf("%.1f", float64(wins)/float64(total)*100)
}

// Merge assembles the full chart payload from one normalized team-stats
// fetch: per-player series, the team-average series and the aggregate.
func Merge(events []domain.RankAuditEvent, liveData map[string]domain.LivePlayerData, names domain.MemberNames) *domain.TeamStats {
	players := BuildAllPlayerSeries(events, liveData, names)
	return &domain.TeamStats{
		Players:     players,
		TeamAverage: BuildTeamAverage(players),
		Summary:     Summarize(events, liveData, names),
	}
}
