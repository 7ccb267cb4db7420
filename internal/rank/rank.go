// Package rank converts between the upstream tier/division/LP rank
// representation and the single integer elo score used everywhere else.
package rank

import (
	"strconv"
	"strings"
)

const Unranked = "UNRANKED"

// One canonical ladder, 400 per tier, used by both directions. The apex
// tiers ignore division entirely.
var tierBase = map[string]int{
	"IRON":        0,
	"BRONZE":      400,
	"SILVER":      800,
	"GOLD":        1200,
	"PLATINUM":    1600,
	"EMERALD":     2000,
	"DIAMOND":     2400,
	"MASTER":      2800,
	"GRANDMASTER": 3200,
	"CHALLENGER":  3600,
}

var divisionOffset = map[string]int{
	"IV":  0,
	"III": 100,
	"II":  200,
	"I":   300,
}

// tiersDescending drives the lossy elo->tier decode. Same bases as encode.
var tiersDescending = []struct {
	name      string
	threshold int
}{
	{"CHALLENGER", 3600},
	{"GRANDMASTER", 3200},
	{"MASTER", 2800},
	{"DIAMOND", 2400},
	{"EMERALD", 2000},
	{"PLATINUM", 1600},
	{"GOLD", 1200},
	{"SILVER", 800},
	{"BRONZE", 400},
}

func isApex(tier string) bool {
	return tier == "MASTER" || tier == "GRANDMASTER" || tier == "CHALLENGER"
}

// ToElo encodes a tier/division/LP triple. Unknown or unranked tiers map
// to 0, as does missing or negative LP.
func ToElo(tier, division string, leaguePoints int) int {
	tier = strings.ToUpper(strings.TrimSpace(tier))
	if tier == "" || tier == Unranked {
		return 0
	}

	base, ok := tierBase[tier]
	if !ok {
		return 0
	}

	if leaguePoints < 0 {
		leaguePoints = 0
	}

	if isApex(tier) {
		return base + leaguePoints
	}

	offset := divisionOffset[strings.ToUpper(strings.TrimSpace(division))]
	return base + offset + leaguePoints
}

// ParseString encodes a "TIER DIVISION LP" string, e.g. "GOLD II 45" or
// "MASTER 120". Apex strings carry no division. Anything unparsable
// encodes as 0.
func ParseString(s string) int {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) == 0 {
		return 0
	}

	tier := strings.ToUpper(fields[0])
	if tier == Unranked {
		return 0
	}

	division := ""
	lp := 0
	for _, f := range fields[1:] {
		trimmed := strings.TrimSuffix(strings.ToUpper(f), "LP")
		if n, err := strconv.Atoi(trimmed); err == nil {
			lp = n
			continue
		}
		if division == "" {
			division = f
		}
	}

	return ToElo(tier, division, lp)
}

// ToTier is the lossy reverse mapping: elo to a coarse tier label with no
// division. Used only as a fallback display label.
func ToTier(elo int) string {
	for _, t := range tiersDescending {
		if elo >= t.threshold {
			return t.name
		}
	}
	return "IRON"
}
