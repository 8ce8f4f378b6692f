// Package sport is the closed set of leagues the service knows how to score.
package sport

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownSport is returned when a key does not name a supported league.
var ErrUnknownSport = errors.New("unknown sport")

// Sport identifies a league. Only the constants below are valid.
type Sport string

const (
	NBA   Sport = "nba"
	NFL   Sport = "nfl"
	MLB   Sport = "mlb"
	NCAAF Sport = "ncaaf"
	NCAAB Sport = "ncaab"
)

// Tier groups leagues that share posting business rules.
type Tier string

const (
	TierPro     Tier = "pro"
	TierCollege Tier = "college"
)

type info struct {
	display  string
	espnPath string
	tier     Tier
	emoji    string
}

var registry = map[Sport]info{
	NBA:   {display: "NBA", espnPath: "basketball/nba", tier: TierPro, emoji: "🏀"},
	NFL:   {display: "NFL", espnPath: "football/nfl", tier: TierPro, emoji: "🏈"},
	MLB:   {display: "MLB", espnPath: "baseball/mlb", tier: TierPro, emoji: "⚾"},
	NCAAF: {display: "NCAAF", espnPath: "football/college-football", tier: TierCollege, emoji: "🏈"},
	NCAAB: {display: "NCAAB", espnPath: "basketball/mens-college-basketball", tier: TierCollege, emoji: "🏀"},
}

var aliases = map[string]Sport{
	"cfb":                NCAAF,
	"college-football":   NCAAF,
	"cbb":                NCAAB,
	"ncaam":              NCAAB,
	"college-basketball": NCAAB,
}

// All returns every supported sport in a stable order.
func All() []Sport {
	return []Sport{NBA, NFL, MLB, NCAAF, NCAAB}
}

// Parse resolves a user-supplied key (case-insensitive, aliases allowed).
func Parse(key string) (Sport, error) {
	k := strings.ToLower(strings.TrimSpace(key))
	if _, ok := registry[Sport(k)]; ok {
		return Sport(k), nil
	}
	if s, ok := aliases[k]; ok {
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSport, key)
}

// Valid reports whether s is one of the supported constants.
func (s Sport) Valid() bool {
	_, ok := registry[s]
	return ok
}

func (s Sport) String() string { return string(s) }

// DisplayName is the upper-case league label, e.g. "NBA".
func (s Sport) DisplayName() string {
	if i, ok := registry[s]; ok {
		return i.display
	}
	return strings.ToUpper(string(s))
}

// ESPNPath is the "{group}/{league}" segment of ESPN's site API.
func (s Sport) ESPNPath() string {
	return registry[s].espnPath
}

// Tier returns the posting tier of the league.
func (s Sport) Tier() Tier {
	return registry[s].tier
}

// Emoji is the ball used in captions.
func (s Sport) Emoji() string {
	if i, ok := registry[s]; ok {
		return i.emoji
	}
	return "🏟"
}
