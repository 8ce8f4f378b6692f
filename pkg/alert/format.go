package alert

import (
	"fmt"
	"strings"
	"time"
)

// LocalNetwork is shown when a game has no national broadcast.
const LocalNetwork = "Streaming / Local"

// CaptionInput is what a caption is rendered from.
type CaptionInput struct {
	Emoji      string
	Away       string
	Home       string
	Network    string
	Score      int
	Vibe       string
	Date       string // YYYY-MM-DD
	Excitement *float64
}

// Caption renders the post text: a matchup line, the score, the vibe, the
// date and, when known, the published Excitement figure.
func Caption(in CaptionInput) string {
	network := strings.TrimSpace(in.Network)
	if network == "" {
		network = LocalNetwork
	}
	away := orDefault(in.Away, "Away")
	home := orDefault(in.Home, "Home")

	lines := []string{
		fmt.Sprintf("%s %s @ %s — %s — FINAL", in.Emoji, away, home, network),
		fmt.Sprintf("Rewatchability Score™: %d", in.Score),
		in.Vibe,
		DateLine(in.Date),
	}
	if in.Excitement != nil {
		lines = append(lines, fmt.Sprintf("(Excitement %.1f)", *in.Excitement))
	}
	return strings.Join(lines, "\n")
}

// DateLine formats a YYYY-MM-DD game day as "Tue · 11/4/25". Unparseable
// input is returned unchanged.
func DateLine(date string) string {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return d.Format("Mon · 1/2/06")
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}
