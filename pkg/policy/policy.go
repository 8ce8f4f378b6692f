// Package policy decides which scored games get surfaced.
//
// Surfacing runs in two phases. Each scored game is checked against its
// league's Rule right away. Once every game of a league's date is final and
// scored, and nothing qualified, PickFallback chooses the single best game of
// the night.
package policy

import (
	"fmt"
	"strings"

	"github.com/elonfeng/rewatch/pkg/sport"
)

// DefaultThreshold is the score at which a game surfaces on merit alone.
const DefaultThreshold = 70

// Mode selects how the score and broadcast conditions combine.
type Mode string

const (
	// ModeAny surfaces a game that clears the threshold OR is on national TV.
	ModeAny Mode = "any"
	// ModeAll requires both the threshold AND a national broadcast.
	ModeAll Mode = "all"
)

// ParseMode accepts "any"/"or" and "all"/"and".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "any", "or":
		return ModeAny, nil
	case "all", "and":
		return ModeAll, nil
	}
	return "", fmt.Errorf("unknown posting mode %q", s)
}

// Rule is the auto-surface rule for one league.
type Rule struct {
	Threshold int  `yaml:"threshold" json:"threshold"`
	Mode      Mode `yaml:"mode" json:"mode"`
}

// AutoSurface reports whether a game surfaces immediately. A non-empty
// broadcast means the upstream lister already judged it national.
func (r Rule) AutoSurface(score int, broadcast string) bool {
	merit := score >= r.Threshold
	national := strings.TrimSpace(broadcast) != ""
	if r.Mode == ModeAll {
		return merit && national
	}
	return merit || national
}

// Policy maps leagues to their rules.
type Policy struct {
	rules map[sport.Sport]Rule
}

// DefaultRule returns the rule for a tier: pro leagues use OR, college AND.
func DefaultRule(t sport.Tier) Rule {
	if t == sport.TierCollege {
		return Rule{Threshold: DefaultThreshold, Mode: ModeAll}
	}
	return Rule{Threshold: DefaultThreshold, Mode: ModeAny}
}

// New builds a policy from tier defaults with per-sport overrides applied.
func New(overrides map[sport.Sport]Rule) *Policy {
	rules := make(map[sport.Sport]Rule, len(sport.All()))
	for _, s := range sport.All() {
		rules[s] = DefaultRule(s.Tier())
	}
	for s, r := range overrides {
		base := rules[s]
		if r.Threshold > 0 {
			base.Threshold = r.Threshold
		}
		if r.Mode != "" {
			base.Mode = r.Mode
		}
		rules[s] = base
	}
	return &Policy{rules: rules}
}

// SetRule replaces the rule for s as given, zero threshold included. It is
// meant for construction time; a Policy is not safe for concurrent SetRule.
func (p *Policy) SetRule(s sport.Sport, r Rule) {
	p.rules[s] = r
}

// Rule returns the rule in force for s.
func (p *Policy) Rule(s sport.Sport) Rule {
	if r, ok := p.rules[s]; ok {
		return r
	}
	return DefaultRule(sport.TierPro)
}

// AutoSurface applies the league's rule to one scored game.
func (p *Policy) AutoSurface(s sport.Sport, score int, broadcast string) bool {
	return p.Rule(s).AutoSurface(score, broadcast)
}
