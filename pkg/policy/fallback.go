package policy

// Candidate is one game of a league's date as seen by the fallback check.
type Candidate struct {
	EventID     string
	Final       bool
	Scored      bool // false while the win-probability series is still missing
	Score       int
	AutoSurface bool
}

// FallbackVerdict explains what the fallback check decided.
type FallbackVerdict string

const (
	FallbackNotNeeded FallbackVerdict = "not_needed" // some game already qualified
	FallbackNoGames   FallbackVerdict = "no_games"   // nothing scored yet
	FallbackWaitFinal FallbackVerdict = "wait_final" // some games still in progress
	FallbackWaitData  FallbackVerdict = "wait_data"  // a final game lacks a series
	FallbackSelected  FallbackVerdict = "selected"   // the returned candidate is the pick
)

// PickFallback chooses the best-of-night game. It only selects when no game
// auto-surfaced, every game is final, and every final game has a score; in
// any other case it defers so a later cycle can decide on complete data.
// Ties keep the earliest candidate.
func PickFallback(cands []Candidate) (Candidate, FallbackVerdict) {
	var (
		best      Candidate
		haveBest  bool
		allFinal  = true
		allScored = true
	)
	for _, c := range cands {
		if !c.Final {
			allFinal = false
			continue
		}
		if !c.Scored {
			allScored = false
			continue
		}
		if c.AutoSurface {
			return Candidate{}, FallbackNotNeeded
		}
		if !haveBest || c.Score > best.Score {
			best, haveBest = c, true
		}
	}

	switch {
	case !haveBest:
		return Candidate{}, FallbackNoGames
	case !allFinal:
		return Candidate{}, FallbackWaitFinal
	case !allScored:
		return Candidate{}, FallbackWaitData
	}
	return best, FallbackSelected
}
