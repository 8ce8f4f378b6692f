package scoring

type vibeTier struct {
	min int
	tag string
}

// vibeTiers is ordered from the highest threshold down.
var vibeTiers = []vibeTier{
	{99, "All-Timer"},
	{95, "Classic"},
	{90, "Cinematic"},
	{80, "High Tempo"},
	{70, "Steady"},
	{60, "Flat"},
	{50, "Routine"},
}

const lowestVibe = "Lifeless"

// Vibe returns the short, spoiler-safe tag for a score.
func Vibe(score int) string {
	s := clamp(score)
	for _, t := range vibeTiers {
		if s >= t.min {
			return t.tag
		}
	}
	return lowestVibe
}
