package source

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/elonfeng/rewatch/pkg/sport"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultPreCapURLs lists the PreCap pages per league. Each page always
// shows the most recent completed slate.
var DefaultPreCapURLs = map[sport.Sport]string{
	sport.NBA: "https://stats.inpredictable.com/nba/preCapOld.php",
}

const (
	preCapHeader = "Rank Game Status Excitement"
	preCapFooter = "League Averages"
)

var preCapRow = regexp.MustCompile(`(?s)\b\d+\s*([A-Z]{2,3})\s*@\s*([A-Z]{2,3}).*?Finished\s+([\d.]+)`)

// Matchup keys the PreCap map by team abbreviations.
type Matchup struct {
	Away string
	Home string
}

// PreCap reads the published Excitement figure of finished games from
// inpredictable's PreCap pages. It is only used to annotate captions.
type PreCap struct {
	client *http.Client
	urls   map[sport.Sport]string
	ttl    time.Duration
	now    func() time.Time
	logger *zerolog.Logger

	// mu guards cache only; page fetches run outside it, one per league
	// at a time through inflight.
	mu       sync.Mutex
	cache    map[sport.Sport]preCapEntry
	inflight singleflight.Group
}

type preCapEntry struct {
	values    map[Matchup]float64
	fetchedAt time.Time
}

// NewPreCap creates a PreCap reader. A nil urls map uses DefaultPreCapURLs.
func NewPreCap(urls map[sport.Sport]string, ttl time.Duration, logger *zerolog.Logger) *PreCap {
	if urls == nil {
		urls = DefaultPreCapURLs
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &PreCap{
		client: &http.Client{Timeout: 10 * time.Second},
		urls:   urls,
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
		cache:  make(map[sport.Sport]preCapEntry),
	}
}

// SetClock replaces the clock used for cache expiry.
func (p *PreCap) SetClock(now func() time.Time) { p.now = now }

// Excitement returns the PreCap figure for one matchup.
func (p *PreCap) Excitement(ctx context.Context, s sport.Sport, away, home string) (float64, bool) {
	m := p.Map(ctx, s)
	v, ok := m[Matchup{Away: strings.ToUpper(away), Home: strings.ToUpper(home)}]
	return v, ok
}

// Map returns every matchup on the league's current PreCap page. Fresh cache
// entries are served without a request; on fetch failure a stale entry is
// preferred over nothing.
func (p *PreCap) Map(ctx context.Context, s sport.Sport) map[Matchup]float64 {
	p.mu.Lock()
	entry, cached := p.cache[s]
	p.mu.Unlock()
	if cached && p.now().Sub(entry.fetchedAt) <= p.ttl {
		return entry.values
	}

	u, ok := p.urls[s]
	if !ok || u == "" {
		empty := map[Matchup]float64{}
		p.store(s, empty)
		return empty
	}

	v, err, _ := p.inflight.Do(s.String(), func() (any, error) {
		values, err := p.fetch(ctx, u)
		if err != nil {
			return nil, err
		}
		p.logger.Debug().Str("sport", s.String()).Int("games", len(values)).Msg("precap refreshed")
		p.store(s, values)
		return values, nil
	})
	if err != nil {
		p.logger.Warn().Err(err).Str("sport", s.String()).Msg("precap fetch failed")
		if cached {
			p.logger.Info().Str("sport", s.String()).Msg("using stale precap cache")
			return entry.values
		}
		return map[Matchup]float64{}
	}
	return v.(map[Matchup]float64)
}

func (p *PreCap) store(s sport.Sport, values map[Matchup]float64) {
	p.mu.Lock()
	p.cache[s] = preCapEntry{values: values, fetchedAt: p.now()}
	p.mu.Unlock()
}

func (p *PreCap) fetch(ctx context.Context, u string) (map[Matchup]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create precap request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch precap: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch precap: unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse precap html: %w", err)
	}
	// Scripts carry strings like "SON @ ONE" that would match as rows.
	doc.Find("script, style").Remove()

	return ParsePreCap(doc.Text()), nil
}

// ParsePreCap extracts finished games from the text of a PreCap page. Only
// the table between the header row and the league averages is considered.
func ParsePreCap(text string) map[Matchup]float64 {
	out := make(map[Matchup]float64)

	start := strings.Index(text, preCapHeader)
	if start == -1 {
		return out
	}
	table := text[start:]
	if end := strings.Index(table, preCapFooter); end != -1 {
		table = table[:end]
	}

	for _, m := range preCapRow.FindAllStringSubmatch(table, -1) {
		v, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			continue
		}
		out[Matchup{Away: m[1], Home: m[2]}] = v
	}
	return out
}
