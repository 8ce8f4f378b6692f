package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/elonfeng/rewatch/pkg/sport"
)

// DefaultESPNBaseURL is ESPN's public site API.
const DefaultESPNBaseURL = "https://site.api.espn.com/apis/site/v2/sports"

// DefaultNationalNetworks are matched as substrings of the upper-cased
// broadcast name.
var DefaultNationalNetworks = []string{
	"ESPN", "ESPN2", "ESPN+", "ABC", "TNT", "TBS", "NBATV", "NBA TV",
	"ION", "AMAZON", "PRIME VIDEO", "CBS", "FOX",
}

// ESPN lists events from the scoreboard endpoint and reads win probability
// from the game summary endpoint.
type ESPN struct {
	client   *http.Client
	baseURL  string
	networks []string
}

// ESPNOption configures an ESPN client.
type ESPNOption func(*ESPN)

// WithBaseURL points the client at another host, e.g. a test server.
func WithBaseURL(u string) ESPNOption {
	return func(e *ESPN) { e.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) ESPNOption {
	return func(e *ESPN) { e.client = c }
}

// WithNationalNetworks replaces the list of national network keywords.
func WithNationalNetworks(networks []string) ESPNOption {
	return func(e *ESPN) {
		e.networks = make([]string, 0, len(networks))
		for _, n := range networks {
			if n = strings.ToUpper(strings.TrimSpace(n)); n != "" {
				e.networks = append(e.networks, n)
			}
		}
	}
}

// NewESPN creates an ESPN client. Requests time out after timeout so one
// stuck call cannot stall a polling cycle.
func NewESPN(timeout time.Duration, opts ...ESPNOption) *ESPN {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	e := &ESPN{
		client:   &http.Client{Timeout: timeout},
		baseURL:  DefaultESPNBaseURL,
		networks: DefaultNationalNetworks,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type espnScoreboard struct {
	Events []struct {
		ID           string `json:"id"`
		Date         string `json:"date"`
		Competitions []struct {
			Status struct {
				Type struct {
					State string `json:"state"`
				} `json:"type"`
			} `json:"status"`
			Competitors []struct {
				HomeAway string `json:"homeAway"`
				Score    string `json:"score"`
				Team     struct {
					Abbreviation     string `json:"abbreviation"`
					ShortDisplayName string `json:"shortDisplayName"`
					Name             string `json:"name"`
				} `json:"team"`
			} `json:"competitors"`
			Broadcasts []espnBroadcast `json:"broadcasts"`
		} `json:"competitions"`
	} `json:"events"`
}

type espnBroadcast struct {
	Names     json.RawMessage `json:"names"`
	ShortName string          `json:"shortName"`
	Name      string          `json:"name"`
}

type espnSummary struct {
	WinProbability []struct {
		HomeWinPercentage any    `json:"homeWinPercentage"`
		PlayID            string `json:"playId"`
	} `json:"winprobability"`
}

// ListEvents returns every event on the scoreboard for the given day.
func (e *ESPN) ListEvents(ctx context.Context, s sport.Sport, day time.Time) ([]GameEvent, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("list events: %w: %q", sport.ErrUnknownSport, s)
	}

	q := url.Values{}
	q.Set("dates", day.Format("20060102"))
	u := fmt.Sprintf("%s/%s/scoreboard?%s", e.baseURL, s.ESPNPath(), q.Encode())

	var board espnScoreboard
	if err := e.getJSON(ctx, u, &board); err != nil {
		return nil, fmt.Errorf("fetch %s scoreboard: %w", s, err)
	}

	date := day.Format(DayLayout)
	events := make([]GameEvent, 0, len(board.Events))
	for _, ev := range board.Events {
		if len(ev.Competitions) == 0 {
			continue
		}
		comp := ev.Competitions[0]

		g := GameEvent{
			ID:    ev.ID,
			Sport: s,
			Date:  date,
			Final: comp.Status.Type.State == "post",
		}
		if t, err := time.Parse("2006-01-02T15:04Z", ev.Date); err == nil {
			g.StartTime = t
		} else if t, err := time.Parse(time.RFC3339, ev.Date); err == nil {
			g.StartTime = t
		}

		for _, c := range comp.Competitors {
			abbr := teamAbbrev(c.Team.Abbreviation, c.Team.ShortDisplayName, c.Team.Name)
			score, _ := strconv.Atoi(c.Score)
			switch c.HomeAway {
			case "home":
				g.Home, g.HomeScore = abbr, score
			case "away":
				g.Away, g.AwayScore = abbr, score
			}
		}

		if len(comp.Broadcasts) > 0 {
			if name := comp.Broadcasts[0].network(); e.IsNational(name) {
				g.Broadcast = name
			}
		}
		events = append(events, g)
	}
	return events, nil
}

// FetchSeries returns homeWinPercentage samples from the game summary. It
// returns ErrNoSeries when the summary has no win probability yet.
func (e *ESPN) FetchSeries(ctx context.Context, s sport.Sport, eventID string) ([]any, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("fetch series: %w: %q", sport.ErrUnknownSport, s)
	}

	q := url.Values{}
	q.Set("event", eventID)
	u := fmt.Sprintf("%s/%s/summary?%s", e.baseURL, s.ESPNPath(), q.Encode())

	var summary espnSummary
	if err := e.getJSON(ctx, u, &summary); err != nil {
		return nil, fmt.Errorf("fetch summary %s: %w", eventID, err)
	}
	if len(summary.WinProbability) == 0 {
		return nil, fmt.Errorf("event %s: %w", eventID, ErrNoSeries)
	}

	series := make([]any, 0, len(summary.WinProbability))
	for _, wp := range summary.WinProbability {
		series = append(series, wp.HomeWinPercentage)
	}
	return series, nil
}

// IsNational reports whether a broadcast name contains a national network.
func (e *ESPN) IsNational(name string) bool {
	up := strings.ToUpper(strings.TrimSpace(name))
	if up == "" {
		return false
	}
	for _, kw := range e.networks {
		if strings.Contains(up, kw) {
			return true
		}
	}
	return false
}

func (e *ESPN) getJSON(ctx context.Context, u string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// network picks the first broadcast name. ESPN sends names either as a list
// or as a bare string.
func (b espnBroadcast) network() string {
	var list []string
	if err := json.Unmarshal(b.Names, &list); err == nil && len(list) > 0 {
		return strings.TrimSpace(list[0])
	}
	var single string
	if err := json.Unmarshal(b.Names, &single); err == nil && strings.TrimSpace(single) != "" {
		return strings.TrimSpace(single)
	}
	if b.ShortName != "" {
		return strings.TrimSpace(b.ShortName)
	}
	return strings.TrimSpace(b.Name)
}

func teamAbbrev(candidates ...string) string {
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return strings.ToUpper(c)
		}
	}
	return ""
}
