// Package scheduler runs the polling loop: discover finished games, score
// them, publish the ones worth rewatching and remember what was published.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/elonfeng/rewatch/internal/store"
	"github.com/elonfeng/rewatch/pkg/alert"
	"github.com/elonfeng/rewatch/pkg/excite"
	"github.com/elonfeng/rewatch/pkg/ledger"
	"github.com/elonfeng/rewatch/pkg/metrics"
	"github.com/elonfeng/rewatch/pkg/policy"
	"github.com/elonfeng/rewatch/pkg/scoring"
	"github.com/elonfeng/rewatch/pkg/source"
	"github.com/elonfeng/rewatch/pkg/sport"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Publisher delivers a notification and reports how many destinations
// accepted it. *alert.Manager implements it.
type Publisher interface {
	Broadcast(ctx context.Context, n *alert.Notification) (int, error)
}

// Annotator supplies the externally published Excitement figure of a
// matchup. *source.PreCap implements it.
type Annotator interface {
	Excitement(ctx context.Context, s sport.Sport, away, home string) (float64, bool)
}

// Deps are the collaborators of a Scheduler. Store, Annotator and Metrics
// are optional.
type Deps struct {
	Lister    source.EventLister
	Fetcher   source.SeriesFetcher
	Engine    *scoring.Engine
	Policy    *policy.Policy
	Ledger    ledger.Ledger
	Publisher Publisher
	Store     store.Store
	Annotator Annotator
	Metrics   *metrics.Metrics
	Logger    *zerolog.Logger
}

// Options tune the loop.
type Options struct {
	Sports       []sport.Sport
	Interval     time.Duration
	Location     *time.Location
	RolloverHour int
	Retention    time.Duration
	Concurrency  int
	EIScale      float64
	// Now defaults to time.Now.
	Now func() time.Time
}

// Scheduler runs periodic polling cycles.
type Scheduler struct {
	deps Deps
	opts Options

	// cycleMu makes cycles exclusive: the ticker and on-demand triggers
	// share one ledger, and a check-then-mark must not interleave.
	cycleMu sync.Mutex
}

// New creates a new scheduler.
func New(deps Deps, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 60 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Retention <= 0 {
		opts.Retention = ledger.DefaultRetention
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.EIScale <= 0 {
		opts.EIScale = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if deps.Logger == nil {
		nop := zerolog.Nop()
		deps.Logger = &nop
	}
	return &Scheduler{deps: deps, opts: opts}
}

// Run starts the polling loop. It runs a cycle immediately, then once per
// interval, and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.deps.Logger.Info().
		Dur("interval", s.opts.Interval).
		Strs("sports", sportKeys(s.opts.Sports)).
		Msg("scheduler running")

	s.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			s.deps.Logger.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// CycleReport summarizes one polling cycle.
type CycleReport struct {
	ID      string      `json:"id"`
	GameDay string      `json:"game_day"`
	Pruned  int         `json:"pruned"`
	Days    []DayReport `json:"days"`
}

// RunCycle prunes the ledger, processes every enabled sport for the current
// game day and saves the ledger. A failing sport is logged and does not
// stop the others.
func (s *Scheduler) RunCycle(ctx context.Context) CycleReport {
	now := s.opts.Now()
	return s.RunDay(ctx, GameDay(now, s.opts.Location, s.opts.RolloverHour))
}

// RunDay is RunCycle for an explicit game day, used to backfill or replay a
// date. Ledger pruning still uses the current time. Cycles never overlap; a
// second caller waits for the running one to finish.
func (s *Scheduler) RunDay(ctx context.Context, day time.Time) CycleReport {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	start := time.Now()
	now := s.opts.Now()

	report := CycleReport{ID: uuid.New().String(), GameDay: day.Format(source.DayLayout)}
	log := s.deps.Logger.With().Str("cycle_id", report.ID).Str("date", report.GameDay).Logger()

	pruned, err := s.deps.Ledger.Prune(ctx, now, s.opts.Retention)
	if err != nil {
		log.Warn().Err(err).Msg("ledger prune failed")
	}
	report.Pruned = pruned

	for _, sp := range s.opts.Sports {
		if ctx.Err() != nil {
			break
		}
		dr, err := s.ProcessDay(ctx, sp, day)
		if err != nil {
			log.Error().Err(err).Str("sport", sp.String()).Msg("sport cycle failed")
			continue
		}
		report.Days = append(report.Days, dr)
	}

	if err := s.deps.Ledger.Save(ctx); err != nil {
		log.Error().Err(err).Msg("ledger save failed")
	}
	if entries, err := s.deps.Ledger.Entries(ctx); err == nil {
		s.deps.Metrics.LedgerPruned(pruned, len(entries))
	}

	s.deps.Metrics.CycleDone(time.Since(start))
	log.Debug().Dur("took", time.Since(start)).Int("pruned", pruned).Msg("cycle done")
	return report
}

// Status is the per-game outcome of a cycle.
type Status string

const (
	StatusPending   Status = "pending"   // not final yet
	StatusAwaiting  Status = "awaiting"  // final, win probability not published
	StatusPublished Status = "published" // published in this cycle
	StatusRecap     Status = "recap"     // scored, not published
	StatusDelivered Status = "delivered" // published in an earlier cycle
	StatusFailed    Status = "failed"    // publish attempted and rejected everywhere
)

// GameResult is one game as seen by a cycle.
type GameResult struct {
	Event       source.GameEvent `json:"event"`
	Scored      bool             `json:"scored"`
	Points      int              `json:"wp_points"`
	EI          float64          `json:"ei"`
	Score       int              `json:"score"`
	Vibe        string           `json:"vibe"`
	AutoSurface bool             `json:"auto_surface"`
	Status      Status           `json:"status"`
}

// DayReport is the outcome of one sport and game day.
type DayReport struct {
	Sport    sport.Sport            `json:"sport"`
	Date     string                 `json:"date"`
	Games    []GameResult           `json:"games"`
	Fallback policy.FallbackVerdict `json:"fallback"`
	Pick     string                 `json:"pick,omitempty"`
}

// ProcessDay runs discovery, scoring, per-game decisions and the fallback
// check for one sport and game day. Series are fetched in parallel; every
// ledger read and write happens on the calling goroutine.
func (s *Scheduler) ProcessDay(ctx context.Context, sp sport.Sport, day time.Time) (DayReport, error) {
	date := day.Format(source.DayLayout)
	log := s.deps.Logger.With().Str("sport", sp.String()).Str("date", date).Logger()
	report := DayReport{Sport: sp, Date: date}

	events, err := s.deps.Lister.ListEvents(ctx, sp, day)
	if err != nil {
		s.deps.Metrics.FetchFailed(sp.String(), "list_events")
		return report, err
	}
	log.Debug().Int("events", len(events)).Msg("scoreboard listed")
	for i := range events {
		if events[i].Sport == "" {
			events[i].Sport = sp
		}
		if events[i].Date == "" {
			events[i].Date = date
		}
	}
	if len(events) == 0 {
		report.Fallback = policy.FallbackNoGames
		return report, nil
	}

	results := s.scoreAll(ctx, sp, events, log)

	for i := range results {
		r := &results[i]
		switch {
		case !r.Event.Final:
			r.Status = StatusPending
		case !r.Scored:
			r.Status = StatusAwaiting
			s.deps.Metrics.AwaitingData(sp.String())
			log.Info().Str("event_id", r.Event.ID).
				Str("matchup", r.Event.Away+" @ "+r.Event.Home).
				Msg("final but win probability not published yet")
		default:
			r.Status = s.decide(ctx, r, alert.ReasonAuto, log)
		}
	}

	cands := make([]policy.Candidate, len(results))
	for i, r := range results {
		cands[i] = policy.Candidate{
			EventID:     r.Event.ID,
			Final:       r.Event.Final,
			Scored:      r.Scored,
			Score:       r.Score,
			AutoSurface: r.AutoSurface,
		}
	}
	pick, verdict := policy.PickFallback(cands)
	report.Fallback = verdict
	s.deps.Metrics.Fallback(sp.String(), string(verdict))

	if verdict == policy.FallbackSelected {
		report.Pick = pick.EventID
		for i := range results {
			if results[i].Event.ID != pick.EventID {
				continue
			}
			if results[i].Status == StatusDelivered {
				log.Debug().Str("event_id", pick.EventID).Msg("fallback pick already delivered")
				break
			}
			log.Info().Str("event_id", pick.EventID).Int("score", pick.Score).Msg("no game qualified; publishing best of the night")
			results[i].Status = s.publish(ctx, &results[i], alert.ReasonFallback, log)
			break
		}
	} else {
		log.Debug().Str("verdict", string(verdict)).Msg("fallback check")
	}

	for _, r := range results {
		s.record(ctx, r, log)
	}
	report.Games = results
	return report, nil
}

// scoreAll fetches and scores every final game concurrently. Results keep
// the scoreboard order.
func (s *Scheduler) scoreAll(ctx context.Context, sp sport.Sport, events []source.GameEvent, log zerolog.Logger) []GameResult {
	results := make([]GameResult, len(events))
	pool := pond.NewPool(s.opts.Concurrency)

	for i, ev := range events {
		i, ev := i, ev
		results[i] = GameResult{Event: ev}
		if !ev.Final {
			continue
		}
		pool.Submit(func() {
			raw, err := s.deps.Fetcher.FetchSeries(ctx, sp, ev.ID)
			if err != nil {
				if !errors.Is(err, source.ErrNoSeries) {
					s.deps.Metrics.FetchFailed(sp.String(), "fetch_series")
					log.Warn().Err(err).Str("event_id", ev.ID).Msg("win probability fetch failed")
				}
				return
			}

			series := excite.Normalize(raw)
			results[i].Points = len(series)
			if len(series) < excite.MinSamples {
				return
			}

			ei := excite.Index(series)
			score := s.deps.Engine.Score(sp, ei, scoring.WithScale(s.opts.EIScale))
			results[i].Scored = true
			results[i].EI = ei
			results[i].Score = score
			results[i].Vibe = scoring.Vibe(score)
			results[i].AutoSurface = s.deps.Policy.AutoSurface(sp, score, ev.Broadcast)
			s.deps.Metrics.GameScored(sp.String(), score)
		})
	}

	pool.StopAndWait()
	return results
}

// decide applies the ledger and the posting rule to a scored game.
func (s *Scheduler) decide(ctx context.Context, r *GameResult, reason alert.Reason, log zerolog.Logger) Status {
	delivered, err := s.deps.Ledger.AlreadyDelivered(ctx, r.Event.ID)
	if err != nil {
		// Without the ledger a publish could repeat; wait for the next cycle.
		log.Warn().Err(err).Str("event_id", r.Event.ID).Msg("ledger lookup failed")
		return StatusRecap
	}
	if delivered {
		log.Debug().Str("event_id", r.Event.ID).Int("score", r.Score).Msg("recap only, already delivered")
		return StatusDelivered
	}
	if !r.AutoSurface {
		log.Info().Str("event_id", r.Event.ID).
			Str("matchup", r.Event.Away+" @ "+r.Event.Home).
			Int("score", r.Score).
			Msg("recap only, below threshold")
		return StatusRecap
	}
	return s.publish(ctx, r, reason, log)
}

// publish sends the game out and marks it delivered once any destination
// accepted it. A rejected publish leaves the ledger untouched so the next
// cycle tries again.
func (s *Scheduler) publish(ctx context.Context, r *GameResult, reason alert.Reason, log zerolog.Logger) Status {
	n := s.notification(ctx, r, reason)

	sent, err := s.deps.Publisher.Broadcast(ctx, n)
	if sent == 0 {
		s.deps.Metrics.PublishFailed(r.Event.Sport.String())
		log.Error().Err(err).Str("event_id", r.Event.ID).Msg("publish failed")
		return StatusFailed
	}
	if err != nil {
		log.Warn().Err(err).Str("event_id", r.Event.ID).Msg("some destinations rejected the game")
	}

	if err := s.deps.Ledger.MarkDelivered(ctx, r.Event.ID, s.opts.Now()); err != nil {
		log.Error().Err(err).Str("event_id", r.Event.ID).Msg("mark delivered failed")
	}
	s.deps.Metrics.Published(r.Event.Sport.String(), string(reason))
	log.Info().Str("event_id", r.Event.ID).
		Str("reason", string(reason)).
		Int("score", r.Score).
		Int("destinations", sent).
		Msg("published")
	return StatusPublished
}

func (s *Scheduler) notification(ctx context.Context, r *GameResult, reason alert.Reason) *alert.Notification {
	ev := r.Event
	var excitement *float64
	if s.deps.Annotator != nil {
		if v, ok := s.deps.Annotator.Excitement(ctx, ev.Sport, ev.Away, ev.Home); ok {
			excitement = &v
		}
	}

	return &alert.Notification{
		Reason:     reason,
		EventID:    ev.ID,
		Sport:      ev.Sport.String(),
		Date:       ev.Date,
		Away:       ev.Away,
		Home:       ev.Home,
		Network:    ev.Broadcast,
		Score:      r.Score,
		Vibe:       r.Vibe,
		EI:         r.EI,
		Excitement: excitement,
		Caption: alert.Caption(alert.CaptionInput{
			Emoji:      ev.Sport.Emoji(),
			Away:       ev.Away,
			Home:       ev.Home,
			Network:    ev.Broadcast,
			Score:      r.Score,
			Vibe:       r.Vibe,
			Date:       ev.Date,
			Excitement: excitement,
		}),
	}
}

// record keeps scored games in the history store.
func (s *Scheduler) record(ctx context.Context, r GameResult, log zerolog.Logger) {
	if s.deps.Store == nil || !r.Scored {
		return
	}
	g := &store.Game{
		EventID:     r.Event.ID,
		Sport:       r.Event.Sport.String(),
		GameDate:    r.Event.Date,
		Away:        r.Event.Away,
		Home:        r.Event.Home,
		Network:     r.Event.Broadcast,
		WPPoints:    r.Points,
		EI:          r.EI,
		Score:       r.Score,
		Vibe:        r.Vibe,
		AutoSurface: r.AutoSurface,
		Delivered:   r.Status == StatusPublished || r.Status == StatusDelivered,
		ScoredAt:    s.opts.Now().UTC(),
	}
	if err := s.deps.Store.UpsertGame(ctx, g); err != nil {
		log.Warn().Err(err).Str("event_id", r.Event.ID).Msg("store game failed")
	}
}

// GameDay returns the game day that now belongs to in loc. Before the
// rollover hour late games still count toward the previous day.
func GameDay(now time.Time, loc *time.Location, rolloverHour int) time.Time {
	local := now.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	if local.Hour() < rolloverHour {
		day = day.AddDate(0, 0, -1)
	}
	return day
}

func sportKeys(sports []sport.Sport) []string {
	out := make([]string, len(sports))
	for i, s := range sports {
		out[i] = s.String()
	}
	return out
}
