package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/elonfeng/rewatch/internal/config"
	"github.com/elonfeng/rewatch/internal/logging"
	"github.com/elonfeng/rewatch/internal/scheduler"
	"github.com/elonfeng/rewatch/internal/store"
	"github.com/elonfeng/rewatch/pkg/alert"
	"github.com/elonfeng/rewatch/pkg/calibrate"
	"github.com/elonfeng/rewatch/pkg/excite"
	"github.com/elonfeng/rewatch/pkg/ledger"
	"github.com/elonfeng/rewatch/pkg/metrics"
	"github.com/elonfeng/rewatch/pkg/scoring"
	"github.com/elonfeng/rewatch/pkg/server"
	"github.com/elonfeng/rewatch/pkg/source"
	"github.com/elonfeng/rewatch/pkg/sport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

// app holds the long-lived resources a command needs.
type app struct {
	cfg      *config.Config
	logger   *zerolog.Logger
	db       *store.SQLiteStore
	redis    *redis.Client
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		registry: registry,
		metrics:  metrics.New(metrics.WithRegistry(registry)),
	}, nil
}

func (a *app) close() {
	if a.redis != nil {
		a.redis.Close()
	}
	a.db.Close()
}

func (a *app) redisClient() (*redis.Client, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	opts, err := redis.ParseURL(a.cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	a.redis = redis.NewClient(opts)
	return a.redis, nil
}

func (a *app) buildLedger() (ledger.Ledger, error) {
	retention := a.cfg.Ledger.ParseRetention()

	switch a.cfg.Ledger.Backend {
	case "sqlite":
		return a.db.Ledger(), nil
	case "redis":
		client, err := a.redisClient()
		if err != nil {
			return nil, err
		}
		return ledger.NewRedis(client, retention), nil
	default:
		f, err := ledger.OpenFile(a.cfg.Ledger.Path)
		if err != nil {
			if f == nil {
				return nil, fmt.Errorf("open ledger: %w", err)
			}
			a.logger.Warn().Err(err).Str("path", a.cfg.Ledger.Path).Msg("ledger unreadable, starting empty")
		}
		return f, nil
	}
}

func (a *app) buildAlertManager() (*alert.Manager, error) {
	cfg := a.cfg.Alerts
	var notifiers []alert.Notifier

	if cfg.Console.Enabled {
		notifiers = append(notifiers, alert.NewConsole(os.Stdout))
	}
	if cfg.Slack.Enabled && cfg.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Slack.WebhookURL))
	}
	if cfg.Discord.Enabled && cfg.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Discord.WebhookURL))
	}
	if cfg.Webhook.Enabled && cfg.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Webhook.URL, cfg.Webhook.Secret))
	}
	if cfg.Mastodon.Enabled {
		notifiers = append(notifiers, alert.NewMastodon(cfg.Mastodon.Server, cfg.Mastodon.AccessToken, cfg.Mastodon.Visibility))
	}
	if cfg.Stream.Enabled {
		client, err := a.redisClient()
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, alert.NewStream(client, cfg.Stream.Name))
	}

	m := alert.NewManager(notifiers)
	if !m.HasNotifiers() {
		a.logger.Warn().Msg("no alert destinations enabled; games will be scored but never delivered")
	} else {
		a.logger.Info().Strs("destinations", m.Names()).Msg("alerts configured")
	}
	return m, nil
}

func (a *app) buildESPN() *source.ESPN {
	cfg := a.cfg.Source.ESPN
	return source.NewESPN(cfg.ParseTimeout(),
		source.WithBaseURL(cfg.BaseURL),
		source.WithNationalNetworks(cfg.NationalNetworks),
	)
}

func (a *app) buildPreCap() (*source.PreCap, error) {
	cfg := a.cfg.Source.PreCap
	if !cfg.Enabled {
		return nil, nil
	}
	var urls map[sport.Sport]string
	if len(cfg.URLs) > 0 {
		urls = make(map[sport.Sport]string, len(cfg.URLs))
		for key, u := range cfg.URLs {
			sp, err := sport.Parse(key)
			if err != nil {
				return nil, fmt.Errorf("precap url: %w", err)
			}
			urls[sp] = u
		}
	}
	return source.NewPreCap(urls, cfg.ParseCacheTTL(), a.logger), nil
}

func (a *app) buildScheduler(sports []sport.Sport) (*scheduler.Scheduler, ledger.Ledger, error) {
	cfg := a.cfg

	engine, err := cfg.Engine()
	if err != nil {
		return nil, nil, err
	}
	pol, err := cfg.Policy()
	if err != nil {
		return nil, nil, err
	}
	loc, err := cfg.Schedule.Location()
	if err != nil {
		return nil, nil, err
	}
	led, err := a.buildLedger()
	if err != nil {
		return nil, nil, err
	}
	alerts, err := a.buildAlertManager()
	if err != nil {
		return nil, nil, err
	}
	precap, err := a.buildPreCap()
	if err != nil {
		return nil, nil, err
	}

	espn := a.buildESPN()
	deps := scheduler.Deps{
		Lister:    espn,
		Fetcher:   source.NewRetryingFetcher(espn, cfg.Source.ESPN.RetryPolicy()),
		Engine:    engine,
		Policy:    pol,
		Ledger:    led,
		Publisher: alerts,
		Store:     a.db,
		Metrics:   a.metrics,
		Logger:    a.logger,
	}
	if precap != nil {
		deps.Annotator = precap
	}

	sched := scheduler.New(deps, scheduler.Options{
		Sports:       sports,
		Interval:     cfg.Schedule.ParsePollInterval(),
		Location:     loc,
		RolloverHour: cfg.Schedule.DayRolloverHour,
		Retention:    cfg.Ledger.ParseRetention(),
		Concurrency:  cfg.Source.ESPN.Concurrency,
		EIScale:      cfg.Sports.EIScale,
	})
	return sched, led, nil
}

func (a *app) buildServer(led ledger.Ledger, cycler server.Cycler, port int) (*server.Server, error) {
	engine, err := a.cfg.Engine()
	if err != nil {
		return nil, err
	}
	pol, err := a.cfg.Policy()
	if err != nil {
		return nil, err
	}
	sports, err := a.cfg.EnabledSports()
	if err != nil {
		return nil, err
	}
	if port == 0 {
		port = a.cfg.Server.Port
	}
	return server.New(server.Deps{
		Store:    a.db,
		Ledger:   led,
		Engine:   engine,
		Policy:   pol,
		Sports:   sports,
		Cycler:   cycler,
		Metrics:  a.metrics,
		Gatherer: a.registry,
		Logger:   a.logger,
	}, port), nil
}

func runDaemon(port int) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	sports, err := a.cfg.EnabledSports()
	if err != nil {
		return err
	}
	sched, led, err := a.buildScheduler(sports)
	if err != nil {
		return err
	}
	srv, err := a.buildServer(led, sched, port)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := sched.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("scheduler: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})

	err = g.Wait()
	a.logger.Info().Msg("shut down")
	return err
}

func runPoll(date string, sportKeys []string, jsonOutput bool) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	sports, err := a.cfg.EnabledSports()
	if err != nil {
		return err
	}
	if len(sportKeys) > 0 {
		sports = nil
		for _, key := range sportKeys {
			sp, err := sport.Parse(key)
			if err != nil {
				return err
			}
			sports = append(sports, sp)
		}
	}

	sched, _, err := a.buildScheduler(sports)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var report scheduler.CycleReport
	if date != "" {
		loc, err := a.cfg.Schedule.Location()
		if err != nil {
			return err
		}
		day, err := time.ParseInLocation(source.DayLayout, date, loc)
		if err != nil {
			return fmt.Errorf("parse --date: %w", err)
		}
		report = sched.RunDay(ctx, day)
	} else {
		report = sched.RunCycle(ctx)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SPORT\tEVENT\tMATCHUP\tNETWORK\tSCORE\tVIBE\tSTATUS")
	for _, day := range report.Days {
		for _, g := range day.Games {
			score := "-"
			if g.Scored {
				score = fmt.Sprintf("%d", g.Score)
			}
			fmt.Fprintf(w, "%s\t%s\t%s @ %s\t%s\t%s\t%s\t%s\n",
				day.Sport.DisplayName(), g.Event.ID, g.Event.Away, g.Event.Home,
				orDash(g.Event.Broadcast), score, orDash(g.Vibe), g.Status)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	for _, day := range report.Days {
		line := fmt.Sprintf("%s %s: %d games, fallback %s", day.Sport.DisplayName(), day.Date, len(day.Games), day.Fallback)
		if day.Pick != "" {
			line += " (" + day.Pick + ")"
		}
		fmt.Println(line)
	}
	return nil
}

func runScore(sportKey string, ei float64, eventID string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	sp, err := sport.Parse(sportKey)
	if err != nil {
		return err
	}
	engine, err := cfg.Engine()
	if err != nil {
		return err
	}

	if eventID != "" {
		espn := source.NewESPN(cfg.Source.ESPN.ParseTimeout(), source.WithBaseURL(cfg.Source.ESPN.BaseURL))
		raw, err := espn.FetchSeries(context.Background(), sp, eventID)
		if err != nil {
			return err
		}
		series := excite.Normalize(raw)
		if len(series) < excite.MinSamples {
			fmt.Printf("%s %s: awaiting data (%d usable points)\n", sp.DisplayName(), eventID, len(series))
			return nil
		}
		ei = excite.Index(series)
		fmt.Printf("%s %s: %d points\n", sp.DisplayName(), eventID, len(series))
	}

	score := engine.Score(sp, ei, scoring.WithScale(cfg.Sports.EIScale))
	fmt.Printf("%s ei=%.6f score=%d vibe=%s\n", sp.DisplayName(), ei, score, scoring.Vibe(score))
	return nil
}

func runGames(jsonOutput bool, sportKey, date string, minScore, limit int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	opts := store.GameListOpts{Date: date, MinScore: minScore, Limit: limit}
	if sportKey != "" {
		sp, err := sport.Parse(sportKey)
		if err != nil {
			return err
		}
		opts.Sport = sp.String()
	}

	games, err := db.ListGames(context.Background(), opts)
	if err != nil {
		return fmt.Errorf("list games: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(games)
	}

	if len(games) == 0 {
		fmt.Println("no games found (try polling first: rewatch poll)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tSPORT\tMATCHUP\tSCORE\tVIBE\tEI\tDELIVERED")
	for _, g := range games {
		fmt.Fprintf(w, "%s\t%s\t%s @ %s\t%d\t%s\t%.4f\t%t\n",
			g.GameDate, strings.ToUpper(g.Sport), g.Away, g.Home,
			g.Score, g.Vibe, g.EI, g.Delivered)
	}
	return w.Flush()
}

func runLedgerList() error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	led, err := a.buildLedger()
	if err != nil {
		return err
	}
	entries, err := led.Entries(context.Background())
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return entries[ids[i]].After(entries[ids[j]]) })

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EVENT\tDELIVERED\tAGE")
	for _, id := range ids {
		at := entries[id]
		fmt.Fprintf(w, "%s\t%s\t%s\n", id, at.Format(time.RFC3339), time.Since(at).Truncate(time.Minute))
	}
	return w.Flush()
}

func runLedgerPrune() error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	led, err := a.buildLedger()
	if err != nil {
		return err
	}
	ctx := context.Background()
	n, err := led.Prune(ctx, time.Now(), a.cfg.Ledger.ParseRetention())
	if err != nil {
		return err
	}
	if err := led.Save(ctx); err != nil {
		return err
	}
	fmt.Printf("pruned %d entries\n", n)
	return nil
}

func runDataset(sportKey string, season int, from, to, out string, appendTo bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	sp, err := sport.Parse(sportKey)
	if err != nil {
		return err
	}

	var start, end time.Time
	switch {
	case season > 0:
		start, end = calibrate.Season(sp, season)
	case from != "" && to != "":
		if start, err = time.Parse(source.DayLayout, from); err != nil {
			return fmt.Errorf("parse --from: %w", err)
		}
		if end, err = time.Parse(source.DayLayout, to); err != nil {
			return fmt.Errorf("parse --to: %w", err)
		}
	default:
		return errors.New("either --season or both --from and --to are required")
	}
	if out == "" {
		out = fmt.Sprintf("ei_%s.csv", sp)
	}

	skip := map[string]bool{}
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendTo {
		if skip, err = calibrate.ExistingIDs(out); err != nil {
			return fmt.Errorf("read existing dataset: %w", err)
		}
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		logger.Info().Int("known", len(skip)).Str("file", out).Msg("appending")
	}

	f, err := os.OpenFile(out, flags, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	w, err := calibrate.NewWriter(f, info.Size() == 0)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	espn := source.NewESPN(cfg.Source.ESPN.ParseTimeout(), source.WithBaseURL(cfg.Source.ESPN.BaseURL))
	b := &calibrate.Builder{
		Lister:  espn,
		Fetcher: source.NewRetryingFetcher(espn, source.RetryPolicy{Attempts: 2, Delay: 500 * time.Millisecond, MaxDelay: time.Second}),
		Pause:   50 * time.Millisecond,
		Logger:  logger,
	}

	logger.Info().Str("sport", sp.String()).
		Str("from", start.Format(source.DayLayout)).
		Str("to", end.Format(source.DayLayout)).
		Msg("building dataset")

	n, err := b.Build(ctx, sp, start, end, skip, func(r calibrate.Row) error {
		if err := w.Write(r); err != nil {
			return err
		}
		return w.Flush()
	})
	if ferr := w.Flush(); err == nil {
		err = ferr
	}
	fmt.Fprintf(os.Stderr, "wrote %d games to %s\n", n, out)
	return err
}

func runCalibrate(paths []string, sportKey string) error {
	var fallback sport.Sport
	if sportKey != "" {
		sp, err := sport.Parse(sportKey)
		if err != nil {
			return err
		}
		fallback = sp
	}

	var rows []calibrate.Row
	for _, p := range paths {
		r, err := calibrate.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		rows = append(rows, r...)
	}

	results, err := calibrate.FromRows(rows, fallback)
	if err != nil {
		return err
	}

	curves := make(map[string]scoring.Curve, len(results))
	for _, r := range results {
		curves[r.Sport.String()] = r.Curve
		fmt.Fprintf(os.Stderr, "%s: %d games\n", r.Sport.DisplayName(), r.Games)
	}

	out := map[string]any{"sports": map[string]any{"curves": curves}}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return err
	}
	return enc.Close()
}

func runServe(port int) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	// A file ledger is read once here; entries written by another process
	// show up after a restart.
	led, err := a.buildLedger()
	if err != nil {
		return err
	}

	srv, err := a.buildServer(led, nil, port)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return srv.ListenAndServe(ctx)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
