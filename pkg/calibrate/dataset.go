// Package calibrate builds historical Excitement Index datasets and derives
// per-sport curve anchors from them.
package calibrate

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/elonfeng/rewatch/pkg/excite"
	"github.com/elonfeng/rewatch/pkg/source"
	"github.com/elonfeng/rewatch/pkg/sport"
	"github.com/rs/zerolog"
)

// Header is the column layout of a dataset file.
var Header = []string{"sport", "date", "event_id", "away_team", "home_team", "num_wp_points", "ei_raw"}

// Row is one final game with its raw EI.
type Row struct {
	Sport    sport.Sport
	Date     string
	EventID  string
	Away     string
	Home     string
	WPPoints int
	EI       float64
}

func (r Row) record() []string {
	return []string{
		r.Sport.DisplayName(),
		r.Date,
		r.EventID,
		r.Away,
		r.Home,
		strconv.Itoa(r.WPPoints),
		strconv.FormatFloat(r.EI, 'f', 6, 64),
	}
}

// Writer appends rows to a CSV dataset.
type Writer struct {
	w *csv.Writer
}

// NewWriter wraps w. When header is true the column row is written first.
func NewWriter(w io.Writer, header bool) (*Writer, error) {
	cw := csv.NewWriter(w)
	if header {
		if err := cw.Write(Header); err != nil {
			return nil, err
		}
	}
	return &Writer{w: cw}, nil
}

// Write adds one row.
func (w *Writer) Write(r Row) error {
	return w.w.Write(r.record())
}

// Flush writes buffered rows to the underlying writer.
func (w *Writer) Flush() error {
	w.w.Flush()
	return w.w.Error()
}

// ReadRows parses a dataset. Columns are located by header name, so files
// with extra columns (league, season) still load. Rows whose EI does not
// parse are skipped.
func ReadRows(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	head, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(head))
	for i, name := range head {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	eiCol, ok := col["ei_raw"]
	if !ok {
		return nil, errors.New("dataset has no ei_raw column")
	}
	get := func(rec []string, name string) string {
		if i, ok := col[name]; ok && i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if eiCol >= len(rec) {
			continue
		}
		ei, err := strconv.ParseFloat(strings.TrimSpace(rec[eiCol]), 64)
		if err != nil {
			continue
		}
		row := Row{
			Date:    get(rec, "date"),
			EventID: get(rec, "event_id"),
			Away:    get(rec, "away_team"),
			Home:    get(rec, "home_team"),
			EI:      ei,
		}
		if sp, err := sport.Parse(get(rec, "sport")); err == nil {
			row.Sport = sp
		}
		row.WPPoints, _ = strconv.Atoi(get(rec, "num_wp_points"))
		rows = append(rows, row)
	}
	return rows, nil
}

// ReadFile loads a dataset from disk.
func ReadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadRows(f)
}

// ExistingIDs returns the event ids already present in a dataset file. A
// missing or empty file yields an empty set.
func ExistingIDs(path string) (map[string]bool, error) {
	rows, err := ReadFile(path)
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, io.EOF) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(rows))
	for _, r := range rows {
		if r.EventID != "" {
			ids[r.EventID] = true
		}
	}
	return ids, nil
}

// Season returns the regular-season window starting in year for a sport.
func Season(sp sport.Sport, year int) (time.Time, time.Time) {
	d := func(y int, m time.Month, day int) time.Time {
		return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	}
	switch sp {
	case sport.NFL:
		return d(year, 9, 1), d(year+1, 1, 20)
	case sport.MLB:
		return d(year, 3, 15), d(year, 10, 5)
	case sport.NCAAF:
		return d(year, 8, 20), d(year+1, 1, 15)
	case sport.NCAAB:
		return d(year, 11, 1), d(year+1, 3, 31)
	default:
		return d(year, 10, 15), d(year+1, 4, 20)
	}
}

// Builder walks a date range and computes the EI of every final game the
// same way the live loop does.
type Builder struct {
	Lister  source.EventLister
	Fetcher source.SeriesFetcher
	// Pause is slept between series fetches.
	Pause  time.Duration
	Logger *zerolog.Logger
}

// Build emits one row per final game with a usable series between start and
// end inclusive. Events in skip are not fetched. A day that cannot be listed
// is logged and skipped.
func (b *Builder) Build(ctx context.Context, sp sport.Sport, start, end time.Time, skip map[string]bool, emit func(Row) error) (int, error) {
	log := b.Logger
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}

	total := 0
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		date := day.Format(source.DayLayout)

		events, err := b.Lister.ListEvents(ctx, sp, day)
		if err != nil {
			log.Warn().Err(err).Str("sport", sp.String()).Str("date", date).Msg("list events failed")
			continue
		}

		for _, ev := range events {
			if !ev.Final || skip[ev.ID] {
				continue
			}
			raw, err := b.Fetcher.FetchSeries(ctx, sp, ev.ID)
			b.pause(ctx)
			if err != nil {
				log.Debug().Err(err).Str("event_id", ev.ID).Msg("no series")
				continue
			}
			series := excite.Normalize(raw)
			if len(series) < excite.MinSamples {
				continue
			}

			row := Row{
				Sport:    sp,
				Date:     date,
				EventID:  ev.ID,
				Away:     ev.Away,
				Home:     ev.Home,
				WPPoints: len(series),
				EI:       excite.Index(series),
			}
			if err := emit(row); err != nil {
				return total, err
			}
			total++
		}
		if len(events) > 0 {
			log.Info().Str("sport", sp.String()).Str("date", date).Int("events", len(events)).Int("total", total).Msg("day done")
		}
	}
	return total, nil
}

func (b *Builder) pause(ctx context.Context) {
	if b.Pause <= 0 {
		return
	}
	t := time.NewTimer(b.Pause)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
