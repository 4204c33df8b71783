// Package report renders harvested records as an HTML page of charts.
package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"github.com/pevans/scrollharvest/records"
)

// RunIDPlaceholder in an HTMLSink path is replaced by the run id.
const RunIDPlaceholder = "{run_id}"

type dayStats struct {
	posts, likes, comments, reposts int
}

// Render writes the report page for one run to w.
func Render(w io.Writer, summary records.Summary, recs []records.Record) error {
	byDay := make(map[string]*dayStats)
	kinds := make(map[records.Kind]int)
	for _, r := range recs {
		d := r.Date()
		if byDay[d] == nil {
			byDay[d] = &dayStats{}
		}
		byDay[d].posts++
		byDay[d].likes += r.Likes
		byDay[d].comments += r.Comments
		byDay[d].reposts += r.Reposts
		kinds[r.Kind]++
	}

	days := make([]string, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Strings(days)

	subtitle := subtitleFor(summary)

	// 1. Activity per day
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Posts per day", Subtitle: subtitle}),
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
	)
	var barY []opts.BarData
	for _, d := range days {
		barY = append(barY, opts.BarData{Value: byDay[d].posts})
	}
	bar.SetXAxis(days).AddSeries("Posts", barY)

	// 2. Interactions per day
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Interactions per day"}),
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
	)
	var likes, comments, reposts []opts.LineData
	for _, d := range days {
		likes = append(likes, opts.LineData{Value: byDay[d].likes})
		comments = append(comments, opts.LineData{Value: byDay[d].comments})
		reposts = append(reposts, opts.LineData{Value: byDay[d].reposts})
	}
	line.SetXAxis(days).
		AddSeries("Likes", likes).
		AddSeries("Comments", comments).
		AddSeries("Reposts", reposts)

	// 3. Content kinds
	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Content kinds"}),
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
	)
	var pieItems []opts.PieData
	for _, k := range []records.Kind{records.KindPost, records.KindVideo} {
		if kinds[k] > 0 {
			pieItems = append(pieItems, opts.PieData{Name: string(k), Value: kinds[k]})
		}
	}
	pie.AddSeries("Records", pieItems)

	page := components.NewPage()
	page.PageTitle = "Harvest " + summary.RunID.String()
	page.AddCharts(bar, line, pie)

	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}

func subtitleFor(summary records.Summary) string {
	var parts []string
	if summary.WindowStart != nil && summary.WindowEnd != nil {
		parts = append(parts, summary.WindowStart.Format(records.DateLayout)+" to "+summary.WindowEnd.Format(records.DateLayout))
	}
	if summary.Target > 0 {
		parts = append(parts, fmt.Sprintf("first %d", summary.Target))
	}
	parts = append(parts, fmt.Sprintf("%d records in %d rounds (%s)", summary.Count, summary.Rounds, summary.Reason))
	return strings.Join(parts, ", ")
}

// HTMLSink writes a report file for every harvest it receives.
type HTMLSink struct {
	path string
}

// NewHTMLSink creates a sink writing to path. RunIDPlaceholder in path is
// replaced per run so successive runs do not overwrite each other.
func NewHTMLSink(path string) *HTMLSink {
	return &HTMLSink{path: path}
}

// Path returns the file a run's report is written to.
func (s *HTMLSink) Path(summary records.Summary) string {
	return strings.ReplaceAll(s.path, RunIDPlaceholder, summary.RunID.String())
}

// Accept implements harvest.Sink.
func (s *HTMLSink) Accept(ctx context.Context, summary records.Summary, recs []records.Record) error {
	path := s.Path(summary)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	defer f.Close()

	if err := Render(f, summary, recs); err != nil {
		return err
	}
	return f.Close()
}
