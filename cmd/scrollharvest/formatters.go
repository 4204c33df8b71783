package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/pevans/scrollharvest/harvest"
	"github.com/pevans/scrollharvest/records"
)

func checkFormat(format string) error {
	switch format {
	case "table", "json", "compact":
		return nil
	default:
		return fmt.Errorf("unknown format %q (want table, json or compact)", format)
	}
}

// newTable returns a table writer rendering to stdout.
func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

func printResult(result *harvest.Result, format string) error {
	switch format {
	case "json":
		return printJSON(result)
	case "compact":
		printRecordsCompact(result.Records)
		return nil
	default:
		printSummaryTable(result.Summary)
		printRecordsTable(result.Records)
		return nil
	}
}

// printSummaryTable prints one run's summary as a key/value table.
func printSummaryTable(s records.Summary) {
	t := newTable()
	t.AppendHeader(table.Row{"Run", s.RunID.String()})
	t.AppendRow(table.Row{"Mode", s.Mode})
	t.AppendRow(table.Row{"URL", s.URL})
	if s.WindowStart != nil && s.WindowEnd != nil {
		t.AppendRow(table.Row{"Window", s.WindowStart.Format(records.DateLayout) + " .. " + s.WindowEnd.Format(records.DateLayout)})
	}
	if s.Mode == records.ModeFirstN {
		t.AppendRow(table.Row{"Target", s.Target})
	}
	t.AppendRow(table.Row{"Records", s.Count})
	t.AppendRow(table.Row{"Rounds", s.Rounds})
	t.AppendRow(table.Row{"Reason", s.Reason})
	t.AppendRow(table.Row{"Scrolled", fmt.Sprintf("%dpx", s.ScrolledPx)})
	t.AppendRow(table.Row{"Nodes visited", s.NodesVisited})
	if s.Error != "" {
		t.AppendRow(table.Row{"Error", s.Error})
	}
	t.AppendRow(table.Row{"Started", s.StartedAt.Format("2006-01-02 15:04:05")})
	t.AppendRow(table.Row{"Finished", s.FinishedAt.Format("2006-01-02 15:04:05")})
	t.Render()
}

// printRecordsTable prints records one row each.
func printRecordsTable(recs []records.Record) {
	if len(recs) == 0 {
		fmt.Println("No records harvested.")
		return
	}

	t := newTable()
	t.AppendHeader(table.Row{"ID", "Date", "Kind", "Author", "Text", "Likes", "Comments", "Reposts"})
	for _, r := range recs {
		t.AppendRow(table.Row{r.ID, r.Date(), r.Kind, r.Author, truncate(r.Text, 40), r.Likes, r.Comments, r.Reposts})
	}
	t.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%d records", len(recs))})
	t.Render()
}

// printRunsTable prints run summaries one row each.
func printRunsTable(summaries []records.Summary) {
	if len(summaries) == 0 {
		fmt.Println("No runs recorded.")
		return
	}

	t := newTable()
	t.AppendHeader(table.Row{"Run", "Mode", "Started", "Records", "Rounds", "Reason", "URL"})
	for _, s := range summaries {
		t.AppendRow(table.Row{
			shortID(s.RunID.String()),
			s.Mode,
			s.StartedAt.Local().Format("2006-01-02 15:04"),
			s.Count,
			s.Rounds,
			s.Reason,
			truncate(s.URL, 50),
		})
	}
	t.Render()
}

// printRecordsCompact prints one line per record.
func printRecordsCompact(recs []records.Record) {
	for _, r := range recs {
		fmt.Printf("%s %s %s %s\n", r.Date(), r.ID, r.Author, truncate(r.Text, 60))
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-3]) + "..."
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
