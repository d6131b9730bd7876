// Command session-report renders an HTML report for a recorded coaching
// session: frame-by-frame score fraction as a line chart and per-step
// aggregates as a bar chart, straight from the session database.
//
// Usage:
//
//	go run ./cmd/tools/session-report -db formcoach.db -session <id> -out report.html
//
// With no -session, the most recent session in the database is used.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/kinetic-data/formcoach/internal/storage/sqlite"
)

func main() {
	dbPath := flag.String("db", "formcoach.db", "Session database path")
	sessionID := flag.String("session", "", "Session ID (default: most recent)")
	outPath := flag.String("out", "report.html", "Output HTML file")
	flag.Parse()

	store, err := sqlite.NewStore(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	id := *sessionID
	if id == "" {
		sessions, err := store.Sessions(1)
		if err != nil {
			log.Fatalf("Failed to list sessions: %v", err)
		}
		if len(sessions) == 0 {
			log.Fatal("No sessions in database")
		}
		id = sessions[0].SessionID
	}

	summary, err := store.Summarize(id)
	if err != nil {
		log.Fatalf("Failed to summarize session: %v", err)
	}
	scores, err := store.FrameScores(id)
	if err != nil {
		log.Fatalf("Failed to load frame scores: %v", err)
	}
	events, err := store.StepEvents(id)
	if err != nil {
		log.Fatalf("Failed to load step events: %v", err)
	}

	page := components.NewPage()
	page.PageTitle = "Session Report"
	page.AddCharts(
		scoreTimeline(summary, scores, events),
		stepBars(summary),
	)

	f, err := os.Create(*outPath)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		log.Fatalf("Failed to render report: %v", err)
	}

	log.Printf("Wrote %s: session %s, %d steps, %d score samples, %d transitions",
		*outPath, id, len(summary.Steps), len(scores), len(events))
}

// scoreTimeline plots score fraction against seconds since the session
// started, with one series per step so transitions read as colour changes.
func scoreTimeline(summary *sqlite.SessionSummary, scores []sqlite.FrameScore, events []sqlite.StepEvent) components.Charter {
	start := summary.Session.StartedAtUnixNanos

	xAxis := make([]string, 0, len(scores))
	byStep := make(map[int][]opts.LineData)
	for _, fs := range scores {
		secs := float64(fs.TSUnixNanos-start) / 1e9
		xAxis = append(xAxis, fmt.Sprintf("%.1f", secs))
		frac := 0.0
		if fs.MaxScore > 0 {
			frac = float64(fs.Score) / float64(fs.MaxScore)
		}
		for idx := range byStep {
			if idx != fs.StepIndex {
				byStep[idx] = append(byStep[idx], opts.LineData{Value: nil})
			}
		}
		if _, ok := byStep[fs.StepIndex]; !ok {
			pad := make([]opts.LineData, len(xAxis)-1)
			for i := range pad {
				pad[i] = opts.LineData{Value: nil}
			}
			byStep[fs.StepIndex] = pad
		}
		byStep[fs.StepIndex] = append(byStep[fs.StepIndex], opts.LineData{Value: frac})
	}

	subtitle := fmt.Sprintf("session=%s samples=%d transitions=%d", summary.Session.SessionID, len(scores), len(events))

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Score over time", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "score fraction", Min: 0, Max: 1}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.SetXAxis(xAxis)
	for _, step := range summary.Steps {
		series, ok := byStep[step.StepIndex]
		if !ok {
			continue
		}
		line.AddSeries(fmt.Sprintf("step %d", step.StepIndex+1), series,
			charts.WithLineChartOpts(opts.LineChart{ConnectNulls: opts.Bool(false)}))
	}
	return line
}

// stepBars renders each step's mean score fraction and pass rate side by side.
func stepBars(summary *sqlite.SessionSummary) components.Charter {
	x := make([]string, 0, len(summary.Steps))
	means := make([]opts.BarData, 0, len(summary.Steps))
	passRates := make([]opts.BarData, 0, len(summary.Steps))
	for _, step := range summary.Steps {
		x = append(x, fmt.Sprintf("step %d", step.StepIndex+1))
		means = append(means, opts.BarData{Value: step.MeanScoreFrac})
		passRates = append(passRates, opts.BarData{Value: step.PassRate})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Per-step aggregates"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("mean score", means).
		AddSeries("pass rate", passRates)
	return bar
}
