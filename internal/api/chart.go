package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/workoutwise/formcheck/internal/exercise"
	"github.com/workoutwise/formcheck/internal/httputil"
	"github.com/workoutwise/formcheck/internal/session"
)

// sessionChart renders the retained timeline of a live session as HTML:
// classifier confidence and form or reps over time, plus frame outcomes.
func (s *Server) sessionChart(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	e.mu.Lock()
	points := e.sess.Timeline()
	status := e.sess.Status()
	e.mu.Unlock()

	var buf bytes.Buffer
	if err := renderSessionChart(&buf, status, points); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func renderSessionChart(buf *bytes.Buffer, status session.Summary, points []session.TimelinePoint) error {
	x := make([]string, 0, len(points))
	confidence := make([]opts.LineData, 0, len(points))
	progress := make([]opts.LineData, 0, len(points))
	for _, p := range points {
		x = append(x, strconv.FormatFloat(p.Seconds, 'f', 1, 64))
		if p.Outcome.Skipped() {
			confidence = append(confidence, opts.LineData{Value: "-"})
		} else {
			confidence = append(confidence, opts.LineData{Value: p.Confidence})
		}
		progress = append(progress, opts.LineData{Value: progressValue(status.Exercise, p)})
	}

	progressName := "reps"
	if status.Exercise == exercise.Plank {
		progressName = "correct form"
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Session " + status.ID, Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%s session", status.Exercise),
			Subtitle: fmt.Sprintf("id=%s frames=%d skipped=%d", status.ID, status.Diagnostics.Frames, status.Diagnostics.Skipped()),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "seconds", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "confidence", Min: 0, Max: 1}),
	)
	line.ExtendYAxis(opts.YAxis{Name: progressName, Min: 0})
	line.SetXAxis(x).
		AddSeries("confidence", confidence).
		AddSeries(progressName, progress,
			charts.WithLineChartOpts(opts.LineChart{Step: "end", YAxisIndex: 1}),
		)

	outcomes := make([]string, 0, len(session.Outcomes))
	counts := make([]opts.BarData, 0, len(session.Outcomes))
	for _, o := range session.Outcomes {
		outcomes = append(outcomes, string(o))
		counts = append(counts, opts.BarData{Value: status.Diagnostics.Outcomes[o]})
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "320px"}),
		charts.WithTitleOpts(opts.Title{Title: "Frame outcomes"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(outcomes).
		AddSeries("frames", counts,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(line, bar)
	return page.Render(buf)
}

// progressValue is the second series: reps for squats, and 1 while the
// plank is held in correct form.
func progressValue(kind exercise.Kind, p session.TimelinePoint) int {
	if kind == exercise.Squat {
		return p.Reps
	}
	if p.Status == exercise.PlankCorrect.FormStatus() {
		return 1
	}
	return 0
}
