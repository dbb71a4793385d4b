package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/courtside-data/replay.vision/internal/httputil"
	"github.com/courtside-data/replay.vision/internal/video/storage/sqlite"
)

// echartsAssetsPrefix is where chart pages load their JS from. Keeping it
// in one place makes it swappable for an on-prem mirror.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// viridisColors is a 10-step viridis gradient for the frame dimension.
var viridisColors = []string{
	"#440154", "#482777", "#3e4989", "#31688e", "#26828e",
	"#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725",
}

// chartRun resolves the run a chart should render: the run_id query
// parameter when present, otherwise the most recent run.
func (ws *WebServer) chartRun(r *http.Request) (*sqlite.ReplayRun, error) {
	store := sqlite.NewRunStore(ws.db.DB)
	if runID := r.URL.Query().Get("run_id"); runID != "" {
		return store.Get(runID)
	}
	runs, err := store.List(1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("no runs recorded yet")
	}
	return runs[0], nil
}

// handleTrailsChart renders an interactive scatter of every box center in
// a run, colored by frame so trails read as motion over time.
func (ws *WebServer) handleTrailsChart(w http.ResponseWriter, r *http.Request) {
	if ws.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "results database not configured")
		return
	}

	run, err := ws.chartRun(r)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusNotFound, fmt.Sprintf("resolve run: %v", err))
		return
	}

	observations, err := sqlite.NewObservationStore(ws.db.DB).ListAllByRun(run.RunID)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list observations: %v", err))
		return
	}
	if len(observations) == 0 {
		httputil.WriteJSONError(w, http.StatusNotFound, "no observations for run: "+run.RunID)
		return
	}

	maxPoints := 8000
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 100 && v <= 50000 {
			maxPoints = v
		}
	}

	// Downsample by stride to stay within maxPoints
	stride := 1
	if len(observations) > maxPoints {
		stride = (len(observations) + maxPoints - 1) / maxPoints
	}

	// Points carry (cx, cy, frame); the visual map colors dimension 2.
	// Coordinates are image pixels, so the chart is vertically mirrored
	// relative to the source video.
	data := make([]opts.ScatterData, 0, len(observations)/stride+1)
	var maxX, maxY float64
	var lastFrame int64
	for i := 0; i < len(observations); i += stride {
		obs := observations[i]
		cx := float64(obs.X1+obs.X2) / 2
		cy := float64(obs.Y1+obs.Y2) / 2
		if cx > maxX {
			maxX = cx
		}
		if cy > maxY {
			maxY = cy
		}
		if obs.Frame > lastFrame {
			lastFrame = obs.Frame
		}
		data = append(data, opts.ScatterData{Value: []interface{}{cx, cy, obs.Frame}})
	}

	padX := maxX * 1.05
	if padX < 1.0 {
		padX = 1.0
	}
	padY := maxY * 1.05
	if padY < 1.0 {
		padY = 1.0
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:  "Track Trails",
			Theme:      "dark",
			Width:      "900px",
			Height:     "900px",
			AssetsHost: echartsAssetsPrefix,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Track Trails",
			Subtitle: fmt.Sprintf("run %s, %d/%d observations, frames 0-%d, stride=%d", run.RunID, len(data), len(observations), lastFrame, stride),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{
			Min:          0,
			Max:          padX,
			Name:         "X (px)",
			NameLocation: "middle",
			NameGap:      25,
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Min:     0,
			Max:     padY,
			Name:    "Y (px)",
			NameGap: 30,
		}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(lastFrame),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridisColors},
		}),
	)

	scatter.AddSeries("centers", data,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}),
	)

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// handleCountsChart renders a bar chart of observation counts per track,
// a quick read on identity churn: many short bars mean fragmentation.
func (ws *WebServer) handleCountsChart(w http.ResponseWriter, r *http.Request) {
	if ws.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "results database not configured")
		return
	}

	run, err := ws.chartRun(r)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusNotFound, fmt.Sprintf("resolve run: %v", err))
		return
	}

	summaries, err := sqlite.NewObservationStore(ws.db.DB).TrackSummaries(run.RunID)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("track summaries: %v", err))
		return
	}
	if len(summaries) == 0 {
		httputil.WriteJSONError(w, http.StatusNotFound, "no observations for run: "+run.RunID)
		return
	}

	labels := make([]string, 0, len(summaries))
	counts := make([]opts.BarData, 0, len(summaries))
	for _, s := range summaries {
		labels = append(labels, strconv.FormatInt(s.TrackID, 10))
		counts = append(counts, opts.BarData{Value: s.ObservationCount})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Observations per Track",
			Theme:     "dark",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Observations per Track",
			Subtitle: fmt.Sprintf("run %s, %d tracks", run.RunID, len(summaries)),
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: "track"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "observations"}),
	)
	bar.SetXAxis(labels).AddSeries("observations", counts,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
	)

	// Lifetime bars: an invisible base up to the first frame, then the
	// visible span through the last. Horizontal so track rows read like a
	// schedule.
	starts := make([]opts.BarData, 0, len(summaries))
	spans := make([]opts.BarData, 0, len(summaries))
	for _, s := range summaries {
		starts = append(starts, opts.BarData{Value: s.FirstFrame})
		spans = append(spans, opts.BarData{Value: s.LastFrame - s.FirstFrame + 1})
	}

	lifetimes := charts.NewBar()
	lifetimes.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Track Lifetimes",
			Subtitle: "bar spans first to last observed frame",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "frame"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "track"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
	)
	lifetimes.SetXAxis(labels).
		AddSeries("start", starts,
			charts.WithBarChartOpts(opts.BarChart{Stack: "lifetime"}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: "transparent"}),
		).
		AddSeries("lifetime", spans,
			charts.WithBarChartOpts(opts.BarChart{Stack: "lifetime"}),
		)
	lifetimes.XYReversal()

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(bar, lifetimes)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// handleFramesChart renders confirmed-track count per frame for a run. A
// ragged line means identities are flickering in and out.
func (ws *WebServer) handleFramesChart(w http.ResponseWriter, r *http.Request) {
	if ws.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "results database not configured")
		return
	}

	run, err := ws.chartRun(r)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusNotFound, fmt.Sprintf("resolve run: %v", err))
		return
	}

	observations, err := sqlite.NewObservationStore(ws.db.DB).ListAllByRun(run.RunID)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list observations: %v", err))
		return
	}
	if len(observations) == 0 {
		httputil.WriteJSONError(w, http.StatusNotFound, "no observations for run: "+run.RunID)
		return
	}

	// Rows arrive ordered by frame, one per (frame, track); collapse each
	// frame group into a count.
	frames := make([]string, 0, 256)
	counts := make([]opts.LineData, 0, 256)
	cur := int64(-1)
	n := 0
	for _, obs := range observations {
		if obs.Frame != cur {
			if cur >= 0 {
				frames = append(frames, strconv.FormatInt(cur, 10))
				counts = append(counts, opts.LineData{Value: n})
			}
			cur = obs.Frame
			n = 0
		}
		n++
	}
	frames = append(frames, strconv.FormatInt(cur, 10))
	counts = append(counts, opts.LineData{Value: n})

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:  "Confirmed Tracks per Frame",
			Theme:      "dark",
			Width:      "1100px",
			Height:     "500px",
			AssetsHost: echartsAssetsPrefix,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Confirmed Tracks per Frame",
			Subtitle: fmt.Sprintf("run %s, %d frames with observations", run.RunID, len(frames)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "frame"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "confirmed tracks"}),
	)
	line.SetXAxis(frames).AddSeries("confirmed", counts,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
