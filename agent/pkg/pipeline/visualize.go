package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	chart "github.com/wcharczuk/go-chart/v2"
)

const (
	maxCharts        = 3
	maxBarCategories = 12
	maxPieCategories = 8
	maxLinePoints    = 50

	chartWidth  = 800
	chartHeight = 450
)

// visualize renders chart images from the result rows. Chart specs come
// from the analysis stage when present; otherwise one chart is derived from
// the result shape. This stage never fails terminally: a chart that cannot
// be rendered is skipped, and zero charts is a valid outcome.
func (p *Pipeline) visualize(st *State) {
	if st.Results == nil || st.Results.Count == 0 {
		st.addMessage("Visualization: skipped, no data to chart")
		return
	}

	var specs []ChartSpec
	if st.Analysis != nil {
		specs = st.Analysis.Visualizations
	}
	if len(specs) == 0 {
		if spec, ok := autoChartSpec(st.Results); ok {
			specs = []ChartSpec{spec}
			st.addMessage("Visualization: auto-selected a " + spec.Type + " chart")
		}
	}
	if len(specs) > maxCharts {
		specs = specs[:maxCharts]
	}

	ts := p.cfg.Clock.Now().Format("20060102150405")
	for i, spec := range specs {
		path := filepath.Join(p.cfg.ReportDir, fmt.Sprintf("chart_%d_%s_%s.png", i+1, ts, st.id))
		if err := renderChart(spec, st.Results, path); err != nil {
			p.logWarn("pipeline: chart rendering failed", "type", spec.Type, "title", spec.Title, "error", err)
			continue
		}
		st.Charts = append(st.Charts, path)
	}

	if len(st.Charts) > 0 {
		st.addMessage(fmt.Sprintf("Generated %d visualization(s)", len(st.Charts)))
	} else {
		st.addMessage("Visualization: no suitable charts for this result")
	}
	p.logInfo("pipeline: visualization complete", "charts", len(st.Charts))
}

// autoChartSpec derives a fallback chart from the first textual column and
// the first numeric column.
func autoChartSpec(res *QueryResult) (ChartSpec, bool) {
	if len(res.Columns) < 2 || len(res.Rows) == 0 {
		return ChartSpec{}, false
	}

	row := res.Rows[0]
	xi, yi := -1, -1
	for i, v := range row {
		if _, ok := toFloat(v); ok {
			if yi == -1 && i != xi {
				yi = i
			}
		} else if xi == -1 {
			xi = i
		}
	}
	if xi == -1 || yi == -1 {
		return ChartSpec{}, false
	}

	return ChartSpec{
		Type:  "bar",
		XCol:  res.Columns[xi],
		YCol:  res.Columns[yi],
		Title: fmt.Sprintf("%s by %s", res.Columns[yi], res.Columns[xi]),
	}, true
}

// renderChart renders one chart spec to a PNG file.
func renderChart(spec ChartSpec, res *QueryResult, path string) error {
	xi := colIndex(res.Columns, spec.XCol)
	yi := colIndex(res.Columns, spec.YCol)
	if xi == -1 || yi == -1 {
		return fmt.Errorf("chart columns %q/%q not in result", spec.XCol, spec.YCol)
	}

	maxPoints := maxBarCategories
	switch spec.Type {
	case "pie":
		maxPoints = maxPieCategories
	case "line":
		maxPoints = maxLinePoints
	}

	var labels []string
	var values []float64
	for _, row := range res.Rows {
		if len(values) >= maxPoints {
			break
		}
		v, ok := toFloat(row[yi])
		if !ok {
			continue
		}
		labels = append(labels, truncate(formatValue(row[xi]), 14))
		values = append(values, v)
	}
	if len(values) == 0 {
		return fmt.Errorf("no numeric values in column %q", spec.YCol)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create chart file: %w", err)
	}
	defer f.Close()

	switch spec.Type {
	case "pie":
		err = renderPie(spec.Title, labels, values, f)
	case "line":
		err = renderLine(spec.Title, labels, values, f)
	default:
		// bar and horizontal_bar both render as vertical bars
		err = renderBar(spec.Title, labels, values, f)
	}
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to render %s chart: %w", spec.Type, err)
	}
	return nil
}

func renderBar(title string, labels []string, values []float64, f *os.File) error {
	bars := make([]chart.Value, len(values))
	for i := range values {
		bars[i] = chart.Value{Label: labels[i], Value: values[i]}
	}
	bc := chart.BarChart{
		Title:    title,
		Width:    chartWidth,
		Height:   chartHeight,
		BarWidth: 40,
		Bars:     bars,
	}
	return bc.Render(chart.PNG, f)
}

func renderPie(title string, labels []string, values []float64, f *os.File) error {
	vals := make([]chart.Value, len(values))
	for i := range values {
		vals[i] = chart.Value{Label: labels[i], Value: values[i]}
	}
	pc := chart.PieChart{
		Title:  title,
		Width:  chartHeight, // square canvas
		Height: chartHeight,
		Values: vals,
	}
	return pc.Render(chart.PNG, f)
}

func renderLine(title string, labels []string, values []float64, f *os.File) error {
	xs := make([]float64, len(values))
	ticks := make([]chart.Tick, len(values))
	for i := range values {
		xs[i] = float64(i)
		ticks[i] = chart.Tick{Value: float64(i), Label: labels[i]}
	}
	graph := chart.Chart{
		Title:  title,
		Width:  chartWidth,
		Height: chartHeight,
		XAxis:  chart.XAxis{Ticks: ticks},
		Series: []chart.Series{
			chart.ContinuousSeries{XValues: xs, YValues: values},
		},
	}
	return graph.Render(chart.PNG, f)
}

// colIndex finds a column by name, case-insensitively, also accepting the
// positional "Column N" form clients use when headers are absent.
func colIndex(columns []string, name string) int {
	for i, c := range columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	if n, ok := strings.CutPrefix(name, "Column "); ok {
		if i, err := strconv.Atoi(n); err == nil && i >= 1 && i <= len(columns) {
			return i - 1
		}
	}
	return -1
}

// toFloat coerces a scalar cell to float64 for charting.
func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(string(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
