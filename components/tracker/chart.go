package tracker

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

const defaultChartHeight = "220px"

// UtilizationChart renders the used/available donut of a widget.
type UtilizationChart struct {
	cache      RenderCache
	theme      string
	assetsHost string
}

// ChartOption customizes a UtilizationChart.
type ChartOption func(*UtilizationChart)

// WithChartCache injects a render cache.
func WithChartCache(cache RenderCache) ChartOption {
	return func(c *UtilizationChart) {
		c.cache = cache
	}
}

// WithChartTheme sets the ECharts theme.
func WithChartTheme(theme string) ChartOption {
	return func(c *UtilizationChart) {
		c.theme = theme
	}
}

// WithChartAssetsHost points the ECharts runtime at another host.
func WithChartAssetsHost(host string) ChartOption {
	return func(c *UtilizationChart) {
		c.assetsHost = host
	}
}

// NewUtilizationChart builds a chart renderer with a 5 minute cache.
func NewUtilizationChart(options ...ChartOption) *UtilizationChart {
	c := &UtilizationChart{
		cache: NewChartCache(5 * time.Minute),
		theme: types.ThemeWesteros,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Render returns the chart HTML for a snapshot.
func (c *UtilizationChart) Render(id WidgetID, snapshot StatusSnapshot) (string, error) {
	render := func() (string, error) {
		return c.render(id, snapshot)
	}
	if c.cache == nil {
		return render()
	}
	return c.cache.GetOrRender(snapshotKey(id, snapshot), render)
}

func (c *UtilizationChart) render(id WidgetID, snapshot StatusSnapshot) (string, error) {
	initOpts := opts.Initialization{
		Theme:  c.theme,
		Width:  "100%",
		Height: defaultChartHeight,
	}
	if c.assetsHost != "" {
		initOpts.AssetsHost = c.assetsHost
	}
	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("SCP %s", id.String()),
			Subtitle: fmt.Sprintf("%.1f%% used", snapshot.Utilization()),
		}),
		charts.WithInitializationOpts(initOpts),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	pie.AddSeries("cards", []opts.PieData{
		{Name: "Used", Value: snapshot.Total},
		{Name: "Available", Value: snapshot.Available()},
	}).SetSeriesOptions(
		charts.WithPieChartOpts(opts.PieChart{Radius: []string{"40%", "70%"}}),
	)
	return renderChart(pie)
}

func renderChart(renderable interface{ Render(io.Writer) error }) (string, error) {
	var buf bytes.Buffer
	if err := renderable.Render(&buf); err != nil {
		return "", fmt.Errorf("tracker: render chart: %w", err)
	}
	return buf.String(), nil
}
