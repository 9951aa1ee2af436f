package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"crossbot/profit"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

const (
	colorEquity = "#3b82f6"
	colorWin    = "#34d399"
	colorLoss   = "#f87171"
)

// Render writes an HTML page with the equity curve, per-trade P&L and summary metrics.
func Render(w io.Writer, trips []profit.RoundTrip, initialBalance float64, m profit.Metrics) error {
	ordered := make([]profit.RoundTrip, len(trips))
	copy(ordered, trips)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ClosedAt.Before(ordered[j].ClosedAt) })

	page := components.NewPage()
	page.PageTitle = "Performance Report"
	page.AddCharts(equityChart(ordered, initialBalance, m), pnlChart(ordered))
	return page.Render(w)
}

// WriteFile renders the report to path, creating parent directories.
func WriteFile(path string, trips []profit.RoundTrip, initialBalance float64, m profit.Metrics) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	if err := Render(f, trips, initialBalance, m); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func summary(m profit.Metrics) string {
	return fmt.Sprintf("Trades %d | Win rate %.1f%% | Total P&L $%.2f | Avg P&L $%.2f | Return %.2f%% | Sharpe %.2f | Max drawdown %.2f%% | Volatility %.2f%%",
		m.TotalTrades, m.WinRate*100, m.TotalPNL, m.AvgPNL, m.TotalReturn*100, m.SharpeRatio, m.MaxDrawdown*100, m.Volatility*100)
}

func equityChart(trips []profit.RoundTrip, initialBalance float64, m profit.Metrics) *charts.Line {
	curve := profit.EquityCurve(trips, initialBalance)
	xAxis := make([]string, len(curve))
	data := make([]opts.LineData, len(curve))
	xAxis[0] = "start"
	for i, v := range curve {
		if i > 0 {
			xAxis[i] = trips[i-1].ClosedAt.Format("2006-01-02 15:04")
		}
		data[i] = opts.LineData{Value: v}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros, Width: "1200px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Equity Curve", Subtitle: summary(m)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
	)
	line.SetXAxis(xAxis)
	line.AddSeries("Equity", data, charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}))
	return line
}

func pnlChart(trips []profit.RoundTrip) *charts.Bar {
	xAxis := make([]string, len(trips))
	data := make([]opts.BarData, len(trips))
	for i, t := range trips {
		xAxis[i] = fmt.Sprintf("%s %s", t.Symbol, t.ClosedAt.Format("01-02 15:04"))
		color := colorWin
		if t.PNL < 0 {
			color = colorLoss
		}
		data[i] = opts.BarData{Value: t.PNL, ItemStyle: &opts.ItemStyle{Color: color}}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros, Width: "1200px", Height: "320px"}),
		charts.WithTitleOpts(opts.Title{Title: "P&L per Trade"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
	)
	bar.SetXAxis(xAxis)
	bar.AddSeries("P&L", data)
	return bar
}
