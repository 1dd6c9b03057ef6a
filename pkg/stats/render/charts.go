package render

import (
	"fmt"

	"github.com/marzstat/marzstat/pkg/stats/dashboard"
	"github.com/marzstat/marzstat/pkg/stats/models"
)

const vegaLiteSchema = "https://vega.github.io/schema/vega-lite/v5.json"

// ChartSpec is a Vega-Lite specification.
type ChartSpec map[string]any

// Chart is a named chart.
type Chart struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	Spec  ChartSpec `json:"spec"`
}

// hourlyChart returns a bar chart of field by hour with the values printed on
// the bars and a dashed rule at mean.
func hourlyChart[T any](title string, values []T, field string, mean float64, yTitle, colorTitle string, l Labels) ChartSpec {
	x := map[string]any{"field": "hour", "type": "nominal", "axis": map[string]any{"title": l.Hour}}
	y := map[string]any{"field": field, "type": "quantitative", "stack": "zero", "axis": map[string]any{"title": yTitle}}

	return ChartSpec{
		"$schema": vegaLiteSchema,
		"title":   title,
		"width":   "container",
		"data":    map[string]any{"values": values},
		"layer": []any{
			map[string]any{
				"mark": map[string]any{"type": "bar"},
				"encoding": map[string]any{
					"x":     x,
					"y":     y,
					"color": map[string]any{"field": field, "type": "quantitative", "title": colorTitle},
				},
			},
			map[string]any{
				"mark": map[string]any{"type": "text", "dx": 0, "dy": -10, "align": "center", "color": "white"},
				"encoding": map[string]any{
					"x":    x,
					"y":    y,
					"text": map[string]any{"field": field, "type": "quantitative"},
				},
			},
			map[string]any{
				"mark": map[string]any{"type": "rule", "color": "lightblue", "strokeDash": []int{10, 5}, "opacity": 0.5},
				"encoding": map[string]any{
					"y":       map[string]any{"datum": mean, "type": "quantitative"},
					"tooltip": map[string]any{"datum": fmt.Sprintf("%s: %.2f", l.Mean, mean)},
				},
			},
		},
	}
}

// barChart returns a plain bar chart of field by username keeping row order.
func barChart[T any](title string, values []T, field, xTitle, yTitle string) ChartSpec {
	return ChartSpec{
		"$schema": vegaLiteSchema,
		"title":   title,
		"width":   "container",
		"data":    map[string]any{"values": values},
		"mark":    map[string]any{"type": "bar"},
		"encoding": map[string]any{
			"x": map[string]any{"field": "username", "type": "nominal", "sort": nil, "title": xTitle},
			"y": map[string]any{"field": field, "type": "quantitative", "title": yTitle},
		},
	}
}

// HourlyConnectionsChart returns the chart of distinct users per hour.
func HourlyConnectionsChart(buckets []models.HourlyConnections, mean float64, l Labels) Chart {
	return Chart{
		ID:    "hourly_connections",
		Title: l.Connections,
		Spec:  hourlyChart(l.Connections, buckets, "connections", mean, l.Connections, l.Count, l),
	}
}

// HourlyTrafficChart returns the chart of traffic per hour.
func HourlyTrafficChart(buckets []models.HourlyTraffic, mean float64, l Labels) Chart {
	return Chart{
		ID:    "hourly_traffic",
		Title: l.TrafficGB,
		Spec:  hourlyChart(l.TrafficGB, buckets, "traffic", mean, l.GB, l.GB, l),
	}
}

// Charts returns every chart of a dashboard.
func Charts(d *dashboard.Dashboard, l Labels) []Chart {
	charts := []Chart{
		HourlyConnectionsChart(d.Today.HourlyConnections, d.Today.MeanConnections, l),
		HourlyTrafficChart(d.Today.HourlyTraffic, d.Today.MeanTraffic, l),
	}

	return append(charts, lifetimeCharts(d, l)...)
}

func lifetimeCharts(d *dashboard.Dashboard, l Labels) []Chart {
	topTraffic := fmt.Sprintf(l.TopByTrafficFmt, d.TopN)
	topConnections := fmt.Sprintf(l.TopByConnectionsFmt, d.TopN)
	topLifetime := fmt.Sprintf(l.TopByLifetimeFmt, d.TopN)

	return []Chart{
		{
			ID:    "top_traffic",
			Title: topTraffic,
			Spec:  barChart(topTraffic, d.Lifetime.TopTraffic, "used_traffic_gb", l.Username, l.TrafficGB),
		},
		{
			ID:    "top_connections",
			Title: topConnections,
			Spec:  barChart(topConnections, d.Lifetime.TopConnections, "cnt_connections", l.Username, l.TotalConnections),
		},
		{
			ID:    "top_lifetime",
			Title: topLifetime,
			Spec:  barChart(topLifetime, d.Lifetime.TopLifetime, "lifetime_days", l.Username, l.LifetimeDays),
		},
	}
}
