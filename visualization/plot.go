// Package visualization describes plots in the JSON format accepted by the
// sidecar plotting service and sends them there.
package visualization

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// PlotType represents different types of plots that can be generated
type PlotType string

const (
	// Dataset plots
	ClassDistributionPlot     PlotType = "class_distribution"
	IntensityDistributionPlot PlotType = "intensity_distribution"
	DarkVsLightPlot           PlotType = "dark_vs_light"

	// Training plots
	AccuracyRecallCurves PlotType = "accuracy_recall_curves"
	LossCurves           PlotType = "loss_curves"
	WeightDriftPlot      PlotType = "weight_drift"

	// Evaluation plots
	ROCCurvePlot        PlotType = "roc_curve"
	ConfusionMatrixPlot PlotType = "confusion_matrix"
	ExplanationPlot     PlotType = "explanation"
)

// PlotData represents the universal JSON format for the sidecar plotting service
type PlotData struct {
	// Metadata
	PlotType  PlotType  `json:"plot_type"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
	ModelName string    `json:"model_name,omitempty"`

	// Data series - flexible structure for different plot types
	Series []SeriesData `json:"series"`

	// Plot configuration
	Config PlotConfig `json:"config"`

	// Metrics metadata
	Metrics map[string]interface{} `json:"metrics,omitempty"`
}

// SeriesData represents a single data series in a plot
type SeriesData struct {
	Name  string                 `json:"name"`
	Type  string                 `json:"type"` // "line", "scatter", "histogram", "heatmap", "bar", "image"
	Data  []DataPoint            `json:"data"`
	Style map[string]interface{} `json:"style,omitempty"`
}

// DataPoint represents a single data point - flexible for different plot types
type DataPoint struct {
	X     interface{} `json:"x"`
	Y     interface{} `json:"y"`
	Z     interface{} `json:"z,omitempty"`     // For heatmaps
	Label string      `json:"label,omitempty"` // For categorical data
	Color string      `json:"color,omitempty"` // For custom coloring
}

// PlotConfig contains plot-specific configuration
type PlotConfig struct {
	XAxisLabel    string                 `json:"x_axis_label"`
	YAxisLabel    string                 `json:"y_axis_label"`
	XAxisScale    string                 `json:"x_axis_scale"` // "linear", "log"
	YAxisScale    string                 `json:"y_axis_scale"` // "linear", "log"
	ShowLegend    bool                   `json:"show_legend"`
	ShowGrid      bool                   `json:"show_grid"`
	Width         int                    `json:"width"`
	Height        int                    `json:"height"`
	Interactive   bool                   `json:"interactive"`
	CustomOptions map[string]interface{} `json:"custom_options,omitempty"`
}

// NewPlot returns an empty plot with the default 800x600 linear axes
func NewPlot(plotType PlotType, title, xLabel, yLabel string) PlotData {
	return PlotData{
		PlotType:  plotType,
		Title:     title,
		Timestamp: time.Now(),
		Config: PlotConfig{
			XAxisLabel:  xLabel,
			YAxisLabel:  yLabel,
			XAxisScale:  "linear",
			YAxisScale:  "linear",
			ShowLegend:  true,
			ShowGrid:    true,
			Width:       800,
			Height:      600,
			Interactive: true,
		},
	}
}

// LineSeries pairs xs with ys. Extra values in the longer slice are dropped.
func LineSeries(name string, xs []interface{}, ys []float64, dashed bool) SeriesData {
	n := min(len(xs), len(ys))
	s := SeriesData{
		Name:  name,
		Type:  "line",
		Data:  make([]DataPoint, n),
		Style: map[string]interface{}{"line_width": 2},
	}
	if dashed {
		s.Style["line_style"] = "dashed"
	}
	for i := 0; i < n; i++ {
		s.Data[i] = DataPoint{X: xs[i], Y: ys[i]}
	}
	return s
}

// BarSeries creates one bar per category
func BarSeries(name string, categories []string, values []float64) SeriesData {
	n := min(len(categories), len(values))
	s := SeriesData{Name: name, Type: "bar", Data: make([]DataPoint, n)}
	for i := 0; i < n; i++ {
		s.Data[i] = DataPoint{X: categories[i], Y: values[i], Label: categories[i]}
	}
	return s
}

// HistogramSeries creates one bin per count; X is the left edge and Z the right edge
func HistogramSeries(name string, edges []float64, counts []float64) SeriesData {
	n := min(len(edges)-1, len(counts))
	s := SeriesData{Name: name, Type: "histogram", Data: make([]DataPoint, 0, max(n, 0))}
	for i := 0; i < n; i++ {
		s.Data = append(s.Data, DataPoint{X: edges[i], Y: counts[i], Z: edges[i+1]})
	}
	return s
}

// HeatmapSeries creates one cell per matrix entry labelled by class names
func HeatmapSeries(name string, matrix [][]int, classNames []string) SeriesData {
	s := SeriesData{Name: name, Type: "heatmap", Style: map[string]interface{}{"colorscale": "Blues"}}
	for i, row := range matrix {
		for j, value := range row {
			s.Data = append(s.Data, DataPoint{
				X:     j,
				Y:     i,
				Z:     value,
				Label: fmt.Sprintf("True: %s, Pred: %s", className(classNames, i), className(classNames, j)),
			})
		}
	}
	return s
}

func className(names []string, i int) string {
	if i < len(names) {
		return names[i]
	}
	return fmt.Sprint(i)
}

// EpochAxis returns 1-based epoch numbers for n epochs
func EpochAxis(n int) []interface{} {
	xs := make([]interface{}, n)
	for i := range xs {
		xs[i] = i + 1
	}
	return xs
}

// ToJSON converts plot data to JSON string
func (pd PlotData) ToJSON() (string, error) {
	jsonData, err := json.MarshalIndent(pd, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal plot data to JSON")
	}
	return string(jsonData), nil
}
