package visualization

import (
	"strings"
	"testing"
)

func TestSeriesBuilders(t *testing.T) {
	line := LineSeries("loss", EpochAxis(3), []float64{1, 2}, true)
	if len(line.Data) != 2 || line.Data[1].X != 2 || line.Style["line_style"] != "dashed" {
		t.Errorf("Unexpected line series %+v", line)
	}

	bars := BarSeries("train", []string{"normal", "bacterial"}, []float64{3, 2})
	if len(bars.Data) != 2 || bars.Data[0].Label != "normal" {
		t.Errorf("Unexpected bar series %+v", bars)
	}

	hist := HistogramSeries("sums", []float64{0, 1, 2}, []float64{4, 5})
	if len(hist.Data) != 2 || hist.Data[1].Z != 2.0 {
		t.Errorf("Unexpected histogram %+v", hist)
	}
	if empty := HistogramSeries("none", nil, nil); len(empty.Data) != 0 {
		t.Error("Expected empty histogram")
	}

	heat := HeatmapSeries("cm", [][]int{{1, 2}, {3, 4}}, []string{"NORMAL", "PNEUMONIA"})
	if len(heat.Data) != 4 || heat.Data[1].Label != "True: NORMAL, Pred: PNEUMONIA" {
		t.Errorf("Unexpected heatmap %+v", heat.Data)
	}
}

func TestPlotDataToJSON(t *testing.T) {
	plot := NewPlot(ClassDistributionPlot, "Classes", "Label", "Count")
	plot.Series = []SeriesData{BarSeries("train", []string{"viral"}, []float64{1})}
	out, err := plot.ToJSON()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for _, want := range []string{`"plot_type": "class_distribution"`, `"x_axis_label": "Label"`, `"type": "bar"`} {
		if !strings.Contains(out, want) {
			t.Errorf("JSON is missing %s", want)
		}
	}
}
