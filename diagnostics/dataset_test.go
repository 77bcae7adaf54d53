package diagnostics

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/tsawler/xray-harness/vision/dataset"
	"github.com/tsawler/xray-harness/vision/preprocessing"
	"github.com/tsawler/xray-harness/visualization"
)

// record builds a 2x2 grayscale record whose intensity sum is 4*shade
func record(label dataset.Label, split dataset.Split, name string, shade uint8) dataset.Record {
	r := preprocessing.NewRaster(2, 2, 1)
	for i := range r.Pix {
		r.Pix[i] = shade
	}
	cell := dataset.Cell{Label: label, Split: split}
	return dataset.NewRecord(cell, "/data/"+cell.String(), name, r)
}

func sampleTable(t *testing.T) *dataset.Table {
	t.Helper()
	rows := []dataset.Record{
		record(dataset.LabelBacterial, dataset.SplitTrain, "b0", 40),
		record(dataset.LabelBacterial, dataset.SplitTrain, "b1", 90),
		record(dataset.LabelViral, dataset.SplitTrain, "v0", 10),
		record(dataset.LabelNormal, dataset.SplitTrain, "n0", 90),
		record(dataset.LabelNormal, dataset.SplitTrain, "n1", 5),
		record(dataset.LabelNormal, dataset.SplitTest, "t0", 5),
		record(dataset.LabelNormal, dataset.SplitTest, "t1", 200),
	}
	records := make(map[dataset.Cell][]dataset.Record)
	for _, r := range rows {
		records[r.Cell()] = append(records[r.Cell()], r)
	}
	table, err := dataset.Assemble(records, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return table
}

func TestClassDistribution(t *testing.T) {
	totals, plot := ClassDistribution(sampleTable(t))

	if len(totals) != 3 || totals[0].Label != dataset.LabelNormal || totals[0].Train != 2 || totals[0].Test != 2 {
		t.Errorf("Unexpected totals %+v", totals)
	}

	if plot.PlotType != visualization.ClassDistributionPlot || len(plot.Series) != 3 {
		t.Fatalf("Unexpected plot %+v", plot)
	}
	if plot.Series[0].Name != "Bacterial Pneumonia" || plot.Series[2].Name != "Normal (No Pneumonia)" {
		t.Errorf("Unexpected stack order %s, %s", plot.Series[0].Name, plot.Series[2].Name)
	}
	bacterial := plot.Series[0].Data
	if bacterial[0].Y != 2.0 || bacterial[1].Y != 0.0 || bacterial[0].X != "Train" {
		t.Errorf("Unexpected bacterial bars %+v", bacterial)
	}
	if plot.Metrics["total_rows"] != 7 {
		t.Errorf("Expected 7 total rows, got %v", plot.Metrics["total_rows"])
	}
}

func TestIntensityDistribution(t *testing.T) {
	table := sampleTable(t)

	t.Run("TwoClass", func(t *testing.T) {
		report, err := IntensityDistribution(table, dataset.SchemeTwoClass, 4)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(report.Groups) != 2 {
			t.Fatalf("Expected 2 groups, got %d", len(report.Groups))
		}
		normal, pneumonia := report.Groups[0], report.Groups[1]
		if normal.Name != "Normal" || normal.Count != 4 || normal.Mean != 300 {
			t.Errorf("Unexpected normal group %+v", normal)
		}
		if pneumonia.Count != 3 || math.Abs(pneumonia.Mean-560.0/3) > 1e-9 {
			t.Errorf("Unexpected pneumonia group %+v", pneumonia)
		}
		if len(normal.Histogram.Counts) != 4 {
			t.Errorf("Expected 4 bins, got %d", len(normal.Histogram.Counts))
		}

		plot := report.Plot()
		if len(plot.Series) != 2 || plot.Metrics["Normal GS-Sum Mean"] != 300.0 {
			t.Errorf("Unexpected plot %+v", plot.Metrics)
		}
	})

	t.Run("ThreeClass", func(t *testing.T) {
		report, err := IntensityDistribution(table, dataset.SchemeThreeClass, 0)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(report.Groups) != 3 {
			t.Fatalf("Expected 3 groups, got %d", len(report.Groups))
		}
		if report.Groups[2].Name != "viral" || report.Groups[2].Mean != 40 {
			t.Errorf("Unexpected viral group %+v", report.Groups[2])
		}
		if len(report.Groups[0].Histogram.Counts) != DefaultBins {
			t.Errorf("Expected %d bins", DefaultBins)
		}
	})

	t.Run("EmptyTable", func(t *testing.T) {
		empty, err := dataset.Assemble(nil, nil)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if _, err := IntensityDistribution(empty, dataset.SchemeTwoClass, 4); !errors.Is(err, dataset.ErrEmptyQueryResult) {
			t.Errorf("Expected ErrEmptyQueryResult, got %v", err)
		}
	})
}

func TestDarkVsLight(t *testing.T) {
	table := sampleTable(t)

	global, err := DarkVsLight(table, Global)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(global) != 1 || global[0].Darkest.Filename() != "n1" || global[0].Lightest.Filename() != "t1" {
		t.Errorf("Unexpected global pair %+v", global)
	}

	perLabel, err := DarkVsLight(table, PerLabel)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := [][2]string{{"n1", "t1"}, {"b0", "b1"}, {"v0", "v0"}}
	for i, p := range perLabel {
		if p.Darkest.Filename() != want[i][0] || p.Lightest.Filename() != want[i][1] {
			t.Errorf("%s: expected %v, got %s/%s", p.Group, want[i], p.Darkest.Filename(), p.Lightest.Filename())
		}
	}

	plot := DarkVsLightPlot(perLabel)
	if len(plot.Series) != 2 || len(plot.Series[0].Data) != 3 || plot.Series[1].Data[0].Y != int64(800) {
		t.Errorf("Unexpected plot %+v", plot.Series)
	}

	if _, err := DarkVsLight(table, ExtremeMode(7)); err == nil {
		t.Error("Expected error for unknown mode")
	}
}

func TestDarkVsLightMissingLabel(t *testing.T) {
	cell := dataset.Cell{Label: dataset.LabelNormal, Split: dataset.SplitTrain}
	table, err := dataset.Assemble(map[dataset.Cell][]dataset.Record{
		cell: {record(dataset.LabelNormal, dataset.SplitTrain, "n", 1)},
	}, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	pairs, err := DarkVsLight(table, PerLabel)
	if err != nil {
		t.Fatalf("Labels without rows should be skipped: %v", err)
	}
	if len(pairs) != 1 || pairs[0].Group != "normal" || pairs[0].Darkest.Filename() != "n" {
		t.Errorf("Expected a single normal pair, got %+v", pairs)
	}

	empty, err := dataset.Assemble(nil, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for _, mode := range []ExtremeMode{Global, PerLabel} {
		if _, err := DarkVsLight(empty, mode); !errors.Is(err, dataset.ErrEmptyQueryResult) {
			t.Errorf("%d: expected ErrEmptyQueryResult, got %v", mode, err)
		}
	}
}
