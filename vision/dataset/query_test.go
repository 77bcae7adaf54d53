package dataset

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/tsawler/xray-harness/vision/preprocessing"
)

// record builds a 2x2 grayscale record whose intensity sum is 4*shade
func record(cell Cell, name string, shade uint8) Record {
	r := preprocessing.NewRaster(2, 2, 1)
	for i := range r.Pix {
		r.Pix[i] = shade
	}
	return NewRecord(cell, "/data/"+cell.String(), name, r)
}

func sampleTable(t *testing.T) *Table {
	t.Helper()
	records := map[Cell][]Record{
		{LabelBacterial, SplitTrain}: {record(Cell{LabelBacterial, SplitTrain}, "b0", 40), record(Cell{LabelBacterial, SplitTrain}, "b1", 90)},
		{LabelViral, SplitTrain}:     {record(Cell{LabelViral, SplitTrain}, "v0", 10)},
		{LabelNormal, SplitTrain}:    {record(Cell{LabelNormal, SplitTrain}, "n0", 90), record(Cell{LabelNormal, SplitTrain}, "n1", 5)},
		{LabelNormal, SplitTest}:     {record(Cell{LabelNormal, SplitTest}, "t0", 5), record(Cell{LabelNormal, SplitTest}, "t1", 200)},
	}
	table, err := Assemble(records, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return table
}

func TestAssemble(t *testing.T) {
	t.Run("CellOrder", func(t *testing.T) {
		table := sampleTable(t)
		var names []string
		for _, r := range table.Rows() {
			names = append(names, r.Filename())
		}
		want := "[b0 b1 v0 n0 n1 t0 t1]"
		if got := fmt.Sprint(names); got != want {
			t.Errorf("Expected %s, got %s", want, got)
		}
	})

	t.Run("CountMismatch", func(t *testing.T) {
		cell := Cell{LabelViral, SplitTest}
		records := map[Cell][]Record{cell: {record(cell, "v", 1)}}
		_, err := Assemble(records, map[Cell]int{cell: 2})
		if !errors.Is(err, ErrInconsistentTable) {
			t.Errorf("Expected ErrInconsistentTable, got %v", err)
		}
	})

	t.Run("MislabeledRow", func(t *testing.T) {
		records := map[Cell][]Record{
			{LabelViral, SplitTest}: {record(Cell{LabelNormal, SplitTest}, "n", 1)},
		}
		_, err := Assemble(records, nil)
		if !errors.Is(err, ErrInconsistentTable) {
			t.Errorf("Expected ErrInconsistentTable, got %v", err)
		}
	})

	t.Run("RowsIsCopy", func(t *testing.T) {
		table := sampleTable(t)
		rows := table.Rows()
		rows[0] = Record{}
		if table.Row(0).Filename() != "b0" {
			t.Error("Mutating Rows() changed the table")
		}
	})
}

func TestExtremum(t *testing.T) {
	table := sampleTable(t)

	tests := []struct {
		name   string
		dir    Direction
		filter Filter
		want   string
	}{
		{"GlobalMax", Max, All(), "t1"},
		{"GlobalMinFirstTie", Min, nil, "n1"},
		{"MaxTieFirstInTableOrder", Max, BySplit(SplitTrain), "b1"},
		{"PneumoniaMin", Min, Pneumonia(), "v0"},
		{"NormalTestMin", Min, And(ByLabel(LabelNormal), BySplit(SplitTest)), "t0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := table.Extremum(tt.dir, tt.filter)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got.Filename() != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got.Filename())
			}
		})
	}

	t.Run("Idempotent", func(t *testing.T) {
		a, _ := table.Extremum(Max, All())
		b, _ := table.Extremum(Max, All())
		if a.Path() != b.Path() || a.IntensitySum() != b.IntensitySum() {
			t.Error("Repeated query returned a different record")
		}
	})

	t.Run("NoMatch", func(t *testing.T) {
		_, err := table.Extremum(Max, And(ByLabel(LabelViral), BySplit(SplitTest)))
		if !errors.Is(err, ErrEmptyQueryResult) {
			t.Errorf("Expected ErrEmptyQueryResult, got %v", err)
		}
	})
}

func TestGroupTotals(t *testing.T) {
	totals := sampleTable(t).GroupTotals()
	want := []LabelTotals{
		{Label: LabelNormal, Train: 2, Test: 2},
		{Label: LabelBacterial, Train: 2, Test: 0},
		{Label: LabelViral, Train: 1, Test: 0},
	}
	if len(totals) != len(want) {
		t.Fatalf("Expected %d groups, got %d", len(want), len(totals))
	}
	for i := range want {
		if totals[i] != want[i] {
			t.Errorf("Group %d: expected %+v, got %+v", i, want[i], totals[i])
		}
	}
	if totals[0].Total() != 4 {
		t.Errorf("Expected normal total 4, got %d", totals[0].Total())
	}
}

func TestIntensityStatistics(t *testing.T) {
	table := sampleTable(t)

	mean, err := table.IntensityMean(ByLabel(LabelBacterial))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if mean != 260 {
		t.Errorf("Expected mean 260, got %g", mean)
	}

	if _, err := table.IntensityMean(ByCell(Cell{LabelViral, SplitTest})); !errors.Is(err, ErrEmptyQueryResult) {
		t.Errorf("Expected ErrEmptyQueryResult, got %v", err)
	}

	hist, err := table.IntensityHistogram(All(), 4)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(hist.Counts) != 4 || len(hist.Edges) != 5 {
		t.Fatalf("Unexpected histogram shape: %d counts, %d edges", len(hist.Counts), len(hist.Edges))
	}
	total := 0.0
	for _, c := range hist.Counts {
		total += c
	}
	if int(total) != table.Len() {
		t.Errorf("Histogram holds %g samples, expected %d", total, table.Len())
	}

	if _, err := table.IntensityHistogram(All(), 0); err == nil {
		t.Error("Expected error for zero bins")
	}
}

func TestRecordImmutable(t *testing.T) {
	r := record(Cell{LabelNormal, SplitTrain}, "n", 7)
	raster := r.Raster()
	raster.Pix[0] = 255
	if r.Raster().Pix[0] != 7 {
		t.Error("Mutating Raster() changed the record")
	}
	if r.IntensitySum() != 28 {
		t.Errorf("Expected sum 28, got %d", r.IntensitySum())
	}
}
