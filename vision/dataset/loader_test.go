package dataset

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/tsawler/xray-harness/internal/testfixture"
)

func quietConfig(root string) LoaderConfig {
	config := DefaultLoaderConfig()
	config.Root = root
	config.TargetSize = 32
	config.Logger = log.New(io.Discard, "", 0)
	return config
}

// TestLoadTableScenario tests the reference tree end to end
func TestLoadTableScenario(t *testing.T) {
	root := testfixture.Build(t, testfixture.Scenario())

	table, err := LoadTable(quietConfig(root))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// 3+2+1 training and 2+1+1 test files
	if table.Len() != 10 {
		t.Fatalf("Expected 10 rows, got %d", table.Len())
	}

	expected := map[Cell]int{
		{LabelBacterial, SplitTrain}: 2,
		{LabelViral, SplitTrain}:     1,
		{LabelNormal, SplitTrain}:    3,
		{LabelBacterial, SplitTest}:  1,
		{LabelViral, SplitTest}:      1,
		{LabelNormal, SplitTest}:     2,
	}
	for cell, want := range expected {
		if got := table.Count(ByCell(cell)); got != want {
			t.Errorf("%s: expected %d rows, got %d", cell, want, got)
		}
	}

	// Rows follow the cell order
	prev := -1
	for i, r := range table.Rows() {
		pos := -1
		for j, c := range CellOrder {
			if c == r.Cell() {
				pos = j
			}
		}
		if pos < prev {
			t.Errorf("Row %d (%s) out of cell order", i, r.Cell())
		}
		prev = pos

		if r.IsTrain() == r.IsTest() {
			t.Errorf("Row %d: IsTrain and IsTest both %v", i, r.IsTrain())
		}
		if r.IsTrain() != (r.Split() == SplitTrain) {
			t.Errorf("Row %d: split flag disagrees with split", i)
		}
		if r.Raster().Width != 32 || r.Raster().Height != 32 {
			t.Errorf("Row %d: unexpected raster size", i)
		}
		if _, err := os.Stat(r.Path()); err != nil {
			t.Errorf("Row %d: source file missing: %v", i, err)
		}
	}
}

// TestLoadTableDeterministic tests that re-running yields identical rows
func TestLoadTableDeterministic(t *testing.T) {
	root := testfixture.Build(t, testfixture.Scenario())

	sequential := quietConfig(root)
	sequential.Workers = 1
	first, err := LoadTable(sequential)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	parallel := quietConfig(root)
	parallel.Workers = 4
	second, err := LoadTable(parallel)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if first.Len() != second.Len() {
		t.Fatalf("Row counts differ: %d vs %d", first.Len(), second.Len())
	}
	for i := 0; i < first.Len(); i++ {
		a, b := first.Row(i), second.Row(i)
		if a.Filename() != b.Filename() || a.Label() != b.Label() || a.Split() != b.Split() {
			t.Errorf("Row %d differs: %s vs %s", i, a, b)
		}
		if a.IntensitySum() != b.IntensitySum() {
			t.Errorf("Row %d intensity differs: %d vs %d", i, a.IntensitySum(), b.IntensitySum())
		}
	}
}

func TestLoaderEmptyDirectory(t *testing.T) {
	opts := testfixture.Scenario()
	opts.Train.Bacterial = 0
	root := testfixture.Build(t, opts)

	table, err := LoadTable(quietConfig(root))
	if err != nil {
		t.Fatalf("Empty directory should be valid: %v", err)
	}
	if got := table.Count(ByCell(Cell{LabelBacterial, SplitTrain})); got != 0 {
		t.Errorf("Expected 0 bacterial training rows, got %d", got)
	}
	if table.Len() != 8 {
		t.Errorf("Expected 8 rows, got %d", table.Len())
	}
}

func TestLoaderMissingDirectory(t *testing.T) {
	root := testfixture.Build(t, testfixture.Scenario())
	missing := filepath.Join(root, "chest_xray", "test", "NORMAL")
	if err := os.RemoveAll(missing); err != nil {
		t.Fatalf("Failed to remove directory: %v", err)
	}

	_, err := LoadTable(quietConfig(root))
	var missingErr *MissingDirectoryError
	if !errors.As(err, &missingErr) {
		t.Fatalf("Expected *MissingDirectoryError, got %v", err)
	}
	if missingErr.Path != missing {
		t.Errorf("Expected path %s, got %s", missing, missingErr.Path)
	}
}

func TestLoaderUnreadableImage(t *testing.T) {
	root := testfixture.Build(t, testfixture.Scenario())
	bad := filepath.Join(root, "chest_xray", "chest_xray_ternary", "train", "VIRAL", "broken.jpeg")
	testfixture.WriteFile(t, bad, []byte("not a jpeg"))

	_, err := LoadTable(quietConfig(root))
	var unreadable *UnreadableImageError
	if !errors.As(err, &unreadable) {
		t.Fatalf("Expected *UnreadableImageError, got %v", err)
	}
	if unreadable.Path != bad {
		t.Errorf("Expected path %s, got %s", bad, unreadable.Path)
	}
}

func TestLoaderSkipsNonImages(t *testing.T) {
	root := testfixture.Build(t, testfixture.Scenario())
	dir := filepath.Join(root, "chest_xray", "train", "NORMAL")
	testfixture.WriteFile(t, filepath.Join(dir, "notes.txt"), []byte("reader notes"))
	testfixture.WriteFile(t, filepath.Join(dir, ".DS_Store"), []byte{0})
	testfixture.MkdirAll(t, filepath.Join(dir, "nested"))

	loader, err := NewLoader(quietConfig(root))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	records, count, err := loader.LoadCell(Cell{LabelNormal, SplitTrain})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if count != 3 || len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d (count %d)", len(records), count)
	}

	for i, name := range []string{"img_000.png", "img_001.png", "img_002.png"} {
		if records[i].Filename() != name {
			t.Errorf("Record %d: expected %s, got %s", i, name, records[i].Filename())
		}
		if records[i].SourceDir() != dir {
			t.Errorf("Record %d: expected source %s, got %s", i, dir, records[i].SourceDir())
		}
	}
}

func TestLoaderConfigValidation(t *testing.T) {
	config := quietConfig("")
	if _, err := NewLoader(config); err == nil {
		t.Error("Expected error for empty root")
	}

	config = quietConfig("data")
	config.TargetSize = 0
	if _, err := NewLoader(config); err == nil {
		t.Error("Expected error for zero target size")
	}
}
