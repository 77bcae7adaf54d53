package dataloader

import (
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/tsawler/xray-harness/internal/testfixture"
	"github.com/tsawler/xray-harness/vision/dataset"
	"github.com/tsawler/xray-harness/vision/preprocessing"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func scenarioSources(t *testing.T, scheme dataset.Scheme, split dataset.Split) []dataset.ClassSource {
	t.Helper()
	root := testfixture.Build(t, testfixture.Scenario())
	sources, err := dataset.NewLayout(root).SchemeSources(scheme, split)
	if err != nil {
		t.Fatalf("Failed to resolve sources: %v", err)
	}
	return sources
}

func testConfig() Config {
	return Config{
		ImageSize: 8,
		Rescale:   1.0 / 255,
		Seed:      42,
	}
}

func TestDirectoryIteratorWholeSplit(t *testing.T) {
	sources := scenarioSources(t, dataset.SchemeTwoClass, dataset.SplitTrain)
	config := testConfig()
	config.Shuffle = true

	it, err := FlowFromDirectory(sources, config)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if it.Len() != 5 || it.BatchSize() != 5 {
		t.Fatalf("Expected 5 samples in one batch, got %d/%d", it.Len(), it.BatchSize())
	}

	bundle, err := it.Next()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if bundle.Len() != 5 || bundle.Shape.Channels != 3 || bundle.Shape.Height != 8 {
		t.Fatalf("Unexpected bundle %s", bundle)
	}

	counts := bundle.ClassCounts()
	if counts[0] != 3 || counts[1] != 2 {
		t.Errorf("Expected 3 zeros and 2 ones, got %v", counts)
	}
	if floats.Sum(bundle.Binary.RawVector().Data)+float64(counts[0]) != 5 {
		t.Error("Label sum plus zero count differs from sample count")
	}

	if floats.Min(bundle.Images.RawMatrix().Data) < 0 || floats.Max(bundle.Images.RawMatrix().Data) > 1 {
		t.Error("Expected values in [0, 1]")
	}

	if next, err := it.Next(); next != nil || err != nil {
		t.Errorf("Expected exhaustion, got %v, %v", next, err)
	}

	it.Reset()
	if current, total := it.Progress(); current != 0 || total != 5 {
		t.Errorf("Expected progress 0/5 after reset, got %d/%d", current, total)
	}
}

func TestDirectoryIteratorCategorical(t *testing.T) {
	sources := scenarioSources(t, dataset.SchemeThreeClass, dataset.SplitTest)
	config := testConfig()
	config.ClassMode = ClassModeCategorical

	it, err := FlowFromDirectory(sources, config)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	bundle, err := it.Next()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if bundle.Len() != 4 {
		t.Fatalf("Expected 4 samples, got %d", bundle.Len())
	}
	if _, k := bundle.OneHot.Dims(); k != 3 {
		t.Fatalf("Expected 3 one-hot columns, got %d", k)
	}
	for i := 0; i < 4; i++ {
		if s := mat.Sum(bundle.OneHot.RowView(i)); s != 1 {
			t.Errorf("Row %d sums to %g", i, s)
		}
	}

	// Without shuffling, samples follow class order: BACTERIAL, NORMAL x2, VIRAL
	want := []int{0, 1, 1, 2}
	for i, c := range bundle.ClassIndices() {
		if c != want[i] {
			t.Errorf("Sample %d: expected class %d, got %d", i, want[i], c)
		}
	}
}

func TestDirectoryIteratorSeeded(t *testing.T) {
	sources := scenarioSources(t, dataset.SchemeTwoClass, dataset.SplitTrain)
	config := testConfig()
	config.Shuffle = true
	config.Augment = preprocessing.AugmentConfig{HorizontalFlip: true, RotationRange: 15, ZoomRange: 0.2}

	run := func() *mat.Dense {
		it, err := FlowFromDirectory(sources, config)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		bundle, err := it.Next()
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		return bundle.Images
	}

	if !mat.Equal(run(), run()) {
		t.Error("Same seed produced different bundles")
	}
}

func TestDirectoryIteratorMiniBatches(t *testing.T) {
	sources := scenarioSources(t, dataset.SchemeTwoClass, dataset.SplitTrain)
	config := testConfig()
	config.BatchSize = 2

	it, err := FlowFromDirectory(sources, config)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var sizes []int
	for {
		bundle, err := it.Next()
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if bundle == nil {
			break
		}
		sizes = append(sizes, bundle.Len())
	}
	if len(sizes) != 3 || sizes[0] != 2 || sizes[2] != 1 {
		t.Errorf("Unexpected batch sizes %v", sizes)
	}
}

func TestDirectoryIteratorUnreadable(t *testing.T) {
	sources := scenarioSources(t, dataset.SchemeTwoClass, dataset.SplitTest)
	bad := filepath.Join(sources[0].Dir, "zz_broken.png")
	testfixture.WriteFile(t, bad, []byte("broken"))

	it, err := FlowFromDirectory(sources, testConfig())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	_, err = it.Next()
	var unreadable *dataset.UnreadableImageError
	if !errors.As(err, &unreadable) || unreadable.Path != bad {
		t.Errorf("Expected *UnreadableImageError for %s, got %v", bad, err)
	}
}

func TestDirectoryIteratorConfigValidation(t *testing.T) {
	sources := scenarioSources(t, dataset.SchemeThreeClass, dataset.SplitTrain)

	if _, err := FlowFromDirectory(sources, testConfig()); err == nil {
		t.Error("Expected error for binary mode over three classes")
	}

	config := testConfig()
	config.ClassMode = ClassModeCategorical
	config.ImageSize = 0
	if _, err := FlowFromDirectory(sources, config); err == nil {
		t.Error("Expected error for zero image size")
	}
}

func TestNewSplitIterators(t *testing.T) {
	root := testfixture.Build(t, testfixture.Scenario())
	layout := dataset.NewLayout(root)

	load := func(split dataset.Split) Dataset {
		sources, err := layout.SchemeSources(dataset.SchemeTwoClass, split)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		ds, err := dataset.NewClassFolderDataset(sources, nil)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		return ds
	}

	config := testConfig()
	config.Augment = preprocessing.DefaultAugmentConfig()
	train, test, err := NewSplitIterators(load(dataset.SplitTrain), load(dataset.SplitTest), config)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if train.GetCacheManager() != test.GetCacheManager() {
		t.Error("Expected a shared cache")
	}
	if test.augmenter != nil {
		t.Error("Test iterator must not augment")
	}
	if train.augmenter == nil {
		t.Error("Train iterator should augment")
	}

	if _, err := train.Next(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := test.Next(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if stats := train.GetCacheManager().Stats(); stats.Size != 9 {
		t.Errorf("Expected 9 cached rasters, got %d", stats.Size)
	}
}
