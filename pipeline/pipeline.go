// Package pipeline runs a full preprocessing pass: it loads the dataset table
// and materializes the two-class and three-class tensor bundles.
package pipeline

import (
	"fmt"
	"log"

	"github.com/pkg/errors"
	"github.com/tsawler/xray-harness/tensor"
	"github.com/tsawler/xray-harness/vision/dataloader"
	"github.com/tsawler/xray-harness/vision/dataset"
	"github.com/tsawler/xray-harness/vision/preprocessing"
)

// Config holds the preprocessing parameters
type Config struct {
	Root          string  // Folder containing chest_xray/
	RotationRange float64 // Maximum training rotation in degrees
	ZoomRange     float64 // Maximum training zoom deviation
	Seed          uint64  // Seeds shuffling and augmentation
	TargetSize    int     // Square image resolution
	Workers       int     // Parallel decoders used by the loader
	Shuffle       bool    // Shuffle samples inside each bundle
	Logger        *log.Logger
}

// DefaultConfig returns the default preprocessing parameters
func DefaultConfig() Config {
	loader := dataset.DefaultLoaderConfig()
	return Config{
		Root:          loader.Root,
		RotationRange: 0.4,
		ZoomRange:     0.4,
		Seed:          42,
		TargetSize:    preprocessing.DefaultTargetSize,
		Workers:       loader.Workers,
		Shuffle:       true,
	}
}

func (c Config) augment() preprocessing.AugmentConfig {
	return preprocessing.AugmentConfig{
		HorizontalFlip: true,
		RotationRange:  c.RotationRange,
		ZoomRange:      c.ZoomRange,
	}
}

func (c Config) validate() error {
	if c.Root == "" {
		return errors.New("root must not be empty")
	}
	if c.TargetSize <= 0 {
		return errors.Errorf("target size must be positive, got %d", c.TargetSize)
	}
	return c.augment().Validate()
}

// BundleKey identifies one materialized bundle
type BundleKey struct {
	Scheme dataset.Scheme
	Split  dataset.Split
}

func (k BundleKey) String() string {
	return k.Scheme.String() + "/" + k.Split.String()
}

// Result is the output of one preprocessing run
type Result struct {
	Table   *dataset.Table
	Layout  dataset.Layout
	bundles map[BundleKey]*tensor.Bundle
}

// Bundle returns the bundle of scheme and split
func (r *Result) Bundle(scheme dataset.Scheme, split dataset.Split) *tensor.Bundle {
	return r.bundles[BundleKey{scheme, split}]
}

// Preprocess validates the directory layout, loads the dataset table and
// materializes one bundle per (scheme, split). Every required directory is
// checked before anything is decoded, so a missing directory never leaves
// partial results. Each bundle comes from its own iterator pass with its own
// seed and storage; training passes are augmented, test passes are not.
func Preprocess(config Config) (*Result, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}

	layout := dataset.NewLayout(config.Root)
	if err := layout.Validate(); err != nil {
		return nil, err
	}

	table, err := dataset.LoadTable(dataset.LoaderConfig{
		Root:       config.Root,
		TargetSize: config.TargetSize,
		Workers:    config.Workers,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	logger.Printf("Dataset table assembled: %d rows", table.Len())

	result := &Result{
		Table:   table,
		Layout:  layout,
		bundles: make(map[BundleKey]*tensor.Bundle, 4),
	}

	caches := dataloader.NewSharedCacheManager()
	defer caches.ClearAllCaches()
	for _, scheme := range dataset.Schemes() {
		if err := result.materialize(layout, scheme, config, caches, logger); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func (r *Result) materialize(layout dataset.Layout, scheme dataset.Scheme, config Config,
	caches *dataloader.SharedCacheManager, logger *log.Logger) error {
	datasets := make(map[dataset.Split]*dataset.ImageFolderDataset, 2)
	total := 0
	for _, split := range dataset.Splits() {
		sources, err := layout.SchemeSources(scheme, split)
		if err != nil {
			return errors.Wrapf(err, "failed to resolve %s classes", BundleKey{scheme, split})
		}
		ds, err := dataset.NewClassFolderDataset(sources, nil)
		if err != nil {
			return err
		}
		datasets[split] = ds
		total += ds.Len()
	}

	classMode := dataloader.ClassModeBinary
	if scheme == dataset.SchemeThreeClass {
		classMode = dataloader.ClassModeCategorical
	}

	train, test, err := dataloader.NewSplitIterators(datasets[dataset.SplitTrain], datasets[dataset.SplitTest], dataloader.Config{
		Shuffle:      config.Shuffle,
		Seed:         config.Seed + 2*uint64(scheme),
		ImageSize:    config.TargetSize,
		Rescale:      1.0 / 255,
		Augment:      config.augment(),
		ClassMode:    classMode,
		CacheManager: caches.GetOrCreateCache(fmt.Sprintf("rasters-%d", config.TargetSize), total),
	})
	if err != nil {
		return err
	}

	for i, it := range []*dataloader.DirectoryIterator{train, test} {
		split := dataset.Splits()[i]
		key := BundleKey{scheme, split}
		bundle, err := it.Next()
		if err != nil {
			return errors.Wrapf(err, "failed to materialize %s", key)
		}
		if bundle == nil {
			if bundle, err = emptyBundle(scheme, config.TargetSize, it.ClassNames()); err != nil {
				return errors.Wrapf(err, "failed to create empty %s bundle", key)
			}
		}
		if err := bundle.Validate(datasets[split].Len()); err != nil {
			return errors.Wrapf(err, "bundle %s", key)
		}
		r.bundles[key] = bundle
		logger.Printf("Materialized %s: %s", key, bundle)
	}
	logger.Printf("Raster cache after %s: %s", scheme, train.Stats())
	return nil
}

func emptyBundle(scheme dataset.Scheme, size int, classNames []string) (*tensor.Bundle, error) {
	shape := tensor.Shape{Height: size, Width: size, Channels: 3}
	if scheme == dataset.SchemeTwoClass {
		return tensor.NewBinaryBundle(shape, nil, nil, classNames)
	}
	return tensor.NewOneHotBundle(shape, nil, nil, classNames)
}
