package dataloader

import (
	"math/rand/v2"
	"sync"

	"github.com/pkg/errors"
	"github.com/tsawler/xray-harness/tensor"
	"github.com/tsawler/xray-harness/vision/dataset"
	"github.com/tsawler/xray-harness/vision/preprocessing"
)

// Dataset is a class-indexed list of image files
type Dataset interface {
	Len() int
	GetItem(index int) (imagePath string, label int, err error)
	ClassNames() []string
}

// ClassMode selects the label encoding of produced bundles
type ClassMode int

const (
	// ClassModeBinary emits a flat 0/1 label vector; the dataset must have two classes
	ClassModeBinary ClassMode = iota
	// ClassModeCategorical emits one-hot label rows
	ClassModeCategorical
)

// Config holds configuration for a DirectoryIterator
type Config struct {
	BatchSize    int // 0 means the whole dataset in one batch
	Shuffle      bool
	Seed         uint64
	ImageSize    int
	Rescale      float64 // Multiplier applied to every channel value
	Augment      preprocessing.AugmentConfig
	ClassMode    ClassMode
	MaxCacheSize int           // 0 means the dataset size
	CacheManager *CacheManager // Optional shared cache manager
}

func (c Config) validate(ds Dataset) error {
	if c.BatchSize < 0 {
		return errors.Errorf("batch size must not be negative, got %d", c.BatchSize)
	}
	if c.ImageSize <= 0 {
		return errors.Errorf("image size must be positive, got %d", c.ImageSize)
	}
	if c.ClassMode == ClassModeBinary && len(ds.ClassNames()) != 2 {
		return errors.Errorf("binary class mode needs 2 classes, dataset has %d", len(ds.ClassNames()))
	}
	if c.ClassMode == ClassModeCategorical && len(ds.ClassNames()) == 0 {
		return errors.New("categorical class mode needs at least one class")
	}
	return c.Augment.Validate()
}

// channels is the channel count of every produced sample
const channels = 3

// DirectoryIterator reads a class-folder dataset and yields tensor bundles.
// Every iterator owns its random source, its augmenter and the storage of
// each bundle it returns.
type DirectoryIterator struct {
	dataset  Dataset
	config   Config
	indices  []int
	position int
	mu       sync.Mutex

	rng       *rand.Rand
	augmenter *preprocessing.Augmenter

	cacheManager *CacheManager

	processor *preprocessing.ImageProcessor
}

// NewDirectoryIterator creates an iterator over ds
func NewDirectoryIterator(ds Dataset, config Config) (*DirectoryIterator, error) {
	if err := config.validate(ds); err != nil {
		return nil, err
	}
	if config.Rescale == 0 {
		config.Rescale = 1
	}

	indices := make([]int, ds.Len())
	for i := range indices {
		indices[i] = i
	}

	cacheManager := config.CacheManager
	if cacheManager == nil {
		size := config.MaxCacheSize
		if size == 0 {
			size = ds.Len()
		}
		cacheManager = NewCacheManager(size)
	}

	it := &DirectoryIterator{
		dataset:      ds,
		config:       config,
		indices:      indices,
		rng:          rand.New(rand.NewPCG(config.Seed, config.Seed+1)),
		cacheManager: cacheManager,
		processor:    preprocessing.NewImageProcessor(config.ImageSize, config.ImageSize).WithRGB(),
	}
	if config.Augment.Enabled() {
		it.augmenter = preprocessing.NewAugmenter(config.Augment, config.Seed)
	}
	it.shuffle()
	return it, nil
}

// FlowFromDirectory builds a class-folder dataset from sources and iterates it
func FlowFromDirectory(sources []dataset.ClassSource, config Config) (*DirectoryIterator, error) {
	ds, err := dataset.NewClassFolderDataset(sources, nil)
	if err != nil {
		return nil, err
	}
	return NewDirectoryIterator(ds, config)
}

func (it *DirectoryIterator) shuffle() {
	if !it.config.Shuffle {
		return
	}
	it.rng.Shuffle(len(it.indices), func(i, j int) {
		it.indices[i], it.indices[j] = it.indices[j], it.indices[i]
	})
}

// Len returns the number of samples
func (it *DirectoryIterator) Len() int {
	return len(it.indices)
}

// BatchSize returns the effective batch size
func (it *DirectoryIterator) BatchSize() int {
	if it.config.BatchSize == 0 {
		return len(it.indices)
	}
	return it.config.BatchSize
}

// ClassNames returns the class names in index order
func (it *DirectoryIterator) ClassNames() []string {
	return it.dataset.ClassNames()
}

// Reset rewinds to the beginning, reshuffling when enabled
func (it *DirectoryIterator) Reset() {
	it.mu.Lock()
	defer it.mu.Unlock()

	it.position = 0
	it.shuffle()
}

// Next returns the next batch as a freshly allocated bundle. It returns a nil
// bundle and nil error when the iterator is exhausted. A file that cannot be
// decoded aborts the batch with a *dataset.UnreadableImageError.
func (it *DirectoryIterator) Next() (*tensor.Bundle, error) {
	it.mu.Lock()
	defer it.mu.Unlock()

	remaining := len(it.indices) - it.position
	if remaining <= 0 {
		return nil, nil
	}

	n := it.BatchSize()
	if remaining < n {
		n = remaining
	}

	size := it.config.ImageSize
	shape := tensor.Shape{N: n, Height: size, Width: size, Channels: channels}
	sampleSize := shape.SampleSize()

	images := make([]float64, n*sampleSize)
	classes := make([]int, n)

	for i := 0; i < n; i++ {
		imagePath, label, err := it.dataset.GetItem(it.indices[it.position+i])
		if err != nil {
			return nil, err
		}

		raster, err := it.load(imagePath)
		if err != nil {
			return nil, &dataset.UnreadableImageError{Path: imagePath, Err: err}
		}
		if it.augmenter != nil {
			raster = it.augmenter.Apply(raster)
		}
		if err := raster.Scale(images[i*sampleSize:(i+1)*sampleSize], it.config.Rescale); err != nil {
			return nil, err
		}
		classes[i] = label
	}
	it.position += n

	names := it.dataset.ClassNames()
	if it.config.ClassMode == ClassModeBinary {
		labels := make([]float64, n)
		for i, c := range classes {
			labels[i] = float64(c)
		}
		return tensor.NewBinaryBundle(shape, images, labels, names)
	}
	return tensor.NewOneHotBundle(shape, images, classes, names)
}

// load returns the resized raster of path, decoding it on a cache miss
func (it *DirectoryIterator) load(path string) (*preprocessing.Raster, error) {
	if raster, ok := it.cacheManager.Get(path); ok {
		return raster, nil
	}
	raster, err := it.processor.ProcessFile(path)
	if err != nil {
		return nil, err
	}
	it.cacheManager.Put(path, raster)
	return raster, nil
}

// Stats returns cache statistics
func (it *DirectoryIterator) Stats() string {
	return it.cacheManager.Stats().String()
}

// Progress returns the current position and the dataset size
func (it *DirectoryIterator) Progress() (current, total int) {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.position, len(it.indices)
}

// GetCacheManager returns the cache manager for sharing between iterators
func (it *DirectoryIterator) GetCacheManager() *CacheManager {
	return it.cacheManager
}
