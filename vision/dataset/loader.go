package dataset

import (
	"log"
	"path/filepath"

	"github.com/klauspost/cpuid/v2"
	"github.com/pkg/errors"
	"github.com/tsawler/xray-harness/vision/preprocessing"
)

// LoaderConfig holds the configuration of a Loader
type LoaderConfig struct {
	Root       string      // Folder containing chest_xray/
	TargetSize int         // Square resolution every image is resized to
	Workers    int         // Parallel decoders per cell; 1 decodes sequentially
	Extensions []string    // Image extensions; nil means DefaultExtensions
	Logger     *log.Logger // nil means log.Default()
}

// DefaultLoaderConfig returns the default configuration rooted at "data",
// decoding with one worker per physical core
func DefaultLoaderConfig() LoaderConfig {
	return LoaderConfig{
		Root:       "data",
		TargetSize: preprocessing.DefaultTargetSize,
		Workers:    defaultWorkers(),
		Extensions: DefaultExtensions,
	}
}

func defaultWorkers() int {
	if n := cpuid.CPU.PhysicalCores; n > 0 {
		return n
	}
	return 1
}

func (c LoaderConfig) validate() error {
	if c.Root == "" {
		return errors.New("loader root must not be empty")
	}
	if c.TargetSize <= 0 {
		return errors.Errorf("target size must be positive, got %d", c.TargetSize)
	}
	if c.Workers < 0 {
		return errors.Errorf("workers must not be negative, got %d", c.Workers)
	}
	return nil
}

// Loader walks the six (label, split) directories, decodes and resizes every
// image and emits one Record per file. The first unreadable image aborts the
// whole load.
type Loader struct {
	config    LoaderConfig
	layout    Layout
	processor *preprocessing.ImageProcessor
	logger    *log.Logger
}

// NewLoader creates a loader
func NewLoader(config LoaderConfig) (*Loader, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if config.Workers == 0 {
		config.Workers = 1
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Loader{
		config:    config,
		layout:    NewLayout(config.Root),
		processor: preprocessing.NewImageProcessor(config.TargetSize, config.TargetSize),
		logger:    logger,
	}, nil
}

// Layout returns the directory taxonomy the loader reads
func (l *Loader) Layout() Layout {
	return l.layout
}

// Load reads every cell. It returns the records per cell together with the
// number of image files found in each cell directory. All six directories
// are checked before any image is decoded.
func (l *Loader) Load() (map[Cell][]Record, map[Cell]int, error) {
	dirs := make([]string, len(CellOrder))
	for i, c := range CellOrder {
		dirs[i] = l.layout.CellDir(c)
	}
	if err := checkDirs(dirs); err != nil {
		return nil, nil, err
	}

	records := make(map[Cell][]Record, len(CellOrder))
	counts := make(map[Cell]int, len(CellOrder))

	for _, cell := range CellOrder {
		cellRecords, fileCount, err := l.LoadCell(cell)
		if err != nil {
			return nil, nil, err
		}
		records[cell] = cellRecords
		counts[cell] = fileCount
	}

	return records, counts, nil
}

// LoadCell reads the directory of one cell, returning its records in file
// name order and the number of image files found
func (l *Loader) LoadCell(cell Cell) ([]Record, int, error) {
	dir := l.layout.CellDir(cell)

	names, skipped, err := listImageFiles(dir, l.config.Extensions)
	if err != nil {
		return nil, 0, err
	}
	for _, name := range skipped {
		l.logger.Printf("Skipping %s: not an image file", filepath.Join(dir, name))
	}

	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}

	rasters, err := preprocessing.ProcessFiles(l.processor, paths, l.config.Workers)
	if err != nil {
		var batchErr *preprocessing.BatchError
		if errors.As(err, &batchErr) {
			return nil, 0, &UnreadableImageError{Path: batchErr.Path, Err: batchErr.Err}
		}
		return nil, 0, err
	}

	records := make([]Record, len(names))
	for i, name := range names {
		records[i] = NewRecord(cell, dir, name, rasters[i])
	}

	l.logger.Printf("Loaded %d images for %s from %s", len(records), cell, dir)
	return records, len(names), nil
}

// LoadTable loads every cell and assembles the dataset table
func LoadTable(config LoaderConfig) (*Table, error) {
	loader, err := NewLoader(config)
	if err != nil {
		return nil, err
	}
	records, counts, err := loader.Load()
	if err != nil {
		return nil, err
	}
	return Assemble(records, counts)
}
