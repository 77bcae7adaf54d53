package dataset

import (
	"fmt"
	"image"
	"path/filepath"

	"github.com/tsawler/xray-harness/vision/preprocessing"
)

// Record is one processed image. It is immutable: accessors hand out copies.
type Record struct {
	raster       *preprocessing.Raster
	intensitySum int64
	filename     string
	sourceDir    string
	cell         Cell
}

// NewRecord creates a record for a file of sourceDir belonging to cell. The
// record takes ownership of raster.
func NewRecord(cell Cell, sourceDir, filename string, raster *preprocessing.Raster) Record {
	return Record{
		raster:       raster,
		intensitySum: raster.Sum(),
		filename:     filename,
		sourceDir:    sourceDir,
		cell:         cell,
	}
}

// Raster returns a copy of the resized raster
func (r Record) Raster() *preprocessing.Raster {
	if r.raster == nil {
		return nil
	}
	return r.raster.Clone()
}

// Image returns the resized image rebuilt from the raster
func (r Record) Image() image.Image {
	if r.raster == nil {
		return nil
	}
	return r.raster.Image()
}

// IntensitySum is the sum of every pixel channel value of the raster
func (r Record) IntensitySum() int64 { return r.intensitySum }

// Filename is the file name, unique within its source directory only
func (r Record) Filename() string { return r.filename }

// SourceDir is the directory the file was read from
func (r Record) SourceDir() string { return r.sourceDir }

// Path is the full path of the source file
func (r Record) Path() string { return filepath.Join(r.sourceDir, r.filename) }

// Label returns the diagnosis
func (r Record) Label() Label { return r.cell.Label }

// Split returns the partition
func (r Record) Split() Split { return r.cell.Split }

// Cell returns the (label, split) pair
func (r Record) Cell() Cell { return r.cell }

// IsTrain reports whether the record belongs to the training split
func (r Record) IsTrain() bool { return r.cell.Split == SplitTrain }

// IsTest reports whether the record belongs to the test split
func (r Record) IsTest() bool { return r.cell.Split == SplitTest }

func (r Record) String() string {
	return fmt.Sprintf("%s [%s] sum=%d", r.filename, r.cell, r.intensitySum)
}
