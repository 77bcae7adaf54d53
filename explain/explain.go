// Package explain selects the darkest and lightest scans of each class and
// hands them to an external explainer together with the model's predictor.
package explain

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/tsawler/xray-harness/tensor"
	"github.com/tsawler/xray-harness/training"
	"github.com/tsawler/xray-harness/vision/dataset"
	"github.com/tsawler/xray-harness/vision/preprocessing"
	"github.com/tsawler/xray-harness/visualization"
	"gonum.org/v1/gonum/mat"
)

// PredictFunc maps a batch of images, one HWC row per image with values in
// [0, 1], to one row of class probabilities per image
type PredictFunc func(batch *mat.Dense) (*mat.Dense, error)

// Image is a single decoded and rescaled scan
type Image struct {
	Shape  tensor.Shape
	Pixels []float64 // HWC order, values in [0, 1]
}

// Batch returns the image as a one-row batch
func (img Image) Batch() *mat.Dense {
	return mat.NewDense(1, len(img.Pixels), img.Pixels)
}

// Explanation is the result of an explainer run
type Explanation struct {
	TopLabels []int     // Classes ordered by explained relevance
	Mask      []float64 // One weight per pixel, row-major, for TopLabels[0]
}

// Explainer produces a local explanation of the predictions for one image
type Explainer interface {
	Explain(img Image, predict PredictFunc) (*Explanation, error)
}

// ModelPredictor adapts a trained model to a PredictFunc
func ModelPredictor(model training.Model) PredictFunc {
	return model.Predict
}

// Target is one scan selected for explanation
type Target struct {
	Group   string // Class group the scan was selected from
	Extreme string // "Darkest" or "Lightest"
	Record  dataset.Record
	Path    string // Source file resolved from the record's label and split
}

type group struct {
	name   string
	filter dataset.Filter
}

func schemeGroups(scheme dataset.Scheme) []group {
	if scheme == dataset.SchemeTwoClass {
		return []group{
			{"normal", dataset.ByLabel(dataset.LabelNormal)},
			{"pneumonia", dataset.Pneumonia()},
		}
	}
	groups := make([]group, 0, 3)
	for _, l := range dataset.Labels() {
		groups = append(groups, group{l.String(), dataset.ByLabel(l)})
	}
	return groups
}

// Targets selects the darkest and lightest record of every class group of
// scheme: normal and pneumonia for two classes, one group per label for
// three. Ties resolve to the first row in table order. Groups without rows
// are left out; ErrEmptyQueryResult is returned when every group is empty.
func Targets(table *dataset.Table, layout dataset.Layout, scheme dataset.Scheme) ([]Target, error) {
	groups := schemeGroups(scheme)
	targets := make([]Target, 0, 2*len(groups))
	for _, g := range groups {
		if table.Count(g.filter) == 0 {
			continue
		}
		for _, dir := range []dataset.Direction{dataset.Min, dataset.Max} {
			r, err := table.Extremum(dir, g.filter)
			if err != nil {
				return nil, errors.Wrapf(err, "no %s image to explain", g.name)
			}
			extreme := "Darkest"
			if dir == dataset.Max {
				extreme = "Lightest"
			}
			targets = append(targets, Target{
				Group:   g.name,
				Extreme: extreme,
				Record:  r,
				Path:    filepath.Join(layout.CellDir(r.Cell()), r.Filename()),
			})
		}
	}
	if len(targets) == 0 {
		return nil, dataset.ErrEmptyQueryResult
	}
	return targets, nil
}

// Config holds explanation parameters
type Config struct {
	TargetSize int // Square resolution expected by the model
	Logger     *log.Logger
}

// Report is the explanation of one target
type Report struct {
	Target
	Score          int64     // Intensity sum of the scan
	PredictedValue float64   // First model output, the pneumonia probability of two-class models
	Probabilities  []float64 // Every model output
	PredictedClass int
	ActualClass    string
	Explanation    *Explanation
}

func (r Report) String() string {
	return fmt.Sprintf("%s X-ray Chest Scan (%s)\nGS-Score = %d\nPredicted Value: %.2f\nPredicted Class #: %d\nActual Class: %s",
		r.Extreme, r.Group, r.Score, r.PredictedValue, r.PredictedClass, r.ActualClass)
}

// Load decodes path, resizes it to size x size RGB and rescales it to [0, 1]
func Load(path string, size int) (Image, error) {
	if _, err := os.Stat(path); err != nil {
		return Image{}, errors.Wrapf(err, "cannot resolve source file")
	}
	raster, err := preprocessing.NewImageProcessor(size, size).WithRGB().ProcessFile(path)
	if err != nil {
		return Image{}, &dataset.UnreadableImageError{Path: path, Err: err}
	}
	pixels := make([]float64, raster.Len())
	if err := raster.Scale(pixels, 1.0/255); err != nil {
		return Image{}, err
	}
	return Image{
		Shape:  tensor.Shape{N: 1, Height: size, Width: size, Channels: raster.Channels},
		Pixels: pixels,
	}, nil
}

// Explain runs explainer over every target. Each image is decoded from its
// source file, predicted once and passed to explainer with predict.
func Explain(targets []Target, explainer Explainer, predict PredictFunc, config Config) ([]Report, error) {
	if config.TargetSize <= 0 {
		return nil, errors.Errorf("target size must be positive, got %d", config.TargetSize)
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}

	reports := make([]Report, 0, len(targets))
	for _, target := range targets {
		img, err := Load(target.Path, config.TargetSize)
		if err != nil {
			return nil, err
		}

		predictions, err := predict(img.Batch())
		if err != nil {
			return nil, errors.Wrapf(err, "prediction failed for %s", target.Path)
		}
		if r, c := predictions.Dims(); r != 1 || c == 0 {
			return nil, errors.Errorf("predictor returned %dx%d outputs for one image", r, c)
		}

		explanation, err := explainer.Explain(img, predict)
		if err != nil {
			return nil, errors.Wrapf(err, "explainer failed for %s", target.Path)
		}

		report := Report{
			Target:         target,
			Score:          target.Record.IntensitySum(),
			PredictedValue: predictions.At(0, 0),
			Probabilities:  mat.Row(nil, 0, predictions),
			PredictedClass: training.PredictedClasses(predictions)[0],
			ActualClass:    strings.ToUpper(target.Record.Label().String()),
			Explanation:    explanation,
		}
		logger.Printf("Explained %s %s image %s: predicted class %d (%.2f), actual %s",
			target.Extreme, target.Group, target.Record.Filename(), report.PredictedClass, report.PredictedValue, report.ActualClass)
		reports = append(reports, report)
	}
	return reports, nil
}

// Plot returns the predicted value of every report as one bar per target,
// labelled with the report summary
func Plot(modelName string, reports []Report) visualization.PlotData {
	plot := visualization.NewPlot(visualization.ExplanationPlot, modelName+": Explained Scans", "Scan", "Predicted Value")
	plot.ModelName = modelName
	series := visualization.SeriesData{Name: "Predicted Value", Type: "bar"}
	for _, r := range reports {
		series.Data = append(series.Data, visualization.DataPoint{
			X:     fmt.Sprintf("%s %s", r.Extreme, r.Group),
			Y:     r.PredictedValue,
			Label: r.String(),
		})
	}
	plot.Series = []visualization.SeriesData{series}
	return plot
}
