// Package training drives a learning backend over a tensor bundle and keeps
// the per-epoch history and weight snapshots of each run.
package training

import (
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tsawler/xray-harness/checkpoints"
	"github.com/tsawler/xray-harness/layers"
	"github.com/tsawler/xray-harness/tensor"
	"github.com/tsawler/xray-harness/vision/dataset"
	"gonum.org/v1/gonum/mat"
)

// OptimizerType identifies the update rule handed to the backend
type OptimizerType int

const (
	SGD OptimizerType = iota
	Adam
	RMSProp
)

func (ot OptimizerType) String() string {
	switch ot {
	case SGD:
		return "sgd"
	case Adam:
		return "adam"
	case RMSProp:
		return "rmsprop"
	default:
		return fmt.Sprintf("Unknown(%d)", int(ot))
	}
}

// ParseOptimizer maps an optimizer name to its OptimizerType
func ParseOptimizer(name string) (OptimizerType, error) {
	for _, ot := range []OptimizerType{SGD, Adam, RMSProp} {
		if strings.EqualFold(name, ot.String()) {
			return ot, nil
		}
	}
	return 0, errors.Errorf("unknown optimizer %q", name)
}

// TrainerConfig holds configuration for one training run
type TrainerConfig struct {
	ModelName       string
	Model           *layers.ModelSpec // ordered, compiled topology
	Optimizer       OptimizerType
	LearningRate    float64
	Loss            LossType
	Metrics         []MetricType // reported per epoch in addition to loss, accuracy and recall
	Scheme          dataset.Scheme
	Epochs          int
	BatchSize       int
	ValidationSplit float64 // fraction taken from the end of the training bundle
	Shuffle         bool    // reshuffle the training partition every epoch
	Seed            uint64
	Logger          *log.Logger
	Progress        io.Writer // per-batch progress bar; nil disables it
}

// DefaultTrainerConfig returns a two-class configuration without a model
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		ModelName:       "model",
		Optimizer:       Adam,
		LearningRate:    0.001,
		Loss:            BinaryCrossEntropy,
		Metrics:         []MetricType{Recall},
		Scheme:          dataset.SchemeTwoClass,
		Epochs:          10,
		BatchSize:       32,
		ValidationSplit: 0.2,
		Shuffle:         true,
		Seed:            42,
	}
}

func (c TrainerConfig) validate() error {
	if c.Model == nil || !c.Model.Compiled {
		return errors.New("trainer needs a compiled model")
	}
	want := 1
	if c.Scheme != dataset.SchemeTwoClass {
		want = c.Scheme.NumClasses()
	}
	if got := c.Model.OutputUnits(); got != want {
		return errors.Errorf("%s scheme needs %d output units, model has %d", c.Scheme, want, got)
	}
	if c.Epochs <= 0 {
		return errors.Errorf("epochs must be positive, got %d", c.Epochs)
	}
	if c.BatchSize <= 0 {
		return errors.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.ValidationSplit < 0 || c.ValidationSplit >= 1 {
		return errors.Errorf("validation split must be in [0, 1), got %g", c.ValidationSplit)
	}
	if c.LearningRate <= 0 {
		return errors.Errorf("learning rate must be positive, got %g", c.LearningRate)
	}
	return nil
}

// BuildConfig is what a Backend needs to instantiate a model
type BuildConfig struct {
	Optimizer    OptimizerType
	LearningRate float64
	Loss         LossType
	Seed         uint64
}

// Backend turns a topology into a trainable model. It owns the numerics.
type Backend interface {
	Build(spec *layers.ModelSpec, config BuildConfig) (Model, error)
}

// Model is a trainable network produced by a Backend. Inputs hold one
// flattened image per row; targets and predictions hold N×1 probabilities
// of class 1 for two classes or N×K class probabilities otherwise.
type Model interface {
	TrainBatch(x, y *mat.Dense) error
	Predict(x *mat.Dense) (*mat.Dense, error)
	Weights() []checkpoints.WeightTensor
}

// EpochRecord holds metrics for a single epoch
type EpochRecord struct {
	Epoch       int
	Loss        float64
	Accuracy    float64
	Recall      float64
	ValLoss     float64
	ValAccuracy float64
	ValRecall   float64
	Validated   bool
	Metrics     map[string]float64
	ValMetrics  map[string]float64
	Duration    time.Duration
	BatchCount  int
}

// Result is the outcome of Driver.Fit
type Result struct {
	RunID      string
	ModelName  string
	Scheme     dataset.Scheme
	ClassNames []string
	History    []EpochRecord
	Snapshots  *SnapshotMap
	Model      Model
	Spec       *layers.ModelSpec
}

// Checkpoint packages the run's snapshots for persistence
func (r *Result) Checkpoint() *checkpoints.Checkpoint {
	return &checkpoints.Checkpoint{
		RunID:     r.RunID,
		ModelName: r.ModelName,
		ModelSpec: r.Spec,
		Snapshots: r.Snapshots.Snapshots(),
		Metadata: checkpoints.CheckpointMetadata{
			Description: fmt.Sprintf("%s %s run", r.ModelName, r.Scheme),
			Tags:        []string{r.Scheme.String()},
		},
	}
}

// Driver fits models produced by a backend against tensor bundles
type Driver struct {
	backend Backend
	config  TrainerConfig
	logger  *log.Logger
}

// NewDriver creates a new Driver
func NewDriver(backend Backend, config TrainerConfig) (*Driver, error) {
	if backend == nil {
		return nil, errors.New("driver needs a backend")
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Driver{backend: backend, config: config, logger: logger}, nil
}

// Config returns the driver configuration
func (d *Driver) Config() TrainerConfig {
	return d.config
}

// Fit builds a fresh model and trains it on bundle. The last ValidationSplit
// fraction of the bundle is held out for validation. Mini-batches are
// gathered into fresh matrices, so bundle is never modified. Every call
// starts a new run id and an empty snapshot map.
func (d *Driver) Fit(bundle *tensor.Bundle) (*Result, error) {
	if err := d.checkBundle(bundle); err != nil {
		return nil, err
	}

	n := bundle.Len()
	splitAt := int(float64(n) * (1 - d.config.ValidationSplit))
	if splitAt == 0 {
		return nil, errors.Errorf("no training samples left after a %g validation split of %d", d.config.ValidationSplit, n)
	}
	trainIdx := indexRange(0, splitAt)
	valIdx := indexRange(splitAt, n)
	train := bundle.Gather(trainIdx)
	var val *tensor.Bundle
	if len(valIdx) > 0 {
		val = bundle.Gather(valIdx)
	}

	model, err := d.backend.Build(d.config.Model, BuildConfig{
		Optimizer:    d.config.Optimizer,
		LearningRate: d.config.LearningRate,
		Loss:         d.config.Loss,
		Seed:         d.config.Seed,
	})
	if err != nil {
		return nil, errors.Wrap(err, "backend failed to build model")
	}

	result := &Result{
		RunID:      checkpoints.NewRunID(),
		ModelName:  d.config.ModelName,
		Scheme:     d.config.Scheme,
		ClassNames: append([]string(nil), bundle.ClassNames...),
		Snapshots:  NewSnapshotMap(),
		Model:      model,
		Spec:       d.config.Model,
	}
	d.logger.Printf("Run %s: training %s on %d samples, validating on %d", result.RunID, d.config.ModelName, len(trainIdx), len(valIdx))

	rng := rand.New(rand.NewPCG(d.config.Seed, d.config.Seed^0x9e3779b97f4a7c15))
	order := indexRange(0, len(trainIdx))

	for epoch := 0; epoch < d.config.Epochs; epoch++ {
		start := time.Now()
		if d.config.Shuffle {
			rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		}

		batches, err := d.trainEpoch(model, train, order, epoch)
		if err != nil {
			return nil, err
		}

		record := EpochRecord{Epoch: epoch, BatchCount: batches}
		trainEval, err := Evaluate(model, train, d.config.Loss)
		if err != nil {
			return nil, errors.Wrapf(err, "epoch %d: evaluating training partition", epoch)
		}
		record.Loss, record.Accuracy, record.Recall = trainEval.Loss, trainEval.Accuracy(), trainEval.Recall()
		record.Metrics = trainEval.Metrics(d.config.Metrics)

		if val != nil {
			valEval, err := Evaluate(model, val, d.config.Loss)
			if err != nil {
				return nil, errors.Wrapf(err, "epoch %d: evaluating validation partition", epoch)
			}
			record.Validated = true
			record.ValLoss, record.ValAccuracy, record.ValRecall = valEval.Loss, valEval.Accuracy(), valEval.Recall()
			record.ValMetrics = valEval.Metrics(d.config.Metrics)
		}

		if err := result.Snapshots.Record(epoch, model.Weights()); err != nil {
			return nil, err
		}
		record.Duration = time.Since(start)
		result.History = append(result.History, record)
		d.logEpoch(record)
	}

	return result, nil
}

func (d *Driver) checkBundle(bundle *tensor.Bundle) error {
	if bundle == nil || bundle.Len() == 0 {
		return errors.New("cannot train on an empty bundle")
	}
	if err := bundle.Validate(-1); err != nil {
		return err
	}
	if bundle.NumClasses() != d.config.Scheme.NumClasses() {
		return errors.Errorf("%s scheme needs %d classes, bundle has %d", d.config.Scheme, d.config.Scheme.NumClasses(), bundle.NumClasses())
	}
	if (d.config.Scheme == dataset.SchemeTwoClass) != bundle.IsBinary() {
		return errors.Errorf("bundle label encoding does not match the %s scheme", d.config.Scheme)
	}
	if want := d.config.Model.InputShape; len(want) > 1 {
		size := 1
		for _, dim := range want[1:] {
			size *= dim
		}
		if size != bundle.Shape.SampleSize() {
			return errors.Errorf("model input %v does not match bundle samples %s", want, bundle.Shape)
		}
	}
	return nil
}

// trainEpoch runs one pass over the training partition in the given order
func (d *Driver) trainEpoch(model Model, train *tensor.Bundle, order []int, epoch int) (int, error) {
	total := (len(order) + d.config.BatchSize - 1) / d.config.BatchSize
	var bar *ProgressBar
	if d.config.Progress != nil {
		bar = NewProgressBar(d.config.Progress, fmt.Sprintf("Epoch %d/%d", epoch+1, d.config.Epochs), total)
	}

	batch := 0
	for from := 0; from < len(order); from += d.config.BatchSize {
		to := min(from+d.config.BatchSize, len(order))
		sub := train.Gather(order[from:to])
		if err := model.TrainBatch(sub.Images, sub.LabelMatrix()); err != nil {
			return batch, errors.Wrapf(err, "epoch %d batch %d", epoch, batch)
		}
		batch++
		if bar != nil {
			bar.Update(batch, nil)
		}
	}
	if bar != nil {
		bar.Finish()
	}
	return batch, nil
}

func (d *Driver) logEpoch(r EpochRecord) {
	line := fmt.Sprintf("Epoch %d/%d: loss=%.4f acc=%.4f recall=%.4f", r.Epoch+1, d.config.Epochs, r.Loss, r.Accuracy, r.Recall)
	if r.Validated {
		line += fmt.Sprintf(" | val_loss=%.4f val_acc=%.4f val_recall=%.4f", r.ValLoss, r.ValAccuracy, r.ValRecall)
	}
	d.logger.Printf("%s (%s)", line, r.Duration.Round(time.Millisecond))
}

func indexRange(from, to int) []int {
	out := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}
