// Command xrayprep preprocesses a chest X-ray dataset, reports dataset
// diagnostics and optionally trains a reference linear classifier on it.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/tsawler/xray-harness/checkpoints"
	"github.com/tsawler/xray-harness/diagnostics"
	"github.com/tsawler/xray-harness/layers"
	"github.com/tsawler/xray-harness/pipeline"
	"github.com/tsawler/xray-harness/training"
	"github.com/tsawler/xray-harness/vision/dataset"
	"github.com/tsawler/xray-harness/visualization"
)

type options struct {
	preprocess pipeline.Config

	train      bool
	scheme     string
	modelName  string
	epochs     int
	batchSize  int
	lr         float64
	optimizer  string
	checkpoint string
	format     string
	plotServer string
	bins       int
}

func parseFlags(args []string) (options, error) {
	opts := options{preprocess: pipeline.DefaultConfig()}
	trainer := training.DefaultTrainerConfig()

	fs := flag.NewFlagSet("xrayprep", flag.ContinueOnError)
	fs.StringVar(&opts.preprocess.Root, "root", opts.preprocess.Root, "folder containing chest_xray/")
	fs.IntVar(&opts.preprocess.TargetSize, "size", opts.preprocess.TargetSize, "square image resolution")
	fs.Float64Var(&opts.preprocess.RotationRange, "rotation", opts.preprocess.RotationRange, "maximum training rotation in degrees")
	fs.Float64Var(&opts.preprocess.ZoomRange, "zoom", opts.preprocess.ZoomRange, "maximum training zoom deviation")
	fs.Uint64Var(&opts.preprocess.Seed, "seed", opts.preprocess.Seed, "seed for shuffling, augmentation and training")
	fs.IntVar(&opts.preprocess.Workers, "workers", opts.preprocess.Workers, "parallel image decoders")
	fs.BoolVar(&opts.preprocess.Shuffle, "shuffle", opts.preprocess.Shuffle, "shuffle samples inside each bundle")
	fs.IntVar(&opts.bins, "bins", diagnostics.DefaultBins, "intensity histogram bins")

	fs.BoolVar(&opts.train, "train", false, "train the reference linear classifier")
	fs.StringVar(&opts.scheme, "scheme", "two", "classification scheme: two or three")
	fs.StringVar(&opts.modelName, "model", "linear", "model name used in logs and plots")
	fs.IntVar(&opts.epochs, "epochs", trainer.Epochs, "training epochs")
	fs.IntVar(&opts.batchSize, "batch", trainer.BatchSize, "mini-batch size")
	fs.Float64Var(&opts.lr, "lr", trainer.LearningRate, "learning rate")
	fs.StringVar(&opts.optimizer, "optimizer", trainer.Optimizer.String(), "optimizer: sgd or adam")
	fs.StringVar(&opts.checkpoint, "checkpoint", "", "write weight snapshots to this file")
	fs.StringVar(&opts.format, "format", "json", "checkpoint format: json or wire")
	fs.StringVar(&opts.plotServer, "plot-server", "", "send plot data to the plotting service at this URL")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	return opts, nil
}

// trainPlan holds the training settings resolved before any image is read
type trainPlan struct {
	scheme    dataset.Scheme
	optimizer training.OptimizerType
	format    checkpoints.CheckpointFormat
}

func planTraining(opts options, backend *training.LinearBackend) (trainPlan, error) {
	var plan trainPlan
	var err error
	if plan.scheme, err = parseScheme(opts.scheme); err != nil {
		return plan, err
	}
	if plan.optimizer, err = training.ParseOptimizer(opts.optimizer); err != nil {
		return plan, err
	}
	if !backend.SupportsOptimizer(plan.optimizer) {
		return plan, errors.Errorf("optimizer %s is not supported by the linear backend", plan.optimizer)
	}
	if plan.format, err = parseFormat(opts.format); err != nil {
		return plan, err
	}
	return plan, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if err := run(opts, os.Stdout); err != nil {
		log.Fatalf("xrayprep: %v", err)
	}
}

func run(opts options, out io.Writer) error {
	logger := log.Default()
	opts.preprocess.Logger = logger

	backend := training.NewLinearBackend()
	var plan trainPlan
	if opts.train {
		var err error
		if plan, err = planTraining(opts, backend); err != nil {
			return err
		}
	}

	result, err := pipeline.Preprocess(opts.preprocess)
	if err != nil {
		return errors.Wrap(err, "preprocessing failed")
	}
	fmt.Fprint(out, result.Table)

	plots, err := datasetDiagnostics(result.Table, opts.bins, out, logger)
	if err != nil {
		return err
	}

	if opts.train {
		trainingPlots, err := train(opts, plan, backend, result, out)
		if err != nil {
			return err
		}
		plots = append(plots, trainingPlots...)
	}

	if opts.plotServer != "" {
		return sendPlots(opts.plotServer, plots, logger)
	}
	return nil
}

func datasetDiagnostics(table *dataset.Table, bins int, out io.Writer, logger *log.Logger) ([]visualization.PlotData, error) {
	totals, distribution := diagnostics.ClassDistribution(table)
	plots := []visualization.PlotData{distribution}
	for _, lt := range totals {
		fmt.Fprintf(out, "%-10s train=%d test=%d total=%d\n", lt.Label, lt.Train, lt.Test, lt.Total())
	}

	for _, scheme := range dataset.Schemes() {
		report, err := diagnostics.IntensityDistribution(table, scheme, bins)
		if err != nil {
			return nil, errors.Wrapf(err, "%s intensity distribution", scheme)
		}
		for _, g := range report.Groups {
			fmt.Fprintf(out, "%s %-10s n=%d mean gs-sum=%.0f\n", scheme, g.Name, g.Count, g.Mean)
		}
		plots = append(plots, report.Plot())
	}

	for _, mode := range []diagnostics.ExtremeMode{diagnostics.Global, diagnostics.PerLabel} {
		pairs, err := diagnostics.DarkVsLight(table, mode)
		if errors.Is(err, dataset.ErrEmptyQueryResult) {
			logger.Printf("Skipping darkest vs lightest: %v", err)
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "darkest vs lightest")
		}
		for _, p := range pairs {
			fmt.Fprintf(out, "%-10s darkest=%s (%d) lightest=%s (%d)\n", p.Group,
				p.Darkest.Path(), p.Darkest.IntensitySum(), p.Lightest.Path(), p.Lightest.IntensitySum())
		}
		plots = append(plots, diagnostics.DarkVsLightPlot(pairs))
	}
	return plots, nil
}

func parseScheme(name string) (dataset.Scheme, error) {
	switch strings.ToLower(name) {
	case "two", "binary", "2":
		return dataset.SchemeTwoClass, nil
	case "three", "ternary", "3":
		return dataset.SchemeThreeClass, nil
	}
	return 0, errors.Errorf("unknown scheme %q", name)
}

func parseFormat(name string) (checkpoints.CheckpointFormat, error) {
	switch strings.ToLower(name) {
	case "json":
		return checkpoints.FormatJSON, nil
	case "wire", "protowire":
		return checkpoints.FormatProtowire, nil
	}
	return 0, errors.Errorf("unknown checkpoint format %q", name)
}

// linearModel is the topology the reference backend can train
func linearModel(scheme dataset.Scheme, batchSize, size int) (*layers.ModelSpec, error) {
	builder := layers.NewModelBuilder([]int{batchSize, size, size, 3}).AddFlatten("flatten")
	if scheme == dataset.SchemeTwoClass {
		return builder.AddDense(1, true, "output").AddSigmoid("sigmoid").Compile()
	}
	return builder.AddDense(scheme.NumClasses(), true, "output").AddSoftmax(-1, "softmax").Compile()
}

func train(opts options, plan trainPlan, backend training.Backend, result *pipeline.Result, out io.Writer) ([]visualization.PlotData, error) {
	scheme := plan.scheme
	spec, err := linearModel(scheme, opts.batchSize, opts.preprocess.TargetSize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compile model")
	}
	training.PrintArchitecture(out, opts.modelName, spec)

	config := training.DefaultTrainerConfig()
	config.ModelName = opts.modelName
	config.Model = spec
	config.Scheme = scheme
	config.Optimizer = plan.optimizer
	config.LearningRate = opts.lr
	config.Epochs = opts.epochs
	config.BatchSize = opts.batchSize
	config.Seed = opts.preprocess.Seed
	config.Metrics = []training.MetricType{training.Precision, training.AUCROC}
	config.Progress = out
	if scheme == dataset.SchemeThreeClass {
		config.Loss = training.CategoricalCrossEntropy
		config.Metrics = []training.MetricType{training.MacroPrecision, training.MacroF1, training.AUCROC}
	}

	driver, err := training.NewDriver(backend, config)
	if err != nil {
		return nil, err
	}
	fit, err := driver.Fit(result.Bundle(scheme, dataset.SplitTrain))
	if err != nil {
		return nil, errors.Wrap(err, "training failed")
	}

	test := result.Bundle(scheme, dataset.SplitTest)
	eval, err := training.Evaluate(fit.Model, test, config.Loss)
	if err != nil {
		return nil, errors.Wrap(err, "test evaluation failed")
	}
	fmt.Fprintf(out, "Test: loss=%.4f acc=%.4f recall=%.4f auc=%.4f\n", eval.Loss, eval.Accuracy(), eval.Recall(), eval.AUC())

	if opts.checkpoint != "" {
		if err := checkpoints.NewCheckpointSaver(plan.format).SaveCheckpoint(fit.Checkpoint(), opts.checkpoint); err != nil {
			return nil, err
		}
		fmt.Fprintf(out, "Saved %d snapshots of run %s to %s\n", fit.Snapshots.Len(), fit.RunID, opts.checkpoint)
	}

	return diagnostics.TrainingReport(fit, eval)
}

func sendPlots(url string, plots []visualization.PlotData, logger *log.Logger) error {
	config := visualization.DefaultPlottingServiceConfig()
	config.BaseURL = url
	service := visualization.NewPlottingService(config)
	service.Enable()

	if err := service.CheckHealth(); err != nil {
		return errors.Wrap(err, "plotting service unavailable")
	}
	resp, err := service.BatchSendPlots(plots)
	if err != nil {
		return err
	}
	logger.Printf("Sent %d plots: %d successful, %d failed", resp.Summary.TotalPlots, resp.Summary.Successful, resp.Summary.Failed)
	for _, r := range resp.Results {
		if r.Success {
			logger.Printf("  %s: %s", r.PlotType, url+r.ViewURL)
		}
	}
	return nil
}
