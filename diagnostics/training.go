package diagnostics

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/tsawler/xray-harness/training"
	"github.com/tsawler/xray-harness/visualization"
)

// AccuracyRecallPlots returns the per-epoch accuracy and recall curves of a
// run, training solid and validation dashed
func AccuracyRecallPlots(result *training.Result) []visualization.PlotData {
	n := len(result.History)
	acc, valAcc := make([]float64, n), make([]float64, 0, n)
	recall, valRecall := make([]float64, n), make([]float64, 0, n)
	for i, r := range result.History {
		acc[i], recall[i] = r.Accuracy, r.Recall
		if r.Validated {
			valAcc = append(valAcc, r.ValAccuracy)
			valRecall = append(valRecall, r.ValRecall)
		}
	}

	return []visualization.PlotData{
		curvePlot(result, visualization.AccuracyRecallCurves, "Accuracy", acc, valAcc),
		curvePlot(result, visualization.AccuracyRecallCurves, "Recall", recall, valRecall),
	}
}

// LossPlot returns the per-epoch training and validation loss of a run
func LossPlot(result *training.Result) visualization.PlotData {
	loss, valLoss := make([]float64, len(result.History)), make([]float64, 0, len(result.History))
	for i, r := range result.History {
		loss[i] = r.Loss
		if r.Validated {
			valLoss = append(valLoss, r.ValLoss)
		}
	}
	return curvePlot(result, visualization.LossCurves, "Loss", loss, valLoss)
}

func curvePlot(result *training.Result, plotType visualization.PlotType, metric string, train, val []float64) visualization.PlotData {
	epochs := visualization.EpochAxis(len(train))
	plot := visualization.NewPlot(plotType,
		fmt.Sprintf("%s: %s (%d Epochs)", result.ModelName, metric, len(train)), "Epoch", metric)
	plot.ModelName = result.ModelName
	plot.Series = []visualization.SeriesData{visualization.LineSeries("Training Data", epochs, train, false)}
	if len(val) > 0 {
		plot.Series = append(plot.Series, visualization.LineSeries("Validation Data", epochs, val, true))
	}
	return plot
}

// ROCPlot returns the ROC curve of an evaluation. Two-class evaluations plot
// class 1 against class 0; wider ones plot one curve per class against the
// rest. Classes without both positive and negative samples are skipped.
func ROCPlot(modelName string, classNames []string, eval *training.Evaluation) (visualization.PlotData, error) {
	plot := visualization.NewPlot(visualization.ROCCurvePlot, modelName+": ROC Curve", "False Positive Rate", "True Positive Rate")
	plot.ModelName = modelName

	classes := []int{1}
	if eval.Confusion.NumClasses > 2 {
		classes = make([]int, eval.Confusion.NumClasses)
		for i := range classes {
			classes[i] = i
		}
	}

	for _, class := range classes {
		points, err := eval.ROC(class)
		if err != nil {
			continue
		}
		xs := make([]interface{}, len(points))
		ys := make([]float64, len(points))
		for i, p := range points {
			xs[i], ys[i] = p.FPR, p.TPR
		}
		name := fmt.Sprintf("AUC = %.2f", training.AUC(points))
		if len(classes) > 1 {
			name = fmt.Sprintf("%s (%s)", className(classNames, class), name)
		}
		plot.Series = append(plot.Series, visualization.LineSeries(name, xs, ys, false))
	}
	if len(plot.Series) == 0 {
		return plot, errors.New("ROC curve needs both positive and negative samples")
	}

	plot.Metrics = map[string]interface{}{"auc": eval.AUC()}
	return plot, nil
}

// ConfusionMatrixPlot returns the confusion matrix of an evaluation as a heatmap
func ConfusionMatrixPlot(modelName string, classNames []string, eval *training.Evaluation) visualization.PlotData {
	plot := visualization.NewPlot(visualization.ConfusionMatrixPlot, modelName+": Confusion Matrix", "Predicted Label", "True Label")
	plot.ModelName = modelName
	plot.Series = []visualization.SeriesData{visualization.HeatmapSeries("Confusion Matrix", eval.Confusion.Matrix, classNames)}
	plot.Metrics = map[string]interface{}{
		"accuracy":      eval.Accuracy(),
		"recall":        eval.Recall(),
		"total_samples": eval.Confusion.TotalSamples,
	}
	return plot
}

// WeightDriftPlot returns the summed absolute weight change between every
// pair of consecutive epochs of a run
func WeightDriftPlot(result *training.Result) (visualization.PlotData, error) {
	drift, err := result.Snapshots.Drift()
	if err != nil {
		return visualization.PlotData{}, errors.Wrap(err, "failed to compute weight drift")
	}

	plot := visualization.NewPlot(visualization.WeightDriftPlot,
		result.ModelName+": Tracking Changes in Weights Across Epochs", "Epoch Pair", "Total Difference between all weights")
	plot.ModelName = result.ModelName
	pairs := make([]interface{}, len(drift))
	for e := range drift {
		pairs[e] = fmt.Sprintf("(%d, %d)", e+1, e+2)
	}
	series := visualization.LineSeries("Weight Drift", pairs, drift, false)
	series.Style["markers"] = true
	plot.Series = []visualization.SeriesData{series}
	return plot, nil
}

// TrainingReport returns every training diagnostic of a run: accuracy and
// recall curves, loss curves, ROC curve, confusion matrix and weight drift.
// eval is the run's model evaluated on held-out data. An undefined ROC curve
// is left out.
func TrainingReport(result *training.Result, eval *training.Evaluation) ([]visualization.PlotData, error) {
	plots := AccuracyRecallPlots(result)
	plots = append(plots, LossPlot(result))
	if roc, err := ROCPlot(result.ModelName, result.ClassNames, eval); err == nil {
		plots = append(plots, roc)
	}
	plots = append(plots, ConfusionMatrixPlot(result.ModelName, result.ClassNames, eval))
	drift, err := WeightDriftPlot(result)
	if err != nil {
		return nil, err
	}
	return append(plots, drift), nil
}

func className(names []string, i int) string {
	if i < len(names) {
		return names[i]
	}
	return fmt.Sprint(i)
}
