package training

import (
	"github.com/pkg/errors"
	"github.com/tsawler/xray-harness/tensor"
	"gonum.org/v1/gonum/mat"
)

// Evaluation holds a model's predictions over one bundle
type Evaluation struct {
	Loss        float64
	Predictions *mat.Dense // N×1 or N×K probabilities
	TrueClasses []int
	Confusion   *ConfusionMatrix
}

// Evaluate predicts every sample of bundle and scores the predictions
func Evaluate(model Model, bundle *tensor.Bundle, loss LossType) (*Evaluation, error) {
	if bundle == nil || bundle.Len() == 0 {
		return nil, errors.New("cannot evaluate an empty bundle")
	}
	predictions, err := model.Predict(bundle.Images)
	if err != nil {
		return nil, errors.Wrap(err, "backend prediction failed")
	}
	if r, _ := predictions.Dims(); r != bundle.Len() {
		return nil, errors.Errorf("backend returned %d predictions for %d samples", r, bundle.Len())
	}

	value, err := loss.Compute(predictions, bundle.LabelMatrix())
	if err != nil {
		return nil, err
	}

	eval := &Evaluation{
		Loss:        value,
		Predictions: predictions,
		TrueClasses: bundle.ClassIndices(),
		Confusion:   NewConfusionMatrix(bundle.NumClasses()),
	}
	if err := eval.Confusion.UpdateFromPredictions(predictions, eval.TrueClasses); err != nil {
		return nil, err
	}
	return eval, nil
}

// Accuracy returns the fraction of correctly classified samples
func (e *Evaluation) Accuracy() float64 {
	return e.Confusion.GetAccuracy()
}

// Recall returns binary recall for two classes and macro recall otherwise
func (e *Evaluation) Recall() float64 {
	return e.Confusion.SchemeRecall()
}

// PredictedClasses returns the predicted class of every sample
func (e *Evaluation) PredictedClasses() []int {
	return PredictedClasses(e.Predictions)
}

// ROC returns the ROC curve with class as the positive class
func (e *Evaluation) ROC(class int) ([]ROCPoint, error) {
	scores, labels := PositiveScores(e.Predictions, e.TrueClasses, class)
	return ROCCurve(scores, labels)
}

// AUC returns the area under the ROC curve. Two-class evaluations use class
// 1 as positive; wider ones average one-vs-rest areas over every class with
// both positive and negative samples.
func (e *Evaluation) AUC() float64 {
	if e.Confusion.NumClasses == 2 {
		points, err := e.ROC(1)
		if err != nil {
			return 0
		}
		return AUC(points)
	}
	sum, n := 0.0, 0
	for class := 0; class < e.Confusion.NumClasses; class++ {
		points, err := e.ROC(class)
		if err != nil {
			continue
		}
		sum += AUC(points)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Metrics computes the requested metrics keyed by name
func (e *Evaluation) Metrics(types []MetricType) map[string]float64 {
	out := make(map[string]float64, len(types))
	for _, mt := range types {
		if mt == AUCROC {
			out[mt.String()] = e.AUC()
			continue
		}
		out[mt.String()] = e.Confusion.GetMetric(mt)
	}
	return out
}
