package training

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// LossType identifies the objective handed to the backend
type LossType int

const (
	BinaryCrossEntropy LossType = iota
	CategoricalCrossEntropy
	MeanSquaredError
)

func (lt LossType) String() string {
	switch lt {
	case BinaryCrossEntropy:
		return "binary_crossentropy"
	case CategoricalCrossEntropy:
		return "categorical_crossentropy"
	case MeanSquaredError:
		return "mse"
	default:
		return fmt.Sprintf("Unknown(%d)", int(lt))
	}
}

// ParseLoss maps a loss name to its LossType
func ParseLoss(name string) (LossType, error) {
	for _, lt := range []LossType{BinaryCrossEntropy, CategoricalCrossEntropy, MeanSquaredError} {
		if strings.EqualFold(name, lt.String()) {
			return lt, nil
		}
	}
	return 0, errors.Errorf("unknown loss %q", name)
}

// lossEpsilon clips probabilities away from 0 and 1
const lossEpsilon = 1e-7

func clip(p float64) float64 {
	return math.Min(math.Max(p, lossEpsilon), 1-lossEpsilon)
}

// Compute returns the mean loss of predictions against targets. Both are
// N×K matrices; for binary cross-entropy K is 1.
func (lt LossType) Compute(predictions, targets *mat.Dense) (float64, error) {
	if predictions == nil || targets == nil {
		return 0, errors.New("loss needs predictions and targets")
	}
	pr, pc := predictions.Dims()
	tr, tc := targets.Dims()
	if pr != tr || pc != tc {
		return 0, errors.Errorf("loss shape mismatch: predictions %dx%d, targets %dx%d", pr, pc, tr, tc)
	}

	perSample := make([]float64, pr)
	for i := 0; i < pr; i++ {
		p, y := predictions.RawRowView(i), targets.RawRowView(i)
		switch lt {
		case BinaryCrossEntropy:
			for j := range p {
				q := clip(p[j])
				perSample[i] -= y[j]*math.Log(q) + (1-y[j])*math.Log(1-q)
			}
			perSample[i] /= float64(pc)
		case CategoricalCrossEntropy:
			for j := range p {
				perSample[i] -= y[j] * math.Log(clip(p[j]))
			}
		case MeanSquaredError:
			perSample[i] = floats.Distance(p, y, 2)
			perSample[i] = perSample[i] * perSample[i] / float64(pc)
		default:
			return 0, errors.Errorf("unsupported loss: %s", lt)
		}
	}
	if pr == 0 {
		return 0, nil
	}
	return floats.Sum(perSample) / float64(pr), nil
}
