package training

import (
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"
	"github.com/tsawler/xray-harness/checkpoints"
	"github.com/tsawler/xray-harness/layers"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// LinearBackend trains single-Dense-layer models: an optional Flatten and
// Dropout, one Dense layer, then Sigmoid (one unit) or Softmax (several).
// It is a reference backend for smoke runs; real networks need an external
// learning framework.
type LinearBackend struct{}

// NewLinearBackend creates a new LinearBackend
func NewLinearBackend() *LinearBackend {
	return &LinearBackend{}
}

// SupportsOptimizer reports whether Build accepts ot
func (lb *LinearBackend) SupportsOptimizer(ot OptimizerType) bool {
	return ot == SGD || ot == Adam
}

// Build implements Backend
func (lb *LinearBackend) Build(spec *layers.ModelSpec, config BuildConfig) (Model, error) {
	if config.Loss != BinaryCrossEntropy && config.Loss != CategoricalCrossEntropy {
		return nil, errors.Errorf("linear backend does not support %s loss", config.Loss)
	}
	if !lb.SupportsOptimizer(config.Optimizer) {
		return nil, errors.Errorf("linear backend does not support the %s optimizer", config.Optimizer)
	}

	dense := -1
	for i, layer := range spec.Layers {
		switch layer.Type {
		case layers.Flatten, layers.Dropout:
			if dense >= 0 {
				return nil, errors.Errorf("layer %s after the dense layer is not supported", layer.Name)
			}
		case layers.Dense:
			if dense >= 0 {
				return nil, errors.New("linear backend supports a single dense layer")
			}
			dense = i
		case layers.Sigmoid, layers.Softmax:
			if dense < 0 || i != len(spec.Layers)-1 {
				return nil, errors.Errorf("activation %s must follow the dense layer and end the model", layer.Name)
			}
		default:
			return nil, errors.Errorf("linear backend does not support %s layer %s", layer.Type, layer.Name)
		}
	}
	if dense < 0 {
		return nil, errors.New("model has no dense layer")
	}

	weights, err := checkpoints.NewWeights(spec)
	if err != nil {
		return nil, err
	}
	in, out := weights[0].Shape[0], weights[0].Shape[1]

	rng := rand.New(rand.NewPCG(config.Seed, config.Seed))
	limit := math.Sqrt(6 / float64(in+out))
	for i := range weights[0].Data {
		weights[0].Data[i] = (2*rng.Float64() - 1) * limit
	}

	m := &linearModel{
		weights: weights,
		w:       mat.NewDense(in, out, weights[0].Data),
		in:      in,
		out:     out,
		config:  config,
	}
	if len(weights) > 1 {
		m.bias = weights[1].Data
	}
	if config.Optimizer == Adam {
		for _, w := range weights {
			m.moment1 = append(m.moment1, make([]float64, len(w.Data)))
			m.moment2 = append(m.moment2, make([]float64, len(w.Data)))
		}
	}
	return m, nil
}

type linearModel struct {
	weights []checkpoints.WeightTensor
	w       *mat.Dense // view of weights[0]
	bias    []float64  // view of weights[1], nil without bias
	in, out int
	config  BuildConfig

	// Adam state
	moment1, moment2 [][]float64
	step             int
}

func (m *linearModel) forward(x *mat.Dense) (*mat.Dense, error) {
	if x == nil {
		return nil, errors.New("nil input")
	}
	if _, c := x.Dims(); c != m.in {
		return nil, errors.Errorf("input has %d features, model expects %d", c, m.in)
	}
	var z mat.Dense
	z.Mul(x, m.w)
	r, _ := z.Dims()
	for i := 0; i < r; i++ {
		row := z.RawRowView(i)
		if m.bias != nil {
			floats.Add(row, m.bias)
		}
		if m.out == 1 {
			row[0] = 1 / (1 + math.Exp(-row[0]))
			continue
		}
		top := floats.Max(row)
		for j := range row {
			row[j] = math.Exp(row[j] - top)
		}
		floats.Scale(1/floats.Sum(row), row)
	}
	return &z, nil
}

// Predict implements Model
func (m *linearModel) Predict(x *mat.Dense) (*mat.Dense, error) {
	return m.forward(x)
}

// TrainBatch takes one gradient step on the batch
func (m *linearModel) TrainBatch(x, y *mat.Dense) error {
	p, err := m.forward(x)
	if err != nil {
		return err
	}
	r, _ := p.Dims()
	if yr, yc := y.Dims(); yr != r || yc != m.out {
		return errors.Errorf("targets are %dx%d, want %dx%d", yr, yc, r, m.out)
	}

	// Sigmoid with binary and softmax with categorical cross-entropy share
	// the output gradient (p - y) / n.
	var g mat.Dense
	g.Sub(p, y)
	g.Scale(1/float64(r), &g)

	var gw mat.Dense
	gw.Mul(x.T(), &g)
	grads := [][]float64{gw.RawMatrix().Data}
	if m.bias != nil {
		gb := make([]float64, m.out)
		for i := 0; i < r; i++ {
			floats.Add(gb, g.RawRowView(i))
		}
		grads = append(grads, gb)
	}

	m.apply(grads)
	return nil
}

func (m *linearModel) apply(grads [][]float64) {
	lr := m.config.LearningRate
	if m.config.Optimizer == SGD {
		for i, g := range grads {
			floats.AddScaled(m.weights[i].Data, -lr, g)
		}
		return
	}

	const beta1, beta2, eps = 0.9, 0.999, 1e-7
	m.step++
	c1 := 1 - math.Pow(beta1, float64(m.step))
	c2 := 1 - math.Pow(beta2, float64(m.step))
	for i, g := range grads {
		p, m1, m2 := m.weights[i].Data, m.moment1[i], m.moment2[i]
		for j := range g {
			m1[j] = beta1*m1[j] + (1-beta1)*g[j]
			m2[j] = beta2*m2[j] + (1-beta2)*g[j]*g[j]
			p[j] -= lr * (m1[j] / c1) / (math.Sqrt(m2[j]/c2) + eps)
		}
	}
}

// Weights implements Model
func (m *linearModel) Weights() []checkpoints.WeightTensor {
	return checkpoints.CloneWeights(m.weights)
}
