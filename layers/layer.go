package layers

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// LayerType represents the type of neural network layer
type LayerType int

const (
	Dense LayerType = iota
	Conv2D
	ReLU
	Softmax
	MaxPool2D
	Dropout
	BatchNorm
	Sigmoid
	Flatten
)

func (lt LayerType) String() string {
	switch lt {
	case Dense:
		return "Dense"
	case Conv2D:
		return "Conv2D"
	case ReLU:
		return "ReLU"
	case Softmax:
		return "Softmax"
	case MaxPool2D:
		return "MaxPool2D"
	case Dropout:
		return "Dropout"
	case BatchNorm:
		return "BatchNorm"
	case Sigmoid:
		return "Sigmoid"
	case Flatten:
		return "Flatten"
	default:
		return "Unknown"
	}
}

// LayerSpec is the configuration of one layer. It carries no execution
// logic: the learning backend turns specs into a runnable network.
type LayerSpec struct {
	Type       LayerType              `json:"type"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`

	// Computed during compilation
	InputShape      []int   `json:"input_shape,omitempty"`
	OutputShape     []int   `json:"output_shape,omitempty"`
	ParameterShapes [][]int `json:"parameter_shapes,omitempty"`
	ParameterCount  int64   `json:"parameter_count,omitempty"`
}

// ModelSpec is an ordered, compiled network topology. Shapes use the
// (batch, height, width, channels) layout of the tensor bundles.
type ModelSpec struct {
	Layers []LayerSpec `json:"layers"`

	TotalParameters int64   `json:"total_parameters"`
	ParameterShapes [][]int `json:"parameter_shapes"`
	InputShape      []int   `json:"input_shape"`
	OutputShape     []int   `json:"output_shape"`
	Compiled        bool    `json:"compiled"`
}

// ModelBuilder helps construct neural network models
type ModelBuilder struct {
	layers     []LayerSpec
	inputShape []int
	compiled   bool
}

// NewModelBuilder creates a new model builder. inputShape is
// [batch, height, width, channels] for image input or [batch, features].
func NewModelBuilder(inputShape []int) *ModelBuilder {
	return &ModelBuilder{
		inputShape: append([]int(nil), inputShape...),
	}
}

// AddLayer adds a layer to the model
func (mb *ModelBuilder) AddLayer(layer LayerSpec) *ModelBuilder {
	if layer.Parameters == nil {
		layer.Parameters = map[string]interface{}{}
	}
	mb.layers = append(mb.layers, layer)
	mb.compiled = false
	return mb
}

// AddDense adds a dense layer; the input size is computed during compilation
func (mb *ModelBuilder) AddDense(outputSize int, useBias bool, name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{
		Type: Dense,
		Name: name,
		Parameters: map[string]interface{}{
			"output_size": outputSize,
			"use_bias":    useBias,
		},
	})
}

// AddConv2D adds a square-kernel convolution
func (mb *ModelBuilder) AddConv2D(outputChannels, kernelSize, stride, padding int, useBias bool, name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{
		Type: Conv2D,
		Name: name,
		Parameters: map[string]interface{}{
			"output_channels": outputChannels,
			"kernel_size":     kernelSize,
			"stride":          stride,
			"padding":         padding,
			"use_bias":        useBias,
		},
	})
}

// AddMaxPool2D adds a square max pooling layer
func (mb *ModelBuilder) AddMaxPool2D(poolSize, stride int, name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{
		Type: MaxPool2D,
		Name: name,
		Parameters: map[string]interface{}{
			"pool_size": poolSize,
			"stride":    stride,
		},
	})
}

// AddFlatten collapses every non-batch dimension
func (mb *ModelBuilder) AddFlatten(name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{Type: Flatten, Name: name})
}

// AddReLU adds a ReLU activation
func (mb *ModelBuilder) AddReLU(name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{Type: ReLU, Name: name})
}

// AddSigmoid adds a sigmoid activation, the usual two-class output
func (mb *ModelBuilder) AddSigmoid(name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{Type: Sigmoid, Name: name})
}

// AddSoftmax adds a softmax activation
func (mb *ModelBuilder) AddSoftmax(axis int, name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{
		Type:       Softmax,
		Name:       name,
		Parameters: map[string]interface{}{"axis": axis},
	})
}

// AddDropout adds a dropout layer; rate is the drop probability
func (mb *ModelBuilder) AddDropout(rate float64, name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{
		Type:       Dropout,
		Name:       name,
		Parameters: map[string]interface{}{"rate": rate},
	})
}

// AddBatchNorm adds batch normalization over the channel axis
func (mb *ModelBuilder) AddBatchNorm(eps, momentum float64, name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{
		Type: BatchNorm,
		Name: name,
		Parameters: map[string]interface{}{
			"eps":      eps,
			"momentum": momentum,
		},
	})
}

// Compile computes shapes and parameter counts of every layer
func (mb *ModelBuilder) Compile() (*ModelSpec, error) {
	if len(mb.layers) == 0 {
		return nil, errors.New("cannot compile empty model")
	}
	if len(mb.inputShape) < 2 {
		return nil, errors.Errorf("input shape %v needs a batch and a feature dimension", mb.inputShape)
	}

	model := &ModelSpec{
		Layers:     make([]LayerSpec, len(mb.layers)),
		InputShape: append([]int(nil), mb.inputShape...),
	}

	currentShape := mb.inputShape
	var allParameterShapes [][]int
	totalParams := int64(0)

	for i, src := range mb.layers {
		layer := src
		layer.Parameters = make(map[string]interface{}, len(src.Parameters))
		for k, v := range src.Parameters {
			layer.Parameters[k] = v
		}
		layer.InputShape = append([]int(nil), currentShape...)

		outputShape, paramShapes, paramCount, err := computeLayerInfo(&layer, currentShape)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to compute layer %d (%s) info", i, layer.Name)
		}

		layer.OutputShape = outputShape
		layer.ParameterShapes = paramShapes
		layer.ParameterCount = paramCount
		model.Layers[i] = layer

		allParameterShapes = append(allParameterShapes, paramShapes...)
		totalParams += paramCount
		currentShape = outputShape
	}

	model.OutputShape = currentShape
	model.ParameterShapes = allParameterShapes
	model.TotalParameters = totalParams
	model.Compiled = true
	mb.compiled = true

	return model, nil
}

func computeLayerInfo(layer *LayerSpec, inputShape []int) ([]int, [][]int, int64, error) {
	switch layer.Type {
	case Dense:
		return computeDenseInfo(layer, inputShape)
	case Conv2D:
		return computeConv2DInfo(layer, inputShape)
	case MaxPool2D:
		return computeMaxPoolInfo(layer, inputShape)
	case BatchNorm:
		return computeBatchNormInfo(inputShape)
	case Flatten:
		return []int{inputShape[0], features(inputShape)}, nil, 0, nil
	case ReLU, Sigmoid, Softmax, Dropout:
		if layer.Type == Dropout {
			rate, ok := layer.Parameters["rate"].(float64)
			if !ok || rate < 0 || rate >= 1 {
				return nil, nil, 0, errors.Errorf("dropout rate must be in [0, 1), got %v", layer.Parameters["rate"])
			}
		}
		return append([]int(nil), inputShape...), nil, 0, nil
	default:
		return nil, nil, 0, errors.Errorf("unsupported layer type: %s", layer.Type)
	}
}

func features(shape []int) int {
	n := 1
	for _, d := range shape[1:] {
		n *= d
	}
	return n
}

func intParam(layer *LayerSpec, key string, fallback int, required bool) (int, error) {
	v, ok := layer.Parameters[key].(int)
	if !ok {
		if required {
			return 0, errors.Errorf("missing %s parameter", key)
		}
		return fallback, nil
	}
	return v, nil
}

// computeDenseInfo flattens every non-batch dimension
func computeDenseInfo(layer *LayerSpec, inputShape []int) ([]int, [][]int, int64, error) {
	outputSize, err := intParam(layer, "output_size", 0, true)
	if err != nil {
		return nil, nil, 0, err
	}
	if outputSize <= 0 {
		return nil, nil, 0, errors.Errorf("output_size must be positive, got %d", outputSize)
	}
	useBias := true
	if bias, ok := layer.Parameters["use_bias"].(bool); ok {
		useBias = bias
	}

	inputSize := features(inputShape)
	layer.Parameters["input_size"] = inputSize

	paramShapes := [][]int{{inputSize, outputSize}}
	paramCount := int64(inputSize * outputSize)
	if useBias {
		paramShapes = append(paramShapes, []int{outputSize})
		paramCount += int64(outputSize)
	}

	return []int{inputShape[0], outputSize}, paramShapes, paramCount, nil
}

// computeConv2DInfo uses [kernel, kernel, in, out] weights
func computeConv2DInfo(layer *LayerSpec, inputShape []int) ([]int, [][]int, int64, error) {
	if len(inputShape) != 4 {
		return nil, nil, 0, errors.New("Conv2D layer requires 4D input [batch, height, width, channels]")
	}
	outputChannels, err := intParam(layer, "output_channels", 0, true)
	if err != nil {
		return nil, nil, 0, err
	}
	kernelSize, err := intParam(layer, "kernel_size", 0, true)
	if err != nil {
		return nil, nil, 0, err
	}
	stride, _ := intParam(layer, "stride", 1, false)
	padding, _ := intParam(layer, "padding", 0, false)
	if stride <= 0 || kernelSize <= 0 || outputChannels <= 0 {
		return nil, nil, 0, errors.New("kernel size, stride and output channels must be positive")
	}
	useBias := true
	if bias, ok := layer.Parameters["use_bias"].(bool); ok {
		useBias = bias
	}

	batch, height, width, inputChannels := inputShape[0], inputShape[1], inputShape[2], inputShape[3]
	layer.Parameters["input_channels"] = inputChannels

	outputHeight := (height+2*padding-kernelSize)/stride + 1
	outputWidth := (width+2*padding-kernelSize)/stride + 1
	if outputHeight <= 0 || outputWidth <= 0 {
		return nil, nil, 0, errors.Errorf("kernel %d does not fit input %dx%d", kernelSize, height, width)
	}

	paramShapes := [][]int{{kernelSize, kernelSize, inputChannels, outputChannels}}
	paramCount := int64(kernelSize * kernelSize * inputChannels * outputChannels)
	if useBias {
		paramShapes = append(paramShapes, []int{outputChannels})
		paramCount += int64(outputChannels)
	}

	return []int{batch, outputHeight, outputWidth, outputChannels}, paramShapes, paramCount, nil
}

func computeMaxPoolInfo(layer *LayerSpec, inputShape []int) ([]int, [][]int, int64, error) {
	if len(inputShape) != 4 {
		return nil, nil, 0, errors.New("MaxPool2D layer requires 4D input [batch, height, width, channels]")
	}
	poolSize, err := intParam(layer, "pool_size", 0, true)
	if err != nil {
		return nil, nil, 0, err
	}
	stride, _ := intParam(layer, "stride", poolSize, false)
	if poolSize <= 0 || stride <= 0 {
		return nil, nil, 0, errors.New("pool size and stride must be positive")
	}

	outputHeight := (inputShape[1]-poolSize)/stride + 1
	outputWidth := (inputShape[2]-poolSize)/stride + 1
	if outputHeight <= 0 || outputWidth <= 0 {
		return nil, nil, 0, errors.Errorf("pool %d does not fit input %dx%d", poolSize, inputShape[1], inputShape[2])
	}

	return []int{inputShape[0], outputHeight, outputWidth, inputShape[3]}, nil, 0, nil
}

// computeBatchNormInfo normalizes the last axis with a learnable scale and shift
func computeBatchNormInfo(inputShape []int) ([]int, [][]int, int64, error) {
	n := inputShape[len(inputShape)-1]
	return append([]int(nil), inputShape...), [][]int{{n}, {n}}, int64(2 * n), nil
}

// OutputUnits returns the size of the last output dimension
func (ms *ModelSpec) OutputUnits() int {
	if len(ms.OutputShape) == 0 {
		return 0
	}
	return ms.OutputShape[len(ms.OutputShape)-1]
}

// Summary returns a human-readable model summary
func (ms *ModelSpec) Summary() string {
	if !ms.Compiled {
		return "Model not compiled"
	}

	var sb strings.Builder
	sb.WriteString("Model Summary:\n")
	sb.WriteString(fmt.Sprintf("Input Shape: %v\n", ms.InputShape))
	sb.WriteString(fmt.Sprintf("Output Shape: %v\n", ms.OutputShape))
	sb.WriteString(fmt.Sprintf("Total Parameters: %d\n", ms.TotalParameters))
	sb.WriteString(fmt.Sprintf("Layers: %d\n\n", len(ms.Layers)))

	for i, layer := range ms.Layers {
		sb.WriteString(fmt.Sprintf("Layer %d: %s (%s)\n", i+1, layer.Name, layer.Type))
		sb.WriteString(fmt.Sprintf("  Input:  %v\n", layer.InputShape))
		sb.WriteString(fmt.Sprintf("  Output: %v\n", layer.OutputShape))
		sb.WriteString(fmt.Sprintf("  Params: %d\n", layer.ParameterCount))
	}

	return sb.String()
}
