// Package checkpoints persists per-epoch weight snapshots of a training run.
package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/tsawler/xray-harness/layers"
)

// CheckpointFormat defines the serialization format
type CheckpointFormat int

const (
	FormatJSON CheckpointFormat = iota
	FormatProtowire
)

func (cf CheckpointFormat) String() string {
	switch cf {
	case FormatJSON:
		return "JSON"
	case FormatProtowire:
		return "Protowire"
	default:
		return "Unknown"
	}
}

// Checkpoint is the persisted state of one training run: the topology and
// one weight snapshot per completed epoch.
type Checkpoint struct {
	RunID     string            `json:"run_id"`
	ModelName string            `json:"model_name"`
	ModelSpec *layers.ModelSpec `json:"model_spec,omitempty"`
	Snapshots []Snapshot        `json:"snapshots"`

	Metadata CheckpointMetadata `json:"metadata"`
}

// Snapshot holds the parameter tensors at the end of one epoch
type Snapshot struct {
	Epoch   int            `json:"epoch"`
	Weights []WeightTensor `json:"weights"`
}

// WeightTensor represents a model parameter tensor with its data
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
	Layer string    `json:"layer"`
	Type  string    `json:"type"` // "weight", "bias", "gamma", "beta"
}

// Len returns the number of elements implied by the shape
func (w WeightTensor) Len() int {
	n := 1
	for _, d := range w.Shape {
		n *= d
	}
	return n
}

// Clone returns a deep copy
func (w WeightTensor) Clone() WeightTensor {
	w.Shape = append([]int(nil), w.Shape...)
	w.Data = append([]float64(nil), w.Data...)
	return w
}

// CloneWeights deep copies a parameter list
func CloneWeights(weights []WeightTensor) []WeightTensor {
	out := make([]WeightTensor, len(weights))
	for i, w := range weights {
		out[i] = w.Clone()
	}
	return out
}

// CheckpointMetadata contains checkpoint metadata
type CheckpointMetadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
}

// NewRunID returns a fresh identifier for a training run
func NewRunID() string {
	return uuid.New().String()
}

// NewWeights allocates zeroed parameter tensors for every parameterized
// layer of a compiled model, in layer order.
func NewWeights(spec *layers.ModelSpec) ([]WeightTensor, error) {
	if spec == nil || !spec.Compiled {
		return nil, errors.New("model spec must be compiled")
	}

	var weights []WeightTensor
	for _, layer := range spec.Layers {
		var kinds []string
		switch layer.Type {
		case layers.Dense, layers.Conv2D:
			kinds = []string{"weight", "bias"}
		case layers.BatchNorm:
			kinds = []string{"gamma", "beta"}
		}
		if len(layer.ParameterShapes) > len(kinds) {
			return nil, errors.Errorf("unexpected parameter count for %s layer %s", layer.Type, layer.Name)
		}
		for i, shape := range layer.ParameterShapes {
			w := WeightTensor{
				Name:  fmt.Sprintf("%s.%s", layer.Name, kinds[i]),
				Shape: append([]int(nil), shape...),
				Layer: layer.Name,
				Type:  kinds[i],
			}
			w.Data = make([]float64, w.Len())
			weights = append(weights, w)
		}
	}
	return weights, nil
}

// ValidateWeights checks that weights match the parameter shapes of spec
func ValidateWeights(weights []WeightTensor, spec *layers.ModelSpec) error {
	if len(weights) != len(spec.ParameterShapes) {
		return errors.Errorf("weight count mismatch: %d weights, %d parameters", len(weights), len(spec.ParameterShapes))
	}
	for i, w := range weights {
		want := spec.ParameterShapes[i]
		if len(w.Shape) != len(want) {
			return errors.Errorf("shape mismatch for weight %s: %v vs %v", w.Name, w.Shape, want)
		}
		for j, dim := range want {
			if w.Shape[j] != dim {
				return errors.Errorf("dimension mismatch for weight %s at index %d: %d vs %d", w.Name, j, w.Shape[j], dim)
			}
		}
		if len(w.Data) != w.Len() {
			return errors.Errorf("weight %s holds %d values, shape needs %d", w.Name, len(w.Data), w.Len())
		}
	}
	return nil
}

// CheckpointSaver handles saving run checkpoints in various formats
type CheckpointSaver struct {
	format CheckpointFormat
}

// NewCheckpointSaver creates a new checkpoint saver for the specified format
func NewCheckpointSaver(format CheckpointFormat) *CheckpointSaver {
	return &CheckpointSaver{
		format: format,
	}
}

// Format returns the saver's serialization format
func (cs *CheckpointSaver) Format() CheckpointFormat {
	return cs.format
}

// SaveCheckpoint writes checkpoint to path. A missing run id is filled in.
func (cs *CheckpointSaver) SaveCheckpoint(checkpoint *Checkpoint, path string) error {
	if checkpoint.RunID == "" {
		checkpoint.RunID = NewRunID()
	}
	if checkpoint.Metadata.Framework == "" {
		checkpoint.Metadata.Framework = "xray-harness"
		checkpoint.Metadata.Version = "1.0.0"
		checkpoint.Metadata.CreatedAt = time.Now()
	}

	switch cs.format {
	case FormatJSON:
		return cs.saveJSON(checkpoint, path)
	case FormatProtowire:
		return cs.saveWire(checkpoint, path)
	default:
		return errors.Errorf("unsupported checkpoint format: %s", cs.format)
	}
}

// LoadCheckpoint loads a run checkpoint
func (cs *CheckpointSaver) LoadCheckpoint(path string) (*Checkpoint, error) {
	switch cs.format {
	case FormatJSON:
		return cs.loadJSON(path)
	case FormatProtowire:
		return cs.loadWire(path)
	default:
		return nil, errors.Errorf("unsupported checkpoint format: %s", cs.format)
	}
}

func (cs *CheckpointSaver) saveJSON(checkpoint *Checkpoint, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create checkpoint file")
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(checkpoint); err != nil {
		return errors.Wrap(err, "failed to encode checkpoint")
	}
	return nil
}

func (cs *CheckpointSaver) loadJSON(path string) (*Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open checkpoint file")
	}
	defer file.Close()

	var checkpoint Checkpoint
	if err := json.NewDecoder(file).Decode(&checkpoint); err != nil {
		return nil, errors.Wrap(err, "failed to decode checkpoint")
	}
	return &checkpoint, nil
}

func (cs *CheckpointSaver) saveWire(checkpoint *Checkpoint, path string) error {
	data, err := MarshalWire(checkpoint)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write checkpoint file")
	}
	return nil
}

func (cs *CheckpointSaver) loadWire(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read checkpoint file")
	}
	return UnmarshalWire(data)
}
