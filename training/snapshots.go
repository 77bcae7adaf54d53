package training

import (
	"github.com/pkg/errors"
	"github.com/tsawler/xray-harness/checkpoints"
	"gonum.org/v1/gonum/floats"
)

// SnapshotMap holds one deep copy of the model parameters per completed
// epoch. Epochs are 0-based and contiguous; the map only grows.
type SnapshotMap struct {
	snapshots []checkpoints.Snapshot
}

// NewSnapshotMap returns an empty map
func NewSnapshotMap() *SnapshotMap {
	return &SnapshotMap{}
}

// Record stores the parameters at the end of epoch, which must be the next
// epoch in sequence.
func (sm *SnapshotMap) Record(epoch int, weights []checkpoints.WeightTensor) error {
	if epoch != len(sm.snapshots) {
		return errors.Errorf("snapshot for epoch %d out of order, expected epoch %d", epoch, len(sm.snapshots))
	}
	sm.snapshots = append(sm.snapshots, checkpoints.Snapshot{
		Epoch:   epoch,
		Weights: checkpoints.CloneWeights(weights),
	})
	return nil
}

// Len returns the number of recorded epochs
func (sm *SnapshotMap) Len() int {
	return len(sm.snapshots)
}

// At returns a copy of the parameters recorded for epoch
func (sm *SnapshotMap) At(epoch int) ([]checkpoints.WeightTensor, bool) {
	if epoch < 0 || epoch >= len(sm.snapshots) {
		return nil, false
	}
	return checkpoints.CloneWeights(sm.snapshots[epoch].Weights), true
}

// Snapshots returns a deep copy of every snapshot in epoch order
func (sm *SnapshotMap) Snapshots() []checkpoints.Snapshot {
	out := make([]checkpoints.Snapshot, len(sm.snapshots))
	for i, s := range sm.snapshots {
		out[i] = checkpoints.Snapshot{Epoch: s.Epoch, Weights: checkpoints.CloneWeights(s.Weights)}
	}
	return out
}

// Drift returns, for every pair of consecutive epochs (e, e+1), the sum of
// absolute parameter changes across all tensors.
func (sm *SnapshotMap) Drift() ([]float64, error) {
	if len(sm.snapshots) < 2 {
		return nil, nil
	}
	drift := make([]float64, len(sm.snapshots)-1)
	for e := 0; e+1 < len(sm.snapshots); e++ {
		a, b := sm.snapshots[e].Weights, sm.snapshots[e+1].Weights
		if len(a) != len(b) {
			return nil, errors.Errorf("epochs %d and %d hold %d and %d tensors", e, e+1, len(a), len(b))
		}
		for i := range a {
			if len(a[i].Data) != len(b[i].Data) {
				return nil, errors.Errorf("tensor %s changed size between epochs %d and %d", a[i].Name, e, e+1)
			}
			drift[e] += floats.Distance(a[i].Data, b[i].Data, 1)
		}
	}
	return drift, nil
}
