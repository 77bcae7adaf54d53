package checkpoints

import (
	"encoding/json"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/tsawler/xray-harness/layers"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the binary checkpoint layout.
//
//	Checkpoint: 1 run_id, 2 model_name, 3 repeated Snapshot, 4 model_spec (JSON),
//	            5 created_at (unix nanos), 6 framework, 7 version, 8 description, 9 repeated tag
//	Snapshot:   1 epoch, 2 repeated Weight
//	Weight:     1 name, 2 layer, 3 type, 4 packed shape, 5 packed doubles
const (
	fieldRunID       protowire.Number = 1
	fieldModelName   protowire.Number = 2
	fieldSnapshot    protowire.Number = 3
	fieldModelSpec   protowire.Number = 4
	fieldCreatedAt   protowire.Number = 5
	fieldFramework   protowire.Number = 6
	fieldVersion     protowire.Number = 7
	fieldDescription protowire.Number = 8
	fieldTag         protowire.Number = 9

	fieldEpoch   protowire.Number = 1
	fieldWeights protowire.Number = 2

	fieldName  protowire.Number = 1
	fieldLayer protowire.Number = 2
	fieldType  protowire.Number = 3
	fieldShape protowire.Number = 4
	fieldData  protowire.Number = 5
)

// MarshalWire encodes a checkpoint in the protobuf wire format
func MarshalWire(checkpoint *Checkpoint) ([]byte, error) {
	var b []byte
	b = appendString(b, fieldRunID, checkpoint.RunID)
	b = appendString(b, fieldModelName, checkpoint.ModelName)
	for _, s := range checkpoint.Snapshots {
		b = protowire.AppendTag(b, fieldSnapshot, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalSnapshot(s))
	}
	if checkpoint.ModelSpec != nil {
		spec, err := json.Marshal(checkpoint.ModelSpec)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode model spec")
		}
		b = protowire.AppendTag(b, fieldModelSpec, protowire.BytesType)
		b = protowire.AppendBytes(b, spec)
	}

	meta := checkpoint.Metadata
	if !meta.CreatedAt.IsZero() {
		b = protowire.AppendTag(b, fieldCreatedAt, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(meta.CreatedAt.UnixNano()))
	}
	b = appendString(b, fieldFramework, meta.Framework)
	b = appendString(b, fieldVersion, meta.Version)
	b = appendString(b, fieldDescription, meta.Description)
	for _, tag := range meta.Tags {
		b = protowire.AppendTag(b, fieldTag, protowire.BytesType)
		b = protowire.AppendString(b, tag)
	}
	return b, nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func marshalSnapshot(s Snapshot) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldEpoch, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.Epoch))
	for _, w := range s.Weights {
		b = protowire.AppendTag(b, fieldWeights, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalWeight(w))
	}
	return b
}

func marshalWeight(w WeightTensor) []byte {
	var b []byte
	b = appendString(b, fieldName, w.Name)
	b = appendString(b, fieldLayer, w.Layer)
	b = appendString(b, fieldType, w.Type)

	if len(w.Shape) > 0 {
		var packed []byte
		for _, d := range w.Shape {
			packed = protowire.AppendVarint(packed, uint64(d))
		}
		b = protowire.AppendTag(b, fieldShape, protowire.BytesType)
		b = protowire.AppendBytes(b, packed)
	}
	if len(w.Data) > 0 {
		packed := make([]byte, 0, 8*len(w.Data))
		for _, v := range w.Data {
			packed = protowire.AppendFixed64(packed, math.Float64bits(v))
		}
		b = protowire.AppendTag(b, fieldData, protowire.BytesType)
		b = protowire.AppendBytes(b, packed)
	}
	return b
}

// walk calls fn for every field of a message. fn returns the number of bytes
// it consumed, or 0 to let the field be skipped.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		n, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if n == 0 {
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	return nil
}

func consumeString(b []byte, dst *string) int {
	v, n := protowire.ConsumeString(b)
	if n >= 0 {
		*dst = v
	}
	return n
}

// UnmarshalWire decodes a checkpoint written by MarshalWire. Unknown fields are skipped.
func UnmarshalWire(data []byte) (*Checkpoint, error) {
	checkpoint := &Checkpoint{}
	meta := &checkpoint.Metadata

	err := walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ == protowire.VarintType && num == fieldCreatedAt {
			v, n := protowire.ConsumeVarint(b)
			if n >= 0 {
				meta.CreatedAt = time.Unix(0, int64(v)).UTC()
			}
			return n, nil
		}
		if typ != protowire.BytesType {
			return 0, nil
		}
		switch num {
		case fieldRunID:
			return consumeString(b, &checkpoint.RunID), nil
		case fieldModelName:
			return consumeString(b, &checkpoint.ModelName), nil
		case fieldFramework:
			return consumeString(b, &meta.Framework), nil
		case fieldVersion:
			return consumeString(b, &meta.Version), nil
		case fieldDescription:
			return consumeString(b, &meta.Description), nil
		case fieldTag:
			var tag string
			n := consumeString(b, &tag)
			meta.Tags = append(meta.Tags, tag)
			return n, nil
		case fieldSnapshot:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			s, err := unmarshalSnapshot(v)
			if err != nil {
				return 0, errors.Wrapf(err, "snapshot %d", len(checkpoint.Snapshots))
			}
			checkpoint.Snapshots = append(checkpoint.Snapshots, s)
			return n, nil
		case fieldModelSpec:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			var spec layers.ModelSpec
			if err := json.Unmarshal(v, &spec); err != nil {
				return 0, errors.Wrap(err, "failed to decode model spec")
			}
			checkpoint.ModelSpec = &spec
			return n, nil
		}
		return 0, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode checkpoint")
	}
	return checkpoint, nil
}

func unmarshalSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	err := walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldEpoch && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			s.Epoch = int(v)
			return n, nil
		case num == fieldWeights && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			w, err := unmarshalWeight(v)
			if err != nil {
				return 0, errors.Wrapf(err, "weight %d", len(s.Weights))
			}
			s.Weights = append(s.Weights, w)
			return n, nil
		}
		return 0, nil
	})
	return s, err
}

func unmarshalWeight(data []byte) (WeightTensor, error) {
	var w WeightTensor
	err := walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.BytesType {
			return 0, nil
		}
		switch num {
		case fieldName:
			return consumeString(b, &w.Name), nil
		case fieldLayer:
			return consumeString(b, &w.Layer), nil
		case fieldType:
			return consumeString(b, &w.Type), nil
		case fieldShape:
			packed, n := protowire.ConsumeBytes(b)
			for len(packed) > 0 && n >= 0 {
				v, m := protowire.ConsumeVarint(packed)
				if m < 0 {
					return m, nil
				}
				w.Shape = append(w.Shape, int(v))
				packed = packed[m:]
			}
			return n, nil
		case fieldData:
			packed, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			if len(packed)%8 != 0 {
				return 0, errors.Errorf("packed doubles of %d bytes", len(packed))
			}
			w.Data = make([]float64, 0, len(packed)/8)
			for len(packed) > 0 {
				v, m := protowire.ConsumeFixed64(packed)
				w.Data = append(w.Data, math.Float64frombits(v))
				packed = packed[m:]
			}
			return n, nil
		}
		return 0, nil
	})
	return w, err
}
