package tensor

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Shape is the logical (sample, height, width, channel) shape of a bundle
type Shape struct {
	N        int
	Height   int
	Width    int
	Channels int
}

// SampleSize returns the number of values per sample
func (s Shape) SampleSize() int {
	return s.Height * s.Width * s.Channels
}

func (s Shape) String() string {
	return fmt.Sprintf("(%d, %d, %d, %d)", s.N, s.Height, s.Width, s.Channels)
}

// InconsistentBundleSizeError reports image and label counts that disagree
// with each other or with the expected sample count
type InconsistentBundleSizeError struct {
	Images   int
	Labels   int
	Expected int
}

func (e *InconsistentBundleSizeError) Error() string {
	return fmt.Sprintf("inconsistent bundle size: %d images, %d labels, %d expected",
		e.Images, e.Labels, e.Expected)
}

// Bundle pairs an image matrix with its labels. Images holds one row per
// sample in HWC order with values in [0, 1]. Two-class bundles carry a 0/1
// label vector in Binary, multi-class bundles a one-hot matrix in OneHot.
// Matrices are nil when the bundle is empty.
type Bundle struct {
	Shape      Shape
	Images     *mat.Dense
	Binary     *mat.VecDense
	OneHot     *mat.Dense
	ClassNames []string
}

// NewBinaryBundle creates a two-class bundle. images holds shape.N samples
// back to back; labels holds one 0/1 value per sample. The bundle takes
// ownership of both slices.
func NewBinaryBundle(shape Shape, images, labels []float64, classNames []string) (*Bundle, error) {
	if len(labels) != shape.N {
		return nil, &InconsistentBundleSizeError{Images: shape.N, Labels: len(labels), Expected: shape.N}
	}
	b := &Bundle{Shape: shape, ClassNames: classNames}
	if err := b.setImages(images); err != nil {
		return nil, err
	}
	if shape.N > 0 {
		b.Binary = mat.NewVecDense(shape.N, labels)
	}
	return b, b.Validate(shape.N)
}

// NewOneHotBundle creates a multi-class bundle from class indices
func NewOneHotBundle(shape Shape, images []float64, classes []int, classNames []string) (*Bundle, error) {
	if len(classes) != shape.N {
		return nil, &InconsistentBundleSizeError{Images: shape.N, Labels: len(classes), Expected: shape.N}
	}
	k := len(classNames)
	if k == 0 {
		return nil, errors.New("one-hot bundle needs at least one class")
	}
	b := &Bundle{Shape: shape, ClassNames: classNames}
	if err := b.setImages(images); err != nil {
		return nil, err
	}
	if shape.N > 0 {
		b.OneHot = mat.NewDense(shape.N, k, nil)
		for i, c := range classes {
			if c < 0 || c >= k {
				return nil, errors.Errorf("sample %d has class %d, want [0, %d)", i, c, k)
			}
			b.OneHot.Set(i, c, 1)
		}
	}
	return b, b.Validate(shape.N)
}

func (b *Bundle) setImages(images []float64) error {
	if len(images) != b.Shape.N*b.Shape.SampleSize() {
		return errors.Errorf("image data holds %d values, shape %s needs %d",
			len(images), b.Shape, b.Shape.N*b.Shape.SampleSize())
	}
	if b.Shape.N > 0 {
		b.Images = mat.NewDense(b.Shape.N, b.Shape.SampleSize(), images)
	}
	return nil
}

// Len returns the number of samples
func (b *Bundle) Len() int {
	return b.Shape.N
}

// IsBinary reports whether labels are a flat 0/1 vector
func (b *Bundle) IsBinary() bool {
	return b.OneHot == nil && len(b.ClassNames) <= 2
}

// NumClasses returns the number of classes
func (b *Bundle) NumClasses() int {
	return len(b.ClassNames)
}

func (b *Bundle) imageCount() int {
	if b.Images == nil {
		return 0
	}
	r, _ := b.Images.Dims()
	return r
}

func (b *Bundle) labelCount() int {
	switch {
	case b.Binary != nil:
		return b.Binary.Len()
	case b.OneHot != nil:
		r, _ := b.OneHot.Dims()
		return r
	}
	return 0
}

// Validate checks that image and label counts agree with each other and with
// expected. A negative expected skips the comparison with the expected count.
// Label values are checked too: 0/1 for binary, rows summing to 1 for one-hot.
func (b *Bundle) Validate(expected int) error {
	images, labels := b.imageCount(), b.labelCount()
	if expected < 0 {
		expected = images
	}
	if images != labels || images != expected || b.Shape.N != images {
		return &InconsistentBundleSizeError{Images: images, Labels: labels, Expected: expected}
	}

	if b.Images != nil {
		if _, c := b.Images.Dims(); c != b.Shape.SampleSize() {
			return errors.Errorf("image rows hold %d values, shape %s needs %d", c, b.Shape, b.Shape.SampleSize())
		}
	}

	if b.Binary != nil {
		for i := 0; i < b.Binary.Len(); i++ {
			if v := b.Binary.AtVec(i); v != 0 && v != 1 {
				return errors.Errorf("sample %d has binary label %g", i, v)
			}
		}
	}
	if b.OneHot != nil {
		for i := 0; i < labels; i++ {
			if s := mat.Sum(b.OneHot.RowView(i)); s != 1 {
				return errors.Errorf("sample %d has one-hot row summing to %g", i, s)
			}
		}
	}
	return nil
}

// ClassIndex returns the class of sample i
func (b *Bundle) ClassIndex(i int) int {
	if b.Binary != nil {
		return int(b.Binary.AtVec(i))
	}
	best, bestVal := 0, b.OneHot.At(i, 0)
	_, k := b.OneHot.Dims()
	for j := 1; j < k; j++ {
		if v := b.OneHot.At(i, j); v > bestVal {
			best, bestVal = j, v
		}
	}
	return best
}

// ClassIndices returns the class of every sample
func (b *Bundle) ClassIndices() []int {
	out := make([]int, b.Len())
	for i := range out {
		out[i] = b.ClassIndex(i)
	}
	return out
}

// ClassCounts returns the number of samples of every class
func (b *Bundle) ClassCounts() []int {
	counts := make([]int, b.NumClasses())
	for i := 0; i < b.Len(); i++ {
		counts[b.ClassIndex(i)]++
	}
	return counts
}

// LabelMatrix returns a fresh label matrix: N x 1 for binary bundles, N x K
// one-hot otherwise. It returns nil for an empty bundle.
func (b *Bundle) LabelMatrix() *mat.Dense {
	switch {
	case b.Binary != nil:
		return mat.NewDense(b.Len(), 1, mat.Col(nil, 0, b.Binary))
	case b.OneHot != nil:
		return mat.DenseCopyOf(b.OneHot)
	}
	return nil
}

// Image returns a copy of the values of sample i
func (b *Bundle) Image(i int) []float64 {
	return mat.Row(nil, i, b.Images)
}

// Gather returns a new bundle holding the samples at indices, in that order.
// The receiver is not modified and shares no storage with the result.
func (b *Bundle) Gather(indices []int) *Bundle {
	shape := b.Shape
	shape.N = len(indices)
	out := &Bundle{Shape: shape, ClassNames: append([]string(nil), b.ClassNames...)}
	if len(indices) == 0 {
		return out
	}

	out.Images = mat.NewDense(len(indices), shape.SampleSize(), nil)
	for r, i := range indices {
		out.Images.SetRow(r, b.Images.RawRowView(i))
	}

	switch {
	case b.Binary != nil:
		out.Binary = mat.NewVecDense(len(indices), nil)
		for r, i := range indices {
			out.Binary.SetVec(r, b.Binary.AtVec(i))
		}
	case b.OneHot != nil:
		_, k := b.OneHot.Dims()
		out.OneHot = mat.NewDense(len(indices), k, nil)
		for r, i := range indices {
			out.OneHot.SetRow(r, b.OneHot.RawRowView(i))
		}
	}
	return out
}

// Slice returns a copy of samples [from, to)
func (b *Bundle) Slice(from, to int) *Bundle {
	indices := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		indices = append(indices, i)
	}
	return b.Gather(indices)
}

// Clone returns a deep copy
func (b *Bundle) Clone() *Bundle {
	return b.Slice(0, b.Len())
}

func (b *Bundle) String() string {
	kind := "one-hot"
	if b.IsBinary() {
		kind = "binary"
	}
	return fmt.Sprintf("Bundle %s, %d classes %v, %s labels", b.Shape, b.NumClasses(), b.ClassNames, kind)
}
