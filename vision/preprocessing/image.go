package preprocessing

import (
	"image"
	_ "image/jpeg" // registers JPEG
	_ "image/png"  // registers PNG
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"  // registers BMP
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // registers TIFF
)

// DefaultTargetSize is the fixed square resolution the downstream network expects
const DefaultTargetSize = 224

// ImageProcessor decodes images and resizes them to a fixed resolution. The
// resize stretches the whole source onto the target rectangle: nothing is
// cropped and the aspect ratio is not preserved, because the network requires
// a fixed input size.
type ImageProcessor struct {
	width  int
	height int
	scaler draw.Scaler
	rgb    bool
}

// NewImageProcessor creates a processor producing width x height rasters with
// the deterministic Catmull-Rom filter. Grayscale sources keep one channel.
func NewImageProcessor(width, height int) *ImageProcessor {
	return &ImageProcessor{
		width:  width,
		height: height,
		scaler: draw.CatmullRom,
	}
}

// WithRGB makes the processor always emit 3-channel rasters, replicating the
// luminance of grayscale sources into R, G and B.
func (p *ImageProcessor) WithRGB() *ImageProcessor {
	cp := *p
	cp.rgb = true
	return &cp
}

// Width returns the target width
func (p *ImageProcessor) Width() int { return p.width }

// Height returns the target height
func (p *ImageProcessor) Height() int { return p.height }

// Decode decodes any registered image format (JPEG, PNG, BMP, TIFF)
func (p *ImageProcessor) Decode(reader io.Reader) (image.Image, error) {
	img, _, err := image.Decode(reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode image")
	}
	return img, nil
}

// Resize scales src onto a fresh width x height canvas
func (p *ImageProcessor) Resize(src image.Image) draw.Image {
	rect := image.Rect(0, 0, p.width, p.height)

	var dst draw.Image
	if !p.rgb && isGrayModel(src.ColorModel()) {
		dst = image.NewGray(rect)
	} else {
		dst = image.NewRGBA(rect)
	}

	p.scaler.Scale(dst, rect, src, src.Bounds(), draw.Src, nil)
	return dst
}

// ProcessImage resizes an already decoded image and returns its raster
func (p *ImageProcessor) ProcessImage(src image.Image) *Raster {
	return FromImage(p.Resize(src))
}

// Process decodes, resizes and rasterizes one image
func (p *ImageProcessor) Process(reader io.Reader) (*Raster, error) {
	img, err := p.Decode(reader)
	if err != nil {
		return nil, err
	}
	return p.ProcessImage(img), nil
}

// ProcessFile opens path and processes it
func (p *ImageProcessor) ProcessFile(path string) (*Raster, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer file.Close()

	raster, err := p.Process(file)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to process %s", path)
	}
	return raster, nil
}

// BatchError reports the first file of a batch that could not be processed
type BatchError struct {
	Index int
	Path  string
	Err   error
}

func (e *BatchError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying cause
func (e *BatchError) Unwrap() error { return e.Err }

// ProcessFiles processes paths with up to maxWorkers goroutines. Results are
// stored by index, so the output order always matches paths. When several
// files fail, the one with the lowest index is reported.
func ProcessFiles(processor *ImageProcessor, paths []string, maxWorkers int) ([]*Raster, error) {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}

	results := make([]*Raster, len(paths))
	errs := make([]error, len(paths))

	type job struct {
		index int
		path  string
	}

	jobs := make(chan job, len(paths))
	var wg sync.WaitGroup

	for w := 0; w < maxWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				raster, err := processor.ProcessFile(j.path)
				if err != nil {
					errs[j.index] = err
					continue
				}
				results[j.index] = raster
			}
		}()
	}

	for i, path := range paths {
		jobs <- job{index: i, path: path}
	}
	close(jobs)

	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, &BatchError{Index: i, Path: paths[i], Err: err}
		}
	}

	return results, nil
}
