// Package testfixture writes small synthetic chest X-ray directory trees for tests.
package testfixture

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// SplitCounts is the number of images written per class directory of one split
type SplitCounts struct {
	Normal    int
	Bacterial int
	Viral     int
	Pneumonia int // two-class PNEUMONIA directory
}

// Options describes a fixture tree
type Options struct {
	Train SplitCounts
	Test  SplitCounts

	// TernaryNormal also writes a NORMAL directory in the ternary tree,
	// holding copies of the two-class normal images
	TernaryNormal bool

	// Size is the edge length of the written images; 0 means 32
	Size int
}

// Scenario returns the reference tree: 3 normal, 2 bacterial and 1 viral
// training images, 2 normal, 1 bacterial and 1 viral test images. The
// two-class pneumonia directories hold 2 training and 2 test images.
func Scenario() Options {
	return Options{
		Train: SplitCounts{Normal: 3, Bacterial: 2, Viral: 1, Pneumonia: 2},
		Test:  SplitCounts{Normal: 2, Bacterial: 1, Viral: 1, Pneumonia: 2},
	}
}

// Build writes the tree described by opts under a fresh temporary directory
// and returns its root. Every image is a uniform gray square with a shade
// distinct from every other image of the tree, so intensity sums never tie.
func Build(t testing.TB, opts Options) string {
	t.Helper()

	size := opts.Size
	if size == 0 {
		size = 32
	}

	root := t.TempDir()
	base := filepath.Join(root, "chest_xray")
	ternary := filepath.Join(base, "chest_xray_ternary")

	shade := 0
	write := func(dir string, n int) {
		MkdirAll(t, dir)
		for i := 0; i < n; i++ {
			WriteImage(t, filepath.Join(dir, fmt.Sprintf("img_%03d.png", i)), size, Shade(shade))
			shade++
		}
	}

	for _, split := range []struct {
		name   string
		counts SplitCounts
	}{{"train", opts.Train}, {"test", opts.Test}} {
		write(filepath.Join(base, split.name, "NORMAL"), split.counts.Normal)
		write(filepath.Join(base, split.name, "PNEUMONIA"), split.counts.Pneumonia)
		write(filepath.Join(ternary, split.name, "BACTERIAL"), split.counts.Bacterial)
		write(filepath.Join(ternary, split.name, "VIRAL"), split.counts.Viral)
		if opts.TernaryNormal {
			write(filepath.Join(ternary, split.name, "NORMAL"), split.counts.Normal)
		}
	}

	return root
}

// Shade returns the gray level of the n-th image written by Build
func Shade(n int) uint8 {
	return uint8(10 + (n*9)%240)
}

// MkdirAll creates dir and its parents
func MkdirAll(t testing.TB, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create directory %s: %v", dir, err)
	}
}

// WriteImage writes a uniform size x size grayscale PNG
func WriteImage(t testing.TB, path string, size int, shade uint8) {
	t.Helper()

	img := image.NewGray(image.Rect(0, 0, size, size))
	for i := range img.Pix {
		img.Pix[i] = shade
	}

	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		t.Fatalf("Failed to encode %s: %v", path, err)
	}
}

// WriteFile writes raw bytes, for non-image and corrupt files
func WriteFile(t testing.TB, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}
