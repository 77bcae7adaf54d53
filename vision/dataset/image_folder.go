package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// DefaultExtensions are the image file extensions considered by default
var DefaultExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".tif", ".tiff"}

// ImageFolderDataset represents a dataset where each class is one directory
// of images. Class indices follow the sorted class names.
type ImageFolderDataset struct {
	imagePaths []string
	labels     []int
	classNames []string
	classToIdx map[string]int
}

// NewImageFolderDataset creates a dataset from a directory structure where
// each subdirectory of root represents a class
func NewImageFolderDataset(root string, extensions []string) (*ImageFolderDataset, error) {
	classes, err := filepath.Glob(filepath.Join(root, "*"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list classes")
	}

	var sources []ClassSource
	for _, classPath := range classes {
		info, err := os.Stat(classPath)
		if err != nil || !info.IsDir() {
			continue
		}
		sources = append(sources, ClassSource{Name: filepath.Base(classPath), Dir: classPath})
	}

	dataset, err := NewClassFolderDataset(sources, extensions)
	if err != nil {
		return nil, err
	}
	if dataset.Len() == 0 {
		return nil, errors.Errorf("no images found in %s", root)
	}
	return dataset, nil
}

// NewClassFolderDataset creates a dataset from explicit class directories.
// sources must already be in class index order. Images of a class are listed
// in file name order. An empty class is valid.
func NewClassFolderDataset(sources []ClassSource, extensions []string) (*ImageFolderDataset, error) {
	dataset := &ImageFolderDataset{
		classToIdx: make(map[string]int),
	}

	for classIdx, src := range sources {
		if _, exists := dataset.classToIdx[src.Name]; exists {
			return nil, errors.Errorf("duplicate class %q", src.Name)
		}
		dataset.classNames = append(dataset.classNames, src.Name)
		dataset.classToIdx[src.Name] = classIdx

		files, _, err := listImageFiles(src.Dir, extensions)
		if err != nil {
			return nil, err
		}
		for _, name := range files {
			dataset.imagePaths = append(dataset.imagePaths, filepath.Join(src.Dir, name))
			dataset.labels = append(dataset.labels, classIdx)
		}
	}

	return dataset, nil
}

// listImageFiles returns the names of the image files in dir in lexical
// order, along with the regular files skipped for their extension.
// Sub-directories and dot-files are ignored.
func listImageFiles(dir string, extensions []string) (images, skipped []string, err error) {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, &MissingDirectoryError{Path: dir}
		}
		return nil, nil, errors.Wrapf(err, "failed to list %s", dir)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if hasExtension(name, extensions) {
			images = append(images, name)
		} else {
			skipped = append(skipped, name)
		}
	}
	return images, skipped, nil
}

func hasExtension(name string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range extensions {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// Len returns the number of items in the dataset
func (d *ImageFolderDataset) Len() int {
	return len(d.imagePaths)
}

// GetItem returns the image path and label at the given index
func (d *ImageFolderDataset) GetItem(index int) (string, int, error) {
	if index < 0 || index >= len(d.imagePaths) {
		return "", 0, errors.Errorf("index %d out of range [0, %d)", index, len(d.imagePaths))
	}
	return d.imagePaths[index], d.labels[index], nil
}

// NumClasses returns the number of classes
func (d *ImageFolderDataset) NumClasses() int {
	return len(d.classNames)
}

// ClassNames returns the list of class names in index order
func (d *ImageFolderDataset) ClassNames() []string {
	return append([]string(nil), d.classNames...)
}

// ClassIndex returns the index of a class name
func (d *ImageFolderDataset) ClassIndex(name string) (int, bool) {
	idx, ok := d.classToIdx[name]
	return idx, ok
}

// ClassDistribution returns the number of samples per class
func (d *ImageFolderDataset) ClassDistribution() map[string]int {
	dist := make(map[string]int, len(d.classNames))
	for _, name := range d.classNames {
		dist[name] = 0
	}
	for _, label := range d.labels {
		dist[d.classNames[label]]++
	}
	return dist
}

// String returns a string representation of the dataset
func (d *ImageFolderDataset) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("ImageFolderDataset: %d samples, %d classes\n", len(d.imagePaths), len(d.classNames)))
	sb.WriteString("Class distribution:\n")

	dist := d.ClassDistribution()
	for _, className := range d.classNames {
		sb.WriteString(fmt.Sprintf("  %s: %d samples\n", className, dist[className]))
	}

	return sb.String()
}
