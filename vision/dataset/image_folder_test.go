package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/tsawler/xray-harness/internal/testfixture"
)

// createTestDataset creates a temporary class-per-directory tree
func createTestDataset(t *testing.T, classes []string, imagesPerClass int) string {
	tempDir := t.TempDir()

	for _, className := range classes {
		classDir := filepath.Join(tempDir, className)
		testfixture.MkdirAll(t, classDir)
		for i := 0; i < imagesPerClass; i++ {
			testfixture.WriteImage(t, filepath.Join(classDir, fmt.Sprintf("image_%d.png", i)), 4, 50)
		}
	}

	return tempDir
}

func TestNewImageFolderDataset(t *testing.T) {
	t.Run("ValidDataset", func(t *testing.T) {
		tempDir := createTestDataset(t, []string{"VIRAL", "BACTERIAL", "NORMAL"}, 2)

		dataset, err := NewImageFolderDataset(tempDir, nil)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if dataset.Len() != 6 {
			t.Errorf("Expected 6 images, got %d", dataset.Len())
		}

		// Classes follow lexical directory order
		want := []string{"BACTERIAL", "NORMAL", "VIRAL"}
		for i, name := range dataset.ClassNames() {
			if name != want[i] {
				t.Errorf("Class %d: expected %s, got %s", i, want[i], name)
			}
		}
		if idx, ok := dataset.ClassIndex("VIRAL"); !ok || idx != 2 {
			t.Errorf("Expected VIRAL at index 2, got %d (%v)", idx, ok)
		}
	})

	t.Run("EmptyDirectory", func(t *testing.T) {
		_, err := NewImageFolderDataset(t.TempDir(), nil)
		if err == nil || !strings.Contains(err.Error(), "no images found") {
			t.Errorf("Expected 'no images found' error, got: %v", err)
		}
	})

	t.Run("CustomExtensions", func(t *testing.T) {
		tempDir := createTestDataset(t, []string{"a"}, 1)
		testfixture.WriteFile(t, filepath.Join(tempDir, "a", "scan.gif"), []byte("gif"))

		dataset, err := NewImageFolderDataset(tempDir, []string{".PNG"})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if dataset.Len() != 1 {
			t.Errorf("Expected 1 image, got %d", dataset.Len())
		}
	})
}

func TestNewClassFolderDataset(t *testing.T) {
	tempDir := createTestDataset(t, []string{"x", "y"}, 3)
	empty := filepath.Join(tempDir, "empty")
	if err := os.Mkdir(empty, 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}

	sources := []ClassSource{
		{Name: "Y", Dir: filepath.Join(tempDir, "y")},
		{Name: "E", Dir: empty},
		{Name: "X", Dir: filepath.Join(tempDir, "x")},
	}
	dataset, err := NewClassFolderDataset(sources, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	dist := dataset.ClassDistribution()
	if dist["Y"] != 3 || dist["E"] != 0 || dist["X"] != 3 {
		t.Errorf("Unexpected distribution: %v", dist)
	}

	path, label, err := dataset.GetItem(3)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if label != 2 || filepath.Base(path) != "image_0.png" {
		t.Errorf("Expected X/image_0.png with label 2, got %s with %d", path, label)
	}

	if _, _, err := dataset.GetItem(6); err == nil {
		t.Error("Expected error for out of range index")
	}

	t.Run("MissingDirectory", func(t *testing.T) {
		_, err := NewClassFolderDataset([]ClassSource{{Name: "gone", Dir: filepath.Join(tempDir, "gone")}}, nil)
		var missing *MissingDirectoryError
		if !errors.As(err, &missing) {
			t.Errorf("Expected *MissingDirectoryError, got %v", err)
		}
	})

	t.Run("DuplicateClass", func(t *testing.T) {
		_, err := NewClassFolderDataset([]ClassSource{sources[0], sources[0]}, nil)
		if err == nil {
			t.Error("Expected error for duplicate class")
		}
	})
}
