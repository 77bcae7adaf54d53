package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/tsawler/xray-harness/internal/testfixture"
)

func TestSchemeClassIndex(t *testing.T) {
	tests := []struct {
		scheme Scheme
		label  Label
		want   int
	}{
		{SchemeTwoClass, LabelNormal, 0},
		{SchemeTwoClass, LabelBacterial, 1},
		{SchemeTwoClass, LabelViral, 1},
		{SchemeThreeClass, LabelBacterial, 0},
		{SchemeThreeClass, LabelNormal, 1},
		{SchemeThreeClass, LabelViral, 2},
	}
	for _, tt := range tests {
		if got := tt.scheme.ClassIndex(tt.label); got != tt.want {
			t.Errorf("%s/%s: expected %d, got %d", tt.scheme, tt.label, tt.want, got)
		}
		if name := tt.scheme.ClassNames()[tt.want]; tt.scheme == SchemeThreeClass && name != tt.label.DirName() {
			t.Errorf("%s: class %d is %s, expected %s", tt.scheme, tt.want, name, tt.label.DirName())
		}
	}
}

func TestLayoutCellDir(t *testing.T) {
	layout := NewLayout("/data")
	tests := []struct {
		cell Cell
		want string
	}{
		{Cell{LabelNormal, SplitTrain}, "/data/chest_xray/train/NORMAL"},
		{Cell{LabelNormal, SplitTest}, "/data/chest_xray/test/NORMAL"},
		{Cell{LabelBacterial, SplitTrain}, "/data/chest_xray/chest_xray_ternary/train/BACTERIAL"},
		{Cell{LabelViral, SplitTest}, "/data/chest_xray/chest_xray_ternary/test/VIRAL"},
	}
	for _, tt := range tests {
		if got := layout.CellDir(tt.cell); got != filepath.FromSlash(tt.want) {
			t.Errorf("%s: expected %s, got %s", tt.cell, tt.want, got)
		}
	}
	if len(layout.RequiredDirs()) != 8 {
		t.Errorf("Expected 8 required directories, got %d", len(layout.RequiredDirs()))
	}
}

func TestLayoutSchemeSources(t *testing.T) {
	t.Run("NormalFallback", func(t *testing.T) {
		root := testfixture.Build(t, testfixture.Scenario())
		layout := NewLayout(root)

		sources, err := layout.SchemeSources(SchemeThreeClass, SplitTest)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(sources) != 3 {
			t.Fatalf("Expected 3 classes, got %d", len(sources))
		}
		for i, name := range SchemeThreeClass.ClassNames() {
			if sources[i].Name != name {
				t.Errorf("Class %d: expected %s, got %s", i, name, sources[i].Name)
			}
		}
		if sources[1].Dir != layout.CellDir(Cell{LabelNormal, SplitTest}) {
			t.Errorf("Expected NORMAL from the two-class tree, got %s", sources[1].Dir)
		}
	})

	t.Run("TernaryNormal", func(t *testing.T) {
		opts := testfixture.Scenario()
		opts.TernaryNormal = true
		root := testfixture.Build(t, opts)
		layout := NewLayout(root)

		sources, err := layout.SchemeSources(SchemeThreeClass, SplitTrain)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		want := filepath.Join(layout.TernaryDir(), "train", "NORMAL")
		if sources[1].Dir != want {
			t.Errorf("Expected %s, got %s", want, sources[1].Dir)
		}
	})

	t.Run("TwoClass", func(t *testing.T) {
		root := testfixture.Build(t, testfixture.Scenario())
		sources, err := NewLayout(root).SchemeSources(SchemeTwoClass, SplitTrain)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(sources) != 2 || sources[0].Name != "NORMAL" || sources[1].Name != "PNEUMONIA" {
			t.Errorf("Unexpected classes: %+v", sources)
		}
	})
}

func TestLayoutValidate(t *testing.T) {
	root := testfixture.Build(t, testfixture.Scenario())
	layout := NewLayout(root)
	if err := layout.Validate(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if err := os.RemoveAll(layout.PneumoniaDir(SplitTest)); err != nil {
		t.Fatalf("Failed to remove: %v", err)
	}
	err := layout.Validate()
	var missing *MissingDirectoryError
	if !errors.As(err, &missing) {
		t.Fatalf("Expected *MissingDirectoryError, got %v", err)
	}
	if missing.Path != layout.PneumoniaDir(SplitTest) {
		t.Errorf("Unexpected path %s", missing.Path)
	}
}
