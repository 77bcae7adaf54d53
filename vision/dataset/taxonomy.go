package dataset

import (
	"os"
	"path/filepath"
	"sort"
)

// Label is the diagnosis attached to a scan
type Label int

const (
	LabelNormal Label = iota
	LabelBacterial
	LabelViral
)

// Labels returns every label in reporting order
func Labels() []Label {
	return []Label{LabelNormal, LabelBacterial, LabelViral}
}

func (l Label) String() string {
	switch l {
	case LabelNormal:
		return "normal"
	case LabelBacterial:
		return "bacterial"
	case LabelViral:
		return "viral"
	default:
		return "unknown"
	}
}

// DirName is the on-disk class directory name for the label
func (l Label) DirName() string {
	switch l {
	case LabelNormal:
		return "NORMAL"
	case LabelBacterial:
		return "BACTERIAL"
	case LabelViral:
		return "VIRAL"
	default:
		return ""
	}
}

// Pneumonia reports whether the label is one of the pneumonia kinds
func (l Label) Pneumonia() bool {
	return l == LabelBacterial || l == LabelViral
}

// Split is the train/test partition a scan belongs to
type Split int

const (
	SplitTrain Split = iota
	SplitTest
)

// Splits returns both splits, train first
func Splits() []Split {
	return []Split{SplitTrain, SplitTest}
}

func (s Split) String() string {
	if s == SplitTest {
		return "test"
	}
	return "train"
}

// Cell is one (label, split) combination of the directory taxonomy
type Cell struct {
	Label Label
	Split Split
}

func (c Cell) String() string {
	return c.Split.String() + "-" + c.Label.String()
}

// CellOrder is the concatenation order of the dataset table. Extremal
// queries break ties by this order.
var CellOrder = [6]Cell{
	{LabelBacterial, SplitTrain},
	{LabelViral, SplitTrain},
	{LabelNormal, SplitTrain},
	{LabelBacterial, SplitTest},
	{LabelViral, SplitTest},
	{LabelNormal, SplitTest},
}

// Scheme is the classification granularity
type Scheme int

const (
	SchemeTwoClass Scheme = iota
	SchemeThreeClass
)

// Schemes returns both schemes
func Schemes() []Scheme {
	return []Scheme{SchemeTwoClass, SchemeThreeClass}
}

func (s Scheme) String() string {
	if s == SchemeThreeClass {
		return "three-class"
	}
	return "two-class"
}

// NumClasses returns the number of output classes of the scheme
func (s Scheme) NumClasses() int {
	if s == SchemeThreeClass {
		return 3
	}
	return 2
}

// ClassNames returns the class directory names in index order
func (s Scheme) ClassNames() []string {
	if s == SchemeThreeClass {
		return []string{"BACTERIAL", "NORMAL", "VIRAL"}
	}
	return []string{"NORMAL", "PNEUMONIA"}
}

// ClassIndex returns the class index of label under the scheme
func (s Scheme) ClassIndex(l Label) int {
	if s == SchemeThreeClass {
		switch l {
		case LabelBacterial:
			return 0
		case LabelNormal:
			return 1
		default:
			return 2
		}
	}
	if l.Pneumonia() {
		return 1
	}
	return 0
}

// ClassSource is one class directory feeding a class-folder dataset
type ClassSource struct {
	Name string
	Dir  string
}

const (
	baseDirName    = "chest_xray"
	ternaryDirName = "chest_xray_ternary"
	pneumoniaDir   = "PNEUMONIA"
)

// Layout resolves the fixed directory taxonomy under a root folder:
//
//	<root>/chest_xray/{train,test}/{NORMAL,PNEUMONIA}
//	<root>/chest_xray/chest_xray_ternary/{train,test}/{BACTERIAL,VIRAL}
type Layout struct {
	Root string
}

// NewLayout creates a layout rooted at root
func NewLayout(root string) Layout {
	return Layout{Root: root}
}

// BaseDir is the two-class tree
func (l Layout) BaseDir() string {
	return filepath.Join(l.Root, baseDirName)
}

// TernaryDir is the three-class tree
func (l Layout) TernaryDir() string {
	return filepath.Join(l.BaseDir(), ternaryDirName)
}

// CellDir returns the directory holding the images of one cell. Normal scans
// come from the two-class tree, bacterial and viral from the ternary tree.
func (l Layout) CellDir(c Cell) string {
	if c.Label == LabelNormal {
		return filepath.Join(l.BaseDir(), c.Split.String(), c.Label.DirName())
	}
	return filepath.Join(l.TernaryDir(), c.Split.String(), c.Label.DirName())
}

// PneumoniaDir returns the collapsed pneumonia directory of the two-class tree
func (l Layout) PneumoniaDir(s Split) string {
	return filepath.Join(l.BaseDir(), s.String(), pneumoniaDir)
}

// SplitRoot returns the directory whose sub-directories are the classes of
// scheme for split
func (l Layout) SplitRoot(scheme Scheme, s Split) string {
	if scheme == SchemeThreeClass {
		return filepath.Join(l.TernaryDir(), s.String())
	}
	return filepath.Join(l.BaseDir(), s.String())
}

// SchemeSources lists the class directories of scheme for split, sorted by
// class name. Classes are the sub-directories of the split root. The ternary
// tree may omit NORMAL, in which case the two-class NORMAL directory is used.
func (l Layout) SchemeSources(scheme Scheme, s Split) ([]ClassSource, error) {
	root := l.SplitRoot(scheme, s)
	dirs, err := filepath.Glob(filepath.Join(root, "*"))
	if err != nil {
		return nil, err
	}

	var sources []ClassSource
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		sources = append(sources, ClassSource{Name: filepath.Base(dir), Dir: dir})
	}

	if scheme == SchemeThreeClass {
		hasNormal := false
		for _, src := range sources {
			if src.Name == LabelNormal.DirName() {
				hasNormal = true
				break
			}
		}
		if !hasNormal {
			sources = append(sources, ClassSource{
				Name: LabelNormal.DirName(),
				Dir:  l.CellDir(Cell{LabelNormal, s}),
			})
		}
	}

	sort.Slice(sources, func(i, j int) bool { return sources[i].Name < sources[j].Name })
	return sources, nil
}

// RequiredDirs lists every directory a preprocessing run reads, in table
// order followed by the two-class pneumonia directories.
func (l Layout) RequiredDirs() []string {
	dirs := make([]string, 0, len(CellOrder)+2)
	for _, c := range CellOrder {
		dirs = append(dirs, l.CellDir(c))
	}
	for _, s := range Splits() {
		dirs = append(dirs, l.PneumoniaDir(s))
	}
	return dirs
}

// Validate returns a *MissingDirectoryError for the first required directory
// that does not exist
func (l Layout) Validate() error {
	return checkDirs(l.RequiredDirs())
}

func checkDirs(dirs []string) error {
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return &MissingDirectoryError{Path: dir}
		}
	}
	return nil
}
