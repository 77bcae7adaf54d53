package dataset

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Table is the ordered, read-only collection of every loaded record. Rows
// follow CellOrder, and within a cell the directory listing order.
type Table struct {
	rows []Record
}

// Assemble concatenates the per-cell records in CellOrder. When fileCounts
// is non-nil, every cell's row count must equal its file count, otherwise
// ErrInconsistentTable is returned. Cells absent from records contribute no
// rows.
func Assemble(records map[Cell][]Record, fileCounts map[Cell]int) (*Table, error) {
	known := make(map[Cell]bool, len(CellOrder))
	for _, c := range CellOrder {
		known[c] = true
	}
	for c := range records {
		if !known[c] {
			return nil, errors.Wrapf(ErrInconsistentTable, "unknown cell %s", c)
		}
	}

	total := 0
	for _, c := range CellOrder {
		total += len(records[c])
	}

	rows := make([]Record, 0, total)
	for _, c := range CellOrder {
		cellRecords := records[c]
		if fileCounts != nil && fileCounts[c] != len(cellRecords) {
			return nil, errors.Wrapf(ErrInconsistentTable, "%s has %d rows but %d files",
				c, len(cellRecords), fileCounts[c])
		}
		for i, r := range cellRecords {
			if r.Cell() != c {
				return nil, errors.Wrapf(ErrInconsistentTable, "row %d of %s is labeled %s", i, c, r.Cell())
			}
		}
		rows = append(rows, cellRecords...)
	}

	return &Table{rows: rows}, nil
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.rows)
}

// Row returns the record at index i
func (t *Table) Row(i int) Record {
	return t.rows[i]
}

// Rows returns a copy of every row in table order
func (t *Table) Rows() []Record {
	return append([]Record(nil), t.rows...)
}

// Filter returns the rows matching f in table order
func (t *Table) Filter(f Filter) []Record {
	f = orAll(f)
	var out []Record
	for _, r := range t.rows {
		if f(r) {
			out = append(out, r)
		}
	}
	return out
}

// Count returns the number of rows matching f
func (t *Table) Count(f Filter) int {
	f = orAll(f)
	n := 0
	for _, r := range t.rows {
		if f(r) {
			n++
		}
	}
	return n
}

// IntensitySums returns the intensity sums of the rows matching f
func (t *Table) IntensitySums(f Filter) []float64 {
	f = orAll(f)
	var sums []float64
	for _, r := range t.rows {
		if f(r) {
			sums = append(sums, float64(r.IntensitySum()))
		}
	}
	return sums
}

// IntensityMean returns the mean intensity sum of the rows matching f
func (t *Table) IntensityMean(f Filter) (float64, error) {
	sums := t.IntensitySums(f)
	if len(sums) == 0 {
		return 0, ErrEmptyQueryResult
	}
	return stat.Mean(sums, nil), nil
}

// Histogram holds bin counts over equally spaced edges. Bin i covers
// [Edges[i], Edges[i+1]).
type Histogram struct {
	Edges  []float64
	Counts []float64
}

// IntensityHistogram bins the intensity sums of the rows matching f into
// bins equal-width bins spanning the observed range
func (t *Table) IntensityHistogram(f Filter, bins int) (*Histogram, error) {
	if bins <= 0 {
		return nil, errors.Errorf("bins must be positive, got %d", bins)
	}
	sums := t.IntensitySums(f)
	if len(sums) == 0 {
		return nil, ErrEmptyQueryResult
	}
	sort.Float64s(sums)

	// the last edge must lie strictly above the maximum
	edges := make([]float64, bins+1)
	floats.Span(edges, sums[0], sums[len(sums)-1]+1)

	counts := stat.Histogram(nil, edges, sums, nil)
	return &Histogram{Edges: edges, Counts: counts}, nil
}

func (t *Table) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Dataset table: %d rows\n", len(t.rows)))
	for _, c := range CellOrder {
		sb.WriteString(fmt.Sprintf("  %-16s %d\n", c.String()+":", t.Count(ByCell(c))))
	}
	return sb.String()
}
