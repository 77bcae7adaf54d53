package dataset

// Filter selects table rows
type Filter func(Record) bool

func orAll(f Filter) Filter {
	if f == nil {
		return All()
	}
	return f
}

// All matches every row
func All() Filter {
	return func(Record) bool { return true }
}

// ByLabel matches rows carrying any of labels
func ByLabel(labels ...Label) Filter {
	return func(r Record) bool {
		for _, l := range labels {
			if r.Label() == l {
				return true
			}
		}
		return false
	}
}

// BySplit matches rows of split s
func BySplit(s Split) Filter {
	return func(r Record) bool { return r.Split() == s }
}

// ByCell matches rows of one (label, split) cell
func ByCell(c Cell) Filter {
	return func(r Record) bool { return r.Cell() == c }
}

// Pneumonia matches bacterial and viral rows
func Pneumonia() Filter {
	return func(r Record) bool { return r.Label().Pneumonia() }
}

// And matches rows accepted by every filter
func And(filters ...Filter) Filter {
	return func(r Record) bool {
		for _, f := range filters {
			if f != nil && !f(r) {
				return false
			}
		}
		return true
	}
}

// Direction selects the minimum or maximum of an extremal query
type Direction int

const (
	Min Direction = iota
	Max
)

func (d Direction) String() string {
	if d == Max {
		return "max"
	}
	return "min"
}

// Extremum returns the row matching f with the smallest (Min) or largest
// (Max) intensity sum. Ties resolve to the first such row in table order.
// ErrEmptyQueryResult is returned when no row matches.
func (t *Table) Extremum(dir Direction, f Filter) (Record, error) {
	f = orAll(f)
	best := -1
	for i, r := range t.rows {
		if !f(r) {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		sum, bestSum := r.IntensitySum(), t.rows[best].IntensitySum()
		if (dir == Max && sum > bestSum) || (dir == Min && sum < bestSum) {
			best = i
		}
	}
	if best < 0 {
		return Record{}, ErrEmptyQueryResult
	}
	return t.rows[best], nil
}

// LabelTotals holds the train and test row counts of a label
type LabelTotals struct {
	Label Label
	Train int
	Test  int
}

// Total returns Train + Test
func (lt LabelTotals) Total() int {
	return lt.Train + lt.Test
}

// GroupTotals returns the train/test counts of every label in Labels() order
func (t *Table) GroupTotals() []LabelTotals {
	totals := make([]LabelTotals, 0, 3)
	for _, l := range Labels() {
		lt := LabelTotals{Label: l}
		for _, r := range t.rows {
			if r.Label() != l {
				continue
			}
			if r.IsTrain() {
				lt.Train++
			} else {
				lt.Test++
			}
		}
		totals = append(totals, lt)
	}
	return totals
}
