// Package diagnostics turns the dataset table and training results into
// summaries and plot data for the plotting service.
package diagnostics

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/tsawler/xray-harness/vision/dataset"
	"github.com/tsawler/xray-harness/visualization"
)

// DefaultBins is the histogram resolution used by IntensityDistribution
const DefaultBins = 30

// stack order of the class distribution bars, bottom first
var stackOrder = []dataset.Label{dataset.LabelBacterial, dataset.LabelViral, dataset.LabelNormal}

// ClassDistribution returns the train/test totals per label and a stacked
// bar plot of them
func ClassDistribution(table *dataset.Table) ([]dataset.LabelTotals, visualization.PlotData) {
	totals := table.GroupTotals()

	plot := visualization.NewPlot(visualization.ClassDistributionPlot,
		"Class Distribution: Chest X-ray Image Classification", "Split", "Number of Images")
	plot.Config.CustomOptions = map[string]interface{}{"stacked": true}
	plot.Metrics = map[string]interface{}{"total_rows": table.Len()}

	categories := []string{"Train", "Test"}
	for _, l := range stackOrder {
		for _, lt := range totals {
			if lt.Label != l {
				continue
			}
			plot.Series = append(plot.Series, visualization.BarSeries(seriesName(l), categories,
				[]float64{float64(lt.Train), float64(lt.Test)}))
		}
	}
	return totals, plot
}

func seriesName(l dataset.Label) string {
	switch l {
	case dataset.LabelNormal:
		return "Normal (No Pneumonia)"
	case dataset.LabelBacterial:
		return "Bacterial Pneumonia"
	default:
		return "Viral Pneumonia"
	}
}

// IntensityGroup summarizes the intensity sums of one group of rows
type IntensityGroup struct {
	Name      string
	Count     int
	Mean      float64
	Histogram *dataset.Histogram
}

// IntensityReport holds the intensity summaries of one grouping scheme
type IntensityReport struct {
	Scheme dataset.Scheme
	Groups []IntensityGroup
}

type group struct {
	name   string
	filter dataset.Filter
}

func schemeGroups(scheme dataset.Scheme) []group {
	if scheme == dataset.SchemeTwoClass {
		return []group{
			{"Normal", dataset.ByLabel(dataset.LabelNormal)},
			{"Pneumonia", dataset.Pneumonia()},
		}
	}
	groups := make([]group, 0, 3)
	for _, l := range dataset.Labels() {
		groups = append(groups, group{l.String(), dataset.ByLabel(l)})
	}
	return groups
}

// IntensityDistribution bins the intensity sums of every group of scheme:
// normal vs pneumonia for two classes, one group per label for three.
// Groups without rows are left out.
func IntensityDistribution(table *dataset.Table, scheme dataset.Scheme, bins int) (*IntensityReport, error) {
	if bins <= 0 {
		bins = DefaultBins
	}
	report := &IntensityReport{Scheme: scheme}
	for _, g := range schemeGroups(scheme) {
		count := table.Count(g.filter)
		if count == 0 {
			continue
		}
		mean, err := table.IntensityMean(g.filter)
		if err != nil {
			return nil, errors.Wrapf(err, "intensity mean of %s", g.name)
		}
		hist, err := table.IntensityHistogram(g.filter, bins)
		if err != nil {
			return nil, errors.Wrapf(err, "intensity histogram of %s", g.name)
		}
		report.Groups = append(report.Groups, IntensityGroup{Name: g.name, Count: count, Mean: mean, Histogram: hist})
	}
	if len(report.Groups) == 0 {
		return nil, dataset.ErrEmptyQueryResult
	}
	return report, nil
}

// Plot returns one histogram series per group, with group means as metrics
func (r *IntensityReport) Plot() visualization.PlotData {
	title := "Binary Classification"
	if r.Scheme == dataset.SchemeThreeClass {
		title = "Ternary Classification"
	}
	plot := visualization.NewPlot(visualization.IntensityDistributionPlot,
		"Distribution of Gray Scale Sums: "+title, "GrayScale Sum", "Number of Images")
	plot.Metrics = make(map[string]interface{}, len(r.Groups))
	for _, g := range r.Groups {
		plot.Series = append(plot.Series, visualization.HistogramSeries(g.Name, g.Histogram.Edges, g.Histogram.Counts))
		plot.Metrics[g.Name+" GS-Sum Mean"] = g.Mean
	}
	return plot
}

// ExtremeMode selects the grouping of a darkest vs lightest comparison
type ExtremeMode int

const (
	// Global compares the darkest and lightest image of the whole table
	Global ExtremeMode = iota
	// PerLabel compares the darkest and lightest image of every label
	PerLabel
)

// ExtremePair holds the darkest and lightest record of one group
type ExtremePair struct {
	Group    string
	Darkest  dataset.Record
	Lightest dataset.Record
}

// DarkVsLight finds the darkest and lightest record of the whole table
// (Global) or of each label (PerLabel). Ties resolve to the first row in
// table order. Labels without rows are left out; ErrEmptyQueryResult is
// returned only when no row matches at all.
func DarkVsLight(table *dataset.Table, mode ExtremeMode) ([]ExtremePair, error) {
	switch mode {
	case Global:
		pair, err := extremePair(table, "all", dataset.All())
		if err != nil {
			return nil, err
		}
		return []ExtremePair{pair}, nil
	case PerLabel:
		pairs := make([]ExtremePair, 0, 3)
		for _, l := range dataset.Labels() {
			if table.Count(dataset.ByLabel(l)) == 0 {
				continue
			}
			pair, err := extremePair(table, l.String(), dataset.ByLabel(l))
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, pair)
		}
		if len(pairs) == 0 {
			return nil, dataset.ErrEmptyQueryResult
		}
		return pairs, nil
	}
	return nil, errors.Errorf("unknown extreme mode %d", mode)
}

func extremePair(table *dataset.Table, name string, f dataset.Filter) (ExtremePair, error) {
	darkest, err := table.Extremum(dataset.Min, f)
	if err != nil {
		return ExtremePair{}, errors.Wrapf(err, "darkest %s image", name)
	}
	lightest, err := table.Extremum(dataset.Max, f)
	if err != nil {
		return ExtremePair{}, errors.Wrapf(err, "lightest %s image", name)
	}
	return ExtremePair{Group: name, Darkest: darkest, Lightest: lightest}, nil
}

// DarkVsLightPlot returns the intensity sums of every pair as two bar series
func DarkVsLightPlot(pairs []ExtremePair) visualization.PlotData {
	plot := visualization.NewPlot(visualization.DarkVsLightPlot, "Darkest vs Lightest X-ray Chest Scans", "Group", "GS-Score")
	dark := visualization.SeriesData{Name: "Darkest", Type: "bar"}
	light := visualization.SeriesData{Name: "Lightest", Type: "bar"}
	for _, p := range pairs {
		dark.Data = append(dark.Data, extremePoint(p.Group, p.Darkest))
		light.Data = append(light.Data, extremePoint(p.Group, p.Lightest))
	}
	plot.Series = []visualization.SeriesData{dark, light}
	return plot
}

func extremePoint(group string, r dataset.Record) visualization.DataPoint {
	return visualization.DataPoint{
		X:     group,
		Y:     r.IntensitySum(),
		Label: fmt.Sprintf("%s (%s)", r.Filename(), r.Cell()),
	}
}
