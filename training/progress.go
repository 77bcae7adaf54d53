package training

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/tsawler/xray-harness/layers"
)

// ProgressBar draws a single-line progress bar that redraws in place
type ProgressBar struct {
	out         io.Writer
	description string
	total       int
	current     int
	startTime   time.Time
	width       int
	metrics     map[string]float64
}

// NewProgressBar creates a new progress bar writing to out
func NewProgressBar(out io.Writer, description string, total int) *ProgressBar {
	return &ProgressBar{
		out:         out,
		description: description,
		total:       total,
		startTime:   time.Now(),
		width:       40,
		metrics:     make(map[string]float64),
	}
}

// Update advances the progress bar
func (pb *ProgressBar) Update(step int, metrics map[string]float64) {
	pb.current = step
	for k, v := range metrics {
		pb.metrics[k] = v
	}
	pb.render()
}

// Finish completes the progress bar
func (pb *ProgressBar) Finish() {
	pb.current = pb.total
	pb.render()
	fmt.Fprintln(pb.out)
}

func (pb *ProgressBar) render() {
	percentage := 1.0
	if pb.total > 0 {
		percentage = min(float64(pb.current)/float64(pb.total), 1.0)
	}
	filled := int(percentage * float64(pb.width))
	bar := strings.Repeat("█", filled) + strings.Repeat(" ", pb.width-filled)

	elapsed := time.Since(pb.startTime)
	var eta time.Duration
	if pb.current > 0 && percentage > 0 {
		eta = time.Duration(float64(elapsed)/percentage) - elapsed
	}

	line := fmt.Sprintf("\r%s: %3.0f%%|%s| %d/%d [%s<%s",
		pb.description, percentage*100, bar, pb.current, pb.total,
		formatDuration(elapsed), formatDuration(eta))

	keys := make([]string, 0, len(pb.metrics))
	for k := range pb.metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if strings.Contains(key, "acc") {
			line += fmt.Sprintf(", %s=%.2f%%", key, pb.metrics[key]*100)
		} else {
			line += fmt.Sprintf(", %s=%.3f", key, pb.metrics[key])
		}
	}

	fmt.Fprint(pb.out, line+"]")
}

// formatDuration formats duration as MM:SS
func formatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// PrintArchitecture writes a layer-by-layer description of spec
func PrintArchitecture(out io.Writer, modelName string, spec *layers.ModelSpec) {
	fmt.Fprintf(out, "%s(\n", modelName)
	for _, layer := range spec.Layers {
		fmt.Fprintf(out, "  %s\n", formatLayer(layer))
	}
	fmt.Fprintf(out, ")\n")
	fmt.Fprintf(out, "Total parameters: %s\n", formatParameterCount(spec.TotalParameters))
	fmt.Fprintf(out, "Params size (MB): %.3f\n", float64(spec.TotalParameters*8)/1024/1024)
}

func param(layer layers.LayerSpec, key string) any {
	if v, ok := layer.Parameters[key]; ok {
		return v
	}
	return "?"
}

func formatLayer(layer layers.LayerSpec) string {
	switch layer.Type {
	case layers.Conv2D:
		return fmt.Sprintf("(%s): Conv2D(%v, %v, kernel_size=%v, stride=%v, padding=%v, bias=%v)",
			layer.Name, param(layer, "input_channels"), param(layer, "output_channels"),
			param(layer, "kernel_size"), param(layer, "stride"), param(layer, "padding"), param(layer, "use_bias"))
	case layers.Dense:
		return fmt.Sprintf("(%s): Dense(in_features=%v, out_features=%v, bias=%v)",
			layer.Name, param(layer, "input_size"), param(layer, "output_size"), param(layer, "use_bias"))
	case layers.MaxPool2D:
		return fmt.Sprintf("(%s): MaxPool2D(pool_size=%v, stride=%v)", layer.Name, param(layer, "pool_size"), param(layer, "stride"))
	case layers.Dropout:
		return fmt.Sprintf("(%s): Dropout(rate=%v)", layer.Name, param(layer, "rate"))
	default:
		return fmt.Sprintf("(%s): %s()", layer.Name, layer.Type)
	}
}

// formatParameterCount formats parameter count with K/M suffixes
func formatParameterCount(count int64) string {
	if count >= 1000000 {
		return fmt.Sprintf("%.1fM", float64(count)/1000000.0)
	} else if count >= 1000 {
		return fmt.Sprintf("%.1fK", float64(count)/1000.0)
	}
	return fmt.Sprintf("%d", count)
}
