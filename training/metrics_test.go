package training

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

const tolerance = 1e-9

// TestMetricTypeString tests the string representation of MetricType
func TestMetricTypeString(t *testing.T) {
	tests := []struct {
		metric   MetricType
		expected string
	}{
		{Precision, "Precision"},
		{Recall, "Recall"},
		{F1Score, "F1Score"},
		{Specificity, "Specificity"},
		{NPV, "NPV"},
		{MacroPrecision, "MacroPrecision"},
		{MacroRecall, "MacroRecall"},
		{MacroF1, "MacroF1"},
		{MicroPrecision, "MicroPrecision"},
		{MicroRecall, "MicroRecall"},
		{MicroF1, "MicroF1"},
		{AUCROC, "AUCROC"},
		{MetricType(999), "Unknown(999)"},
	}

	for _, test := range tests {
		if result := test.metric.String(); result != test.expected {
			t.Errorf("MetricType(%d).String() = %s, expected %s", test.metric, result, test.expected)
		}
	}
}

func TestPredictedClasses(t *testing.T) {
	binary := mat.NewDense(4, 1, []float64{0.1, 0.5, 0.51, 0.9})
	got := PredictedClasses(binary)
	want := []int{0, 0, 1, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Binary sample %d: expected %d, got %d", i, want[i], got[i])
		}
	}

	multi := mat.NewDense(3, 3, []float64{
		0.2, 0.5, 0.3,
		0.4, 0.4, 0.2,
		0.1, 0.1, 0.8,
	})
	got = PredictedClasses(multi)
	want = []int{1, 0, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Multi-class sample %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

// TestBinaryMetrics checks metrics on a known 2x2 matrix
func TestBinaryMetrics(t *testing.T) {
	cm := NewConfusionMatrix(2)
	cm.Matrix = [][]int{{5, 2}, {1, 7}}
	cm.TotalSamples = 15

	tests := []struct {
		metric MetricType
		want   float64
	}{
		{Precision, 7.0 / 9.0},
		{Recall, 7.0 / 8.0},
		{Specificity, 5.0 / 7.0},
		{NPV, 5.0 / 6.0},
		{F1Score, 2 * (7.0 / 9.0) * (7.0 / 8.0) / (7.0/9.0 + 7.0/8.0)},
	}
	for _, tt := range tests {
		t.Run(tt.metric.String(), func(t *testing.T) {
			if got := cm.GetMetric(tt.metric); math.Abs(got-tt.want) > tolerance {
				t.Errorf("Expected %f, got %f", tt.want, got)
			}
		})
	}

	if got := cm.GetAccuracy(); math.Abs(got-12.0/15.0) > tolerance {
		t.Errorf("Expected accuracy %f, got %f", 12.0/15.0, got)
	}
	if cm.SchemeRecall() != cm.GetMetric(Recall) {
		t.Error("Two-class scheme recall should be binary recall")
	}
}

func TestMultiClassMetrics(t *testing.T) {
	cm := NewConfusionMatrix(3)
	predictions := mat.NewDense(6, 3, []float64{
		0.8, 0.1, 0.1, // 0 -> 0
		0.1, 0.8, 0.1, // 0 -> 1
		0.1, 0.8, 0.1, // 1 -> 1
		0.1, 0.8, 0.1, // 1 -> 1
		0.1, 0.1, 0.8, // 2 -> 2
		0.8, 0.1, 0.1, // 2 -> 0
	})
	if err := cm.UpdateFromPredictions(predictions, []int{0, 0, 1, 1, 2, 2}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	wantMacroRecall := (0.5 + 1.0 + 0.5) / 3
	if got := cm.GetMetric(MacroRecall); math.Abs(got-wantMacroRecall) > tolerance {
		t.Errorf("Expected macro recall %f, got %f", wantMacroRecall, got)
	}
	if cm.SchemeRecall() != cm.GetMetric(MacroRecall) {
		t.Error("Three-class scheme recall should be macro recall")
	}
	if got := cm.GetMetric(MicroRecall); math.Abs(got-4.0/6.0) > tolerance {
		t.Errorf("Expected micro recall %f, got %f", 4.0/6.0, got)
	}
	if got := cm.GetMetric(Recall); got != 0 {
		t.Errorf("Binary recall on three classes should be 0, got %f", got)
	}

	cm.Reset()
	if cm.TotalSamples != 0 || cm.GetAccuracy() != 0 {
		t.Error("Reset did not clear the matrix")
	}
}

func TestUpdateFromPredictionsErrors(t *testing.T) {
	cm := NewConfusionMatrix(3)
	if err := cm.UpdateFromPredictions(mat.NewDense(2, 3, nil), []int{0}); err == nil {
		t.Error("Expected length mismatch error")
	}
	if err := cm.UpdateFromPredictions(mat.NewDense(1, 2, nil), []int{0}); err == nil {
		t.Error("Expected class count mismatch error")
	}
	if err := cm.UpdateFromPredictions(mat.NewDense(1, 3, nil), []int{5}); err == nil {
		t.Error("Expected out-of-range class error")
	}
}

func TestROCCurve(t *testing.T) {
	t.Run("Perfect", func(t *testing.T) {
		points, err := ROCCurve([]float64{0.9, 0.8, 0.3, 0.1}, []int{1, 1, 0, 0})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if auc := AUC(points); math.Abs(auc-1) > tolerance {
			t.Errorf("Expected AUC 1, got %f", auc)
		}
		last := points[len(points)-1]
		if last.TPR != 1 || last.FPR != 1 {
			t.Errorf("Curve should end at (1, 1), got (%f, %f)", last.FPR, last.TPR)
		}
	})

	t.Run("Inverted", func(t *testing.T) {
		if auc := CalculateAUCROC([]float64{0.1, 0.2, 0.8, 0.9}, []int{1, 1, 0, 0}); math.Abs(auc) > tolerance {
			t.Errorf("Expected AUC 0, got %f", auc)
		}
	})

	t.Run("TiedScores", func(t *testing.T) {
		points, err := ROCCurve([]float64{0.5, 0.5, 0.5, 0.5}, []int{1, 0, 1, 0})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(points) != 2 {
			t.Errorf("Tied scores should produce one step, got %d points", len(points))
		}
		if auc := AUC(points); math.Abs(auc-0.5) > tolerance {
			t.Errorf("Expected AUC 0.5, got %f", auc)
		}
	})

	t.Run("SingleClass", func(t *testing.T) {
		if _, err := ROCCurve([]float64{0.1, 0.2}, []int{1, 1}); err == nil {
			t.Error("Expected error without negatives")
		}
		if auc := CalculateAUCROC([]float64{0.1, 0.2}, []int{1, 1}); auc != 0 {
			t.Errorf("Expected 0 for undefined AUC, got %f", auc)
		}
	})
}

func TestPositiveScores(t *testing.T) {
	binary := mat.NewDense(2, 1, []float64{0.2, 0.7})
	scores, labels := PositiveScores(binary, []int{0, 1}, 0)
	if math.Abs(scores[0]-0.8) > tolerance || labels[0] != 1 || labels[1] != 0 {
		t.Errorf("Unexpected negative-class scores %v / %v", scores, labels)
	}

	multi := mat.NewDense(2, 3, []float64{0.1, 0.2, 0.7, 0.6, 0.3, 0.1})
	scores, labels = PositiveScores(multi, []int{2, 0}, 2)
	if scores[0] != 0.7 || scores[1] != 0.1 || labels[0] != 1 || labels[1] != 0 {
		t.Errorf("Unexpected one-vs-rest scores %v / %v", scores, labels)
	}
}
