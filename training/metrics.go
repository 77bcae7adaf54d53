package training

import (
	"fmt"
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// MetricType represents different evaluation metrics
type MetricType int

const (
	// Binary Classification Metrics
	Precision MetricType = iota
	Recall
	F1Score
	Specificity
	NPV // Negative Predictive Value

	// Multi-class Metrics
	MacroPrecision
	MacroRecall
	MacroF1
	MicroPrecision
	MicroRecall
	MicroF1

	// Ranking Metrics
	AUCROC
)

func (mt MetricType) String() string {
	switch mt {
	case Precision:
		return "Precision"
	case Recall:
		return "Recall"
	case F1Score:
		return "F1Score"
	case Specificity:
		return "Specificity"
	case NPV:
		return "NPV"
	case MacroPrecision:
		return "MacroPrecision"
	case MacroRecall:
		return "MacroRecall"
	case MacroF1:
		return "MacroF1"
	case MicroPrecision:
		return "MicroPrecision"
	case MicroRecall:
		return "MicroRecall"
	case MicroF1:
		return "MicroF1"
	case AUCROC:
		return "AUCROC"
	default:
		return fmt.Sprintf("Unknown(%d)", int(mt))
	}
}

// BinaryThreshold splits single-output probabilities into class 0 and 1
const BinaryThreshold = 0.5

// PredictedClasses turns model output into class indices. A single column
// holds the probability of class 1; wider outputs are resolved by argmax,
// with ties going to the lowest class index.
func PredictedClasses(predictions *mat.Dense) []int {
	if predictions == nil {
		return nil
	}
	r, c := predictions.Dims()
	classes := make([]int, r)
	for i := 0; i < r; i++ {
		if c == 1 {
			if predictions.At(i, 0) > BinaryThreshold {
				classes[i] = 1
			}
			continue
		}
		best := 0
		for j := 1; j < c; j++ {
			if predictions.At(i, j) > predictions.At(i, best) {
				best = j
			}
		}
		classes[i] = best
	}
	return classes
}

// ConfusionMatrix represents a confusion matrix for classification tasks
type ConfusionMatrix struct {
	NumClasses   int
	Matrix       [][]int // [true_class][predicted_class]
	TotalSamples int

	// Cached metrics to avoid recomputation
	cachedMetrics map[MetricType]float64
}

// NewConfusionMatrix creates a new confusion matrix
func NewConfusionMatrix(numClasses int) *ConfusionMatrix {
	matrix := make([][]int, numClasses)
	for i := range matrix {
		matrix[i] = make([]int, numClasses)
	}

	return &ConfusionMatrix{
		NumClasses:    numClasses,
		Matrix:        matrix,
		cachedMetrics: make(map[MetricType]float64),
	}
}

// Reset clears the confusion matrix
func (cm *ConfusionMatrix) Reset() {
	for i := range cm.Matrix {
		for j := range cm.Matrix[i] {
			cm.Matrix[i][j] = 0
		}
	}
	cm.TotalSamples = 0
	cm.cachedMetrics = make(map[MetricType]float64)
}

// Add records one (true, predicted) pair
func (cm *ConfusionMatrix) Add(trueClass, predClass int) error {
	if trueClass < 0 || trueClass >= cm.NumClasses || predClass < 0 || predClass >= cm.NumClasses {
		return errors.Errorf("class pair (%d, %d) outside [0, %d)", trueClass, predClass, cm.NumClasses)
	}
	cm.Matrix[trueClass][predClass]++
	cm.TotalSamples++
	cm.cachedMetrics = make(map[MetricType]float64)
	return nil
}

// UpdateFromPredictions adds a batch of model outputs against true class indices
func (cm *ConfusionMatrix) UpdateFromPredictions(predictions *mat.Dense, trueLabels []int) error {
	predicted := PredictedClasses(predictions)
	if len(predicted) != len(trueLabels) {
		return errors.Errorf("labels length mismatch: expected %d, got %d", len(predicted), len(trueLabels))
	}
	if predictions != nil {
		if _, c := predictions.Dims(); c != 1 && c != cm.NumClasses {
			return errors.Errorf("class count mismatch: expected %d, got %d", cm.NumClasses, c)
		}
	}
	for i := range predicted {
		if err := cm.Add(trueLabels[i], predicted[i]); err != nil {
			return errors.Wrapf(err, "sample %d", i)
		}
	}
	return nil
}

// GetMetric calculates and caches evaluation metrics
func (cm *ConfusionMatrix) GetMetric(metric MetricType) float64 {
	if value, exists := cm.cachedMetrics[metric]; exists {
		return value
	}

	var result float64

	switch metric {
	case Precision:
		result = cm.calculateBinaryPrecision()
	case Recall:
		result = cm.calculateBinaryRecall()
	case F1Score:
		result = cm.calculateBinaryF1()
	case Specificity:
		result = cm.calculateSpecificity()
	case NPV:
		result = cm.calculateNPV()
	case MacroPrecision:
		result = cm.calculateMacroPrecision()
	case MacroRecall:
		result = cm.calculateMacroRecall()
	case MacroF1:
		result = cm.calculateMacroF1()
	case MicroPrecision:
		result = cm.calculateMicroPrecision()
	case MicroRecall:
		result = cm.calculateMicroRecall()
	case MicroF1:
		result = cm.calculateMicroF1()
	default:
		return 0.0
	}

	cm.cachedMetrics[metric] = result
	return result
}

// SchemeRecall is the recall reported in training history: recall of class 1
// for two classes, macro recall otherwise.
func (cm *ConfusionMatrix) SchemeRecall() float64 {
	if cm.NumClasses == 2 {
		return cm.GetMetric(Recall)
	}
	return cm.GetMetric(MacroRecall)
}

// Binary classification metrics (assuming class 1 is positive)
func (cm *ConfusionMatrix) calculateBinaryPrecision() float64 {
	if cm.NumClasses != 2 {
		return 0.0
	}

	tp := float64(cm.Matrix[1][1])
	fp := float64(cm.Matrix[0][1])

	if tp+fp == 0 {
		return 0.0
	}

	return tp / (tp + fp)
}

func (cm *ConfusionMatrix) calculateBinaryRecall() float64 {
	if cm.NumClasses != 2 {
		return 0.0
	}

	tp := float64(cm.Matrix[1][1])
	fn := float64(cm.Matrix[1][0])

	if tp+fn == 0 {
		return 0.0
	}

	return tp / (tp + fn)
}

func (cm *ConfusionMatrix) calculateBinaryF1() float64 {
	return harmonic(cm.calculateBinaryPrecision(), cm.calculateBinaryRecall())
}

func (cm *ConfusionMatrix) calculateSpecificity() float64 {
	if cm.NumClasses != 2 {
		return 0.0
	}

	tn := float64(cm.Matrix[0][0])
	fp := float64(cm.Matrix[0][1])

	if tn+fp == 0 {
		return 0.0
	}

	return tn / (tn + fp)
}

func (cm *ConfusionMatrix) calculateNPV() float64 {
	if cm.NumClasses != 2 {
		return 0.0
	}

	tn := float64(cm.Matrix[0][0])
	fn := float64(cm.Matrix[1][0])

	if tn+fn == 0 {
		return 0.0
	}

	return tn / (tn + fn)
}

// columnSum and rowSum exclude the diagonal
func (cm *ConfusionMatrix) columnSum(class int) float64 {
	sum := 0
	for other := 0; other < cm.NumClasses; other++ {
		if other != class {
			sum += cm.Matrix[other][class]
		}
	}
	return float64(sum)
}

func (cm *ConfusionMatrix) rowSum(class int) float64 {
	sum := 0
	for other := 0; other < cm.NumClasses; other++ {
		if other != class {
			sum += cm.Matrix[class][other]
		}
	}
	return float64(sum)
}

// Multi-class metrics. Classes without support are left out of the average.
func (cm *ConfusionMatrix) calculateMacroPrecision() float64 {
	sum := 0.0
	validClasses := 0

	for class := 0; class < cm.NumClasses; class++ {
		tp := float64(cm.Matrix[class][class])
		fp := cm.columnSum(class)
		if tp+fp > 0 {
			sum += tp / (tp + fp)
			validClasses++
		}
	}

	if validClasses == 0 {
		return 0.0
	}
	return sum / float64(validClasses)
}

func (cm *ConfusionMatrix) calculateMacroRecall() float64 {
	sum := 0.0
	validClasses := 0

	for class := 0; class < cm.NumClasses; class++ {
		tp := float64(cm.Matrix[class][class])
		fn := cm.rowSum(class)
		if tp+fn > 0 {
			sum += tp / (tp + fn)
			validClasses++
		}
	}

	if validClasses == 0 {
		return 0.0
	}
	return sum / float64(validClasses)
}

func (cm *ConfusionMatrix) calculateMacroF1() float64 {
	return harmonic(cm.calculateMacroPrecision(), cm.calculateMacroRecall())
}

func (cm *ConfusionMatrix) calculateMicroPrecision() float64 {
	totalTP, totalFP := 0.0, 0.0
	for class := 0; class < cm.NumClasses; class++ {
		totalTP += float64(cm.Matrix[class][class])
		totalFP += cm.columnSum(class)
	}
	if totalTP+totalFP == 0 {
		return 0.0
	}
	return totalTP / (totalTP + totalFP)
}

func (cm *ConfusionMatrix) calculateMicroRecall() float64 {
	totalTP, totalFN := 0.0, 0.0
	for class := 0; class < cm.NumClasses; class++ {
		totalTP += float64(cm.Matrix[class][class])
		totalFN += cm.rowSum(class)
	}
	if totalTP+totalFN == 0 {
		return 0.0
	}
	return totalTP / (totalTP + totalFN)
}

func (cm *ConfusionMatrix) calculateMicroF1() float64 {
	return harmonic(cm.calculateMicroPrecision(), cm.calculateMicroRecall())
}

func harmonic(precision, recall float64) float64 {
	if precision+recall == 0 {
		return 0.0
	}
	return 2 * (precision * recall) / (precision + recall)
}

// GetAccuracy returns overall classification accuracy
func (cm *ConfusionMatrix) GetAccuracy() float64 {
	if cm.TotalSamples == 0 {
		return 0.0
	}

	correct := 0
	for i := 0; i < cm.NumClasses; i++ {
		correct += cm.Matrix[i][i]
	}

	return float64(correct) / float64(cm.TotalSamples)
}

// ROCPoint represents a point on the ROC curve
type ROCPoint struct {
	Threshold float64
	TPR       float64 // True Positive Rate (Recall)
	FPR       float64 // False Positive Rate (1 - Specificity)
}

// ROCCurve sweeps the decision threshold over every distinct score, from the
// highest down. Samples with equal scores enter the curve together. The first
// point is (0, 0) at threshold +Inf. labels are 0 or 1.
func ROCCurve(scores []float64, labels []int) ([]ROCPoint, error) {
	if len(scores) != len(labels) {
		return nil, errors.Errorf("score/label length mismatch: %d vs %d", len(scores), len(labels))
	}

	order := make([]int, len(scores))
	totalPos, totalNeg := 0, 0
	for i, label := range labels {
		order[i] = i
		switch label {
		case 1:
			totalPos++
		case 0:
			totalNeg++
		default:
			return nil, errors.Errorf("label %d at index %d is not binary", label, i)
		}
	}
	if totalPos == 0 || totalNeg == 0 {
		return nil, errors.New("ROC curve needs both positive and negative samples")
	}

	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})

	points := []ROCPoint{{Threshold: math.Inf(1), TPR: 0, FPR: 0}}
	tp, fp := 0, 0
	for k, idx := range order {
		if labels[idx] == 1 {
			tp++
		} else {
			fp++
		}
		if k+1 < len(order) && scores[order[k+1]] == scores[idx] {
			continue
		}
		points = append(points, ROCPoint{
			Threshold: scores[idx],
			TPR:       float64(tp) / float64(totalPos),
			FPR:       float64(fp) / float64(totalNeg),
		})
	}
	return points, nil
}

// AUC integrates a ROC curve with the trapezoidal rule
func AUC(points []ROCPoint) float64 {
	auc := 0.0
	for i := 1; i < len(points); i++ {
		auc += (points[i].FPR - points[i-1].FPR) * (points[i].TPR + points[i-1].TPR) / 2.0
	}
	return auc
}

// CalculateAUCROC calculates Area Under ROC Curve for binary classification.
// It returns 0 when the curve is undefined.
func CalculateAUCROC(scores []float64, labels []int) float64 {
	points, err := ROCCurve(scores, labels)
	if err != nil {
		return 0.0
	}
	return AUC(points)
}

// PositiveScores extracts per-sample scores for class as the positive class,
// together with one-vs-rest binary labels.
func PositiveScores(predictions *mat.Dense, trueLabels []int, class int) ([]float64, []int) {
	r, c := predictions.Dims()
	scores := make([]float64, r)
	binary := make([]int, r)
	for i := 0; i < r; i++ {
		switch {
		case c == 1 && class == 0:
			scores[i] = 1 - predictions.At(i, 0)
		case c == 1:
			scores[i] = predictions.At(i, 0)
		default:
			scores[i] = predictions.At(i, class)
		}
		if i < len(trueLabels) && trueLabels[i] == class {
			binary[i] = 1
		}
	}
	return scores, binary
}
