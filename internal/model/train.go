package model

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"slices"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ayusman/ergowatch/internal/dataset"
)

// ErrTooFewClasses is returned when training data holds fewer than two labels.
var ErrTooFewClasses = errors.New("need at least two classes in labeled data")

// TrainConfig holds configuration options for Train.
type TrainConfig struct {
	// Kind selects the classifier (default: logistic).
	Kind Kind
	// TestSize is the held-out fraction per class (default: 0.2).
	TestSize float64
	// Seed seeds the stratified split (default: 42).
	Seed int64
	// MaxIter bounds gradient descent iterations (default: 500).
	MaxIter int
	// LearningRate is the gradient descent step (default: 0.5).
	LearningRate float64
	// C is the inverse L2 regularization strength (default: 1.0).
	C float64
}

// DefaultTrainConfig returns the default training configuration.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		Kind:         KindLogistic,
		TestSize:     0.2,
		Seed:         42,
		MaxIter:      500,
		LearningRate: 0.5,
		C:            1.0,
	}
}

func (c TrainConfig) withDefaults() TrainConfig {
	d := DefaultTrainConfig()
	if c.Kind == "" {
		c.Kind = d.Kind
	}
	if c.TestSize <= 0 || c.TestSize >= 1 {
		c.TestSize = d.TestSize
	}
	if c.Seed == 0 {
		c.Seed = d.Seed
	}
	if c.MaxIter <= 0 {
		c.MaxIter = d.MaxIter
	}
	if c.LearningRate <= 0 {
		c.LearningRate = d.LearningRate
	}
	if c.C <= 0 {
		c.C = d.C
	}
	return c
}

// ClassMetrics are the validation metrics of one class.
type ClassMetrics struct {
	Label     string
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// Report summarizes a training run.
type Report struct {
	Accuracy  float64
	TrainSize int
	TestSize  int
	Classes   []ClassMetrics
}

// String formats the report as a classification table.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Validation accuracy: %.4f\n\n", r.Accuracy)
	fmt.Fprintf(&b, "%12s %10s %10s %10s %10s\n\n", "", "precision", "recall", "f1-score", "support")
	for _, c := range r.Classes {
		fmt.Fprintf(&b, "%12s %10.2f %10.2f %10.2f %10d\n", c.Label, c.Precision, c.Recall, c.F1, c.Support)
	}
	fmt.Fprintf(&b, "\n%12s %10s %10s %10.2f %10d\n", "accuracy", "", "", r.Accuracy, r.TestSize)
	return b.String()
}

// Train fits a standardized classifier to d and evaluates it on a stratified
// held-out split. When the split leaves no test rows the model is evaluated
// on its training rows.
func Train(d *dataset.Labeled, config TrainConfig) (*Artifact, *Report, error) {
	config = config.withDefaults()

	if d == nil || d.Len() == 0 {
		return nil, nil, dataset.ErrDatasetMissing
	}
	if len(d.Columns) == 0 {
		return nil, nil, dataset.ErrNoFeatureColumns
	}

	classes := d.Classes()
	if len(classes) < 2 {
		return nil, nil, fmt.Errorf("%w: found %v", ErrTooFewClasses, classes)
	}

	trainIdx, testIdx := stratifiedSplit(d.Y, config.TestSize, config.Seed)

	xTrain, yTrain := subset(d, trainIdx, classes)
	scaler := fitScaler(xTrain)
	zTrain := make([][]float64, len(xTrain))
	for i, x := range xTrain {
		zTrain[i] = scaler.Transform(x)
	}

	a := &Artifact{
		Kind:     config.Kind,
		Classes:  classes,
		Features: slices.Clone(d.Columns),
		Scaler:   scaler,
	}

	switch config.Kind {
	case KindCentroid:
		a.Centroids = fitCentroids(zTrain, yTrain, len(classes))
	case KindLogistic:
		a.Coef, a.Intercept = fitLogistic(zTrain, yTrain, len(classes), config)
	default:
		return nil, nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidArtifact, config.Kind)
	}

	if err := a.Validate(); err != nil {
		return nil, nil, err
	}

	evalIdx := testIdx
	if len(evalIdx) == 0 {
		evalIdx = trainIdx
	}
	report, err := evaluate(a.Classifier(), d, evalIdx, classes)
	if err != nil {
		return nil, nil, err
	}
	report.TrainSize = len(trainIdx)
	report.TestSize = len(testIdx)

	slog.Info("model trained", "kind", a.Kind, "train", report.TrainSize, "test", report.TestSize, "accuracy", report.Accuracy)
	return a, report, nil
}

// stratifiedSplit holds out round(n*testSize) rows of each class, keeping at
// least one training row per class.
func stratifiedSplit(labels []string, testSize float64, seed int64) (train, test []int) {
	byClass := make(map[string][]int)
	var order []string
	for i, y := range labels {
		if _, ok := byClass[y]; !ok {
			order = append(order, y)
		}
		byClass[y] = append(byClass[y], i)
	}
	slices.Sort(order)

	rng := rand.New(rand.NewSource(seed))
	for _, y := range order {
		idx := byClass[y]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

		nTest := int(math.Round(float64(len(idx)) * testSize))
		if nTest >= len(idx) {
			nTest = len(idx) - 1
		}
		test = append(test, idx[:nTest]...)
		train = append(train, idx[nTest:]...)
	}

	slices.Sort(train)
	slices.Sort(test)
	return train, test
}

func subset(d *dataset.Labeled, idx []int, classes []string) ([][]float64, []int) {
	x := make([][]float64, len(idx))
	y := make([]int, len(idx))
	for i, j := range idx {
		x[i] = d.X[j]
		y[i] = slices.Index(classes, d.Y[j])
	}
	return x, y
}

// fitScaler computes per-column mean and population standard deviation.
func fitScaler(x [][]float64) *Scaler {
	n := len(x[0])
	s := &Scaler{Mean: make([]float64, n), Scale: make([]float64, n)}

	col := make([]float64, len(x))
	for j := 0; j < n; j++ {
		for i := range x {
			col[i] = x[i][j]
		}
		mean, variance := stat.MeanVariance(col, nil)
		if len(x) > 1 {
			variance *= float64(len(x)-1) / float64(len(x))
		} else {
			variance = 0
		}
		s.Mean[j] = mean
		s.Scale[j] = math.Sqrt(variance)
	}
	return s
}

func fitCentroids(z [][]float64, y []int, k int) [][]float64 {
	n := len(z[0])
	centroids := make([][]float64, k)
	counts := make([]float64, k)
	for c := range centroids {
		centroids[c] = make([]float64, n)
	}
	for i, row := range z {
		floats.Add(centroids[y[i]], row)
		counts[y[i]]++
	}
	for c := range centroids {
		if counts[c] > 0 {
			floats.Scale(1/counts[c], centroids[c])
		}
	}
	return centroids
}

// fitLogistic runs full-batch gradient descent on the L2-regularized log
// loss. Two classes train a single sigmoid row for the second class; more
// train a softmax row per class.
func fitLogistic(z [][]float64, y []int, k int, config TrainConfig) ([][]float64, []float64) {
	n := len(z[0])
	m := float64(len(z))
	rows := k
	if k == 2 {
		rows = 1
	}

	coef := make([][]float64, rows)
	grad := make([][]float64, rows)
	for r := range coef {
		coef[r] = make([]float64, n)
		grad[r] = make([]float64, n)
	}
	intercept := make([]float64, rows)
	gradB := make([]float64, rows)
	lambda := 1 / (config.C * m)

	scores := make([]float64, rows)
	for iter := 0; iter < config.MaxIter; iter++ {
		for r := range grad {
			floats.Scale(0, grad[r])
			gradB[r] = 0
		}

		for i, x := range z {
			for r := range coef {
				scores[r] = floats.Dot(coef[r], x) + intercept[r]
			}

			if rows == 1 {
				target := 0.0
				if y[i] == 1 {
					target = 1
				}
				e := sigmoid(scores[0]) - target
				floats.AddScaled(grad[0], e, x)
				gradB[0] += e
				continue
			}

			p := softmax(scores)
			for r := range coef {
				e := p[r]
				if y[i] == r {
					e--
				}
				floats.AddScaled(grad[r], e, x)
				gradB[r] += e
			}
		}

		for r := range coef {
			floats.Scale(1/m, grad[r])
			floats.AddScaled(grad[r], lambda, coef[r])
			floats.AddScaled(coef[r], -config.LearningRate, grad[r])
			intercept[r] -= config.LearningRate * gradB[r] / m
		}
	}
	return coef, intercept
}

func evaluate(clf Classifier, d *dataset.Labeled, idx []int, classes []string) (*Report, error) {
	k := len(classes)
	tp := make([]int, k)
	predicted := make([]int, k)
	support := make([]int, k)
	correct := 0

	for _, i := range idx {
		got, err := clf.Predict(d.X[i])
		if err != nil {
			return nil, fmt.Errorf("evaluate row %d: %w", i, err)
		}
		want := slices.Index(classes, d.Y[i])
		gotIdx := slices.Index(classes, got)

		support[want]++
		if gotIdx >= 0 {
			predicted[gotIdx]++
		}
		if gotIdx == want {
			tp[want]++
			correct++
		}
	}

	r := &Report{}
	if len(idx) > 0 {
		r.Accuracy = float64(correct) / float64(len(idx))
	}
	for c, label := range classes {
		m := ClassMetrics{Label: label, Support: support[c]}
		if predicted[c] > 0 {
			m.Precision = float64(tp[c]) / float64(predicted[c])
		}
		if support[c] > 0 {
			m.Recall = float64(tp[c]) / float64(support[c])
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		r.Classes = append(r.Classes, m)
	}
	return r, nil
}
