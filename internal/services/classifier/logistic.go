package classifier

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrInsufficientData = errors.New("classifier: training set needs both classes")
	ErrNotFitted        = errors.New("classifier: predict before fit")
	ErrShape            = errors.New("classifier: inconsistent input shape")
)

// scaler standardizes columns with statistics from the training set.
type scaler struct {
	mean, std []float64
}

func fitScaler(X [][]float64) scaler {
	d := len(X[0])
	s := scaler{mean: make([]float64, d), std: make([]float64, d)}
	col := make([]float64, len(X))
	for j := 0; j < d; j++ {
		for i := range X {
			col[i] = X[i][j]
		}
		m, sd := stat.MeanStdDev(col, nil)
		if sd == 0 || math.IsNaN(sd) {
			sd = 1
		}
		s.mean[j], s.std[j] = m, sd
	}
	return s
}

func (s scaler) transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - s.mean[j]) / s.std[j]
	}
	return out
}

// Logistic is L2-regularized logistic regression fit by batch gradient
// descent on standardized inputs.
type Logistic struct {
	LearningRate float64
	Epochs       int
	L2           float64

	sc      scaler
	weights []float64
	bias    float64
}

func NewLogistic(lr float64, epochs int, l2 float64) *Logistic {
	return &Logistic{LearningRate: lr, Epochs: epochs, L2: l2}
}

func (m *Logistic) Name() string { return NameLogistic }

func (m *Logistic) Fit(X [][]float64, y []float64) error {
	if err := checkTrain(X, y); err != nil {
		return err
	}
	m.sc = fitScaler(X)
	Z := make([][]float64, len(X))
	for i := range X {
		Z[i] = m.sc.transform(X[i])
	}

	n, d := float64(len(Z)), len(Z[0])
	m.weights = make([]float64, d)
	m.bias = 0
	grad := make([]float64, d)
	for epoch := 0; epoch < m.Epochs; epoch++ {
		for j := range grad {
			grad[j] = 0
		}
		var gb float64
		for i, z := range Z {
			e := sigmoid(floats.Dot(m.weights, z)+m.bias) - y[i]
			floats.AddScaled(grad, e, z)
			gb += e
		}
		floats.Scale(1/n, grad)
		floats.AddScaled(grad, m.L2, m.weights)
		floats.AddScaled(m.weights, -m.LearningRate, grad)
		m.bias -= m.LearningRate * gb / n
	}
	return nil
}

func (m *Logistic) PredictProba(X [][]float64) ([]float64, error) {
	if m.weights == nil {
		return nil, ErrNotFitted
	}
	out := make([]float64, len(X))
	for i, x := range X {
		if len(x) != len(m.weights) {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrShape, i, len(x), len(m.weights))
		}
		out[i] = sigmoid(floats.Dot(m.weights, m.sc.transform(x)) + m.bias)
	}
	return out, nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func checkTrain(X [][]float64, y []float64) error {
	if len(X) == 0 || len(X) != len(y) {
		return fmt.Errorf("%w: %d rows, %d labels", ErrInsufficientData, len(X), len(y))
	}
	d := len(X[0])
	var pos, neg int
	for i, x := range X {
		if len(x) != d {
			return fmt.Errorf("%w: row %d has %d features, want %d", ErrShape, i, len(x), d)
		}
		switch y[i] {
		case 1:
			pos++
		case 0:
			neg++
		default:
			return fmt.Errorf("%w: label %v at row %d is not 0 or 1", ErrShape, y[i], i)
		}
	}
	if pos == 0 || neg == 0 {
		return fmt.Errorf("%w: %d positive, %d negative", ErrInsufficientData, pos, neg)
	}
	return nil
}
