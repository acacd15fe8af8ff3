package training

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

type NeuralNetworkConfig struct {
	HiddenLayers       []int   `mapstructure:"hidden_layers" json:"hidden_layers"`
	MaxIter            int     `mapstructure:"max_iter" json:"max_iter"`
	LearningRate       float64 `mapstructure:"learning_rate" json:"learning_rate"`
	BatchSize          int     `mapstructure:"batch_size" json:"batch_size"`
	Alpha              float64 `mapstructure:"alpha" json:"alpha"`
	EarlyStopping      bool    `mapstructure:"early_stopping" json:"early_stopping"`
	ValidationFraction float64 `mapstructure:"validation_fraction" json:"validation_fraction"`
	NIterNoChange      int     `mapstructure:"n_iter_no_change" json:"n_iter_no_change"`
	Tol                float64 `mapstructure:"tol" json:"tol"`
	RandomState        int64   `mapstructure:"random_state" json:"random_state"`
}

// DefaultNeuralNetworkConfig: hidden layers (128, 64, 32), at most 200
// epochs of Adam with early stopping on a 10% validation split.
func DefaultNeuralNetworkConfig() NeuralNetworkConfig {
	return NeuralNetworkConfig{
		HiddenLayers:       []int{128, 64, 32},
		MaxIter:            200,
		LearningRate:       1e-3,
		BatchSize:          200,
		Alpha:              1e-4,
		EarlyStopping:      true,
		ValidationFraction: 0.1,
		NIterNoChange:      10,
		Tol:                1e-4,
		RandomState:        42,
	}
}

// NeuralNetworkClassifier is a feed-forward network with ReLU hidden layers
// and a softmax output layer.
type NeuralNetworkClassifier struct {
	Config              NeuralNetworkConfig
	Layers              []*DenseLayer
	NFeatures           int
	NClasses            int
	Epochs              int
	BestValidationScore float64
}

// DenseLayer maps in -> out: a = x*Weights + Bias.
type DenseLayer struct {
	Weights *mat.Dense
	Bias    []float64
}

func NewNeuralNetworkClassifier(cfg NeuralNetworkConfig) *NeuralNetworkClassifier {
	defaults := DefaultNeuralNetworkConfig()
	if len(cfg.HiddenLayers) == 0 {
		cfg.HiddenLayers = defaults.HiddenLayers
	}
	if cfg.MaxIter <= 0 {
		cfg.MaxIter = defaults.MaxIter
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = defaults.LearningRate
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.Alpha < 0 {
		cfg.Alpha = defaults.Alpha
	}
	if cfg.ValidationFraction <= 0 || cfg.ValidationFraction >= 1 {
		cfg.ValidationFraction = defaults.ValidationFraction
	}
	if cfg.NIterNoChange <= 0 {
		cfg.NIterNoChange = defaults.NIterNoChange
	}
	if cfg.Tol <= 0 {
		cfg.Tol = defaults.Tol
	}
	return &NeuralNetworkClassifier{Config: cfg}
}

func (t *NeuralNetworkClassifier) Type() ModelType { return ModelTypeNeuralNetwork }
func (t *NeuralNetworkClassifier) NumFeatures() int { return t.NFeatures }
func (t *NeuralNetworkClassifier) NumClasses() int  { return t.NClasses }
func (t *NeuralNetworkClassifier) Fitted() bool     { return len(t.Layers) > 0 }

func (t *NeuralNetworkClassifier) Fit(ctx context.Context, features [][]float64, labels []int, numClasses int) error {
	if err := validateTrainingData(features, labels, numClasses); err != nil {
		return err
	}
	for _, size := range t.Config.HiddenLayers {
		if size <= 0 {
			return fmt.Errorf("invalid hidden layer size: %d", size)
		}
	}

	rng := rand.New(rand.NewSource(t.Config.RandomState))
	t.NFeatures = len(features[0])
	t.NClasses = numClasses
	t.initializeWeights(rng)

	trainIdx, valIdx := t.validationSplit(len(features), rng)
	earlyStopping := len(valIdx) > 0

	batchSize := t.Config.BatchSize
	if batchSize > len(trainIdx) {
		batchSize = len(trainIdx)
	}

	opt := newAdam(t.Layers, t.Config.LearningRate)
	bestScore := math.Inf(-1)
	bestLoss := math.Inf(1)
	var bestLayers []*DenseLayer
	noImprovement := 0

	for epoch := 0; epoch < t.Config.MaxIter; epoch++ {
		if err := ctx.Err(); err != nil {
			t.Layers = nil
			return fmt.Errorf("neural network fitting interrupted: %w", err)
		}

		rng.Shuffle(len(trainIdx), func(i, j int) { trainIdx[i], trainIdx[j] = trainIdx[j], trainIdx[i] })

		totalLoss := 0.0
		for start := 0; start < len(trainIdx); start += batchSize {
			end := start + batchSize
			if end > len(trainIdx) {
				end = len(trainIdx)
			}
			batch := trainIdx[start:end]

			x, y := t.batchMatrices(features, labels, batch)
			batchLoss := t.trainBatch(x, y, opt)
			if math.IsNaN(batchLoss) || math.IsInf(batchLoss, 0) {
				t.Layers = nil
				return fmt.Errorf("training produced NaN/Inf loss at epoch %d, batch %d - this indicates numerical instability", epoch, start/batchSize)
			}
			totalLoss += batchLoss * float64(len(batch))
		}
		epochLoss := totalLoss / float64(len(trainIdx))
		t.Epochs = epoch + 1

		if earlyStopping {
			score := t.accuracy(features, labels, valIdx)
			if score > bestScore+t.Config.Tol {
				noImprovement = 0
			} else {
				noImprovement++
			}
			if score > bestScore {
				bestScore = score
				bestLayers = cloneLayers(t.Layers)
			}
		} else {
			if epochLoss > bestLoss-t.Config.Tol {
				noImprovement++
			} else {
				noImprovement = 0
			}
			if epochLoss < bestLoss {
				bestLoss = epochLoss
			}
		}
		if noImprovement >= t.Config.NIterNoChange {
			break
		}
	}

	if earlyStopping && bestLayers != nil {
		t.Layers = bestLayers
		t.BestValidationScore = bestScore
	}
	return nil
}

func (t *NeuralNetworkClassifier) Predict(features [][]float64) ([]int, error) {
	return predictFromProba(t, features)
}

func (t *NeuralNetworkClassifier) PredictProba(features [][]float64) ([][]float64, error) {
	if err := checkPredictInput(t, features); err != nil {
		return nil, err
	}
	if len(features) == 0 {
		return [][]float64{}, nil
	}

	activations := t.forward(toDense(features))
	output := activations[len(activations)-1]
	out := make([][]float64, len(features))
	for i := range out {
		out[i] = append([]float64(nil), output.RawRowView(i)...)
	}
	return out, nil
}

// validationSplit holds out ValidationFraction of the rows when early
// stopping is enabled and both sides stay non-empty.
func (t *NeuralNetworkClassifier) validationSplit(n int, rng *rand.Rand) ([]int, []int) {
	perm := rng.Perm(n)
	if !t.Config.EarlyStopping {
		return perm, nil
	}
	nVal := int(math.Ceil(t.Config.ValidationFraction * float64(n)))
	if nVal < 1 || n-nVal < 1 {
		return perm, nil
	}
	return perm[nVal:], perm[:nVal]
}

func (t *NeuralNetworkClassifier) batchMatrices(features [][]float64, labels []int, batch []int) (*mat.Dense, *mat.Dense) {
	x := mat.NewDense(len(batch), t.NFeatures, nil)
	y := mat.NewDense(len(batch), t.NClasses, nil)
	for r, idx := range batch {
		x.SetRow(r, features[idx])
		y.Set(r, labels[idx], 1)
	}
	return x, y
}

// trainBatch runs one forward/backward pass and an Adam update, returning
// the regularised cross-entropy loss of the batch.
func (t *NeuralNetworkClassifier) trainBatch(x, y *mat.Dense, opt *adam) float64 {
	rows, _ := x.Dims()
	n := float64(rows)
	activations := t.forward(x)
	output := activations[len(activations)-1]

	loss := t.calculateLoss(output, y)

	delta := mat.NewDense(rows, t.NClasses, nil)
	delta.Sub(output, y)

	gradW := make([]*mat.Dense, len(t.Layers))
	gradB := make([][]float64, len(t.Layers))
	for l := len(t.Layers) - 1; l >= 0; l-- {
		layer := t.Layers[l]
		in, out := layer.Weights.Dims()

		gw := mat.NewDense(in, out, nil)
		gw.Mul(activations[l].T(), delta)
		gw.Apply(func(i, j int, v float64) float64 {
			return (v + t.Config.Alpha*layer.Weights.At(i, j)) / n
		}, gw)
		gradW[l] = gw

		gb := make([]float64, out)
		for j := 0; j < out; j++ {
			gb[j] = mat.Sum(delta.ColView(j)) / n
		}
		gradB[l] = gb

		if l > 0 {
			prev := activations[l]
			next := mat.NewDense(rows, in, nil)
			next.Mul(delta, layer.Weights.T())
			next.Apply(func(i, j int, v float64) float64 {
				return v * reluDerivative(prev.At(i, j))
			}, next)
			delta = next
		}
	}

	opt.step(t.Layers, gradW, gradB)
	return loss
}

func (t *NeuralNetworkClassifier) forward(x *mat.Dense) []*mat.Dense {
	activations := []*mat.Dense{x}
	for l, layer := range t.Layers {
		rows, _ := activations[l].Dims()
		_, out := layer.Weights.Dims()
		z := mat.NewDense(rows, out, nil)
		z.Mul(activations[l], layer.Weights)

		bias := layer.Bias
		last := l == len(t.Layers)-1
		z.Apply(func(i, j int, v float64) float64 {
			v += bias[j]
			if last {
				return v
			}
			return relu(v)
		}, z)
		if last {
			softmaxRows(z)
		}
		activations = append(activations, z)
	}
	return activations
}

func (t *NeuralNetworkClassifier) calculateLoss(output, target *mat.Dense) float64 {
	rows, cols := output.Dims()
	loss := 0.0
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if target.At(i, j) > 0 {
				loss -= math.Log(math.Max(output.At(i, j), 1e-15))
			}
		}
	}
	loss /= float64(rows)

	penalty := 0.0
	for _, layer := range t.Layers {
		w := layer.Weights.RawMatrix().Data
		penalty += floats.Dot(w, w)
	}
	return loss + 0.5*t.Config.Alpha*penalty/float64(rows)
}

func (t *NeuralNetworkClassifier) accuracy(features [][]float64, labels []int, indices []int) float64 {
	rows := make([][]float64, len(indices))
	for i, idx := range indices {
		rows[i] = features[idx]
	}
	activations := t.forward(toDense(rows))
	output := activations[len(activations)-1]

	correct := 0
	for i, idx := range indices {
		if argmax(output.RawRowView(i)) == labels[idx] {
			correct++
		}
	}
	return float64(correct) / float64(len(indices))
}

// initializeWeights uses Glorot uniform initialisation for every layer.
func (t *NeuralNetworkClassifier) initializeWeights(rng *rand.Rand) {
	sizes := append([]int{t.NFeatures}, t.Config.HiddenLayers...)
	sizes = append(sizes, t.NClasses)

	t.Layers = make([]*DenseLayer, len(sizes)-1)
	for l := range t.Layers {
		in, out := sizes[l], sizes[l+1]
		bound := math.Sqrt(6.0 / float64(in+out))

		weights := make([]float64, in*out)
		for i := range weights {
			weights[i] = (rng.Float64()*2 - 1) * bound
		}
		bias := make([]float64, out)
		for i := range bias {
			bias[i] = (rng.Float64()*2 - 1) * bound
		}
		t.Layers[l] = &DenseLayer{Weights: mat.NewDense(in, out, weights), Bias: bias}
	}
}

func relu(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

func reluDerivative(x float64) float64 {
	if x > 0 {
		return 1
	}
	return 0
}

func softmaxRows(m *mat.Dense) {
	rows, _ := m.Dims()
	for i := 0; i < rows; i++ {
		row := m.RawRowView(i)
		lse := floats.LogSumExp(row)
		for j := range row {
			row[j] = math.Exp(row[j] - lse)
		}
	}
}

func toDense(rows [][]float64) *mat.Dense {
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for _, row := range rows {
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), cols, data)
}

func cloneLayers(layers []*DenseLayer) []*DenseLayer {
	out := make([]*DenseLayer, len(layers))
	for i, layer := range layers {
		out[i] = &DenseLayer{
			Weights: mat.DenseCopyOf(layer.Weights),
			Bias:    append([]float64(nil), layer.Bias...),
		}
	}
	return out
}

// adam keeps first and second moment estimates for every parameter.
type adam struct {
	lr, beta1, beta2, eps float64
	steps                 int
	mW, vW                [][]float64
	mB, vB                [][]float64
}

func newAdam(layers []*DenseLayer, lr float64) *adam {
	a := &adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-8}
	for _, layer := range layers {
		size := len(layer.Weights.RawMatrix().Data)
		a.mW = append(a.mW, make([]float64, size))
		a.vW = append(a.vW, make([]float64, size))
		a.mB = append(a.mB, make([]float64, len(layer.Bias)))
		a.vB = append(a.vB, make([]float64, len(layer.Bias)))
	}
	return a
}

func (a *adam) step(layers []*DenseLayer, gradW []*mat.Dense, gradB [][]float64) {
	a.steps++
	t := float64(a.steps)
	lr := a.lr * math.Sqrt(1-math.Pow(a.beta2, t)) / (1 - math.Pow(a.beta1, t))

	for l, layer := range layers {
		a.update(layer.Weights.RawMatrix().Data, gradW[l].RawMatrix().Data, a.mW[l], a.vW[l], lr)
		a.update(layer.Bias, gradB[l], a.mB[l], a.vB[l], lr)
	}
}

func (a *adam) update(params, grads, m, v []float64, lr float64) {
	for i, g := range grads {
		m[i] = a.beta1*m[i] + (1-a.beta1)*g
		v[i] = a.beta2*v[i] + (1-a.beta2)*g*g
		params[i] -= lr * m[i] / (math.Sqrt(v[i]) + a.eps)
	}
}
