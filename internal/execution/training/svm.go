package training

import (
	"context"
	"fmt"
	"math"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type SVMConfig struct {
	C           float64 `mapstructure:"c" json:"c"`
	Kernel      string  `mapstructure:"kernel" json:"kernel"`
	Gamma       string  `mapstructure:"gamma" json:"gamma"`
	Tolerance   float64 `mapstructure:"tolerance" json:"tolerance"`
	MaxIter     int     `mapstructure:"max_iter" json:"max_iter"`
	CacheSizeMB int     `mapstructure:"cache_size_mb" json:"cache_size_mb"`
	Probability bool    `mapstructure:"probability" json:"probability"`
}

// DefaultSVMConfig: RBF kernel, C=1.0, gamma="scale", probability estimates on.
func DefaultSVMConfig() SVMConfig {
	return SVMConfig{
		C:           1.0,
		Kernel:      "rbf",
		Gamma:       "scale",
		Tolerance:   1e-3,
		CacheSizeMB: 200,
		Probability: true,
	}
}

// SVMClassifier is a soft-margin RBF support vector machine. Binary problems
// use one machine for class 1; more classes use one-vs-rest machines whose
// Platt probabilities are normalised per sample.
type SVMClassifier struct {
	Config    SVMConfig
	GammaVal  float64
	Machines  []*BinarySVM
	NFeatures int
	NClasses  int
}

// BinarySVM holds one trained decision function
// f(x) = sum_i Coef_i * K(SV_i, x) - Rho and its Platt sigmoid.
type BinarySVM struct {
	SupportVectors [][]float64
	Coef           []float64
	Rho            float64
	PlattA         float64
	PlattB         float64

	// Constant machines had a single class in their training labels.
	Constant     bool
	ConstantProb float64
}

func NewSVMClassifier(cfg SVMConfig) *SVMClassifier {
	defaults := DefaultSVMConfig()
	if cfg.C <= 0 {
		cfg.C = defaults.C
	}
	if cfg.Kernel == "" {
		cfg.Kernel = defaults.Kernel
	}
	if cfg.Gamma == "" {
		cfg.Gamma = defaults.Gamma
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = defaults.Tolerance
	}
	if cfg.CacheSizeMB <= 0 {
		cfg.CacheSizeMB = defaults.CacheSizeMB
	}
	return &SVMClassifier{Config: cfg}
}

func (s *SVMClassifier) Type() ModelType { return ModelTypeSVM }
func (s *SVMClassifier) NumFeatures() int { return s.NFeatures }
func (s *SVMClassifier) NumClasses() int  { return s.NClasses }
func (s *SVMClassifier) Fitted() bool     { return len(s.Machines) > 0 }

func (s *SVMClassifier) Fit(ctx context.Context, features [][]float64, labels []int, numClasses int) error {
	if err := validateTrainingData(features, labels, numClasses); err != nil {
		return err
	}
	if kernel := strings.ToLower(s.Config.Kernel); kernel != "rbf" {
		return fmt.Errorf("unsupported svm kernel: %s", s.Config.Kernel)
	}
	if !s.Config.Probability {
		return fmt.Errorf("svm probability estimates must be enabled for scoring")
	}

	gamma, err := resolveGamma(s.Config.Gamma, features)
	if err != nil {
		return err
	}

	kernel := &rbfKernel{gamma: gamma}
	cache, err := newKernelCache(features, kernel, s.Config.CacheSizeMB)
	if err != nil {
		return err
	}

	positives := []int{1}
	if numClasses > 2 {
		positives = make([]int, numClasses)
		for c := range positives {
			positives[c] = c
		}
	}

	machines := make([]*BinarySVM, 0, len(positives))
	for _, positive := range positives {
		y := make([]float64, len(labels))
		for i, label := range labels {
			if label == positive {
				y[i] = 1
			} else {
				y[i] = -1
			}
		}
		m, err := s.trainBinary(ctx, features, y, cache, kernel)
		if err != nil {
			return err
		}
		machines = append(machines, m)
	}

	s.GammaVal = gamma
	s.Machines = machines
	s.NFeatures = len(features[0])
	s.NClasses = numClasses
	return nil
}

func (s *SVMClassifier) Predict(features [][]float64) ([]int, error) {
	return predictFromProba(s, features)
}

func (s *SVMClassifier) PredictProba(features [][]float64) ([][]float64, error) {
	if err := checkPredictInput(s, features); err != nil {
		return nil, err
	}

	kernel := &rbfKernel{gamma: s.GammaVal}
	out := make([][]float64, len(features))
	for i, sample := range features {
		if s.NClasses == 2 {
			p := s.Machines[0].probability(kernel, sample)
			out[i] = []float64{1 - p, p}
			continue
		}

		proba := make([]float64, s.NClasses)
		total := 0.0
		for c, m := range s.Machines {
			proba[c] = m.probability(kernel, sample)
			total += proba[c]
		}
		for c := range proba {
			if total > 0 {
				proba[c] /= total
			} else {
				proba[c] = 1 / float64(s.NClasses)
			}
		}
		out[i] = proba
	}
	return out, nil
}

func (m *BinarySVM) decision(kernel *rbfKernel, sample []float64) float64 {
	sum := 0.0
	for i, sv := range m.SupportVectors {
		sum += m.Coef[i] * kernel.eval(sv, sample)
	}
	return sum - m.Rho
}

func (m *BinarySVM) probability(kernel *rbfKernel, sample []float64) float64 {
	if m.Constant {
		return m.ConstantProb
	}
	return sigmoidPredict(m.decision(kernel, sample), m.PlattA, m.PlattB)
}

// trainBinary solves the C-SVC dual with SMO, choosing the maximal
// violating pair each iteration.
func (s *SVMClassifier) trainBinary(ctx context.Context, features [][]float64, y []float64, cache *kernelCache, kernel *rbfKernel) (*BinarySVM, error) {
	n := len(y)
	var pos int
	for _, v := range y {
		if v > 0 {
			pos++
		}
	}
	if pos == 0 || pos == n {
		return &BinarySVM{Constant: true, ConstantProb: float64(pos) / float64(n)}, nil
	}

	c := s.Config.C
	eps := s.Config.Tolerance
	maxIter := s.Config.MaxIter
	if maxIter <= 0 {
		maxIter = 100 * n
		if maxIter < 100000 {
			maxIter = 100000
		}
	}

	alpha := make([]float64, n)
	grad := make([]float64, n)
	for i := range grad {
		grad[i] = -1
	}

	const tau = 1e-12
	for iter := 0; iter < maxIter; iter++ {
		if iter%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("svm fitting interrupted: %w", err)
			}
		}

		i, j := -1, -1
		gmax, gmin := math.Inf(-1), math.Inf(1)
		for t := 0; t < n; t++ {
			v := -y[t] * grad[t]
			if inUpper(y[t], alpha[t], c) && v >= gmax {
				gmax, i = v, t
			}
			if inLower(y[t], alpha[t], c) && v <= gmin {
				gmin, j = v, t
			}
		}
		if i < 0 || j < 0 || gmax-gmin < eps {
			break
		}

		qi := cache.row(i)
		qj := cache.row(j)
		kij := qi[j]
		oldI, oldJ := alpha[i], alpha[j]

		// Both branches share quad = K_ii + K_jj - 2 K_ij.
		if y[i] != y[j] {
			quad := qi[i] + qj[j] - 2*kij
			if quad <= 0 {
				quad = tau
			}
			delta := (-grad[i] - grad[j]) / quad
			diff := alpha[i] - alpha[j]
			alpha[i] += delta
			alpha[j] += delta
			if diff > 0 {
				if alpha[j] < 0 {
					alpha[j], alpha[i] = 0, diff
				}
			} else if alpha[i] < 0 {
				alpha[i], alpha[j] = 0, -diff
			}
			if diff > 0 {
				if alpha[i] > c {
					alpha[i], alpha[j] = c, c-diff
				}
			} else if alpha[j] > c {
				alpha[j], alpha[i] = c, c+diff
			}
		} else {
			quad := qi[i] + qj[j] - 2*kij
			if quad <= 0 {
				quad = tau
			}
			delta := (grad[i] - grad[j]) / quad
			sum := alpha[i] + alpha[j]
			alpha[i] -= delta
			alpha[j] += delta
			if sum > c {
				if alpha[i] > c {
					alpha[i], alpha[j] = c, sum-c
				}
			} else if alpha[j] < 0 {
				alpha[j], alpha[i] = 0, sum
			}
			if sum > c {
				if alpha[j] > c {
					alpha[j], alpha[i] = c, sum-c
				}
			} else if alpha[i] < 0 {
				alpha[i], alpha[j] = 0, sum
			}
		}

		// Q_ti = y_t y_i K_ti
		dI := (alpha[i] - oldI) * y[i]
		dJ := (alpha[j] - oldJ) * y[j]
		for t := 0; t < n; t++ {
			grad[t] += y[t] * (qi[t]*dI + qj[t]*dJ)
		}
	}

	m := &BinarySVM{Rho: calculateRho(y, alpha, grad, c)}
	for i, a := range alpha {
		if a > 0 {
			m.SupportVectors = append(m.SupportVectors, append([]float64(nil), features[i]...))
			m.Coef = append(m.Coef, a*y[i])
		}
	}

	decisions := make([]float64, n)
	for i := range features {
		decisions[i] = m.decision(kernel, features[i])
	}
	m.PlattA, m.PlattB = sigmoidTrain(decisions, y)
	return m, nil
}

func inUpper(y, a, c float64) bool {
	return (y > 0 && a < c) || (y < 0 && a > 0)
}

func inLower(y, a, c float64) bool {
	return (y > 0 && a > 0) || (y < 0 && a < c)
}

func calculateRho(y, alpha, grad []float64, c float64) float64 {
	ub, lb := math.Inf(1), math.Inf(-1)
	sumFree, nFree := 0.0, 0
	for t := range y {
		yg := y[t] * grad[t]
		switch {
		case alpha[t] >= c:
			if y[t] < 0 {
				ub = math.Min(ub, yg)
			} else {
				lb = math.Max(lb, yg)
			}
		case alpha[t] <= 0:
			if y[t] > 0 {
				ub = math.Min(ub, yg)
			} else {
				lb = math.Max(lb, yg)
			}
		default:
			nFree++
			sumFree += yg
		}
	}
	if nFree > 0 {
		return sumFree / float64(nFree)
	}
	return (ub + lb) / 2
}

// sigmoidTrain fits P(y=1|f) = 1/(1+exp(A*f+B)) by Newton's method with
// backtracking, using Platt's smoothed targets.
func sigmoidTrain(decisions, y []float64) (float64, float64) {
	var prior1, prior0 float64
	for _, v := range y {
		if v > 0 {
			prior1++
		} else {
			prior0++
		}
	}

	const (
		maxIter = 100
		minStep = 1e-10
		sigma   = 1e-12
		eps     = 1e-5
	)
	hiTarget := (prior1 + 1) / (prior1 + 2)
	loTarget := 1 / (prior0 + 2)
	targets := make([]float64, len(y))
	for i, v := range y {
		if v > 0 {
			targets[i] = hiTarget
		} else {
			targets[i] = loTarget
		}
	}

	objective := func(a, b float64) float64 {
		f := 0.0
		for i, d := range decisions {
			fApB := d*a + b
			if fApB >= 0 {
				f += targets[i]*fApB + math.Log1p(math.Exp(-fApB))
			} else {
				f += (targets[i]-1)*fApB + math.Log1p(math.Exp(fApB))
			}
		}
		return f
	}

	a, b := 0.0, math.Log((prior0+1)/(prior1+1))
	fval := objective(a, b)

	for iter := 0; iter < maxIter; iter++ {
		h11, h22, h21 := sigma, sigma, 0.0
		g1, g2 := 0.0, 0.0
		for i, d := range decisions {
			fApB := d*a + b
			var p, q float64
			if fApB >= 0 {
				e := math.Exp(-fApB)
				p, q = e/(1+e), 1/(1+e)
			} else {
				e := math.Exp(fApB)
				p, q = 1/(1+e), e/(1+e)
			}
			d2 := p * q
			h11 += d * d * d2
			h22 += d2
			h21 += d * d2
			d1 := targets[i] - p
			g1 += d * d1
			g2 += d1
		}
		if math.Abs(g1) < eps && math.Abs(g2) < eps {
			break
		}

		det := h11*h22 - h21*h21
		dA := -(h22*g1 - h21*g2) / det
		dB := -(-h21*g1 + h11*g2) / det
		gd := g1*dA + g2*dB

		step := 1.0
		for step >= minStep {
			newA, newB := a+step*dA, b+step*dB
			newF := objective(newA, newB)
			if newF < fval+0.0001*step*gd {
				a, b, fval = newA, newB, newF
				break
			}
			step /= 2
		}
		if step < minStep {
			break
		}
	}
	return a, b
}

func sigmoidPredict(decision, a, b float64) float64 {
	fApB := decision*a + b
	if fApB >= 0 {
		e := math.Exp(-fApB)
		return e / (1 + e)
	}
	return 1 / (1 + math.Exp(fApB))
}

// resolveGamma supports "scale" (1 / (n_features * Var(X))), "auto"
// (1 / n_features) and explicit positive numbers.
func resolveGamma(setting string, features [][]float64) (float64, error) {
	numFeatures := float64(len(features[0]))
	switch strings.ToLower(setting) {
	case "", "scale":
		all := make([]float64, 0, len(features)*len(features[0]))
		for _, row := range features {
			all = append(all, row...)
		}
		variance := stat.PopVariance(all, nil)
		if variance == 0 {
			return 1.0, nil
		}
		return 1 / (numFeatures * variance), nil
	case "auto":
		return 1 / numFeatures, nil
	default:
		var gamma float64
		if _, err := fmt.Sscanf(setting, "%g", &gamma); err != nil || gamma <= 0 {
			return 0, fmt.Errorf("invalid svm gamma: %q", setting)
		}
		return gamma, nil
	}
}

type rbfKernel struct {
	gamma float64
}

func (k *rbfKernel) eval(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return math.Exp(-k.gamma * d * d)
}

// kernelCache memoises full kernel rows K(x_i, .) for the SMO solver.
type kernelCache struct {
	features [][]float64
	kernel   *rbfKernel
	rows     *lru.Cache[int, []float64]
}

func newKernelCache(features [][]float64, kernel *rbfKernel, sizeMB int) (*kernelCache, error) {
	rowBytes := 8 * len(features)
	capacity := sizeMB * 1024 * 1024 / rowBytes
	if capacity < 2 {
		capacity = 2
	}
	rows, err := lru.New[int, []float64](capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create kernel cache: %w", err)
	}
	return &kernelCache{features: features, kernel: kernel, rows: rows}, nil
}

func (c *kernelCache) row(i int) []float64 {
	if r, ok := c.rows.Get(i); ok {
		return r
	}
	r := make([]float64, len(c.features))
	for t, x := range c.features {
		r[t] = c.kernel.eval(c.features[i], x)
	}
	c.rows.Add(i, r)
	return r
}
