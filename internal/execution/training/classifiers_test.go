package training

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomForestFeatureImportances(t *testing.T) {
	X := make([][]float64, 0, 40)
	y := make([]int, 0, 40)
	for i := 0; i < 40; i++ {
		label := i % 2
		// Only feature 1 carries the label.
		X = append(X, []float64{float64(i % 7), float64(label*10 + i%3), float64(i % 5)})
		y = append(y, label)
	}

	cfg := DefaultRandomForestConfig()
	cfg.NumTrees = 20
	cfg.MaxFeaturesStrategy = "all"
	rf := NewRandomForestClassifier(cfg)
	require.NoError(t, rf.Fit(context.Background(), X, y, 2))

	importance := rf.FeatureImportances()
	require.Len(t, importance, 3)
	sum := 0.0
	for _, v := range importance {
		sum += v
	}
	assert.InDelta(t, 1, sum, 1e-9)
	assert.Greater(t, importance[1], importance[0])
	assert.Greater(t, importance[1], importance[2])
}

func TestRandomForestDepthLimit(t *testing.T) {
	X, y := blobs(2, 20, 9)
	cfg := DefaultRandomForestConfig()
	cfg.NumTrees = 3
	cfg.MaxDepth = 1
	rf := NewRandomForestClassifier(cfg)
	require.NoError(t, rf.Fit(context.Background(), X, y, 2))

	for _, tree := range rf.Trees {
		root := tree.Root
		if root.IsLeaf {
			continue
		}
		assert.True(t, root.Left.IsLeaf)
		assert.True(t, root.Right.IsLeaf)
	}
}

func TestCalculateMaxFeatures(t *testing.T) {
	tests := []struct {
		strategy string
		n        int
		want     int
	}{
		{"sqrt", 41, 6},
		{"log2", 41, 5},
		{"all", 41, 41},
		{"sqrt", 1, 1},
		{"log2", 1, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, calculateMaxFeatures(tt.strategy, tt.n), "%s(%d)", tt.strategy, tt.n)
	}
}

func TestImpurity(t *testing.T) {
	assert.InDelta(t, 0.5, calculateGiniImpurity([]float64{5, 5}, 10), 1e-12)
	assert.Equal(t, 0.0, calculateGiniImpurity([]float64{10, 0}, 10))
	assert.InDelta(t, 1.0, calculateEntropyImpurity([]float64{5, 5}, 10), 1e-12)
	assert.Equal(t, 0.0, calculateEntropyImpurity(nil, 0))
}

func TestResolveGamma(t *testing.T) {
	X := [][]float64{{0, 2}, {2, 0}}
	gamma, err := resolveGamma("scale", X)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, gamma, 1e-12)

	gamma, err = resolveGamma("auto", X)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, gamma, 1e-12)

	gamma, err = resolveGamma("0.25", X)
	require.NoError(t, err)
	assert.Equal(t, 0.25, gamma)

	gamma, err = resolveGamma("scale", [][]float64{{1, 1}, {1, 1}})
	require.NoError(t, err)
	assert.Equal(t, 1.0, gamma)

	_, err = resolveGamma("-1", X)
	assert.Error(t, err)
	_, err = resolveGamma("wide", X)
	assert.Error(t, err)
}

func TestSigmoid(t *testing.T) {
	decisions := []float64{-3, -2, -1.5, -1, 1, 1.5, 2, 3}
	y := []float64{-1, -1, -1, -1, 1, 1, 1, 1}
	a, b := sigmoidTrain(decisions, y)
	assert.Less(t, a, 0.0, "larger decision values mean higher probability")

	low := sigmoidPredict(-2, a, b)
	high := sigmoidPredict(2, a, b)
	assert.Less(t, low, 0.5)
	assert.Greater(t, high, 0.5)
	assert.False(t, math.IsNaN(sigmoidPredict(1e6, a, b)))
	assert.False(t, math.IsNaN(sigmoidPredict(-1e6, a, b)))
}

func TestKernelCache(t *testing.T) {
	X := [][]float64{{0, 0}, {1, 0}, {0, 2}}
	kernel := &rbfKernel{gamma: 1}
	cache, err := newKernelCache(X, kernel, 1)
	require.NoError(t, err)

	row := cache.row(1)
	assert.InDelta(t, math.Exp(-1), row[0], 1e-12)
	assert.Equal(t, 1.0, row[1])
	assert.InDelta(t, math.Exp(-5), row[2], 1e-12)

	again := cache.row(1)
	assert.Same(t, &row[0], &again[0])
}

func TestSVMConfigValidation(t *testing.T) {
	X, y := blobs(2, 10, 1)

	cfg := DefaultSVMConfig()
	cfg.Kernel = "linear"
	assert.Error(t, NewSVMClassifier(cfg).Fit(context.Background(), X, y, 2))

	cfg = DefaultSVMConfig()
	cfg.Probability = false
	assert.Error(t, NewSVMClassifier(cfg).Fit(context.Background(), X, y, 2))
}

func TestNeuralNetworkEarlyStoppingRestoresBest(t *testing.T) {
	X, y := blobs(2, 40, 6)
	cfg := DefaultNeuralNetworkConfig()
	cfg.HiddenLayers = []int{8}
	cfg.MaxIter = 300
	nn := NewNeuralNetworkClassifier(cfg)
	require.NoError(t, nn.Fit(context.Background(), X, y, 2))

	assert.LessOrEqual(t, nn.Epochs, cfg.MaxIter)
	assert.Greater(t, nn.BestValidationScore, 0.5)
	assert.Len(t, nn.Layers, 2)
	in, out := nn.Layers[0].Weights.Dims()
	assert.Equal(t, 3, in)
	assert.Equal(t, 8, out)
}
