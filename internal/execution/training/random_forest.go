package training

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

type RandomForestConfig struct {
	NumTrees            int    `mapstructure:"num_trees" json:"num_trees"`
	MaxDepth            int    `mapstructure:"max_depth" json:"max_depth"`
	MinSamplesSplit     int    `mapstructure:"min_samples_split" json:"min_samples_split"`
	MinSamplesLeaf      int    `mapstructure:"min_samples_leaf" json:"min_samples_leaf"`
	MaxFeatures         int    `mapstructure:"max_features" json:"max_features"`
	MaxFeaturesStrategy string `mapstructure:"max_features_strategy" json:"max_features_strategy"`
	Criterion           string `mapstructure:"criterion" json:"criterion"`
	BootstrapSamples    bool   `mapstructure:"bootstrap_samples" json:"bootstrap_samples"`
	ParallelJobs        int    `mapstructure:"parallel_jobs" json:"parallel_jobs"`
	RandomState         int64  `mapstructure:"random_state" json:"random_state"`
}

// DefaultRandomForestConfig: 100 trees of depth at most 20, fitted on all CPUs.
func DefaultRandomForestConfig() RandomForestConfig {
	return RandomForestConfig{
		NumTrees:            100,
		MaxDepth:            20,
		MinSamplesSplit:     2,
		MinSamplesLeaf:      1,
		MaxFeaturesStrategy: "sqrt",
		Criterion:           "gini",
		BootstrapSamples:    true,
		ParallelJobs:        -1,
		RandomState:         42,
	}
}

// RandomForestClassifier is a bagged ensemble of CART trees. PredictProba
// averages the class distributions of the leaves each sample lands in.
type RandomForestClassifier struct {
	Config     RandomForestConfig
	Trees      []*DecisionTree
	NFeatures  int
	NClasses   int
	Importance []float64
}

type DecisionTree struct {
	Root     *TreeNode
	MaxDepth int
	MaxFeats int
}

type TreeNode struct {
	FeatureIndex int
	Threshold    float64
	Left         *TreeNode
	Right        *TreeNode
	Distribution []float64
	IsLeaf       bool
	Samples      int
	Impurity     float64
}

type SplitResult struct {
	FeatureIndex int
	Threshold    float64
	Impurity     float64
	LeftIndices  []int
	RightIndices []int
}

func NewRandomForestClassifier(cfg RandomForestConfig) *RandomForestClassifier {
	defaults := DefaultRandomForestConfig()
	if cfg.NumTrees <= 0 {
		cfg.NumTrees = defaults.NumTrees
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = defaults.MaxDepth
	}
	if cfg.MinSamplesSplit < 2 {
		cfg.MinSamplesSplit = defaults.MinSamplesSplit
	}
	if cfg.MinSamplesLeaf <= 0 {
		cfg.MinSamplesLeaf = defaults.MinSamplesLeaf
	}
	if cfg.Criterion == "" {
		cfg.Criterion = defaults.Criterion
	}
	if cfg.MaxFeaturesStrategy == "" {
		cfg.MaxFeaturesStrategy = defaults.MaxFeaturesStrategy
	}
	return &RandomForestClassifier{Config: cfg}
}

func (rf *RandomForestClassifier) Type() ModelType { return ModelTypeRandomForest }
func (rf *RandomForestClassifier) NumFeatures() int { return rf.NFeatures }
func (rf *RandomForestClassifier) NumClasses() int  { return rf.NClasses }
func (rf *RandomForestClassifier) Fitted() bool     { return len(rf.Trees) > 0 }

func (rf *RandomForestClassifier) Fit(ctx context.Context, features [][]float64, labels []int, numClasses int) error {
	if err := validateTrainingData(features, labels, numClasses); err != nil {
		return err
	}

	numFeatures := len(features[0])
	maxFeatures := rf.Config.MaxFeatures
	if maxFeatures <= 0 || maxFeatures > numFeatures {
		maxFeatures = calculateMaxFeatures(rf.Config.MaxFeaturesStrategy, numFeatures)
	}

	jobs := rf.Config.ParallelJobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}

	// Per-tree seeds are drawn up front so the forest does not depend on
	// the order in which workers pick trees up.
	master := rand.New(rand.NewSource(rf.Config.RandomState))
	seeds := make([]int64, rf.Config.NumTrees)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	trees := make([]*DecisionTree, rf.Config.NumTrees)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i := range trees {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			b := &treeBuilder{
				cfg:         rf.Config,
				features:    features,
				labels:      labels,
				numClasses:  numClasses,
				maxFeatures: maxFeatures,
				rng:         rand.New(rand.NewSource(seeds[i])),
			}
			trees[i] = b.build()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("random forest fitting interrupted: %w", err)
	}

	rf.Trees = trees
	rf.NFeatures = numFeatures
	rf.NClasses = numClasses
	rf.calculateFeatureImportance()
	return nil
}

func (rf *RandomForestClassifier) Predict(features [][]float64) ([]int, error) {
	return predictFromProba(rf, features)
}

func (rf *RandomForestClassifier) PredictProba(features [][]float64) ([][]float64, error) {
	if err := checkPredictInput(rf, features); err != nil {
		return nil, err
	}

	out := make([][]float64, len(features))
	for i, sample := range features {
		proba := make([]float64, rf.NClasses)
		for _, tree := range rf.Trees {
			leaf := tree.leaf(sample)
			for c, p := range leaf.Distribution {
				proba[c] += p
			}
		}
		for c := range proba {
			proba[c] /= float64(len(rf.Trees))
		}
		out[i] = proba
	}
	return out, nil
}

// FeatureImportances returns the normalised mean decrease in impurity per feature.
func (rf *RandomForestClassifier) FeatureImportances() []float64 {
	return append([]float64(nil), rf.Importance...)
}

func (t *DecisionTree) leaf(sample []float64) *TreeNode {
	node := t.Root
	for !node.IsLeaf {
		if sample[node.FeatureIndex] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node
}

// treeBuilder owns the mutable state of growing one tree.
type treeBuilder struct {
	cfg         RandomForestConfig
	features    [][]float64
	labels      []int
	numClasses  int
	maxFeatures int
	rng         *rand.Rand
}

func (b *treeBuilder) build() *DecisionTree {
	indices := b.bootstrap()
	return &DecisionTree{
		Root:     b.buildTree(indices, 0),
		MaxDepth: b.cfg.MaxDepth,
		MaxFeats: b.maxFeatures,
	}
}

func (b *treeBuilder) bootstrap() []int {
	n := len(b.features)
	indices := make([]int, n)
	if !b.cfg.BootstrapSamples {
		for i := range indices {
			indices[i] = i
		}
		return indices
	}
	for i := range indices {
		indices[i] = b.rng.Intn(n)
	}
	return indices
}

func (b *treeBuilder) buildTree(indices []int, depth int) *TreeNode {
	counts := b.classCounts(indices)
	impurity := b.calculateImpurity(counts, len(indices))

	if len(indices) < b.cfg.MinSamplesSplit || depth >= b.cfg.MaxDepth || impurity == 0 {
		return b.createLeafNode(counts, len(indices), impurity)
	}

	bestSplit := b.findBestSplit(indices, counts)
	if bestSplit == nil {
		return b.createLeafNode(counts, len(indices), impurity)
	}

	node := &TreeNode{
		FeatureIndex: bestSplit.FeatureIndex,
		Threshold:    bestSplit.Threshold,
		Samples:      len(indices),
		Impurity:     impurity,
	}
	node.Left = b.buildTree(bestSplit.LeftIndices, depth+1)
	node.Right = b.buildTree(bestSplit.RightIndices, depth+1)
	return node
}

// findBestSplit sweeps each candidate feature in sorted order, keeping
// running class counts on both sides of the threshold.
func (b *treeBuilder) findBestSplit(indices []int, parentCounts []float64) *SplitResult {
	n := len(indices)
	sorted := make([]int, n)
	left := make([]float64, b.numClasses)
	right := make([]float64, b.numClasses)

	var bestSplit *SplitResult
	bestImpurity := math.Inf(1)

	for _, featureIdx := range b.selectRandomFeatures() {
		copy(sorted, indices)
		sort.Slice(sorted, func(i, j int) bool {
			return b.features[sorted[i]][featureIdx] < b.features[sorted[j]][featureIdx]
		})
		for c := range left {
			left[c] = 0
		}
		copy(right, parentCounts)

		for i := 0; i < n-1; i++ {
			cls := b.labels[sorted[i]]
			left[cls]++
			right[cls]--

			value := b.features[sorted[i]][featureIdx]
			next := b.features[sorted[i+1]][featureIdx]
			if value == next {
				continue
			}

			nLeft, nRight := i+1, n-i-1
			if nLeft < b.cfg.MinSamplesLeaf || nRight < b.cfg.MinSamplesLeaf {
				continue
			}

			impurity := (float64(nLeft)*b.calculateImpurity(left, nLeft) +
				float64(nRight)*b.calculateImpurity(right, nRight)) / float64(n)
			if impurity < bestImpurity {
				threshold := (value + next) / 2
				if threshold >= next {
					threshold = value
				}
				bestImpurity = impurity
				bestSplit = &SplitResult{FeatureIndex: featureIdx, Threshold: threshold, Impurity: impurity}
			}
		}
	}

	if bestSplit == nil {
		return nil
	}
	for _, idx := range indices {
		if b.features[idx][bestSplit.FeatureIndex] <= bestSplit.Threshold {
			bestSplit.LeftIndices = append(bestSplit.LeftIndices, idx)
		} else {
			bestSplit.RightIndices = append(bestSplit.RightIndices, idx)
		}
	}
	return bestSplit
}

func (b *treeBuilder) selectRandomFeatures() []int {
	numFeatures := len(b.features[0])
	return b.rng.Perm(numFeatures)[:b.maxFeatures]
}

func (b *treeBuilder) classCounts(indices []int) []float64 {
	counts := make([]float64, b.numClasses)
	for _, idx := range indices {
		counts[b.labels[idx]]++
	}
	return counts
}

func (b *treeBuilder) calculateImpurity(counts []float64, total int) float64 {
	switch strings.ToLower(b.cfg.Criterion) {
	case "entropy":
		return calculateEntropyImpurity(counts, total)
	default:
		return calculateGiniImpurity(counts, total)
	}
}

func (b *treeBuilder) createLeafNode(counts []float64, total int, impurity float64) *TreeNode {
	distribution := make([]float64, len(counts))
	if total > 0 {
		for c, count := range counts {
			distribution[c] = count / float64(total)
		}
	}
	return &TreeNode{
		Distribution: distribution,
		IsLeaf:       true,
		Samples:      total,
		Impurity:     impurity,
	}
}

func calculateMaxFeatures(strategy string, numFeatures int) int {
	var n int
	switch strings.ToLower(strategy) {
	case "log2":
		n = int(math.Log2(float64(numFeatures)))
	case "all", "none":
		n = numFeatures
	default:
		n = int(math.Sqrt(float64(numFeatures)))
	}
	if n < 1 {
		n = 1
	}
	return n
}

func calculateGiniImpurity(counts []float64, total int) float64 {
	if total == 0 {
		return 0
	}
	impurity := 1.0
	for _, count := range counts {
		p := count / float64(total)
		impurity -= p * p
	}
	return impurity
}

func calculateEntropyImpurity(counts []float64, total int) float64 {
	if total == 0 {
		return 0
	}
	entropy := 0.0
	for _, count := range counts {
		if count > 0 {
			p := count / float64(total)
			entropy -= p * math.Log2(p)
		}
	}
	return entropy
}

func (rf *RandomForestClassifier) calculateFeatureImportance() {
	importance := make([]float64, rf.NFeatures)
	for _, tree := range rf.Trees {
		treeImportance := make([]float64, rf.NFeatures)
		accumulateImportance(tree.Root, treeImportance)
		total := 0.0
		for _, v := range treeImportance {
			total += v
		}
		if total == 0 {
			continue
		}
		for f, v := range treeImportance {
			importance[f] += v / total
		}
	}

	total := 0.0
	for _, v := range importance {
		total += v
	}
	if total > 0 {
		for f := range importance {
			importance[f] /= total
		}
	}
	rf.Importance = importance
}

var _ ImportanceReporter = (*RandomForestClassifier)(nil)

func accumulateImportance(node *TreeNode, importance []float64) {
	if node == nil || node.IsLeaf {
		return
	}
	samples := float64(node.Samples)
	decrease := samples*node.Impurity -
		float64(node.Left.Samples)*node.Left.Impurity -
		float64(node.Right.Samples)*node.Right.Impurity
	importance[node.FeatureIndex] += decrease
	accumulateImportance(node.Left, importance)
	accumulateImportance(node.Right, importance)
}
