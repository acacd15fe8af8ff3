package preprocess

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theblitlabs/parity-ids/internal/utils/errorutil"
)

func labels(counts ...int) []int {
	var y []int
	for class, n := range counts {
		for i := 0; i < n; i++ {
			y = append(y, class)
		}
	}
	return y
}

func countClasses(y []int, indices []int, k int) []int {
	out := make([]int, k)
	for _, idx := range indices {
		out[y[idx]]++
	}
	return out
}

func TestStratifiedSplit(t *testing.T) {
	tests := []struct {
		name      string
		counts    []int
		testSize  float64
		wantTrain []int
		wantTest  []int
	}{
		{"80/20 binary", []int{80, 20}, 0.2, []int{64, 16}, []int{16, 4}},
		{"balanced binary", []int{50, 50}, 0.3, []int{35, 35}, []int{15, 15}},
		{"three classes", []int{60, 30, 10}, 0.2, []int{48, 24, 8}, []int{12, 6, 2}},
		{"ceil rounding", []int{7, 4}, 0.25, []int{5, 3}, []int{2, 1}},
		{"tiny classes", []int{2, 2}, 0.5, []int{1, 1}, []int{1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			y := labels(tt.counts...)
			split, err := StratifiedSplit(y, len(tt.counts), tt.testSize, 42)
			require.NoError(t, err)

			assert.Equal(t, tt.wantTrain, countClasses(y, split.Train, len(tt.counts)))
			assert.Equal(t, tt.wantTest, countClasses(y, split.Test, len(tt.counts)))

			all := append(append([]int(nil), split.Train...), split.Test...)
			sort.Ints(all)
			for i, idx := range all {
				assert.Equal(t, i, idx, "every row is used exactly once")
			}
		})
	}
}

func TestStratifiedSplitDeterministic(t *testing.T) {
	y := labels(40, 10)
	a, err := StratifiedSplit(y, 2, 0.2, 7)
	require.NoError(t, err)
	b, err := StratifiedSplit(y, 2, 0.2, 7)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := StratifiedSplit(y, 2, 0.2, 8)
	require.NoError(t, err)
	assert.NotEqual(t, a.Test, c.Test)
}

func TestStratifiedSplitErrors(t *testing.T) {
	tests := []struct {
		name     string
		y        []int
		k        int
		testSize float64
	}{
		{"class with one member", labels(10, 1), 2, 0.2},
		{"zero test size", labels(10, 10), 2, 0},
		{"test size of one", labels(10, 10), 2, 1},
		{"too few rows for classes", labels(2, 2, 2), 3, 0.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			split, err := StratifiedSplit(tt.y, tt.k, tt.testSize, 42)
			assert.Nil(t, split)
			assert.ErrorIs(t, err, errorutil.ErrPreprocess)
		})
	}
}
