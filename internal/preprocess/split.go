package preprocess

import (
	"math"
	"math/rand"
	"sort"

	"github.com/theblitlabs/parity-ids/internal/utils/errorutil"
)

// Split holds row indices of the training and test partitions.
type Split struct {
	Train []int
	Test  []int
}

// StratifiedSplit partitions rows so each class keeps its proportion in both
// sides. The test side holds ceil(testSize*n) rows.
func StratifiedSplit(labels []int, numClasses int, testSize float64, seed int64) (*Split, error) {
	n := len(labels)
	if testSize <= 0 || testSize >= 1 {
		return nil, errorutil.New(errorutil.ErrPreprocess, "test size must be in (0, 1), got %v", testSize)
	}
	nTest := int(math.Ceil(testSize * float64(n)))
	nTrain := n - nTest
	if nTest < 1 || nTrain < 1 {
		return nil, errorutil.New(errorutil.ErrPreprocess, "%d records cannot be split with test size %v", n, testSize)
	}

	byClass := make([][]int, numClasses)
	for i, label := range labels {
		byClass[label] = append(byClass[label], i)
	}
	for c, members := range byClass {
		if len(members) < 2 {
			return nil, errorutil.New(errorutil.ErrPreprocess, "class %d has %d record(s); stratified split needs at least 2", c, len(members))
		}
	}
	if nTest < numClasses || nTrain < numClasses {
		return nil, errorutil.New(errorutil.ErrPreprocess, "split of %d/%d rows cannot hold all %d classes", nTrain, nTest, numClasses)
	}

	allocation := allocateTest(byClass, nTest, n)

	rng := rand.New(rand.NewSource(seed))
	split := &Split{Train: make([]int, 0, nTrain), Test: make([]int, 0, nTest)}
	for c, members := range byClass {
		shuffled := append([]int(nil), members...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		split.Test = append(split.Test, shuffled[:allocation[c]]...)
		split.Train = append(split.Train, shuffled[allocation[c]:]...)
	}
	rng.Shuffle(len(split.Train), func(i, j int) { split.Train[i], split.Train[j] = split.Train[j], split.Train[i] })
	rng.Shuffle(len(split.Test), func(i, j int) { split.Test[i], split.Test[j] = split.Test[j], split.Test[i] })
	return split, nil
}

// allocateTest gives each class floor(share) test rows, then hands the
// remainder to the classes with the largest fractional share. Every class
// keeps at least one row on each side.
func allocateTest(byClass [][]int, nTest, n int) []int {
	type remainder struct {
		class int
		frac  float64
	}

	allocation := make([]int, len(byClass))
	remainders := make([]remainder, len(byClass))
	assigned := 0
	for c, members := range byClass {
		share := float64(len(members)) * float64(nTest) / float64(n)
		allocation[c] = int(math.Floor(share))
		if allocation[c] < 1 {
			allocation[c] = 1
		}
		if allocation[c] > len(members)-1 {
			allocation[c] = len(members) - 1
		}
		remainders[c] = remainder{class: c, frac: share - math.Floor(share)}
		assigned += allocation[c]
	}

	sort.SliceStable(remainders, func(i, j int) bool {
		if remainders[i].frac != remainders[j].frac {
			return remainders[i].frac > remainders[j].frac
		}
		return len(byClass[remainders[i].class]) > len(byClass[remainders[j].class])
	})

	for assigned < nTest {
		progressed := false
		for _, r := range remainders {
			if assigned >= nTest {
				break
			}
			if allocation[r.class] < len(byClass[r.class])-1 {
				allocation[r.class]++
				assigned++
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	for assigned > nTest {
		progressed := false
		for i := len(remainders) - 1; i >= 0 && assigned > nTest; i-- {
			c := remainders[i].class
			if allocation[c] > 1 {
				allocation[c]--
				assigned--
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	return allocation
}
