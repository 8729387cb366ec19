package features

import (
	"cmp"
	"math"
	"math/rand/v2"
	"slices"
	"sort"

	"github.com/mchmarny/readmit/pkg/table"
)

// Split holds row indices for the training and validation partitions, each
// in ascending order.
type Split struct {
	Train []int
	Valid []int
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

// GroupSplit assigns ceil(testSize * groups) whole groups to validation so
// that no group appears in both partitions.
func GroupSplit(groups []string, testSize float64, seed uint64) Split {
	uniq := uniqueSorted(groups)
	nTest := int(math.Ceil(testSize * float64(len(uniq))))
	perm := newRand(seed).Perm(len(uniq))

	valid := make(map[string]bool, nTest)
	for _, p := range perm[:nTest] {
		valid[uniq[p]] = true
	}

	var s Split
	for i, g := range groups {
		if valid[g] {
			s.Valid = append(s.Valid, i)
		} else {
			s.Train = append(s.Train, i)
		}
	}
	return s
}

// StratifiedSplit assigns ceil(testSize * n) rows to validation, keeping the
// class proportions of y. Per-class counts use largest remainder allocation.
func StratifiedSplit(y []float64, testSize float64, seed uint64) Split {
	n := len(y)
	nTest := int(math.Ceil(testSize * float64(n)))

	byClass := map[float64][]int{}
	for i, v := range y {
		byClass[v] = append(byClass[v], i)
	}
	classes := make([]float64, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	slices.Sort(classes)

	alloc := make([]int, len(classes))
	rem := make([]float64, len(classes))
	assigned := 0
	for k, c := range classes {
		exact := float64(nTest) * float64(len(byClass[c])) / float64(n)
		alloc[k] = int(math.Floor(exact))
		rem[k] = exact - float64(alloc[k])
		assigned += alloc[k]
	}
	order := make([]int, len(classes))
	for k := range order {
		order[k] = k
	}
	sort.SliceStable(order, func(a, b int) bool { return rem[order[a]] > rem[order[b]] })
	for _, k := range order {
		if assigned >= nTest {
			break
		}
		if alloc[k] < len(byClass[classes[k]]) {
			alloc[k]++
			assigned++
		}
	}

	r := newRand(seed)
	isValid := make([]bool, n)
	for k, c := range classes {
		idx := byClass[c]
		perm := r.Perm(len(idx))
		for _, p := range perm[:alloc[k]] {
			isValid[idx[p]] = true
		}
	}

	var s Split
	for i, v := range isValid {
		if v {
			s.Valid = append(s.Valid, i)
		} else {
			s.Train = append(s.Train, i)
		}
	}
	return s
}

// uniqueSorted returns the distinct keys, numbers ordered numerically
// before text.
func uniqueSorted(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	var out []string
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	slices.SortFunc(out, compareKeys)
	return out
}

func compareKeys(a, b string) int {
	fa, okA := table.ParseFloat(a)
	fb, okB := table.ParseFloat(b)
	switch {
	case okA && okB:
		return cmp.Compare(fa, fb)
	case okA:
		return -1
	case okB:
		return 1
	}
	return cmp.Compare(a, b)
}
