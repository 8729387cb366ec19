package model

import (
	"errors"
	"fmt"
	"sort"

	"github.com/YuminosukeSato/scigo/metrics"
	"gonum.org/v1/gonum/mat"
)

// ErrUndefinedMetric is returned when a ranking metric needs both classes.
var ErrUndefinedMetric = errors.New("metric undefined for a single class")

func countClasses(y, score []float64) (pos, neg int, err error) {
	if len(y) != len(score) {
		return 0, 0, fmt.Errorf("%w: %d labels, %d scores", ErrShape, len(y), len(score))
	}
	for _, v := range y {
		if v == 1 {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return pos, neg, ErrUndefinedMetric
	}
	return pos, neg, nil
}

// ROCAUC is the area under the ROC curve. Tied scores form a single
// threshold.
func ROCAUC(y, score []float64) (float64, error) {
	if _, _, err := countClasses(y, score); err != nil {
		return 0, err
	}
	auc, err := metrics.AUC(mat.NewVecDense(len(y), y), mat.NewVecDense(len(score), score))
	if err != nil {
		return 0, fmt.Errorf("roc auc: %w", err)
	}
	return auc, nil
}

// AveragePrecision summarizes the precision-recall curve as the
// recall-weighted mean of precision at each distinct score threshold.
// Tied scores are taken together, so rows tied on a leaf value do not get
// an order they never had.
func AveragePrecision(y, score []float64) (float64, error) {
	pos, _, err := countClasses(y, score)
	if err != nil {
		return 0, err
	}

	idx := make([]int, len(score))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return score[idx[a]] > score[idx[b]] })

	var tp, fp, prevRecall, ap float64
	for i := 0; i < len(idx); {
		j := i
		for j < len(idx) && score[idx[j]] == score[idx[i]] {
			if y[idx[j]] == 1 {
				tp++
			} else {
				fp++
			}
			j++
		}
		recall := tp / float64(pos)
		precision := tp / (tp + fp)
		ap += (recall - prevRecall) * precision
		prevRecall = recall
		i = j
	}
	return ap, nil
}
