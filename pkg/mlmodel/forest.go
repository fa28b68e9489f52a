package mlmodel

import "fmt"

// Tree is a binary regression tree in flattened array form. Index i is a
// node; Left[i] and Right[i] are child indices with -1 marking a leaf, in
// which case Value[i] is the node's prediction. Internal nodes route a row
// left when row[Feature[i]] <= Threshold[i].
type Tree struct {
	Feature   []int     `json:"feature"`
	Threshold []float64 `json:"threshold"`
	Left      []int     `json:"left"`
	Right     []int     `json:"right"`
	Value     []float64 `json:"value"`
}

// predict walks the tree for one row.
func (t *Tree) predict(row []float64) (float64, error) {
	node := 0
	for steps := 0; steps <= len(t.Feature); steps++ {
		if node < 0 || node >= len(t.Feature) {
			return 0, fmt.Errorf("tree node index %d out of range", node)
		}
		if t.Left[node] == -1 {
			return t.Value[node], nil
		}
		f := t.Feature[node]
		if f < 0 || f >= len(row) {
			return 0, fmt.Errorf("tree references feature %d, row has %d", f, len(row))
		}
		if row[f] <= t.Threshold[node] {
			node = t.Left[node]
		} else {
			node = t.Right[node]
		}
	}
	return 0, fmt.Errorf("tree traversal did not terminate")
}

// validate checks that all node arrays are the same length.
func (t *Tree) validate() error {
	n := len(t.Feature)
	if n == 0 {
		return fmt.Errorf("tree has no nodes")
	}
	if len(t.Threshold) != n || len(t.Left) != n || len(t.Right) != n || len(t.Value) != n {
		return fmt.Errorf("tree arrays have mismatched lengths")
	}
	return nil
}

// ForestEstimator averages the predictions of an ensemble of regression
// trees, matching the behavior of a random-forest regressor.
type ForestEstimator struct {
	Trees []Tree `json:"trees"`
}

// Predict averages tree outputs per row.
func (f *ForestEstimator) Predict(rows [][]float64) ([]float64, error) {
	if len(f.Trees) == 0 {
		return nil, fmt.Errorf("forest estimator has no trees")
	}
	out := make([]float64, len(rows))
	for i, row := range rows {
		var sum float64
		for ti := range f.Trees {
			y, err := f.Trees[ti].predict(row)
			if err != nil {
				return nil, fmt.Errorf("row %d, tree %d: %w", i, ti, err)
			}
			sum += y
		}
		out[i] = sum / float64(len(f.Trees))
	}
	return out, nil
}

func (f *ForestEstimator) validate() error {
	if len(f.Trees) == 0 {
		return fmt.Errorf("forest estimator has no trees")
	}
	for i := range f.Trees {
		if err := f.Trees[i].validate(); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}
