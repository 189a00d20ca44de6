package strategy

import "sort"

// window is a bounded FIFO of float64 samples.
type window struct {
	max  int
	data []float64
}

func newWindow(max int) *window {
	return &window{max: max}
}

func (w *window) Append(v float64) {
	w.data = append(w.data, v)
	if len(w.data) > w.max {
		w.data = w.data[len(w.data)-w.max:]
	}
}

func (w *window) Len() int {
	return len(w.data)
}

func (w *window) Full() bool {
	return len(w.data) >= w.max
}

func (w *window) Mean() float64 {
	if len(w.data) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range w.data {
		sum += v
	}
	return sum / float64(len(w.data))
}

// Percentile returns the pct-th percentile (0-100) by nearest-rank on a
// sorted copy. Returns 0 on an empty window.
func (w *window) Percentile(pct int) float64 {
	n := len(w.data)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, w.data)
	sort.Float64s(sorted)

	idx := pct * n / 100
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}
