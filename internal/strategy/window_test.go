package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWindow_BoundedFIFO(t *testing.T) {
	w := newWindow(3)
	for _, v := range []float64{1, 2, 3, 4} {
		w.Append(v)
	}
	assert.Equal(t, 3, w.Len())
	assert.True(t, w.Full())
	// El 1 cayó: media de {2,3,4}
	assert.InDelta(t, 3.0, w.Mean(), 1e-9)
}

func TestWindow_MeanEmpty(t *testing.T) {
	w := newWindow(5)
	assert.Zero(t, w.Mean())
	assert.Zero(t, w.Percentile(50))
	assert.False(t, w.Full())
}

func TestWindow_PercentileNearestRank(t *testing.T) {
	w := newWindow(10)
	// Desordenado a propósito: Percentile ordena una copia.
	for _, v := range []float64{9, 1, 5, 3, 7} {
		w.Append(v)
	}
	assert.InDelta(t, 1.0, w.Percentile(0), 1e-9)
	// idx = 20·5/100 = 1 → sorted[1] = 3
	assert.InDelta(t, 3.0, w.Percentile(20), 1e-9)
	// idx = 100·5/100 = 5 → clamp a sorted[4] = 9
	assert.InDelta(t, 9.0, w.Percentile(100), 1e-9)

	// El orden de inserción no cambia
	assert.InDelta(t, 5.0, w.Mean(), 1e-9)
}
