package values

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEMA_SeedsFromFirstSample(t *testing.T) {
	e := NewEMA(0.1)
	assert.Equal(t, 0.0, e.Average())

	e.Observe(100)
	assert.Equal(t, 100.0, e.Average(), "first sample seeds the average directly")
}

func TestEMA_Smoothing(t *testing.T) {
	e := NewEMA(0.1)
	e.Observe(100)
	e.Observe(200)

	// 0.1*200 + 0.9*100
	assert.InDelta(t, 110.0, e.Average(), 1e-9)
}

func TestEMA_InvalidAlphaCoerced(t *testing.T) {
	tests := []struct {
		name  string
		alpha float64
	}{
		{"zero", 0},
		{"negative", -0.5},
		{"above one", 1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEMA(tt.alpha)
			assert.Equal(t, 0.1, e.Alpha)
		})
	}
}

func TestEMA_HasBaseline(t *testing.T) {
	e := NewEMA(0.1)
	for i := 0; i < 4; i++ {
		e.Observe(10)
	}
	assert.False(t, e.HasBaseline(5))

	e.Observe(10)
	assert.True(t, e.HasBaseline(5))
}

func TestBoundedHistory_EvictsOldest(t *testing.T) {
	h := NewBoundedHistory(3)
	for _, s := range []float64{1, 2, 3, 4} {
		h.Add(s)
	}

	assert.Equal(t, 3, h.Len())
	assert.InDelta(t, 3.0, h.Mean(), 1e-9, "sample 1 should have been evicted")
}

func TestBoundedHistory_EmptyMeanIsZero(t *testing.T) {
	h := NewBoundedHistory(10)
	assert.Equal(t, 0.0, h.Mean())
}
