package values

// EMA is an exponential moving average with a fixed smoothing factor.
// A zero-sample EMA reports 0 and seeds itself from the first observation.
type EMA struct {
	Alpha   float64 `json:"alpha"`
	Value   float64 `json:"value"`
	Samples int64   `json:"samples"`
}

// NewEMA creates an EMA with the given smoothing factor for new samples.
// Alpha outside (0,1] is coerced to 0.1.
func NewEMA(alpha float64) EMA {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.1
	}
	return EMA{Alpha: alpha}
}

// Observe folds a new sample into the average and returns the updated value
func (e *EMA) Observe(sample float64) float64 {
	if e.Samples == 0 {
		e.Value = sample
	} else {
		e.Value = e.Alpha*sample + (1-e.Alpha)*e.Value
	}
	e.Samples++
	return e.Value
}

// Average returns the current smoothed value
func (e *EMA) Average() float64 {
	return e.Value
}

// HasBaseline reports whether enough samples have been observed to treat the
// average as a usable baseline.
func (e *EMA) HasBaseline(minSamples int64) bool {
	return e.Samples >= minSamples
}

// BoundedHistory keeps the most recent N float64 samples, dropping the
// oldest once full.
type BoundedHistory struct {
	Max     int       `json:"max"`
	Samples []float64 `json:"samples,omitempty"`
}

// NewBoundedHistory creates a history capped at max samples
func NewBoundedHistory(max int) BoundedHistory {
	if max <= 0 {
		max = 100
	}
	return BoundedHistory{Max: max}
}

// Add appends a sample, evicting the oldest when the cap is reached
func (h *BoundedHistory) Add(sample float64) {
	h.Samples = append(h.Samples, sample)
	if len(h.Samples) > h.Max {
		h.Samples = h.Samples[len(h.Samples)-h.Max:]
	}
}

// Mean returns the arithmetic mean of the retained samples, or 0 when empty
func (h *BoundedHistory) Mean() float64 {
	if len(h.Samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range h.Samples {
		sum += s
	}
	return sum / float64(len(h.Samples))
}

// Len returns how many samples are retained
func (h *BoundedHistory) Len() int {
	return len(h.Samples)
}
