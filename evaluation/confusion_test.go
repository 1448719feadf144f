package evaluation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfusionMatrix_Record(t *testing.T) {
	var m ConfusionMatrix
	m.Record(true, true)   // TP
	m.Record(true, true)   // TP
	m.Record(true, false)  // FN
	m.Record(false, true)  // FP
	m.Record(false, false) // TN
	m.Record(false, false) // TN

	assert.Equal(t, 2, m.TP)
	assert.Equal(t, 1, m.FN)
	assert.Equal(t, 1, m.FP)
	assert.Equal(t, 2, m.TN)
	assert.Equal(t, 6, m.Total())

	assert.InDelta(t, 2.0/3.0, m.TPR(), 1e-9)
	assert.InDelta(t, 2.0/3.0, m.TNR(), 1e-9)
	assert.InDelta(t, 1.0/3.0, m.FPR(), 1e-9)
	assert.InDelta(t, 1.0/3.0, m.FNR(), 1e-9)
	assert.InDelta(t, 2.0/3.0, m.Precision(), 1e-9)
	assert.InDelta(t, 4.0/6.0, m.Accuracy(), 1e-9)
	assert.InDelta(t, 2.0/3.0, m.F1(), 1e-9)
}

func TestConfusionMatrix_EmptyDenominators(t *testing.T) {
	var m ConfusionMatrix
	m.Record(false, false)

	// No positives: rates degrade vacuously, never to NaN.
	assert.Equal(t, 1.0, m.TPR())
	assert.Equal(t, 0.0, m.FNR())
	assert.Equal(t, 1.0, m.Precision())
	assert.Equal(t, 1.0, m.Accuracy())
}

func TestSummarize_Percentiles(t *testing.T) {
	// 100ms down to 1ms, out of order; summarize sorts internally.
	samples := make([]time.Duration, 0, 100)
	for i := 100; i >= 1; i-- {
		samples = append(samples, time.Duration(i)*time.Millisecond)
	}

	stats := summarize("test_op", samples)
	assert.Equal(t, "test_op", stats.Op)
	assert.Equal(t, 100, stats.Iterations)
	assert.InDelta(t, 50.0, stats.P50, 1e-9)
	assert.InDelta(t, 95.0, stats.P95, 1e-9)
	assert.InDelta(t, 99.0, stats.P99, 1e-9)
	assert.InDelta(t, 50.5, stats.Mean, 1e-9)
	assert.Greater(t, stats.StdDev, 0.0)
}
