package evaluation

// ConfusionMatrix tallies predictions against ground truth for one anomaly
// class.
type ConfusionMatrix struct {
	TP int `json:"tp"`
	FP int `json:"fp"`
	TN int `json:"tn"`
	FN int `json:"fn"`
}

// Record adds one observation.
func (c *ConfusionMatrix) Record(truth, predicted bool) {
	switch {
	case truth && predicted:
		c.TP++
	case truth && !predicted:
		c.FN++
	case !truth && predicted:
		c.FP++
	default:
		c.TN++
	}
}

// Total returns the number of recorded observations.
func (c *ConfusionMatrix) Total() int {
	return c.TP + c.FP + c.TN + c.FN
}

// ratio returns num/den, vacuously 1 when the denominator is zero so that
// classes absent from a dataset score perfect rather than undefined. JSON
// output stays finite this way.
func ratio(num, den int) float64 {
	if den == 0 {
		return 1.0
	}
	return float64(num) / float64(den)
}

// TPR is the true positive rate (recall).
func (c *ConfusionMatrix) TPR() float64 { return ratio(c.TP, c.TP+c.FN) }

// TNR is the true negative rate (specificity).
func (c *ConfusionMatrix) TNR() float64 { return ratio(c.TN, c.TN+c.FP) }

// FPR is the false positive rate.
func (c *ConfusionMatrix) FPR() float64 { return 1 - c.TNR() }

// FNR is the false negative rate.
func (c *ConfusionMatrix) FNR() float64 { return 1 - c.TPR() }

// Precision is the positive predictive value.
func (c *ConfusionMatrix) Precision() float64 { return ratio(c.TP, c.TP+c.FP) }

// Accuracy is the share of correct predictions.
func (c *ConfusionMatrix) Accuracy() float64 { return ratio(c.TP+c.TN, c.Total()) }

// F1 is the harmonic mean of precision and recall.
func (c *ConfusionMatrix) F1() float64 {
	p, r := c.Precision(), c.TPR()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// Metrics bundles the derived statistics for serialization.
type Metrics struct {
	TPR       float64 `json:"tpr"`
	TNR       float64 `json:"tnr"`
	FPR       float64 `json:"fpr"`
	FNR       float64 `json:"fnr"`
	Precision float64 `json:"precision"`
	Accuracy  float64 `json:"accuracy"`
	F1        float64 `json:"f1"`
}

// Derived computes the metric bundle from the matrix.
func (c *ConfusionMatrix) Derived() Metrics {
	return Metrics{
		TPR:       c.TPR(),
		TNR:       c.TNR(),
		FPR:       c.FPR(),
		FNR:       c.FNR(),
		Precision: c.Precision(),
		Accuracy:  c.Accuracy(),
		F1:        c.F1(),
	}
}
