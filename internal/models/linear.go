package models

// LinearData — выровненные серии для подгонки модели.
type LinearData struct {
	VOI  []float64 `json:"voi"`
	OIR  []float64 `json:"oir"`
	MPB  []float64 `json:"mpb"`
	DMid []float64 `json:"dMid"`
}

// LinearModel is the fitted three-factor model. Replaced wholesale on refit,
// never mutated in place.
type LinearModel struct {
	B        float64 `json:"b" yaml:"b"`
	VOICoeff float64 `json:"voi_coeff" yaml:"voi_coeff"`
	OIRCoeff float64 `json:"oir_coeff" yaml:"oir_coeff"`
	MPBCoeff float64 `json:"mpb_coeff" yaml:"mpb_coeff"`
}
