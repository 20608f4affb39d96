package service

import "testing"

func TestRSIWarmupReturnsZero(t *testing.T) {
	r := NewRSI(3)
	for _, p := range []float64{1, 2, 3} {
		if got := r.Update(p); got != 0 {
			t.Fatalf("RSI during warmup = %v, want 0", got)
		}
	}
}

func TestRSIAllGains(t *testing.T) {
	r := NewRSI(3)
	for _, p := range []float64{1, 2, 3} {
		r.Update(p)
	}
	if got := r.Update(4); got != 100 {
		t.Fatalf("RSI on monotonic rise = %v, want 100", got)
	}
}

func TestRSIWilderSmoothing(t *testing.T) {
	r := NewRSI(3)
	for _, p := range []float64{1, 2, 3, 4} {
		r.Update(p)
	}

	// после прогрева avgGain=1; падение на 1:
	// avgGain=(1*2+0)/3, avgLoss=(0*2+1)/3, RS=2, RSI=66.(6)
	approx(t, "RSI", r.Update(3), 100-100.0/3)
}
