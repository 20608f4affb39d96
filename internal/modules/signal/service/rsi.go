package service

// RSI — индикатор относительной силы со сглаживанием Уайлдера по серии цен.
// Вспомогательный: в торговые решения не входит, отдаётся в /status и health.
type RSI struct {
	periods int
	prev    float64
	avgGain float64
	avgLoss float64
	samples int
}

func NewRSI(periods int) *RSI {
	if periods <= 0 {
		periods = 14
	}
	return &RSI{periods: periods}
}

// Update принимает очередную цену и возвращает текущий RSI.
// До прогрева (periods+1 точек) возвращает 0.
func (r *RSI) Update(price float64) float64 {
	if r.samples == 0 {
		r.prev = price
		r.samples = 1
		return 0
	}

	change := price - r.prev
	r.prev = price

	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else if change < 0 {
		loss = -change
	}

	p := float64(r.periods)
	if r.samples <= r.periods {
		// сидирование простым средним первых periods приращений
		r.avgGain += gain / p
		r.avgLoss += loss / p
	} else {
		r.avgGain = (r.avgGain*(p-1) + gain) / p
		r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	}
	r.samples++

	if r.samples <= r.periods {
		return 0
	}
	if r.avgLoss == 0 {
		return 100
	}
	rs := r.avgGain / r.avgLoss
	return 100 - 100/(1+rs)
}
