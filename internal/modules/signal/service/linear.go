package service

import (
	"linear_bot/internal/helper"
	"linear_bot/internal/models"
	"linear_bot/pkg/logger"
)

// BuildLinearData выравнивает три признаковые серии с меткой dMid — скользящим
// средним следующих delay mid-price минус текущий mid (взгляд вперёд). Серии
// обрезаются на lags спереди и delay сзади, чтобы длины совпадали. Пустой
// результат, пока буфер не заполнен.
func (e *Engine) BuildLinearData() models.LinearData {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.records.Len() != e.recordSize {
		return models.LinearData{}
	}

	n := e.recordSize
	voi := make([]float64, 0, n)
	oir := make([]float64, 0, n)
	mpb := make([]float64, 0, n)
	mid := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		s := e.records.At(i)
		voi = append(voi, s.VOI)
		oir = append(oir, s.OIR)
		mpb = append(mpb, s.MPB)
		mid = append(mid, s.MidPrice)
	}

	end := n - e.delay
	data := models.LinearData{
		VOI: voi[e.lags:end],
		OIR: oir[e.lags:end],
		MPB: mpb[e.lags:end],
	}

	if e.delay > 0 {
		rolling := rollingMeanMinusCurrent(mid, e.delay)
		data.DMid = rolling[e.lags:end]
	} else {
		// без лага предсказания метки нет
		data.DMid = []float64{}
	}

	return data
}

// rollingMeanMinusCurrent: для каждой точки среднее окна [k, k+delay) минус
// mid[k]. Для хвоста, где окно не помещается, переносится последнее конечное
// значение.
func rollingMeanMinusCurrent(mid []float64, delay int) []float64 {
	out := make([]float64, len(mid))
	var lastValid float64

	for k := range mid {
		if k+delay < len(mid) {
			sum := 0.0
			for _, v := range mid[k : k+delay] {
				sum += v
			}
			current := sum/float64(delay) - mid[k]
			if helper.IsFinite(current) {
				lastValid = current
			}
		}
		out[k] = lastValid
	}
	return out
}

// BuildLinearModel подгоняет модель по выровненным данным.
func (e *Engine) BuildLinearModel(data models.LinearData) models.LinearModel {
	logger.Debug("[SignalEngine] Building new model...")
	return FitLinearModel(data)
}

// FitLinearModel — однопроходный МНК на аккумуляторах сумм. Каждый коэффициент
// считается независимой простой регрессией; взаимная корреляция признаков
// намеренно игнорируется — менять формулу нельзя, предсказания разойдутся.
func FitLinearModel(data models.LinearData) models.LinearModel {
	var (
		sumX1, sumX2, sumX3, sumY float64
		sumX1Y, sumX2Y, sumX3Y    float64
		sumX1sq, sumX2sq, sumX3sq float64
	)

	x1, x2, x3, y := data.VOI, data.OIR, data.MPB, data.DMid
	if len(x1) == 0 || len(y) != len(x1) {
		// нет метки (delay==0) или серии не выровнены — подгонять нечего
		return models.LinearModel{}
	}
	n := float64(len(x1))

	for i := range x1 {
		sumX1 += x1[i]
		sumX2 += x2[i]
		sumX3 += x3[i]
		sumY += y[i]
		sumX1Y += x1[i] * y[i]
		sumX2Y += x2[i] * y[i]
		sumX3Y += x3[i] * y[i]
		sumX1sq += x1[i] * x1[i]
		sumX2sq += x2[i] * x2[i]
		sumX3sq += x3[i] * x3[i]
	}

	voiCoeff := (sumX1Y - sumX1*sumY/n) / (sumX1sq - sumX1*sumX1/n)
	oirCoeff := (sumX2Y - sumX2*sumY/n) / (sumX2sq - sumX2*sumX2/n)
	mpbCoeff := (sumX3Y - sumX3*sumY/n) / (sumX3sq - sumX3*sumX3/n)
	b := sumY/n - voiCoeff*sumX1/n - oirCoeff*sumX2/n - mpbCoeff*sumX3/n

	return models.LinearModel{
		B:        b,
		VOICoeff: voiCoeff,
		OIRCoeff: oirCoeff,
		MPBCoeff: mpbCoeff,
	}
}
