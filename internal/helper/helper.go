package helper

import (
	"math"
	"strconv"
)

// RoundToPrecision обрезает значение вниз до prec знаков после запятой.
// Биржа отклоняет цены/размеры с лишней точностью, поэтому округляем всегда вниз.
func RoundToPrecision(v float64, prec int) float64 {
	if prec < 0 {
		return v
	}
	pow := math.Pow10(prec)
	return math.Floor(v*pow+1e-12) / pow
}

func FormatPrice(px float64, prec int) string {
	return strconv.FormatFloat(RoundToPrecision(px, prec), 'f', prec, 64)
}

func FormatSize(sz float64, prec int) string {
	return strconv.FormatFloat(RoundToPrecision(sz, prec), 'f', prec, 64)
}

// IsFinite сообщает, пригодно ли v как число (не NaN и не ±Inf).
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
