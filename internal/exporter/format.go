package exporter

import (
	"math"
	"unicode/utf8"
)

// Excel column width limits
const (
	indexColumnWidth = 10
	maxColumnWidth   = 255
)

// FloatDecimals is the precision of float cells in every export
const FloatDecimals = 5

// floatNumFmt displays floats with FloatDecimals places
const floatNumFmt = "0.00000"

// roundFloat rounds f to FloatDecimals places
func roundFloat(f float64) float64 {
	p := math.Pow10(FloatDecimals)
	return math.Round(f*p) / p
}

// textWidth is the display width of s in characters
func textWidth(s string) int {
	return utf8.RuneCountInString(s)
}

// clampWidth keeps a computed width inside what Excel accepts
func clampWidth(w int) float64 {
	if w > maxColumnWidth {
		return maxColumnWidth
	}
	return float64(w)
}
