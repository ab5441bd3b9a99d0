package adc

// rescale maps a code in [0, fromMax] onto [0, toMax], clamping values
// outside the source range.
func rescale(raw, fromMax, toMax int) int {
	if raw <= 0 || fromMax <= 0 {
		return 0
	}
	if raw >= fromMax {
		return toMax
	}
	return int(int64(raw) * int64(toMax) / int64(fromMax))
}

// voltsToCode converts a measured voltage into a code of the given width
// relative to fullScale volts.
func voltsToCode(v, fullScale float64, maxCode int) int {
	if v <= 0 || fullScale <= 0 {
		return 0
	}
	if v >= fullScale {
		return maxCode
	}
	return int(v / fullScale * float64(maxCode))
}
