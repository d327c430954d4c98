package device

import "math"

// Conversions between Home Assistant colour units and the fixed-point
// units of the exposure protocol.

// XYToFixed converts a chromaticity coordinate (0..1) to fixed point.
func XYToFixed(v float64) uint16 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	f := math.Round(v * 65536)
	if f > float64(MaxColorXY) {
		return MaxColorXY
	}
	return uint16(f)
}

// FixedToXY converts a fixed-point coordinate to 0..1, rounded to four
// decimal places.
func FixedToXY(v uint16) float64 {
	return math.Round(float64(v)/65536*10000) / 10000
}

// HueFromDegrees converts 0..360 degrees to 0..254.
func HueFromDegrees(deg float64) uint8 {
	if math.IsNaN(deg) || deg <= 0 {
		return 0
	}
	if deg >= 360 {
		return MaxHue
	}
	return uint8(math.Round(deg * float64(MaxHue) / 360))
}

// DegreesFromHue converts 0..254 to degrees, rounded to one decimal place.
func DegreesFromHue(hue uint8) float64 {
	return math.Round(float64(hue)*360/float64(MaxHue)*10) / 10
}

// SaturationFromPercent converts 0..100 percent to 0..254.
func SaturationFromPercent(pct float64) uint8 {
	if math.IsNaN(pct) || pct <= 0 {
		return 0
	}
	if pct >= 100 {
		return MaxSaturation
	}
	return uint8(math.Round(pct * float64(MaxSaturation) / 100))
}

// PercentFromSaturation converts 0..254 to percent, rounded to one decimal
// place.
func PercentFromSaturation(sat uint8) float64 {
	return math.Round(float64(sat)*100/float64(MaxSaturation)*10) / 10
}
