package monitor

import "math"

// AbsoluteHumidity converts temperature (°C) and relative humidity (0..1) to
// absolute humidity in g/m³ using the Magnus approximation.
func AbsoluteHumidity(tempC, rh float64) float64 {
	return 6.112 * math.Exp(17.67*tempC/(tempC+243.5)) * rh * 100 * 2.1674 / (273.15 + tempC)
}
