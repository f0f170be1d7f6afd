package monitor

// Ventilation is a coarse rating of indoor air derived from CO2 (or eCO2).
type Ventilation int

const (
	VentilationGood Ventilation = iota
	VentilationModerate
	VentilationPoor
	VentilationCritical
)

// Classify rates a CO2 concentration in ppm.
func Classify(ppm float64) Ventilation {
	switch {
	case ppm < 800:
		return VentilationGood
	case ppm < 1000:
		return VentilationModerate
	case ppm < 2000:
		return VentilationPoor
	default:
		return VentilationCritical
	}
}

func (v Ventilation) String() string {
	switch v {
	case VentilationGood:
		return "good ventilation"
	case VentilationModerate:
		return "moderate ventilation"
	case VentilationPoor:
		return "poor ventilation; improve it!"
	default:
		return "poor ventilation; ACT NOW!"
	}
}
