package monitor

import "time"

// Variant names the sensor set that produced a snapshot.
type Variant string

const (
	VariantCO2 Variant = "co2"
	VariantVOC Variant = "voc"
)

// Snapshot is the reading published after every sampling cycle and after
// every failure. It is always replaced as a whole.
type Snapshot struct {
	Variant Variant `json:"variant"`
	// Success is false when the last bus transaction failed; the physical
	// values then are the last known ones.
	Success bool `json:"success"`
	// Ready is the CO2 data ready flag. The VOC set always reports true.
	Ready bool `json:"ready"`
	// Initializing is set while the gas sensor baseline is still calibrating.
	Initializing bool `json:"initializing"`

	// units: °C
	Temperature float32 `json:"temperature"`
	// units: relative humidity as a fraction (0.0..1.0)
	Humidity float32 `json:"humidity"`
	// units: ppm
	CO2 float32 `json:"co2,omitempty"`
	// units: ppm
	ECO2 uint16 `json:"eco2,omitempty"`
	// units: ppb
	TVOC uint16 `json:"tvoc,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Disconnected is the snapshot a consumer holds before anything is published.
func Disconnected(v Variant) Snapshot {
	return Snapshot{Variant: v, Initializing: true}
}

// Failed returns a copy of s marked as a failure at t.
func (s Snapshot) Failed(t time.Time) Snapshot {
	s.Success = false
	s.Timestamp = t
	return s
}
