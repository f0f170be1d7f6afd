package console

import (
	"fmt"
	"strings"

	"github.com/mklimuk/gasmon/monitor"
)

// Render formats a snapshot as the monitor screen.
func Render(s monitor.Snapshot) string {
	var b strings.Builder
	switch {
	case !s.Success:
		b.WriteString(Bold("No connection!") + "\n")
		b.WriteString("Please connect sensor module\n")
		return b.String()
	case s.Initializing || !s.Ready:
		b.WriteString(Bold("Initializing") + "\n")
		b.WriteString("Sensor module is acclimating\n")
		return b.String()
	}
	switch s.Variant {
	case monitor.VariantVOC:
		fmt.Fprintf(&b, "%s equiv CO2    %s total VOC\n", Bold(fmt.Sprintf("%d", s.ECO2)), Bold(fmt.Sprintf("%d", s.TVOC)))
		fmt.Fprintf(&b, "(%s)\n", Ventilation(monitor.Classify(float64(s.ECO2))))
	default:
		fmt.Fprintf(&b, "%s CO2 ppm\n", Bold(fmt.Sprintf("%4.0f", s.CO2)))
		fmt.Fprintf(&b, "(%s)\n", Ventilation(monitor.Classify(float64(s.CO2))))
	}
	fmt.Fprintf(&b, "%s %2.1f C    %s %3.1f RH%%\n", PictoThermometer, s.Temperature, PictoHumidity, s.Humidity*100)
	return b.String()
}
