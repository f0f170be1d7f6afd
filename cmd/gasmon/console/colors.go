package console

import (
	"github.com/fatih/color"

	"github.com/mklimuk/gasmon/monitor"
)

// Available ANSI colors
var (
	Yellow = color.New(color.FgYellow).SprintFunc()
	Red    = color.New(color.FgRed).SprintFunc()
	Green  = color.New(color.FgGreen).SprintFunc()
	White  = color.New(color.FgHiWhite).SprintFunc()
	Bold   = color.New(color.Bold).SprintFunc()
)

// Ventilation colors a ventilation rating the way a traffic light would.
func Ventilation(v monitor.Ventilation) string {
	switch v {
	case monitor.VentilationGood:
		return Green(v.String())
	case monitor.VentilationModerate:
		return Yellow(v.String())
	default:
		return Red(v.String())
	}
}
