// Package metrics exposes published snapshots as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mklimuk/gasmon/monitor"
)

const namespace = "gasmon"

var _ monitor.Sink = &Exporter{}

// Exporter is a monitor.Sink that keeps one gauge per physical quantity,
// labelled with the sensor set variant.
type Exporter struct {
	registry *prometheus.Registry

	up           *prometheus.GaugeVec
	initializing *prometheus.GaugeVec
	temperature  *prometheus.GaugeVec
	humidity     *prometheus.GaugeVec
	co2          *prometheus.GaugeVec
	eco2         *prometheus.GaugeVec
	tvoc         *prometheus.GaugeVec
	lastSample   *prometheus.GaugeVec
	failures     *prometheus.CounterVec
}

func newGauge(name string, help string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		},
		[]string{"variant"},
	)
}

func NewExporter() *Exporter {
	e := &Exporter{
		registry:     prometheus.NewRegistry(),
		up:           newGauge("sensor_up", "1 when the last bus transaction succeeded"),
		initializing: newGauge("sensor_initializing", "1 while the gas sensor baseline is calibrating"),
		temperature:  newGauge("air_temperature", "Air Temperature (units: degrees Celsius)"),
		humidity:     newGauge("air_humidity", "Relative humidity (units: fraction 0..1)"),
		co2:          newGauge("air_co2_level", "Air Carbon Dioxide level (units: ppm)"),
		eco2:         newGauge("air_eco2_level", "Equivalent Carbon Dioxide level (units: ppm)"),
		tvoc:         newGauge("air_voc_level", "Air Volatile Organic Compounds level (units: ppb)"),
		lastSample:   newGauge("last_sample_timestamp_seconds", "Unix time of the last successful sample"),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sensor_failures_total",
				Help:      "Number of failed acquisition cycles",
			},
			[]string{"variant"},
		),
	}
	e.registry.MustRegister(e.up, e.initializing, e.temperature, e.humidity, e.co2, e.eco2, e.tvoc, e.lastSample, e.failures)
	e.registry.MustRegister(prometheus.NewBuildInfoCollector())
	return e
}

// OnMeasurement updates the gauges. Failure snapshots only flip sensor_up and
// count the failure, the physical gauges keep their last values.
func (e *Exporter) OnMeasurement(s monitor.Snapshot) {
	v := string(s.Variant)
	if !s.Success {
		e.up.WithLabelValues(v).Set(0)
		e.failures.WithLabelValues(v).Inc()
		return
	}
	e.up.WithLabelValues(v).Set(1)
	e.initializing.WithLabelValues(v).Set(boolToFloat(s.Initializing))
	e.temperature.WithLabelValues(v).Set(float64(s.Temperature))
	e.humidity.WithLabelValues(v).Set(float64(s.Humidity))
	switch s.Variant {
	case monitor.VariantCO2:
		if s.Ready {
			e.co2.WithLabelValues(v).Set(float64(s.CO2))
		}
	case monitor.VariantVOC:
		e.eco2.WithLabelValues(v).Set(float64(s.ECO2))
		e.tvoc.WithLabelValues(v).Set(float64(s.TVOC))
	}
	if !s.Timestamp.IsZero() {
		e.lastSample.WithLabelValues(v).Set(float64(s.Timestamp.UnixMilli()) / 1000)
	}
}

func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{
		// Opt into OpenMetrics to support exemplars.
		EnableOpenMetrics: true,
	})
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
