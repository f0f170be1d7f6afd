package air

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/mklimuk/gasmon"
	"github.com/mklimuk/gasmon/snsctx"
)

// SGP30 default 7-bit I2C address.
const SGP30Address = 0x58

// SGP30WarmUp is how long the on-chip baseline needs after init_air_quality
// before readings can be trusted.
const SGP30WarmUp = 15 * time.Second

const (
	sgp30Timeout      = 50 * time.Millisecond
	sgp30InitDelay    = 10 * time.Millisecond
	sgp30MeasureDelay = 12 * time.Millisecond
	sgp30ProbeRetries = 2
)

var (
	sgp30CmdInitAirQuality    = [...]byte{0x20, 0x03}
	sgp30CmdMeasureAirQuality = [...]byte{0x20, 0x08}
	sgp30CmdSetHumidity       = [...]byte{0x20, 0x61}
)

// VOCMeasurement keeps both words as read from the wire, checksums included.
type VOCMeasurement struct {
	// units: ppm
	ECO2 RawWord
	// units: ppb
	TVOC RawWord
}

// SGP30 represents Sensirion SGP30 multi-pixel gas sensor (TVOC and eCO2).
// Typical usage:
//
//	s := NewSGP30(bus)
//	warmedUp, err := s.Init(ctx)
//	err = s.SetHumidity(ctx, 11.5)
//	m, err := s.GetMeasurement(ctx)
type SGP30 struct {
	transport gasmon.I2CBus
	addr      byte
}

func NewSGP30(trans gasmon.I2CBus) *SGP30 {
	return &SGP30{transport: trans, addr: SGP30Address}
}

// Init checks the sensor is present and starts the air quality algorithm.
// It returns the moment after which the baseline is calibrated; it does not
// wait for it.
func (s *SGP30) Init(ctx context.Context) (time.Time, error) {
	if err := s.transport.Probe(ctx, s.addr, sgp30ProbeRetries); err != nil {
		return time.Time{}, fmt.Errorf("sgp30: could not find sensor at address %x: %w", s.addr, err)
	}
	if err := s.send(ctx, sgp30CmdInitAirQuality[:]); err != nil {
		return time.Time{}, fmt.Errorf("sgp30: init air quality failed: %w", err)
	}
	if err := snsctx.Sleep(ctx, sgp30InitDelay); err != nil {
		return time.Time{}, err
	}
	return snsctx.Now(ctx).Add(SGP30WarmUp), nil
}

// GetMeasurement triggers an air quality measurement and reads it back.
// Checksums are kept in the result but not validated.
func (s *SGP30) GetMeasurement(ctx context.Context) (VOCMeasurement, error) {
	if err := s.send(ctx, sgp30CmdMeasureAirQuality[:]); err != nil {
		return VOCMeasurement{}, fmt.Errorf("sgp30: measure air quality failed: %w", err)
	}
	if err := snsctx.Sleep(ctx, sgp30MeasureDelay); err != nil {
		return VOCMeasurement{}, err
	}
	buf := make([]byte, 2*wordSize)
	tctx, cancel := context.WithTimeout(ctx, sgp30Timeout)
	defer cancel()
	if err := s.transport.ReadFromAddr(tctx, s.addr, buf); err != nil {
		return VOCMeasurement{}, fmt.Errorf("sgp30: could not read air quality: %w", err)
	}
	return decodeVOCMeasurement(buf)
}

// SetHumidity feeds the absolute humidity (g/m³) to the on-chip compensation.
func (s *SGP30) SetHumidity(ctx context.Context, absHumidity float64) error {
	arg := humidityArg(absHumidity)
	cmd := []byte{sgp30CmdSetHumidity[0], sgp30CmdSetHumidity[1], arg[0], arg[1]}
	if err := s.send(ctx, cmd); err != nil {
		return fmt.Errorf("sgp30: could not set humidity %f g/m3 (%#02x%02x fixed point): %w", absHumidity, arg[0], arg[1], err)
	}
	return nil
}

func (s *SGP30) send(ctx context.Context, cmd []byte) error {
	ctx, cancel := context.WithTimeout(ctx, sgp30Timeout)
	defer cancel()
	return s.transport.WriteToAddr(ctx, s.addr, cmd)
}

// humidityArg encodes g/m³ as 8.8 fixed point, high byte first.
func humidityArg(absHumidity float64) [2]byte {
	fp := math.Floor(absHumidity * 256)
	switch {
	case fp < 0 || math.IsNaN(fp):
		fp = 0
	case fp > math.MaxUint16:
		fp = math.MaxUint16
	}
	v := uint16(fp)
	return [2]byte{byte(v >> 8), byte(v)}
}

// decodeVOCMeasurement reads eCO2 first, then TVOC.
func decodeVOCMeasurement(buf []byte) (VOCMeasurement, error) {
	words, err := parseWords(buf)
	if err != nil {
		return VOCMeasurement{}, fmt.Errorf("sgp30: %w", err)
	}
	if len(words) != 2 {
		return VOCMeasurement{}, fmt.Errorf("sgp30: expected 2 words, got %d", len(words))
	}
	return VOCMeasurement{ECO2: words[0], TVOC: words[1]}, nil
}
