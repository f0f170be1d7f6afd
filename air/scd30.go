package air

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/mklimuk/gasmon"
)

// SCD30 default 7-bit I2C address.
const SCD30Address = 0x61

const scd30Timeout = 50 * time.Millisecond

// Commands with arguments carry their precomputed CRC.
var (
	scd30CmdTriggerContinuous = [...]byte{0x00, 0x10, 0x00, 0x00, 0x81} // ambient pressure compensation off
	scd30CmdSetIntervalMin    = [...]byte{0x46, 0x00, 0x00, 0x02, 0xE3} // 2 s
	scd30CmdStopContinuous    = [...]byte{0x01, 0x04}
	scd30CmdSoftReset         = [...]byte{0xD3, 0x04}
	scd30CmdGetDataReady      = [...]byte{0x02, 0x02}
	scd30CmdReadMeasurement   = [...]byte{0x03, 0x00}
)

// scd30DataReadyCRC is the checksum of the word 0x0001.
const scd30DataReadyCRC = 0xB0

// measurement response: CO2, temperature, humidity as two words each
const scd30MeasurementWords = 6

// CO2Measurement is a single SCD30 reading. When Ready is false the other
// fields are not populated.
type CO2Measurement struct {
	Ready bool
	// units: ppm, 0..10000
	CO2 float32
	// units: degrees Celsius, -40..85
	Temperature float32
	// units: fraction 0.0..1.0
	Humidity float32
}

// SCD30 represents Sensirion SCD30 CO2, temperature and humidity sensor
// running in continuous measurement mode.
// Typical usage:
//
//	s := NewSCD30(bus)
//	err := s.Init(ctx)
//	m, err := s.GetMeasurement(ctx)
type SCD30 struct {
	transport gasmon.I2CBus
	addr      byte
}

func NewSCD30(trans gasmon.I2CBus) *SCD30 {
	return &SCD30{transport: trans, addr: SCD30Address}
}

// Init starts continuous measurement and sets the shortest interval.
func (s *SCD30) Init(ctx context.Context) error {
	if err := s.send(ctx, scd30CmdTriggerContinuous[:]); err != nil {
		return fmt.Errorf("scd30: could not trigger continuous measurement: %w", err)
	}
	if err := s.send(ctx, scd30CmdSetIntervalMin[:]); err != nil {
		return fmt.Errorf("scd30: could not set measurement interval: %w", err)
	}
	return nil
}

// DataReady asks whether a completed measurement can be read. A data ready
// word with an unexpected checksum is reported as not ready.
func (s *SCD30) DataReady(ctx context.Context) (bool, error) {
	if err := s.send(ctx, scd30CmdGetDataReady[:]); err != nil {
		return false, fmt.Errorf("scd30: could not request data ready status: %w", err)
	}
	buf := make([]byte, wordSize)
	tctx, cancel := context.WithTimeout(ctx, scd30Timeout)
	defer cancel()
	if err := s.transport.ReadFromAddr(tctx, s.addr, buf); err != nil {
		return false, fmt.Errorf("scd30: could not read data ready status: %w", err)
	}
	return decodeDataReady(buf), nil
}

// ReadMeasurement reads the last completed measurement.
// Word checksums are not validated.
func (s *SCD30) ReadMeasurement(ctx context.Context) (CO2Measurement, error) {
	buf := make([]byte, scd30MeasurementWords*wordSize)
	tctx, cancel := context.WithTimeout(ctx, scd30Timeout)
	defer cancel()
	if err := s.transport.TxToAddr(tctx, s.addr, scd30CmdReadMeasurement[:], buf); err != nil {
		return CO2Measurement{}, fmt.Errorf("scd30: could not read measurement: %w", err)
	}
	co2, temp, hum, err := decodeCO2Measurement(buf)
	if err != nil {
		return CO2Measurement{}, fmt.Errorf("scd30: %w", err)
	}
	return CO2Measurement{Ready: true, CO2: co2, Temperature: temp, Humidity: hum}, nil
}

// GetMeasurement checks the data ready flag and reads a measurement only if
// one is available. No data is not an error: the result has Ready == false.
func (s *SCD30) GetMeasurement(ctx context.Context) (CO2Measurement, error) {
	ready, err := s.DataReady(ctx)
	if err != nil {
		return CO2Measurement{}, err
	}
	if !ready {
		slog.DebugContext(ctx, "scd30: measurement not ready")
		return CO2Measurement{}, nil
	}
	return s.ReadMeasurement(ctx)
}

// Deinit soft resets the sensor and stops continuous measurement.
func (s *SCD30) Deinit(ctx context.Context) error {
	if err := s.send(ctx, scd30CmdSoftReset[:]); err != nil {
		return fmt.Errorf("scd30: soft reset failed: %w", err)
	}
	if err := s.send(ctx, scd30CmdStopContinuous[:]); err != nil {
		return fmt.Errorf("scd30: could not stop continuous measurement: %w", err)
	}
	return nil
}

func (s *SCD30) send(ctx context.Context, cmd []byte) error {
	ctx, cancel := context.WithTimeout(ctx, scd30Timeout)
	defer cancel()
	return s.transport.WriteToAddr(ctx, s.addr, cmd)
}

func decodeDataReady(buf []byte) bool {
	words, err := parseWords(buf)
	if err != nil || len(words) != 1 {
		return false
	}
	return words[0].Value == 1 && words[0].CRC == scd30DataReadyCRC
}

// decodeCO2Measurement assembles each float from a high and a low word and
// reinterprets the bits as IEEE-754. Humidity comes in percent and is
// returned as a fraction.
func decodeCO2Measurement(buf []byte) (co2, temp, hum float32, err error) {
	words, err := parseWords(buf)
	if err != nil {
		return 0, 0, 0, err
	}
	if len(words) != scd30MeasurementWords {
		return 0, 0, 0, fmt.Errorf("expected %d measurement words, got %d", scd30MeasurementWords, len(words))
	}
	float := func(i int) float32 {
		return math.Float32frombits(uint32(words[i].Value)<<16 | uint32(words[i+1].Value))
	}
	co2 = float(0)
	temp = float(2)
	hum = float(4) / 100
	return co2, temp, hum, nil
}
