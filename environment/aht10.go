package environment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mklimuk/gasmon"
	"github.com/mklimuk/gasmon/snsctx"
)

// AHT10 default 7-bit I2C address (AHT20 uses the same one).
const AHT10Address = 0x38

const (
	aht10CmdInitialize = 0b11100001
	aht10CmdTrigger    = 0b10101100
	aht10CmdSoftReset  = 0b10111010
)

const (
	aht10StatusBusy       = 0b10000000
	aht10StatusCalibrated = 0b00001000
)

const (
	aht10Timeout      = 50 * time.Millisecond
	aht10ResetDelay   = 20 * time.Millisecond
	aht10PollInterval = 10 * time.Millisecond
	aht10MaxPolls     = 100
	aht10ProbeRetries = 2
)

// 20-bit fixed point scale
const aht10Scale = 1 << 20

var ErrNotCalibrated = errors.New("aht10: calibration bit not set")
var ErrBusyTimeout = errors.New("aht10: sensor stayed busy")

// AHT10 represents Aosong ASAIR AHT10/AHT20 temperature and humidity sensor.
// Typical usage:
//
//	s := NewAHT10(bus)
//	err := s.Init(ctx)
//	t, rh, err := s.GetMeasurement(ctx)
//
// Humidity is returned as a fraction (0.0..1.0).
type AHT10 struct {
	transport gasmon.I2CBus
	addr      byte
}

func NewAHT10(trans gasmon.I2CBus) *AHT10 {
	return &AHT10{transport: trans, addr: AHT10Address}
}

// Init probes the sensor, resets it, sends the initialize command and waits
// until it reports calibrated.
func (s *AHT10) Init(ctx context.Context) error {
	if err := s.transport.Probe(ctx, s.addr, aht10ProbeRetries); err != nil {
		return fmt.Errorf("aht10: could not find sensor at address %x: %w", s.addr, err)
	}
	if err := s.reset(ctx); err != nil {
		return err
	}
	if err := snsctx.Sleep(ctx, aht10ResetDelay); err != nil {
		return err
	}
	if err := s.send(ctx, []byte{aht10CmdInitialize, 0x08, 0x00}); err != nil {
		return fmt.Errorf("aht10: initialize command failed: %w", err)
	}
	status, err := s.waitNotBusy(ctx)
	if err != nil {
		return fmt.Errorf("aht10: failed while waiting for calibration: %w", err)
	}
	if status&aht10StatusCalibrated == 0 {
		return ErrNotCalibrated
	}
	return nil
}

// GetMeasurement triggers a measurement, waits for it and returns the
// temperature in Celsius and the relative humidity as a fraction.
func (s *AHT10) GetMeasurement(ctx context.Context) (float32, float32, error) {
	if err := s.send(ctx, []byte{aht10CmdTrigger, 0x33, 0x00}); err != nil {
		return 0, 0, fmt.Errorf("aht10: trigger measurement failed: %w", err)
	}
	if _, err := s.waitNotBusy(ctx); err != nil {
		return 0, 0, fmt.Errorf("aht10: failed while waiting for measurement: %w", err)
	}
	buf := make([]byte, 6)
	tctx, cancel := context.WithTimeout(ctx, aht10Timeout)
	defer cancel()
	if err := s.transport.ReadFromAddr(tctx, s.addr, buf); err != nil {
		return 0, 0, fmt.Errorf("aht10: could not read measurement: %w", err)
	}
	temp, hum := decodeAHT10(buf)
	return temp, hum, nil
}

// Deinit soft resets the sensor.
func (s *AHT10) Deinit(ctx context.Context) error {
	return s.reset(ctx)
}

func (s *AHT10) reset(ctx context.Context) error {
	if err := s.send(ctx, []byte{aht10CmdSoftReset}); err != nil {
		return fmt.Errorf("aht10: soft reset failed: %w", err)
	}
	return nil
}

// waitNotBusy reads the status byte until the busy bit clears. The first read
// happens immediately, later ones after aht10PollInterval.
func (s *AHT10) waitNotBusy(ctx context.Context) (byte, error) {
	buf := make([]byte, 1)
	for poll := 0; poll < aht10MaxPolls; poll++ {
		if poll > 0 {
			if err := snsctx.Sleep(ctx, aht10PollInterval); err != nil {
				return 0, err
			}
		}
		if err := s.status(ctx, buf); err != nil {
			return 0, err
		}
		if buf[0]&aht10StatusBusy == 0 {
			return buf[0], nil
		}
	}
	return 0, ErrBusyTimeout
}

func (s *AHT10) status(ctx context.Context, buf []byte) error {
	ctx, cancel := context.WithTimeout(ctx, aht10Timeout)
	defer cancel()
	return s.transport.ReadFromAddr(ctx, s.addr, buf)
}

func (s *AHT10) send(ctx context.Context, cmd []byte) error {
	ctx, cancel := context.WithTimeout(ctx, aht10Timeout)
	defer cancel()
	return s.transport.WriteToAddr(ctx, s.addr, cmd)
}

// decodeAHT10 unpacks the measurement frame:
//
//	byte      0       1       2       3       4       5
//	          SSSSSSSSHHHHHHHHHHHHHHHHHHHHTTTTTTTTTTTTTTTTTTTT
//
// S is the status byte, H a 20-bit humidity fraction and T a 20-bit
// temperature code.
func decodeAHT10(buf []byte) (temp float32, hum float32) {
	rawHum := uint32(buf[1])<<12 | uint32(buf[2])<<4 | uint32(buf[3])>>4
	rawTemp := uint32(buf[3]&0x0F)<<16 | uint32(buf[4])<<8 | uint32(buf[5])
	hum = float32(float64(rawHum) / aht10Scale)
	temp = float32(float64(rawTemp)*200/aht10Scale - 50)
	return temp, hum
}
