// Package sim provides an in-memory I2C bus that emulates the SCD30, AHT10
// and SGP30 sensors at the byte level. It is used by tests and by the "sim"
// adapter of the command line tool to run the monitor without hardware.
package sim

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/mklimuk/gasmon"
	"github.com/mklimuk/gasmon/air"
)

const (
	generalCallAddr = 0x00
	scd30Addr       = 0x61
	aht10Addr       = 0x38
	sgp30Addr       = 0x58
)

const (
	aht10StatusBusy       = 0x80
	aht10StatusCalibrated = 0x08
)

var ErrInjected = fmt.Errorf("sim: injected bus failure")

var _ gasmon.I2CBus = &Bus{}

// Bus emulates a shared bus with the three sensors attached.
type Bus struct {
	mx sync.Mutex

	failing bool
	absent  map[byte]bool
	ops      int
	writes   map[byte][][]byte
	releases int

	active        int
	maxConcurrent int

	// SCD30
	co2Ready    bool
	co2         float32
	co2Measured bool

	// AHT10
	tempC           float64
	rh              float64
	busyPolls       int
	busyLeft        int
	calibrated      bool
	neverCalibrates bool

	// SGP30
	eco2        uint16
	tvoc        uint16
	humidityArg uint16
}

func NewBus() *Bus {
	return &Bus{
		absent:   make(map[byte]bool),
		writes:   make(map[byte][][]byte),
		co2Ready: true,
		co2:      600,
		tempC:    21.5,
		rh:       0.45,
		eco2:     400,
		tvoc:     0,
	}
}

// SetFailing makes every following bus operation fail until reset.
func (b *Bus) SetFailing(failing bool) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.failing = failing
}

// SetAbsent detaches (or re-attaches) the device at address.
func (b *Bus) SetAbsent(address byte, absent bool) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.absent[address] = absent
}

func (b *Bus) SetCO2(ppm float32) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.co2 = ppm
}

// SetDataReady controls the SCD30 data ready flag.
func (b *Bus) SetDataReady(ready bool) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.co2Ready = ready
}

// SetEnvironment sets the temperature (°C) and relative humidity (0..1)
// reported by both the AHT10 and the SCD30.
func (b *Bus) SetEnvironment(tempC, rh float64) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.tempC = tempC
	b.rh = rh
}

func (b *Bus) SetAirQuality(eco2, tvoc uint16) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.eco2 = eco2
	b.tvoc = tvoc
}

// SetBusyPolls sets how many AHT10 status reads report busy after a command.
func (b *Bus) SetBusyPolls(n int) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.busyPolls = n
}

// SetNeverCalibrates makes the AHT10 ignore its initialize command.
func (b *Bus) SetNeverCalibrates(v bool) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.neverCalibrates = v
}

// Ops returns the number of bus operations attempted so far.
func (b *Bus) Ops() int {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.ops
}

// Writes returns a copy of every buffer written to address.
func (b *Bus) Writes(address byte) [][]byte {
	b.mx.Lock()
	defer b.mx.Unlock()
	out := make([][]byte, len(b.writes[address]))
	for i, w := range b.writes[address] {
		out[i] = append([]byte(nil), w...)
	}
	return out
}

// HumidityArg returns the last SGP30 humidity compensation argument.
func (b *Bus) HumidityArg() uint16 {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.humidityArg
}

// MaxConcurrent returns the highest number of overlapping operations seen.
func (b *Bus) MaxConcurrent() int {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.maxConcurrent
}

func (b *Bus) begin(address byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.ops++
	b.active++
	if b.active > b.maxConcurrent {
		b.maxConcurrent = b.active
	}
	if b.failing {
		b.active--
		return ErrInjected
	}
	if address != generalCallAddr && b.absent[address] {
		b.active--
		return fmt.Errorf("sim: no ack from %x: %w", address, gasmon.ErrNotPresent)
	}
	return nil
}

func (b *Bus) end() {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.active--
}

func (b *Bus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := b.begin(address); err != nil {
		return err
	}
	defer b.end()
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.write(address, buffer)
}

func (b *Bus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := b.begin(address); err != nil {
		return err
	}
	defer b.end()
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.read(address, buffer)
}

func (b *Bus) TxToAddr(ctx context.Context, address byte, w, r []byte) error {
	if err := b.begin(address); err != nil {
		return err
	}
	defer b.end()
	b.mx.Lock()
	defer b.mx.Unlock()
	if err := b.write(address, w); err != nil {
		return err
	}
	return b.read(address, r)
}

func (b *Bus) Probe(ctx context.Context, address byte, retries int) error {
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if err = b.begin(address); err == nil {
			b.end()
			return nil
		}
	}
	return fmt.Errorf("probe %x: %w: %w", address, gasmon.ErrNotPresent, err)
}

func (b *Bus) Release(ctx context.Context) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.releases++
	if b.failing {
		return ErrInjected
	}
	return nil
}

// Releases returns how many times the bus was released.
func (b *Bus) Releases() int {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.releases
}

func (b *Bus) write(address byte, buffer []byte) error {
	b.writes[address] = append(b.writes[address], append([]byte(nil), buffer...))
	switch address {
	case generalCallAddr:
		if len(buffer) == 1 && buffer[0] == 0x06 {
			b.calibrated = false
			b.co2Measured = false
		}
	case aht10Addr:
		if len(buffer) == 0 {
			return fmt.Errorf("sim: aht10: empty command")
		}
		switch buffer[0] {
		case 0xBA:
			b.calibrated = false
		case 0xE1:
			if !b.neverCalibrates {
				b.calibrated = true
			}
			b.busyLeft = b.busyPolls
		case 0xAC:
			b.busyLeft = b.busyPolls
		default:
			return fmt.Errorf("sim: aht10: unknown command %#x", buffer[0])
		}
	case scd30Addr:
		if len(buffer) < 2 {
			return fmt.Errorf("sim: scd30: short command")
		}
		switch binary.BigEndian.Uint16(buffer) {
		case 0x0010:
			b.co2Measured = true
		case 0x0104, 0xD304, 0x4600, 0x0202, 0x0300:
		default:
			return fmt.Errorf("sim: scd30: unknown command %#x", buffer[:2])
		}
	case sgp30Addr:
		if len(buffer) < 2 {
			return fmt.Errorf("sim: sgp30: short command")
		}
		switch binary.BigEndian.Uint16(buffer) {
		case 0x2003, 0x2008:
		case 0x2061:
			if len(buffer) != 4 {
				return fmt.Errorf("sim: sgp30: set humidity expects 4 bytes, got %d", len(buffer))
			}
			b.humidityArg = binary.BigEndian.Uint16(buffer[2:4])
		default:
			return fmt.Errorf("sim: sgp30: unknown command %#x", buffer[:2])
		}
	default:
		return fmt.Errorf("sim: no device at %x", address)
	}
	return nil
}

func (b *Bus) read(address byte, buffer []byte) error {
	switch address {
	case aht10Addr:
		status := byte(0)
		if b.calibrated {
			status |= aht10StatusCalibrated
		}
		if b.busyLeft > 0 {
			b.busyLeft--
			status |= aht10StatusBusy
		}
		if len(buffer) == 1 {
			buffer[0] = status
			return nil
		}
		if len(buffer) != 6 {
			return fmt.Errorf("sim: aht10: unexpected read of %d bytes", len(buffer))
		}
		copy(buffer, EncodeAHT10(status, b.tempC, b.rh))
	case scd30Addr:
		switch len(buffer) {
		case 3:
			word := uint16(0)
			if b.co2Ready && b.co2Measured {
				word = 1
			}
			copy(buffer, appendWord(nil, word))
		case 18:
			copy(buffer, EncodeSCD30(b.co2, float32(b.tempC), float32(b.rh*100)))
		default:
			return fmt.Errorf("sim: scd30: unexpected read of %d bytes", len(buffer))
		}
	case sgp30Addr:
		if len(buffer) != 6 {
			return fmt.Errorf("sim: sgp30: unexpected read of %d bytes", len(buffer))
		}
		out := appendWord(nil, b.eco2)
		out = appendWord(out, b.tvoc)
		copy(buffer, out)
	default:
		return fmt.Errorf("sim: no device at %x", address)
	}
	return nil
}

// EncodeAHT10 packs a status byte, temperature and relative humidity into
// the 6-byte AHT10 measurement layout.
func EncodeAHT10(status byte, tempC, rh float64) []byte {
	h := uint32(math.Round(rh * (1 << 20)))
	if h > 0xFFFFF {
		h = 0xFFFFF
	}
	t := uint32(math.Round((tempC + 50) * (1 << 20) / 200))
	if t > 0xFFFFF {
		t = 0xFFFFF
	}
	return []byte{
		status,
		byte(h >> 12),
		byte(h >> 4),
		byte(h&0x0F)<<4 | byte(t>>16)&0x0F,
		byte(t >> 8),
		byte(t),
	}
}

// EncodeSCD30 produces the 18-byte SCD30 measurement response: three
// big-endian IEEE-754 floats, each split into two CRC protected words.
func EncodeSCD30(co2, tempC, rhPct float32) []byte {
	var out []byte
	for _, v := range []float32{co2, tempC, rhPct} {
		bits := math.Float32bits(v)
		out = appendWord(out, uint16(bits>>16))
		out = appendWord(out, uint16(bits))
	}
	return out
}

func appendWord(out []byte, word uint16) []byte {
	w := []byte{byte(word >> 8), byte(word)}
	return append(out, w[0], w[1], air.Checksum(w))
}
