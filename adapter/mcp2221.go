// Package adapter drives USB to I2C bridges.
package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karalabe/hid"

	"github.com/mklimuk/gasmon"
	"github.com/mklimuk/gasmon/snsctx"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

const reportSize = 64

// MCP2221 command codes
const (
	cmdStatusSetParams   = 0x10
	cmdGetI2CData        = 0x40
	cmdI2CWrite          = 0x90
	cmdI2CRead           = 0x91
	cmdI2CReadRepStart   = 0x93
	cmdI2CWriteNoStop    = 0x94
	subCmdCancelTransfer = 0x10
	subCmdSetSpeed       = 0x20
	speedAccepted        = 0x20
	i2cDataError         = 0x41
	invalidDataSize      = 127
	mcp2221Clock         = 12_000_000
	maxTransferSize      = reportSize - 4
)

var ErrCommandFailed = errors.New("command failed")
var ErrDeviceNotFound = errors.New("MCP2221 device not found")

var _ gasmon.I2CBus = &MCP2221{}

// Device is the HID report pipe to the bridge.
type Device interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	Close() error
}

// Opener returns the bridge to talk to.
type Opener func() (Device, error)

// HIDOpener opens the MCP2221 at index id among the enumerated bridges. A
// negative id requires exactly one bridge to be connected.
func HIDOpener(id int) Opener {
	return func() (Device, error) {
		devs := hid.Enumerate(VendorID, ProductID)
		if len(devs) == 0 {
			return nil, ErrDeviceNotFound
		}
		if id < 0 {
			if len(devs) > 1 {
				return nil, fmt.Errorf("ambiguous device identification: %d bridges connected", len(devs))
			}
			id = 0
		}
		if id >= len(devs) {
			return nil, fmt.Errorf("no device with id %d", id)
		}
		dev, err := devs[id].Open()
		if err != nil {
			return nil, fmt.Errorf("error opening device: %w", err)
		}
		return dev, nil
	}
}

// MCP2221 is an I2C bus behind a Microchip MCP2221(A) USB-HID bridge. The
// device is opened on first use and kept open until Close; a failed exchange
// closes it so the next one reopens it.
type MCP2221 struct {
	mx           sync.Mutex
	open         Opener
	dev          Device
	request      []byte
	response     []byte
	responseWait time.Duration
}

type MCP2221Status struct {
	I2CDataBufferCounter   int    `yaml:"i2c_data_buffer_counter"`
	I2CSpeedDivider        int    `yaml:"i2c_speed_divider"`
	I2CTimeout             int    `yaml:"i2c_timeout"`
	CurrentAddress         string `yaml:"current_address"`
	LastWriteRequestedSize uint16 `yaml:"last_write_requested_size"`
	LastWriteSentSize      uint16 `yaml:"last_write_sent_size"`
	ReadPending            int    `yaml:"read_pending"`
}

func NewMCP2221(open Opener) *MCP2221 {
	return &MCP2221{
		open:         open,
		request:      make([]byte, reportSize),
		response:     make([]byte, reportSize),
		responseWait: time.Millisecond,
	}
}

// Init cancels any transfer left over by a previous process and sets the bus
// clock. A zero speed keeps the bridge default (100 kHz).
func (d *MCP2221) Init(ctx context.Context, speedKHz int) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if _, err := d.releaseBus(ctx); err != nil {
		return err
	}
	if speedKHz == 0 {
		return nil
	}
	divider := mcp2221Clock/(speedKHz*1000) - 3
	if divider < 1 || divider > 0xFF {
		return fmt.Errorf("unsupported bus speed %d kHz", speedKHz)
	}
	d.resetBuffers()
	d.request[0] = cmdStatusSetParams
	d.request[3] = subCmdSetSpeed
	d.request[4] = byte(divider)
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("set speed request failed: %w", err)
	}
	if d.response[3] != speedAccepted {
		return fmt.Errorf("bridge refused speed %d kHz: %w", speedKHz, gasmon.ErrBusBusy)
	}
	return nil
}

func (d *MCP2221) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.write(ctx, cmdI2CWrite, address, buffer); err != nil {
		return fmt.Errorf("write to %x failed: %w", address, err)
	}
	return nil
}

func (d *MCP2221) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.read(ctx, cmdI2CRead, address, buffer); err != nil {
		return fmt.Errorf("bus read from %x failed: %w", address, err)
	}
	return nil
}

// TxToAddr writes w without a stop condition and reads r after a repeated
// start.
func (d *MCP2221) TxToAddr(ctx context.Context, address byte, w, r []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.write(ctx, cmdI2CWriteNoStop, address, w); err != nil {
		return fmt.Errorf("transfer write to %x failed: %w", address, err)
	}
	if err := d.read(ctx, cmdI2CReadRepStart, address, r); err != nil {
		return fmt.Errorf("transfer read from %x failed: %w", address, err)
	}
	return nil
}

// Probe reads one byte from address. A failed attempt leaves the I2C engine
// waiting, so the transfer is cancelled before the next one.
func (d *MCP2221) Probe(ctx context.Context, address byte, retries int) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	buf := make([]byte, 1)
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if err = d.read(ctx, cmdI2CRead, address, buf); err == nil {
			return nil
		}
		slog.DebugContext(ctx, "probe attempt failed", "address", fmt.Sprintf("%x", address), "attempt", attempt, "error", err)
		if _, rerr := d.releaseBus(ctx); rerr != nil {
			return fmt.Errorf("probe %x: %w", address, rerr)
		}
	}
	return fmt.Errorf("probe %x: %w: %w", address, gasmon.ErrNotPresent, err)
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatusSetParams
	if err := d.send(ctx); err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func (d *MCP2221) Release(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	_, err := d.releaseBus(ctx)
	return err
}

// ReleaseBus cancels the current transfer and returns the status after it.
func (d *MCP2221) ReleaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.releaseBus(ctx)
}

func (d *MCP2221) Close() error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.dev == nil {
		return nil
	}
	err := d.dev.Close()
	d.dev = nil
	return err
}

func (d *MCP2221) releaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.resetBuffers()
	d.request[0] = cmdStatusSetParams
	d.request[2] = subCmdCancelTransfer
	if err := d.send(ctx); err != nil {
		return nil, fmt.Errorf("cancel transfer request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func (d *MCP2221) write(ctx context.Context, cmd byte, address byte, buffer []byte) error {
	if len(buffer) > maxTransferSize {
		return fmt.Errorf("%d bytes do not fit a single report", len(buffer))
	}
	d.resetBuffers()
	d.request[0] = cmd
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address << 1
	copy(d.request[4:], buffer)
	if err := d.send(ctx); err != nil {
		return err
	}
	if d.response[1] != 0x00 {
		slog.DebugContext(ctx, "adapter busy", "command", fmt.Sprintf("%#x", cmd))
		return gasmon.ErrBusBusy
	}
	return nil
}

func (d *MCP2221) read(ctx context.Context, cmd byte, address byte, buffer []byte) error {
	if len(buffer) > maxTransferSize {
		return fmt.Errorf("%d bytes do not fit a single report", len(buffer))
	}
	d.resetBuffers()
	d.request[0] = cmd
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address<<1 + 1
	if err := d.send(ctx); err != nil {
		return err
	}
	if d.response[1] != 0x00 {
		return gasmon.ErrBusBusy
	}
	d.resetBuffers()
	d.request[0] = cmdGetI2CData
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("error getting read data from adapter: %w", err)
	}
	if d.response[1] == i2cDataError {
		return fmt.Errorf("error reading the I2C slave data from the I2C engine: %w", ErrCommandFailed)
	}
	if d.response[3] == invalidDataSize || int(d.response[3]) != len(buffer) {
		return fmt.Errorf("invalid data size byte; expected %d, got %d", len(buffer), d.response[3])
	}
	copy(buffer, d.response[4:])
	return nil
}

// send writes the request report and reads the response report.
func (d *MCP2221) send(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.dev == nil {
		dev, err := d.open()
		if err != nil {
			return err
		}
		d.dev = dev
	}
	verbose := snsctx.IsVerbose(ctx)
	if verbose {
		slog.InfoContext(ctx, fmt.Sprintf("sending message to adapter:\n%s", hex.Dump(d.request)))
	}
	n, err := d.dev.Write(d.request)
	if err != nil {
		d.drop()
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short write: %d", n)
	}
	time.Sleep(d.responseWait)
	n, err = d.dev.Read(d.response)
	if err != nil {
		d.drop()
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short read: %d", n)
	}
	if verbose {
		slog.InfoContext(ctx, fmt.Sprintf("read message from adapter:\n%s", hex.Dump(d.response)))
	}
	if d.response[0] != d.request[0] {
		return fmt.Errorf("response to %#x echoes command %#x: %w", d.request[0], d.response[0], ErrCommandFailed)
	}
	return nil
}

func (d *MCP2221) drop() {
	if err := d.dev.Close(); err != nil {
		slog.Debug("could not close adapter", "error", err)
	}
	d.dev = nil
}

func (d *MCP2221) resetBuffers() {
	clear(d.request)
	clear(d.response)
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	/*
		9: Lower byte (16-bit value) of the requested I2C transfer length
		10: Higher byte (16-bit value) of the requested I2C transfer length
		11:	Lower byte (16-bit value) of the already transferred (through I2C) number of bytes
		12:	Higher byte (16-bit value) of the already transferred (through I2C) number of bytes
		13:	Internal I2C data buffer counter
		14: Current I2C communication speed divider value
		15: Current I2C timeout value
		16:	Lower byte (16-bit value) of the I2C address being used
		17:	Higher byte (16-bit value) of the I2C address being used
		25: I2C read pending
	*/
	return &MCP2221Status{
		I2CDataBufferCounter:   int(buffer[13]),
		I2CSpeedDivider:        int(buffer[14]),
		I2CTimeout:             int(buffer[15]),
		ReadPending:            int(buffer[25]),
		CurrentAddress:         hex.EncodeToString(buffer[16:18]),
		LastWriteRequestedSize: binary.LittleEndian.Uint16(buffer[9:11]),
		LastWriteSentSize:      binary.LittleEndian.Uint16(buffer[11:13]),
	}
}

// ListDevices returns the bridges currently connected.
func ListDevices() []hid.DeviceInfo {
	return hid.Enumerate(VendorID, ProductID)
}
