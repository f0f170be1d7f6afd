package adapter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/gasmon"
)

// fakeBridge answers MCP2221 reports for a single device at addr that
// replies with data to every read.
type fakeBridge struct {
	addr     byte
	data     []byte
	requests [][]byte
	pending  []byte
	next     []byte
	closed   int
	busy     bool
}

func (f *fakeBridge) Write(b []byte) (int, error) {
	req := append([]byte(nil), b...)
	f.requests = append(f.requests, req)
	resp := make([]byte, reportSize)
	resp[0] = req[0]
	switch req[0] {
	case cmdStatusSetParams:
		if req[3] == subCmdSetSpeed {
			resp[3] = speedAccepted
		}
		resp[14] = 0x75
	case cmdI2CWrite, cmdI2CWriteNoStop:
		if f.busy || req[3]>>1 != f.addr {
			resp[1] = 0x01
		}
	case cmdI2CRead, cmdI2CReadRepStart:
		if req[3]>>1 != f.addr || req[3]&1 != 1 {
			resp[1] = 0x01
			break
		}
		n := int(req[1]) | int(req[2])<<8
		f.pending = f.data[:n]
	case cmdGetI2CData:
		if f.pending == nil {
			resp[1] = i2cDataError
			break
		}
		resp[3] = byte(len(f.pending))
		copy(resp[4:], f.pending)
		f.pending = nil
	}
	f.next = resp
	return len(b), nil
}

func (f *fakeBridge) Read(b []byte) (int, error) {
	return copy(b, f.next), nil
}

func (f *fakeBridge) Close() error {
	f.closed++
	return nil
}

func newTestAdapter(f *fakeBridge) *MCP2221 {
	a := NewMCP2221(func() (Device, error) { return f, nil })
	a.responseWait = 0
	return a
}

func TestMCP2221_Write(t *testing.T) {
	f := &fakeBridge{addr: 0x61}
	a := newTestAdapter(f)
	require.NoError(t, a.WriteToAddr(context.Background(), 0x61, []byte{0x00, 0x10, 0x00, 0x00, 0x81}))
	require.Len(t, f.requests, 1)
	assert.Equal(t, []byte{cmdI2CWrite, 0x05, 0x00, 0xC2, 0x00, 0x10, 0x00, 0x00, 0x81}, f.requests[0][:9])

	f.busy = true
	assert.ErrorIs(t, a.WriteToAddr(context.Background(), 0x61, []byte{0x01, 0x04}), gasmon.ErrBusBusy)
}

func TestMCP2221_TxRepeatedStart(t *testing.T) {
	f := &fakeBridge{addr: 0x61, data: []byte{0x00, 0x01, 0xB0}}
	a := newTestAdapter(f)
	buf := make([]byte, 3)
	require.NoError(t, a.TxToAddr(context.Background(), 0x61, []byte{0x02, 0x02}, buf))
	assert.Equal(t, []byte{0x00, 0x01, 0xB0}, buf)
	require.Len(t, f.requests, 3)
	assert.Equal(t, byte(cmdI2CWriteNoStop), f.requests[0][0])
	assert.Equal(t, []byte{cmdI2CReadRepStart, 0x03, 0x00, 0xC3}, f.requests[1][:4])
	assert.Equal(t, byte(cmdGetI2CData), f.requests[2][0])
}

func TestMCP2221_ReadSizeMismatch(t *testing.T) {
	f := &fakeBridge{addr: 0x38, data: []byte{0x1C, 0x80, 0x00, 0x06, 0x00, 0x00}}
	a := newTestAdapter(f)
	buf := make([]byte, 6)
	require.NoError(t, a.ReadFromAddr(context.Background(), 0x38, buf))
	assert.Equal(t, f.data, buf)

	assert.Error(t, a.ReadFromAddr(context.Background(), 0x38, make([]byte, 61)))
}

func TestMCP2221_Probe(t *testing.T) {
	f := &fakeBridge{addr: 0x58, data: []byte{0xFF}}
	a := newTestAdapter(f)
	assert.NoError(t, a.Probe(context.Background(), 0x58, 2))

	f.requests = nil
	err := a.Probe(context.Background(), 0x38, 2)
	assert.ErrorIs(t, err, gasmon.ErrNotPresent)
	cancels := 0
	for _, r := range f.requests {
		if r[0] == cmdStatusSetParams && r[2] == subCmdCancelTransfer {
			cancels++
		}
	}
	assert.Equal(t, 3, cancels, "every failed attempt cancels the transfer")
}

func TestMCP2221_Init(t *testing.T) {
	f := &fakeBridge{}
	a := newTestAdapter(f)
	require.NoError(t, a.Init(context.Background(), 400))
	require.Len(t, f.requests, 2)
	assert.Equal(t, byte(subCmdCancelTransfer), f.requests[0][2])
	assert.Equal(t, []byte{cmdStatusSetParams, 0x00, 0x00, subCmdSetSpeed, 27}, f.requests[1][:5])

	assert.Error(t, a.Init(context.Background(), 5000))
}

func TestMCP2221_StatusAndClose(t *testing.T) {
	f := &fakeBridge{}
	a := newTestAdapter(f)
	status, err := a.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0x75, status.I2CSpeedDivider)
	require.NoError(t, a.Close())
	assert.Equal(t, 1, f.closed)
	require.NoError(t, a.Close())
	assert.Equal(t, 1, f.closed)
}

func TestMCP2221_OpenFailure(t *testing.T) {
	a := NewMCP2221(func() (Device, error) { return nil, ErrDeviceNotFound })
	err := a.WriteToAddr(context.Background(), 0x61, []byte{0x01})
	assert.True(t, errors.Is(err, ErrDeviceNotFound))
}
