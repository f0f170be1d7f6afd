package i2c

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mklimuk/gasmon"
	gobotI2C "gobot.io/x/gobot/v2/drivers/i2c"
)

var _ gasmon.I2CBus = &GobotBus{}

// GobotBus talks to devices through a gobot I2C connector (e.g. the raspi
// adaptor). One gobot connection is opened lazily per device address.
//
// Gobot connections do not expose a combined transfer, so TxToAddr is a write
// followed by a separate read. Every sensor used here tolerates a stop
// condition between command and response.
type GobotBus struct {
	mx        sync.Mutex
	connector gobotI2C.Connector
	busNr     int
	conns     map[byte]gobotI2C.Connection
}

func NewGobotBus(connector gobotI2C.Connector, busNr int) *GobotBus {
	if busNr < 0 {
		busNr = connector.DefaultI2cBus()
	}
	return &GobotBus{
		connector: connector,
		busNr:     busNr,
		conns:     make(map[byte]gobotI2C.Connection),
	}
}

func (b *GobotBus) conn(address byte) (gobotI2C.Connection, error) {
	if c, ok := b.conns[address]; ok {
		return c, nil
	}
	c, err := b.connector.GetI2cConnection(int(address), b.busNr)
	if err != nil {
		return nil, fmt.Errorf("could not open gobot i2c connection %x on bus %d: %w", address, b.busNr, err)
	}
	b.conns[address] = c
	return c, nil
}

func (b *GobotBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.read(address, buffer)
}

func (b *GobotBus) read(address byte, buffer []byte) error {
	c, err := b.conn(address)
	if err != nil {
		return err
	}
	n, err := c.Read(buffer)
	if err != nil {
		return fmt.Errorf("could not read from i2c bus %x: %w", address, err)
	}
	if n != len(buffer) {
		return fmt.Errorf("short read from i2c bus %x: %d of %d bytes", address, n, len(buffer))
	}
	return nil
}

func (b *GobotBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.write(address, buffer)
}

func (b *GobotBus) write(address byte, buffer []byte) error {
	c, err := b.conn(address)
	if err != nil {
		return err
	}
	if err := c.WriteBytes(buffer); err != nil {
		return fmt.Errorf("could not write to i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *GobotBus) TxToAddr(ctx context.Context, address byte, w, r []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mx.Lock()
	defer b.mx.Unlock()
	if err := b.write(address, w); err != nil {
		return err
	}
	return b.read(address, r)
}

func (b *GobotBus) Probe(ctx context.Context, address byte, retries int) error {
	buf := make([]byte, 1)
	b.mx.Lock()
	defer b.mx.Unlock()
	for attempt := 0; attempt <= retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.read(address, buf); err == nil {
			return nil
		}
	}
	return fmt.Errorf("probe %x: %w", address, gasmon.ErrNotPresent)
}

func (b *GobotBus) Release(ctx context.Context) error {
	return nil
}

// Close closes every connection opened so far.
func (b *GobotBus) Close() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	var errs []error
	for addr, c := range b.conns {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("could not close connection %x: %w", addr, err))
		}
		delete(b.conns, addr)
	}
	return errors.Join(errs...)
}
