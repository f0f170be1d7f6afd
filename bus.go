package gasmon

import (
	"context"
	"fmt"
)

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")
var ErrNotPresent = fmt.Errorf("device did not acknowledge its address")

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

// AddressableTransceiver writes w and reads len(r) bytes back from the same
// device without releasing the bus in between (repeated start where the
// transport supports it).
type AddressableTransceiver interface {
	TxToAddr(ctx context.Context, address byte, w, r []byte) error
}

// Prober checks whether a device acknowledges its address. It gives up after
// retries additional attempts and returns ErrNotPresent.
type Prober interface {
	Probe(ctx context.Context, address byte, retries int) error
}

// I2CBus is the transceiver every driver talks to. Addresses are 7-bit, the
// implementation applies the read/write bit.
type I2CBus interface {
	AddressableReader
	AddressableWriter
	AddressableTransceiver
	Prober
}
