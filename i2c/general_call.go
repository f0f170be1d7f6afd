package i2c

import (
	"context"
	"fmt"
	"time"

	"github.com/mklimuk/gasmon"
)

const GeneralCallAddress = 0x00

const generalCallReset byte = 0x06

const generalCallTimeout = 50 * time.Millisecond

// GeneralCallReset asks every device on the bus that implements the general
// call to perform a reset.
func GeneralCallReset(ctx context.Context, bus gasmon.AddressableWriter) error {
	ctx, cancel := context.WithTimeout(ctx, generalCallTimeout)
	defer cancel()
	if err := bus.WriteToAddr(ctx, GeneralCallAddress, []byte{generalCallReset}); err != nil {
		return fmt.Errorf("general call: reset failed: %w", err)
	}
	return nil
}
