package i2c

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/gasmon/sim"
)

func TestGeneralCallReset(t *testing.T) {
	bus := sim.NewBus()
	require.NoError(t, GeneralCallReset(context.Background(), bus))
	assert.Equal(t, [][]byte{{0x06}}, bus.Writes(GeneralCallAddress))
}

func TestGeneralCallReset_Failure(t *testing.T) {
	bus := sim.NewBus()
	bus.SetFailing(true)
	err := GeneralCallReset(context.Background(), bus)
	assert.ErrorIs(t, err, sim.ErrInjected)
	assert.ErrorContains(t, err, "general call")
}
