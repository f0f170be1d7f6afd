package monitor

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAbsoluteHumidity(t *testing.T) {
	assert.InDelta(t, 11.5, AbsoluteHumidity(25, 0.5), 0.1)
	assert.InDelta(t, 0.0, AbsoluteHumidity(25, 0), 0.0001)
	assert.Greater(t, AbsoluteHumidity(30, 0.5), AbsoluteHumidity(20, 0.5))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		given    float64
		expected Ventilation
	}{
		{0, VentilationGood},
		{799.9, VentilationGood},
		{800, VentilationModerate},
		{999, VentilationModerate},
		{1000, VentilationPoor},
		{1999, VentilationPoor},
		{2000, VentilationCritical},
		{10000, VentilationCritical},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%g", test.given), func(t *testing.T) {
			assert.Equal(t, test.expected, Classify(test.given))
		})
	}
	assert.Equal(t, "poor ventilation; ACT NOW!", VentilationCritical.String())
}

func TestSlot_DefaultIsDisconnected(t *testing.T) {
	s := NewSlot(VariantCO2).Read()
	assert.False(t, s.Success)
	assert.True(t, s.Initializing)
	assert.Equal(t, VariantCO2, s.Variant)
}

func TestSlot_NoTornReads(t *testing.T) {
	slot := NewSlot(VariantVOC)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range 2000 {
			v := uint16(i)
			slot.OnMeasurement(Snapshot{Success: true, ECO2: v, TVOC: v, Temperature: float32(v)})
		}
	}()
	for range 2000 {
		s := slot.Read()
		if s.Success {
			assert.Equal(t, s.ECO2, s.TVOC)
			assert.Equal(t, float32(s.ECO2), s.Temperature)
		}
	}
	wg.Wait()
	assert.Equal(t, uint16(1999), slot.Read().ECO2)
}

func TestTee(t *testing.T) {
	var got []string
	a := SinkFunc(func(s Snapshot) { got = append(got, "a") })
	b := SinkFunc(func(s Snapshot) { got = append(got, "b") })
	Tee(a, b).OnMeasurement(Snapshot{})
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestChannelSink_DropsWhenFull(t *testing.T) {
	ch := make(chan Snapshot, 1)
	sink := ChannelSink(ch)
	sink.OnMeasurement(Snapshot{CO2: 1})
	sink.OnMeasurement(Snapshot{CO2: 2})
	assert.Equal(t, float32(1), (<-ch).CO2)
	assert.Empty(t, ch)
}

func TestSnapshot_Failed(t *testing.T) {
	now := time.Now()
	s := Snapshot{Success: true, CO2: 900, Temperature: 21}.Failed(now)
	assert.False(t, s.Success)
	assert.Equal(t, float32(900), s.CO2)
	assert.Equal(t, now, s.Timestamp)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "warming up", WarmingUp.String())
	assert.Equal(t, "unknown", State(42).String())
}
