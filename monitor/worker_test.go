package monitor

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/gasmon/i2c"
	"github.com/mklimuk/gasmon/sim"
	"github.com/mklimuk/gasmon/snsctx"
)

type recorder struct {
	mx    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) OnMeasurement(s Snapshot) {
	r.mx.Lock()
	r.snaps = append(r.snaps, s)
	r.mx.Unlock()
}

func (r *recorder) all() []Snapshot {
	r.mx.Lock()
	defer r.mx.Unlock()
	return append([]Snapshot(nil), r.snaps...)
}

func (r *recorder) count(success bool) int {
	n := 0
	for _, s := range r.all() {
		if s.Success == success {
			n++
		}
	}
	return n
}

func newTestWorker(set SensorSet, sink Sink) *Worker {
	w := New(set, i2c.NewHandle(), sink)
	w.retryDelay = 200 * time.Millisecond
	w.interval = 2 * time.Millisecond
	return w
}

func TestWorker_FaultAndRecovery(t *testing.T) {
	bus := sim.NewBus()
	rec := &recorder{}
	w := newTestWorker(NewCO2Set(bus), rec)
	require.NoError(t, w.Start(context.Background()))
	defer w.Close()

	require.Eventually(t, func() bool { return rec.count(true) >= 3 }, time.Second, time.Millisecond)
	assert.Equal(t, Sampling, w.State())

	bus.SetFailing(true)
	require.Eventually(t, func() bool { return rec.count(false) == 1 }, time.Second, time.Millisecond)
	bus.SetFailing(false)
	failedAt := len(rec.all())

	require.Eventually(t, func() bool { return len(rec.all()) > failedAt }, time.Second, time.Millisecond)
	snaps := rec.all()
	failure := snaps[failedAt-1]
	assert.False(t, failure.Success)
	assert.Equal(t, float32(600), failure.CO2, "failure snapshot keeps the last values")
	assert.True(t, snaps[failedAt-2].Success)
	assert.True(t, snaps[failedAt].Success, "one retry is enough once the bus recovers")
	assert.Equal(t, 1, rec.count(false))
}

func TestWorker_FailurePublishedBeforeDelay(t *testing.T) {
	bus := sim.NewBus()
	bus.SetAbsent(0x38, true)
	rec := &recorder{}
	w := newTestWorker(NewVOCSet(bus), rec)
	w.retryDelay = time.Hour
	start := time.Now()
	require.NoError(t, w.Start(context.Background()))
	require.Eventually(t, func() bool { return rec.count(false) == 1 }, time.Second, time.Millisecond)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, Faulted, w.State())
	w.Stop()

	snap := rec.all()[0]
	assert.Equal(t, VariantVOC, snap.Variant)
	assert.True(t, snap.Initializing)
	assert.Len(t, rec.all(), 1)
}

func TestWorker_StopDuringRetryDelay(t *testing.T) {
	bus := sim.NewBus()
	bus.SetFailing(true)
	rec := &recorder{}
	w := newTestWorker(NewCO2Set(bus), rec)
	w.retryDelay = 10 * time.Second
	require.NoError(t, w.Start(context.Background()))
	require.Eventually(t, func() bool { return rec.count(false) == 1 }, time.Second, time.Millisecond)

	bus.SetFailing(false)
	ops := bus.Ops()
	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("stop did not interrupt the retry delay")
	}
	assert.Equal(t, Stopped, w.State())
	// only the best effort deinit (soft reset, stop measurement) reaches the bus
	assert.Equal(t, [][]byte{{0xD3, 0x04}, {0x01, 0x04}}, bus.Writes(0x61))
	assert.Equal(t, ops+2, bus.Ops())
	assert.Equal(t, 1, bus.Releases())
	assert.Len(t, rec.all(), 1)
}

func TestWorker_NoPublishAfterStop(t *testing.T) {
	bus := sim.NewBus()
	rec := &recorder{}
	w := newTestWorker(NewVOCSet(bus), rec)
	require.NoError(t, w.Start(context.Background()))
	require.Eventually(t, func() bool { return rec.count(true) >= 5 }, time.Second, time.Millisecond)
	w.Stop()
	n := len(rec.all())
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, rec.all(), n)

	// deinit: soft reset of the AHT10 then general call reset
	aht := bus.Writes(0x38)
	gc := bus.Writes(0x00)
	assert.Equal(t, []byte{0xBA}, aht[len(aht)-1])
	assert.Equal(t, []byte{0x06}, gc[len(gc)-1])
	assert.Equal(t, 1, bus.Releases())
}

func TestWorker_ReleasesBusWhenDeinitFails(t *testing.T) {
	for _, variant := range []Variant{VariantCO2, VariantVOC} {
		t.Run(string(variant), func(t *testing.T) {
			bus := sim.NewBus()
			var set SensorSet = NewCO2Set(bus)
			if variant == VariantVOC {
				set = NewVOCSet(bus)
			}
			rec := &recorder{}
			w := newTestWorker(set, rec)
			require.NoError(t, w.Start(context.Background()))
			require.Eventually(t, func() bool { return rec.count(true) >= 1 }, time.Second, time.Millisecond)
			bus.SetFailing(true)
			w.Stop()
			assert.Equal(t, Stopped, w.State())
			assert.Equal(t, 1, bus.Releases())
		})
	}
}

func TestWorker_BusReleasedDuringPublish(t *testing.T) {
	bus := sim.NewBus()
	handle := i2c.NewHandle()
	var held atomic.Int32
	var calls atomic.Int32
	sink := SinkFunc(func(Snapshot) {
		calls.Add(1)
		if handle.Held() {
			held.Add(1)
		}
	})
	w := New(NewVOCSet(bus), handle, sink)
	w.interval = time.Millisecond
	require.NoError(t, w.Start(context.Background()))
	require.Eventually(t, func() bool { return calls.Load() >= 5 }, time.Second, time.Millisecond)
	w.Stop()
	assert.Zero(t, held.Load())
	assert.False(t, handle.Held())
	assert.Equal(t, 1, bus.MaxConcurrent())
}

func TestWorker_WarmUpFlag(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	var tick atomic.Int64
	// every reading of the clock moves it one second forward
	clock := func() time.Time {
		return t0.Add(time.Duration(tick.Add(1)-1) * time.Second)
	}
	ctx := snsctx.WithClock(context.Background(), clock)

	bus := sim.NewBus()
	set := NewVOCSet(bus)
	rec := &recorder{}
	w := newTestWorker(set, rec)
	w.interval = 0
	require.NoError(t, w.Start(ctx))
	require.Eventually(t, func() bool { return rec.count(true) >= 25 }, 2*time.Second, time.Millisecond)
	w.Stop()

	deadline := set.WarmedUp()
	assert.Equal(t, t0.Add(15*time.Second), deadline)
	var warming, warm int
	for _, s := range rec.all() {
		require.True(t, s.Success)
		assert.Equal(t, s.Timestamp.Before(deadline), s.Initializing, "snapshot at %s", s.Timestamp)
		if s.Initializing {
			warming++
		} else {
			warm++
		}
	}
	assert.Equal(t, 14, warming)
	assert.NotZero(t, warm)
}

func TestWorker_HumidityCompensation(t *testing.T) {
	bus := sim.NewBus()
	bus.SetEnvironment(25, 0.5)
	bus.SetAirQuality(612, 33)
	rec := &recorder{}
	w := newTestWorker(NewVOCSet(bus), rec)
	require.NoError(t, w.Start(context.Background()))
	require.Eventually(t, func() bool { return rec.count(true) >= 1 }, time.Second, time.Millisecond)
	w.Stop()

	s := rec.all()[0]
	assert.Equal(t, uint16(612), s.ECO2)
	assert.Equal(t, uint16(33), s.TVOC)
	expected := uint16(math.Floor(AbsoluteHumidity(float64(s.Temperature), float64(s.Humidity)) * 256))
	assert.Equal(t, expected, bus.HumidityArg())
	assert.InDelta(t, 11.5*256, float64(bus.HumidityArg()), 0.1*256)
}

func TestWorker_CO2NotReady(t *testing.T) {
	bus := sim.NewBus()
	rec := &recorder{}
	w := newTestWorker(NewCO2Set(bus), rec)
	require.NoError(t, w.Start(context.Background()))
	require.Eventually(t, func() bool { return rec.count(true) >= 1 }, time.Second, time.Millisecond)
	bus.SetDataReady(false)
	bus.SetCO2(1200)
	require.Eventually(t, func() bool {
		snaps := rec.all()
		return !snaps[len(snaps)-1].Ready
	}, time.Second, time.Millisecond)
	w.Stop()

	snaps := rec.all()
	last := snaps[len(snaps)-1]
	assert.True(t, last.Success)
	assert.Equal(t, float32(600), last.CO2, "values of the last ready measurement are kept")
}

func TestWorker_Lifecycle(t *testing.T) {
	bus := sim.NewBus()
	w := newTestWorker(NewCO2Set(bus), &recorder{})
	assert.Equal(t, Uninitialized, w.State())
	w.Stop()

	require.NoError(t, w.Start(context.Background()))
	assert.ErrorIs(t, w.Start(context.Background()), ErrAlreadyStarted)
	w.Stop()
	assert.Equal(t, Stopped, w.State())

	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Start(context.Background()), ErrClosed)
}
