package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mklimuk/gasmon"
	"github.com/mklimuk/gasmon/air"
	"github.com/mklimuk/gasmon/environment"
	"github.com/mklimuk/gasmon/i2c"
	"github.com/mklimuk/gasmon/snsctx"
)

const (
	co2SampleInterval = 2000 * time.Millisecond
	vocSampleInterval = 250 * time.Millisecond
)

// SensorSet is the group of drivers a Worker sequences. Init, Sample and
// Deinit each run as a single bus transaction.
type SensorSet interface {
	Variant() Variant
	Init(ctx context.Context) error
	// Sample reads one complete snapshot. Success is set by the worker.
	Sample(ctx context.Context) (Snapshot, error)
	Deinit(ctx context.Context) error
	// Interval is the pause between two successful samples.
	Interval() time.Duration
}

// CO2Set samples a single SCD30.
type CO2Set struct {
	bus   gasmon.I2CBus
	scd30 *air.SCD30
	last  air.CO2Measurement
}

func NewCO2Set(bus gasmon.I2CBus) *CO2Set {
	return &CO2Set{bus: bus, scd30: air.NewSCD30(bus)}
}

func (s *CO2Set) Variant() Variant {
	return VariantCO2
}

func (s *CO2Set) Init(ctx context.Context) error {
	return s.scd30.Init(ctx)
}

// Sample queries the data ready flag and reads the measurement when one is
// available. Without new data the previous values are reported with
// Ready=false.
func (s *CO2Set) Sample(ctx context.Context) (Snapshot, error) {
	m, err := s.scd30.GetMeasurement(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if m.Ready {
		s.last = m
	}
	return Snapshot{
		Variant:     VariantCO2,
		Ready:       m.Ready,
		Temperature: s.last.Temperature,
		Humidity:    s.last.Humidity,
		CO2:         s.last.CO2,
		Timestamp:   snsctx.Now(ctx),
	}, nil
}

// Deinit stops the SCD30 and releases the bus whether or not that worked.
func (s *CO2Set) Deinit(ctx context.Context) error {
	return errors.Join(s.scd30.Deinit(ctx), release(ctx, s.bus))
}

func (s *CO2Set) Interval() time.Duration {
	return co2SampleInterval
}

// VOCSet samples an AHT10 and an SGP30 and feeds the absolute humidity
// measured by the first into the compensation of the second.
type VOCSet struct {
	bus      gasmon.I2CBus
	aht10    *environment.AHT10
	sgp30    *air.SGP30
	warmedUp time.Time
}

func NewVOCSet(bus gasmon.I2CBus) *VOCSet {
	return &VOCSet{
		bus:   bus,
		aht10: environment.NewAHT10(bus),
		sgp30: air.NewSGP30(bus),
	}
}

func (s *VOCSet) Variant() Variant {
	return VariantVOC
}

// Init resets the whole bus, then initializes the AHT10 and the SGP30. The
// first failure aborts the remaining steps.
func (s *VOCSet) Init(ctx context.Context) error {
	if err := i2c.GeneralCallReset(ctx, s.bus); err != nil {
		return err
	}
	if err := s.aht10.Init(ctx); err != nil {
		return err
	}
	deadline, err := s.sgp30.Init(ctx)
	if err != nil {
		return err
	}
	s.warmedUp = deadline
	return nil
}

// WarmedUp returns the moment the SGP30 baseline is considered calibrated.
func (s *VOCSet) WarmedUp() time.Time {
	return s.warmedUp
}

func (s *VOCSet) Sample(ctx context.Context) (Snapshot, error) {
	now := snsctx.Now(ctx)
	temp, rh, err := s.aht10.GetMeasurement(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	ah := AbsoluteHumidity(float64(temp), float64(rh))
	if err := s.sgp30.SetHumidity(ctx, ah); err != nil {
		return Snapshot{}, err
	}
	m, err := s.sgp30.GetMeasurement(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Variant:      VariantVOC,
		Ready:        true,
		Initializing: now.Before(s.warmedUp),
		Temperature:  temp,
		Humidity:     rh,
		ECO2:         m.ECO2.Value,
		TVOC:         m.TVOC.Value,
		Timestamp:    now,
	}, nil
}

// Deinit resets the AHT10 and then every device on the bus. The bus is
// released whatever the outcome of the resets.
func (s *VOCSet) Deinit(ctx context.Context) error {
	err := s.aht10.Deinit(ctx)
	if err == nil {
		if gcErr := i2c.GeneralCallReset(ctx, s.bus); gcErr != nil {
			err = fmt.Errorf("voc set: %w", gcErr)
		}
	}
	return errors.Join(err, release(ctx, s.bus))
}

func (s *VOCSet) Interval() time.Duration {
	return vocSampleInterval
}

// release hands the bus back to the transport (the MCP2221 cancels any
// pending transfer).
func release(ctx context.Context, bus gasmon.I2CBus) error {
	if err := bus.Release(ctx); err != nil {
		return fmt.Errorf("could not release bus: %w", err)
	}
	return nil
}
