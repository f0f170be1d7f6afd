package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mklimuk/gasmon/i2c"
	"github.com/mklimuk/gasmon/snsctx"
)

const retryDelay = 1000 * time.Millisecond

var ErrAlreadyStarted = errors.New("monitor: worker already started")
var ErrClosed = errors.New("monitor: worker closed")

type WorkerOpt func(*Worker)

// WithLogger replaces the default slog logger.
func WithLogger(l *slog.Logger) WorkerOpt {
	return func(w *Worker) {
		w.log = l
	}
}

// Worker runs a SensorSet in a background goroutine: it initializes the
// sensors, samples them at the set's interval and publishes every result to
// its Sink. Any failure publishes a failure snapshot, waits retryDelay and
// starts over from initialization.
//
// Bus transactions are never interrupted. Stop is observed between them.
type Worker struct {
	set    SensorSet
	handle *i2c.Handle
	sink   Sink
	log    *slog.Logger

	retryDelay time.Duration
	interval   time.Duration

	mx     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

func New(set SensorSet, handle *i2c.Handle, sink Sink, opts ...WorkerOpt) *Worker {
	w := &Worker{
		set:        set,
		handle:     handle,
		sink:       sink,
		log:        slog.Default(),
		retryDelay: retryDelay,
		interval:   set.Interval(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the acquisition goroutine. Cancelling ctx has the same effect
// as Stop except that it does not wait.
func (w *Worker) Start(ctx context.Context) error {
	w.mx.Lock()
	defer w.mx.Unlock()
	if w.closed {
		return ErrClosed
	}
	if w.done != nil {
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.state = Uninitialized
	go w.run(ctx, w.done)
	return nil
}

// Stop asks the worker to exit and blocks until it has. No snapshot is
// published after Stop returns.
func (w *Worker) Stop() {
	w.mx.Lock()
	cancel, done := w.cancel, w.done
	w.mx.Unlock()
	if done == nil {
		return
	}
	cancel()
	<-done
	w.mx.Lock()
	if w.done == done {
		w.cancel = nil
		w.done = nil
	}
	w.mx.Unlock()
}

// Close stops the worker if it is running. A closed worker cannot be started.
func (w *Worker) Close() error {
	w.Stop()
	w.mx.Lock()
	defer w.mx.Unlock()
	w.closed = true
	return nil
}

func (w *Worker) State() State {
	w.mx.Lock()
	defer w.mx.Unlock()
	return w.state
}

func (w *Worker) setState(ctx context.Context, s State) {
	w.mx.Lock()
	prev := w.state
	w.state = s
	w.mx.Unlock()
	if prev != s {
		w.log.DebugContext(ctx, "worker state changed", "variant", w.set.Variant(), "from", prev.String(), "to", s.String())
	}
}

func (w *Worker) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	last := Disconnected(w.set.Variant())
	for ctx.Err() == nil {
		w.setState(ctx, Initializing)
		err := w.transaction(ctx, w.set.Init)
		if err == nil {
			err = w.sample(ctx, &last)
		}
		if ctx.Err() != nil {
			break
		}
		w.setState(ctx, Faulted)
		w.log.InfoContext(ctx, "last operation failed; waiting before reinitializing", "variant", w.set.Variant(), "delay", w.retryDelay, "error", err)
		w.sink.OnMeasurement(last.Failed(snsctx.Now(ctx)))
		if snsctx.Sleep(ctx, w.retryDelay) != nil {
			break
		}
	}
	w.shutdown(ctx)
}

// sample runs the sampling loop until a transaction fails (the error is
// returned) or the worker is stopped (nil is returned).
func (w *Worker) sample(ctx context.Context, last *Snapshot) error {
	for ctx.Err() == nil {
		var snap Snapshot
		err := w.transaction(ctx, func(ctx context.Context) error {
			var err error
			snap, err = w.set.Sample(ctx)
			return err
		})
		if err != nil {
			return err
		}
		snap.Success = true
		if snap.Initializing {
			w.setState(ctx, WarmingUp)
		} else {
			w.setState(ctx, Sampling)
		}
		*last = snap
		w.sink.OnMeasurement(snap)
		if snsctx.Sleep(ctx, w.interval) != nil {
			return nil
		}
	}
	return nil
}

func (w *Worker) shutdown(ctx context.Context) {
	w.setState(ctx, ShuttingDown)
	ctx = context.WithoutCancel(ctx)
	if err := w.handle.Do(ctx, w.set.Deinit); err != nil {
		w.log.WarnContext(ctx, "failed to deinitialize sensors; may draw unnecessary power", "variant", w.set.Variant(), "error", err)
	}
	w.setState(ctx, Stopped)
}

// transaction holds the bus for the whole of fn. Once the bus is acquired fn
// runs to completion even if the worker is being stopped.
func (w *Worker) transaction(ctx context.Context, fn func(context.Context) error) error {
	return w.handle.Do(ctx, func(ctx context.Context) error {
		return fn(context.WithoutCancel(ctx))
	})
}
