package monitor

// Sink receives every snapshot the worker publishes. OnMeasurement runs on the
// worker goroutine and must return quickly.
type Sink interface {
	OnMeasurement(Snapshot)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Snapshot)

func (f SinkFunc) OnMeasurement(s Snapshot) {
	f(s)
}

type tee []Sink

func (t tee) OnMeasurement(s Snapshot) {
	for _, sink := range t {
		sink.OnMeasurement(s)
	}
}

// Tee fans snapshots out to all sinks in order.
func Tee(sinks ...Sink) Sink {
	return tee(sinks)
}

// ChannelSink forwards snapshots to ch. When ch is full the snapshot is
// dropped so the worker never waits on its consumer.
func ChannelSink(ch chan<- Snapshot) Sink {
	return SinkFunc(func(s Snapshot) {
		select {
		case ch <- s:
		default:
		}
	})
}
