package monitor

// State is the lifecycle stage of a Worker.
type State int

const (
	Uninitialized State = iota
	Initializing
	WarmingUp
	Sampling
	Faulted
	ShuttingDown
	Stopped
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case WarmingUp:
		return "warming up"
	case Sampling:
		return "sampling"
	case Faulted:
		return "faulted"
	case ShuttingDown:
		return "shutting down"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}
