package acquire

// State is the position of a run in the acquisition cycle.
type State int

const (
	Idle State = iota
	Sampling
	Converting
	Persisting
	Done
	Failed
)

var stateNames = map[State]string{
	Idle:       "idle",
	Sampling:   "sampling",
	Converting: "converting",
	Persisting: "persisting",
	Done:       "done",
	Failed:     "failed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}
