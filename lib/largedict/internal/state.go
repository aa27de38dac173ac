package internal

// State is the lifecycle state of a key
type State uint8

const (
	InMemory  State = iota // value resident, eligible for eviction
	PreSaving              // picked by the sweep, save queued
	Saving                 // save in progress
	InDisk                 // only the blob exists
	PreLoad                // load queued
	Loading                // load in progress
	PreDelete              // delete queued, invisible to readers

	numStates
)

var stateNames = [numStates]string{
	InMemory:  "IN_MEMORY",
	PreSaving: "PRE_SAVING",
	Saving:    "SAVING",
	InDisk:    "IN_DISK",
	PreLoad:   "PRE_LOAD",
	Loading:   "LOADING",
	PreDelete: "PRE_DELETE",
}

func (s State) String() string {
	if s < numStates {
		return stateNames[s]
	}
	return "UNKNOWN"
}

// States lists all states in declaration order
func States() []State {
	states := make([]State, 0, numStates)
	for s := State(0); s < numStates; s++ {
		states = append(states, s)
	}
	return states
}
