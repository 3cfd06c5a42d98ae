package scan

import "fmt"

// State is a step of the run state machine.
//
//	Idle -> Authenticated -> Fetching -> {Advancing, Refreshing} -> Done | Failed
//
// Fetching covers one category listing or one instrument. Advancing applies the
// inter-request delay before the next fetch. Refreshing issues a keep-alive.
type State int

const (
	StateIdle State = iota
	StateAuthenticated
	StateFetching
	StateAdvancing
	StateRefreshing
	StateDone
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:          "idle",
	StateAuthenticated: "authenticated",
	StateFetching:      "fetching",
	StateAdvancing:     "advancing",
	StateRefreshing:    "refreshing",
	StateDone:          "done",
	StateFailed:        "failed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

var transitions = map[State][]State{
	StateIdle:          {StateAuthenticated, StateFailed},
	StateAuthenticated: {StateFetching, StateDone, StateFailed},
	StateFetching:      {StateAdvancing, StateRefreshing, StateFailed},
	StateRefreshing:    {StateAdvancing, StateFailed},
	StateAdvancing:     {StateFetching, StateDone, StateFailed},
}

// CanTransition reports whether from -> to is a legal step.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// machine tracks the current state and reports each step to a hook.
type machine struct {
	state State
	hook  func(from, to State)
}

// to moves to next. An illegal step is a programming error.
func (m *machine) to(next State) {
	if !CanTransition(m.state, next) {
		panic(fmt.Sprintf("scan: illegal transition %s -> %s", m.state, next))
	}
	prev := m.state
	m.state = next
	if m.hook != nil {
		m.hook(prev, next)
	}
}
