package lifecycle

// State is one account's login/working lifecycle state.
type State string

const (
	StateInit             State = "init"
	StateIdle             State = "idle"
	StateWorking          State = "working"
	StateIdleException    State = "idle_exception"
	StateWorkingException State = "working_exception"
	StateNotLogined       State = "not_logined"
)

func (s State) String() string { return string(s) }

// IsValid returns true if the state is one of the defined constants.
func (s State) IsValid() bool {
	switch s {
	case StateInit, StateIdle, StateWorking, StateIdleException,
		StateWorkingException, StateNotLogined:
		return true
	}
	return false
}

// successors lists the expected next states per state. Any state may also
// move to NotLogined (logout/kick) or re-enter itself.
var successors = map[State][]State{
	StateInit:             {StateIdle, StateNotLogined},
	StateIdle:             {StateWorking, StateIdleException, StateNotLogined},
	StateWorking:          {StateIdle, StateWorkingException, StateNotLogined},
	StateIdleException:    {StateIdle, StateNotLogined},
	StateWorkingException: {StateWorking, StateNotLogined},
	StateNotLogined:       {StateInit},
}

// transitionAllowed reports whether from -> to matches the lifecycle
// table. A machine with no recorded state yet accepts any first state.
// Violations are logged by Dispatch but still performed.
func transitionAllowed(from, to State) bool {
	if from == "" || from == to || to == StateNotLogined {
		return true
	}
	for _, s := range successors[from] {
		if s == to {
			return true
		}
	}
	return false
}
