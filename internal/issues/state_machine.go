package issues

// Only Open -> Done is restricted. Regressions such as Done -> Open are allowed.
var validTransitions = map[Status]map[Status]bool{
	StatusOpen: {
		StatusInProgress: true,
	},
	StatusInProgress: {
		StatusDone: true,
		StatusOpen: true,
	},
	StatusDone: {
		StatusOpen:       true,
		StatusInProgress: true,
	},
}

// CanTransition reports whether from -> to is a legal move. A no-op is legal;
// callers short-circuit it before writing.
func CanTransition(from, to Status) bool {
	if from == to {
		return IsValidStatus(from)
	}
	next, ok := validTransitions[from]
	return ok && next[to]
}

func TransitionError(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	return &WorkflowViolation{From: from, To: to}
}
