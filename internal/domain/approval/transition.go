package approval

// successors lists the legal to_status values for each non-terminal status.
// Self-loops cover actions that do not change status (intermediate approve,
// delegate, comment, re-escalation).
var successors = map[Status][]Status{
	StatusPending:   {StatusPending, StatusApproved, StatusRejected, StatusCancelled, StatusEscalated},
	StatusEscalated: {StatusEscalated, StatusPending, StatusRejected, StatusCancelled},
}

// CanTransition reports whether to is a legal successor of from.
// Terminal statuses have no successors.
func CanTransition(from, to Status) bool {
	for _, s := range successors[from] {
		if s == to {
			return true
		}
	}
	return false
}
