package scheduling

// allowedTransitions lists every status change an update may request.
// Staying in the same status is always allowed and is not listed here.
var allowedTransitions = map[Status][]Status{
	StatusConfirmed:  {StatusNoResponse, StatusCancelled, StatusCompleted, StatusRescheduled},
	StatusNoResponse: {StatusConfirmed, StatusCancelled, StatusCompleted, StatusRescheduled},
	StatusCancelled:  {StatusConfirmed, StatusNoResponse},
	StatusCompleted:  {StatusCancelled},
	// rescheduled is terminal; only deleting the successor reopens it.
	StatusRescheduled: nil,
}

// CanTransition reports whether an update may move an appointment from one
// status to another.
func CanTransition(from, to Status) bool {
	if from == to {
		return from != StatusRescheduled
	}
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
