package poll

import "fmt"

// Outcome is the way a poll loop ended.
type Outcome int

const (
	// OutcomeError means the loop stopped on a non-transient error or a
	// cancelled parent context.
	OutcomeError Outcome = iota
	OutcomeCompleted
	OutcomeFailed
	OutcomeCancelled
	OutcomeTimedOut
)

var outcomeNames = map[Outcome]string{
	OutcomeError:     "Error",
	OutcomeCompleted: "Completed",
	OutcomeFailed:    "Failed",
	OutcomeCancelled: "Cancelled",
	OutcomeTimedOut:  "TimedOut",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// MarshalText implements encoding.TextMarshaler so outcomes render by name in JSON.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Verdict is a classifier's reading of one status response.
type Verdict int

const (
	// Continue means the resource is still pending.
	Continue Verdict = iota
	// Success means the resource reached its successful terminal state.
	Success
	// Failure means the resource reached a failed terminal state.
	Failure
	// Cancelled is a Failure caused by the resource being cancelled.
	Cancelled
)

func (v Verdict) String() string {
	switch v {
	case Continue:
		return "Continue"
	case Success:
		return "Success"
	case Failure:
		return "Failure"
	case Cancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("Verdict(%d)", int(v))
	}
}

// outcome maps a terminal verdict to the loop outcome it produces.
func (v Verdict) outcome() (Outcome, bool) {
	switch v {
	case Success:
		return OutcomeCompleted, true
	case Failure:
		return OutcomeFailed, true
	case Cancelled:
		return OutcomeCancelled, true
	default:
		return OutcomeError, false
	}
}
