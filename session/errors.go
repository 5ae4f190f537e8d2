package session

import "fmt"

// SequencingError is a call the state machine cannot accept in its current
// phase. It indicates a bug in the caller, not a user-facing condition.
type SequencingError struct {
	Op    string
	Phase Phase
}

func (e *SequencingError) Error() string {
	return fmt.Sprintf("sequencing violation: %s called while %s", e.Op, e.Phase)
}

func (o *Orchestrator) violation(op string, phase Phase) error {
	err := &SequencingError{Op: op, Phase: phase}
	if o.strict {
		panic(err)
	}
	return err
}
