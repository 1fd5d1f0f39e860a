package domain

import "fmt"

// Stage is one independently tracked pipeline step of a document.
type Stage string

const (
	// StageOCR is text extraction.
	StageOCR Stage = "ocr"
	// StageAI is metadata extraction.
	StageAI Stage = "ai"
	// StageVector is embedding generation and index upsert.
	StageVector Stage = "vector"
)

// Status is the lifecycle state of a single stage.
type Status string

const (
	// StatusPending means the stage has not run yet.
	StatusPending Status = "pending"
	// StatusProcessing means the stage is running.
	StatusProcessing Status = "processing"
	// StatusCompleted means the stage finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed means the stage errored; it stays retryable.
	StatusFailed Status = "failed"
	// StatusSkipped means the stage was not applicable (e.g. no AI provider configured).
	StatusSkipped Status = "skipped"
	// StatusQuarantined means the document was set aside and no stage will run.
	StatusQuarantined Status = "quarantined"
)

// ParseStatus validates a stored status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusSkipped, StatusQuarantined:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// transitions is the closed per-stage transition table. Every stage shares the
// same automaton; the table exists so a bad write fails loudly instead of
// persisting a free-form string.
var transitions = map[Status][]Status{
	StatusPending:     {StatusProcessing, StatusSkipped, StatusQuarantined},
	StatusProcessing:  {StatusCompleted, StatusFailed, StatusQuarantined},
	StatusCompleted:   {StatusPending, StatusQuarantined},
	StatusFailed:      {StatusPending, StatusProcessing, StatusQuarantined},
	StatusSkipped:     {StatusPending, StatusQuarantined},
	StatusQuarantined: {},
}

// CanTransition reports whether from → to is a legal status change.
func (from Status) CanTransition(to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition returns to if the change is legal, or ErrInvalidTransition.
func (from Status) Transition(to Status) (Status, error) {
	if !from.CanTransition(to) {
		return from, fmt.Errorf("%s -> %s: %w", from, to, ErrInvalidTransition)
	}
	return to, nil
}

// Retryable reports whether a stage in this status may be reset to pending.
func (from Status) Retryable() bool {
	return from == StatusFailed || from == StatusCompleted || from == StatusSkipped
}
