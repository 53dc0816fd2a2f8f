package models

import "time"

type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// Execution is one run of a trigger's action sequence for one matching event.
type Execution struct {
	ID              string           `json:"id"`
	TriggerID       string           `json:"trigger_id"`
	EventIdentifier string           `json:"event_identifier"`
	Status          ExecutionStatus  `json:"status"`
	Input           map[string]any   `json:"input"`
	Error           string           `json:"error,omitempty"`
	StartedAt       time.Time        `json:"started_at"`
	FinishedAt      *time.Time       `json:"finished_at,omitempty"`
	Steps           []*ExecutionStep `json:"steps,omitempty"`
}

// ExecutionStep records the execution of one action within a run.
type ExecutionStep struct {
	ID          string          `json:"id"`
	ExecutionID string          `json:"execution_id"`
	ActionID    string          `json:"action_id"`
	ActionType  string          `json:"action_type"`
	Position    int             `json:"position"`
	Status      ExecutionStatus `json:"status"`
	Input       map[string]any  `json:"input"`
	Output      map[string]any  `json:"output,omitempty"`
	Error       *string         `json:"error,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
}

func (e *Execution) IsTerminal() bool {
	return e.Status == ExecutionStatusCompleted || e.Status == ExecutionStatusFailed
}

// Complete moves a running execution to completed. Terminal executions are left untouched.
func (e *Execution) Complete(at time.Time) {
	if e.IsTerminal() {
		return
	}

	e.Status = ExecutionStatusCompleted
	e.FinishedAt = &at
}

// Fail moves a running execution to failed. Terminal executions are left untouched.
func (e *Execution) Fail(at time.Time, message string) {
	if e.IsTerminal() {
		return
	}

	e.Status = ExecutionStatusFailed
	e.Error = message
	e.FinishedAt = &at
}

func (s *ExecutionStep) Complete(at time.Time, output map[string]any) {
	s.Status = ExecutionStatusCompleted
	s.Output = output
	s.FinishedAt = &at
}

func (s *ExecutionStep) Fail(at time.Time, message string) {
	s.Status = ExecutionStatusFailed
	s.Error = &message
	s.FinishedAt = &at
}
