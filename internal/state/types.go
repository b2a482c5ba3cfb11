package state

import (
	"fmt"
	"strings"
)

// TaskStatus tracks a SubTask through its lifecycle.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
)

// Terminal reports whether the status is succeeded or failed.
func (s TaskStatus) Terminal() bool {
	return s == TaskSucceeded || s == TaskFailed
}

// Reason is the terminal reason for a run.
type Reason string

const (
	ReasonThresholdMet    Reason = "threshold-met"
	ReasonBudgetExhausted Reason = "budget-exhausted"
	ReasonUnrecoverable   Reason = "unrecoverable-error"
	ReasonUserCancelled   Reason = "user-cancelled"
)

// SubTask is one unit of work proposed by the planner for a single iteration.
type SubTask struct {
	ID          string            `json:"id"`
	Instruction string            `json:"instruction"`
	Status      TaskStatus        `json:"status"`
	Target      string            `json:"target,omitempty"` // shared-target hint; tasks with distinct targets are independent
	Attempts    int               `json:"attempts,omitempty"`
	Outcome     *ExecutionOutcome `json:"outcome,omitempty"`
}

// ExecutionOutcome records the result of running one SubTask's script
// against the scene host. Immutable once recorded.
type ExecutionOutcome struct {
	Success     bool   `json:"success"`
	Payload     string `json:"payload,omitempty"`    // raw bridge response
	Screenshot  string `json:"screenshot,omitempty"` // path reference
	Error       string `json:"error,omitempty"`
	FailureType string `json:"failure_type,omitempty"`
	DurationMs  int64  `json:"duration_ms"`
}

// EvaluationResult is the judge's verdict over the whole scene at one iteration.
type EvaluationResult struct {
	Score      float64  `json:"score"` // normalized to [0,1]
	Rationale  string   `json:"rationale,omitempty"`
	Missing    []string `json:"missing,omitempty"`
	Suggestion string   `json:"suggestion,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

// IterationState is one pass of the refinement loop. Append-only: a new
// iteration supersedes, never replaces, the previous one.
type IterationState struct {
	Index       int               `json:"index"`
	SubTasks    []SubTask         `json:"sub_tasks"`
	Evaluation  *EvaluationResult `json:"evaluation,omitempty"`
	Degraded    bool              `json:"degraded,omitempty"` // every SubTask failed
	StartedAt   string            `json:"started_at"`
	CompletedAt string            `json:"completed_at,omitempty"`
}

// AllTerminal reports whether every SubTask has reached a terminal status.
func (it *IterationState) AllTerminal() bool {
	for i := range it.SubTasks {
		if !it.SubTasks[i].Status.Terminal() {
			return false
		}
	}
	return true
}

// AllFailed reports whether the iteration had SubTasks and every one failed.
func (it *IterationState) AllFailed() bool {
	if len(it.SubTasks) == 0 {
		return false
	}
	for i := range it.SubTasks {
		if it.SubTasks[i].Status != TaskFailed {
			return false
		}
	}
	return true
}

// ExecutionContext is the full run: the immutable requirement plus the
// ordered iteration history. This is the unit persisted and recovered.
type ExecutionContext struct {
	RunID             string           `json:"run_id"`
	Requirement       string           `json:"requirement"`
	History           []IterationState `json:"history"`
	TerminationReason Reason           `json:"termination_reason,omitempty"`
	StartedAt         string           `json:"started_at"`
	UpdatedAt         string           `json:"updated_at"`
}

// Current returns the in-progress iteration: the last history entry that
// has not yet received an evaluation. Returns nil when the next step is
// planning a fresh iteration.
func (ec *ExecutionContext) Current() *IterationState {
	if len(ec.History) == 0 {
		return nil
	}
	last := &ec.History[len(ec.History)-1]
	if last.Evaluation != nil {
		return nil
	}
	return last
}

// LatestEvaluation returns the most recent iteration's evaluation, or nil.
func (ec *ExecutionContext) LatestEvaluation() *EvaluationResult {
	for i := len(ec.History) - 1; i >= 0; i-- {
		if ec.History[i].Evaluation != nil {
			return ec.History[i].Evaluation
		}
	}
	return nil
}

// Summary renders the run history into the planning-input text. It is a
// pure function of the context so that resuming from a checkpoint
// reproduces the same planning input the original run would have built.
func (ec *ExecutionContext) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Initial requirement: %s\n", ec.Requirement)

	for i := range ec.History {
		it := &ec.History[i]
		fmt.Fprintf(&b, "\nIteration %d:\n", it.Index)
		for j := range it.SubTasks {
			t := &it.SubTasks[j]
			fmt.Fprintf(&b, "  - [%s] %s: %s\n", t.Status, t.ID, t.Instruction)
			if t.Outcome != nil && t.Outcome.Error != "" {
				fmt.Fprintf(&b, "    error: %s\n", t.Outcome.Error)
			}
		}
		if it.Evaluation != nil {
			fmt.Fprintf(&b, "  score: %.2f\n", it.Evaluation.Score)
			if it.Evaluation.Suggestion != "" {
				fmt.Fprintf(&b, "  suggestion: %s\n", it.Evaluation.Suggestion)
			}
			if len(it.Evaluation.Missing) > 0 {
				fmt.Fprintf(&b, "  missing: %s\n", strings.Join(it.Evaluation.Missing, ", "))
			}
		}
		if it.Degraded {
			b.WriteString("  degraded: all sub-tasks failed\n")
		}
	}
	return b.String()
}
