// Package planner wraps the decomposition agent: it turns the run context
// into an ordered batch of sub-tasks, validating and retrying until the
// proposal is usable or the retry budget runs out.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/lucasnoah/scenesmith/internal/llm"
	"github.com/lucasnoah/scenesmith/internal/prompt"
	"github.com/lucasnoah/scenesmith/internal/state"
)

// PlanningFailure means the decomposition agent produced no valid proposal
// within the retry budget. The orchestrator treats it as unrecoverable for
// the run.
type PlanningFailure struct {
	Attempts int
	LastErr  error
}

func (e *PlanningFailure) Error() string {
	return fmt.Sprintf("planning failed after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *PlanningFailure) Unwrap() error { return e.LastErr }

// Input is everything the planning agent sees for one proposal.
type Input struct {
	Requirement    string
	SceneInfo      string
	SceneAnalysis  string
	ContextSummary string
	Screenshot     []byte // current viewport, optional
}

// Planner wraps the planning model with validation and bounded retry.
type Planner struct {
	llm        llm.Client
	maxRetries int
	maxTasks   int
	progress   io.Writer
}

// New creates a Planner. maxTasks bounds one proposal batch to prevent
// runaway fan-out.
func New(client llm.Client, maxRetries, maxTasks int) *Planner {
	return &Planner{llm: client, maxRetries: maxRetries, maxTasks: maxTasks}
}

// SetProgress sets a writer for live progress output.
func (p *Planner) SetProgress(w io.Writer) {
	p.progress = w
}

func (p *Planner) logf(format string, args ...interface{}) {
	if p.progress != nil {
		fmt.Fprintf(p.progress, "  → "+format+"\n", args...)
	}
}

// Propose asks the planning agent for the next batch of sub-tasks. On a
// validation failure the rejection reason is appended to the next attempt's
// prompt; exhausting the budget returns a PlanningFailure.
func (p *Planner) Propose(ctx context.Context, in Input) ([]state.SubTask, error) {
	tmpl, err := prompt.LoadTemplate("planner.md")
	if err != nil {
		return nil, err
	}

	var lastErr error
	rejection := ""
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		rendered, err := prompt.Render(tmpl, prompt.Vars{
			"requirement":    in.Requirement,
			"scene_info":     in.SceneInfo,
			"scene_analysis": in.SceneAnalysis,
			"context":        in.ContextSummary,
			"rejection":      rejection,
			"max_tasks":      fmt.Sprintf("%d", p.maxTasks),
		})
		if err != nil {
			return nil, fmt.Errorf("render planner prompt: %w", err)
		}

		reply, err := p.llm.Complete(ctx, llm.Request{User: rendered, Image: in.Screenshot})
		if err != nil {
			lastErr = err
			rejection = fmt.Sprintf("agent call failed: %v", err)
			p.logf("planning attempt %d/%d failed: %v", attempt, p.maxRetries, err)
			continue
		}

		tasks, err := p.parseProposal(reply)
		if err != nil {
			lastErr = err
			rejection = err.Error()
			p.logf("planning attempt %d/%d rejected: %v", attempt, p.maxRetries, err)
			continue
		}

		p.logf("planner proposed %d sub-tasks", len(tasks))
		return tasks, nil
	}

	return nil, &PlanningFailure{Attempts: p.maxRetries, LastErr: lastErr}
}

// proposalTask is the agent's wire shape for one sub-task.
type proposalTask struct {
	ID          string `json:"id"`
	Instruction string `json:"instruction"`
	Target      string `json:"target"`
}

// parseProposal extracts and validates the JSON batch from the model reply.
func (p *Planner) parseProposal(reply string) ([]state.SubTask, error) {
	raw, err := extractJSONArray(reply)
	if err != nil {
		return nil, err
	}

	var proposed []proposalTask
	if err := json.Unmarshal([]byte(raw), &proposed); err != nil {
		return nil, fmt.Errorf("proposal is not a valid JSON array: %v", err)
	}

	if len(proposed) == 0 {
		return nil, fmt.Errorf("proposal contains no sub-tasks")
	}
	if len(proposed) > p.maxTasks {
		return nil, fmt.Errorf("proposal contains %d sub-tasks, limit is %d", len(proposed), p.maxTasks)
	}

	seen := make(map[string]bool)
	tasks := make([]state.SubTask, 0, len(proposed))
	for i, pt := range proposed {
		if strings.TrimSpace(pt.Instruction) == "" {
			return nil, fmt.Errorf("sub-task %d has an empty instruction", i)
		}
		id := strings.TrimSpace(pt.ID)
		if id == "" {
			id = fmt.Sprintf("task-%d", i+1)
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate sub-task id %q", id)
		}
		seen[id] = true

		tasks = append(tasks, state.SubTask{
			ID:          id,
			Instruction: strings.TrimSpace(pt.Instruction),
			Target:      strings.TrimSpace(pt.Target),
			Status:      state.TaskPending,
		})
	}
	return tasks, nil
}

// extractJSONArray pulls the outermost JSON array out of a model reply
// that may be wrapped in prose or markdown fences.
func extractJSONArray(reply string) (string, error) {
	start := strings.Index(reply, "[")
	end := strings.LastIndex(reply, "]")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("reply contains no JSON array")
	}
	return reply[start : end+1], nil
}
