// Package orchestrator drives the refinement loop: plan, execute, evaluate,
// repeat until the scene meets the threshold or a budget runs out.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/lucasnoah/scenesmith/internal/codegen"
	"github.com/lucasnoah/scenesmith/internal/config"
	"github.com/lucasnoah/scenesmith/internal/judge"
	"github.com/lucasnoah/scenesmith/internal/planner"
	"github.com/lucasnoah/scenesmith/internal/scene"
	"github.com/lucasnoah/scenesmith/internal/state"
)

// PersistenceFailure means run state could not be written to disk. Progress
// without durability is worthless, so the loop halts immediately; the last
// good checkpoint is still on disk.
type PersistenceFailure struct {
	Op  string
	Err error
}

func (e *PersistenceFailure) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceFailure) Unwrap() error { return e.Err }

// PlannerStep proposes the next batch of sub-tasks.
type PlannerStep interface {
	Propose(ctx context.Context, in planner.Input) ([]state.SubTask, error)
}

// GeneratorStep turns one sub-task into an executable script.
type GeneratorStep interface {
	Generate(ctx context.Context, task state.SubTask, sceneInfo string) (*codegen.Result, error)
}

// JudgeStep scores the current scene against the requirement.
type JudgeStep interface {
	Evaluate(ctx context.Context, in judge.Input) *state.EvaluationResult
}

// Bridge is the scene host connection the loop needs.
type Bridge interface {
	Execute(ctx context.Context, script string) *state.ExecutionOutcome
	InspectScene(ctx context.Context) (string, error)
	CaptureViewport(ctx context.Context) ([]byte, error)
}

// EventLog records run events for later inspection. All logging is
// best-effort: a failed insert never affects the run.
type EventLog interface {
	LogRunEvent(runID, event string, iteration int, detail string) error
	LogAgentCall(runID, agent string, iteration int, taskID string, ok bool, durationMs int64, detail string) error
	LogBridgeCall(runID, command, taskID string, success bool, durationMs int64, errMsg string) error
}

// Orchestrator wires the agents, the bridge and the store into one loop.
type Orchestrator struct {
	store    *state.Store
	bridge   Bridge
	planner  PlannerStep
	gen      GeneratorStep
	judge    JudgeStep
	events   EventLog // may be nil
	cfg      config.RunConfig
	progress io.Writer
}

// New creates an Orchestrator. events may be nil to disable the event log.
func New(store *state.Store, bridge Bridge, p PlannerStep, g GeneratorStep, j JudgeStep, events EventLog, cfg config.RunConfig) *Orchestrator {
	return &Orchestrator{
		store:   store,
		bridge:  bridge,
		planner: p,
		gen:     g,
		judge:   j,
		events:  events,
		cfg:     cfg,
	}
}

// SetProgress sets a writer for live progress output.
func (o *Orchestrator) SetProgress(w io.Writer) {
	o.progress = w
}

func (o *Orchestrator) logf(format string, args ...interface{}) {
	if o.progress != nil {
		fmt.Fprintf(o.progress, format+"\n", args...)
	}
}

func (o *Orchestrator) logEvent(runID, event string, iteration int, detail string) {
	if o.events != nil {
		_ = o.events.LogRunEvent(runID, event, iteration, detail)
	}
}

func (o *Orchestrator) logAgent(runID, agent string, iteration int, taskID string, ok bool, since time.Time, detail string) {
	if o.events != nil {
		_ = o.events.LogAgentCall(runID, agent, iteration, taskID, ok, time.Since(since).Milliseconds(), detail)
	}
}

// RunOpts controls one invocation of the loop.
type RunOpts struct {
	Requirement string // required for a fresh run
	ResumeRunID string // resume this run instead of creating one
}

// Run executes the refinement loop to a terminal state. Agent and bridge
// failures are absorbed into the run record; only persistence failures (or
// a corrupt resume target) surface as errors. The returned context always
// reflects the last persisted state, including on cancellation.
func (o *Orchestrator) Run(ctx context.Context, opts RunOpts) (*state.ExecutionContext, error) {
	ec, err := o.initRun(opts)
	if err != nil {
		return nil, err
	}
	// Checkpoint the starting state so even a run that dies in its first
	// planning pass leaves a resumable snapshot.
	if _, err := o.store.SaveCheckpoint(ec, state.IterationLabel(len(ec.History))); err != nil {
		return ec, &PersistenceFailure{Op: "init checkpoint", Err: err}
	}
	o.logEvent(ec.RunID, "run-started", len(ec.History), "")
	o.logf("run %s: %q", ec.RunID, ec.Requirement)

	for {
		if cancelled(ctx) {
			return o.terminate(ec, state.ReasonUserCancelled, "cancelled before planning")
		}

		it := ec.Current()
		if it == nil {
			it, err = o.plan(ctx, ec)
			if err != nil {
				var pf *planner.PlanningFailure
				if errors.As(err, &pf) {
					o.logf("planning failed: %v", pf)
					return o.terminate(ec, state.ReasonUnrecoverable, pf.Error())
				}
				return ec, err
			}
		}

		if cancelled(ctx) {
			return o.terminate(ec, state.ReasonUserCancelled, "cancelled before execution")
		}

		if err := o.execute(ctx, ec, it); err != nil {
			return ec, err
		}

		if cancelled(ctx) {
			return o.terminate(ec, state.ReasonUserCancelled, "cancelled before evaluation")
		}

		if err := o.evaluate(ctx, ec, it); err != nil {
			return ec, err
		}

		if it.Evaluation.Score >= o.cfg.ScoreThreshold {
			o.logf("iteration %d: score %.2f meets threshold %.2f", it.Index, it.Evaluation.Score, o.cfg.ScoreThreshold)
			return o.terminate(ec, state.ReasonThresholdMet, "")
		}
		if len(ec.History) >= o.cfg.MaxIterations {
			o.logf("iteration %d: budget of %d iterations exhausted at score %.2f", it.Index, o.cfg.MaxIterations, it.Evaluation.Score)
			return o.terminate(ec, state.ReasonBudgetExhausted, "")
		}
		o.logf("iteration %d: score %.2f, continuing", it.Index, it.Evaluation.Score)
	}
}

// initRun creates a fresh run or reloads an existing one for resume.
func (o *Orchestrator) initRun(opts RunOpts) (*state.ExecutionContext, error) {
	if opts.ResumeRunID != "" {
		ec, err := o.store.LoadLatest(opts.ResumeRunID)
		if err != nil {
			return nil, fmt.Errorf("resume run %s: %w", opts.ResumeRunID, err)
		}
		if ec.TerminationReason != "" {
			return nil, fmt.Errorf("run %s already terminated: %s", ec.RunID, ec.TerminationReason)
		}
		return ec, nil
	}
	if opts.Requirement == "" {
		return nil, fmt.Errorf("requirement is empty")
	}
	ec, err := o.store.Create(opts.Requirement)
	if err != nil {
		return nil, &PersistenceFailure{Op: "create run", Err: err}
	}
	return ec, nil
}

// terminate records the reason, checkpoints, and returns the final context.
func (o *Orchestrator) terminate(ec *state.ExecutionContext, reason state.Reason, detail string) (*state.ExecutionContext, error) {
	ec.TerminationReason = reason
	label := "final"
	if len(ec.History) > 0 {
		label = state.IterationLabel(ec.History[len(ec.History)-1].Index)
	}
	if _, err := o.store.SaveCheckpoint(ec, label); err != nil {
		return ec, &PersistenceFailure{Op: "final checkpoint", Err: err}
	}
	o.logEvent(ec.RunID, "run-terminated", len(ec.History), string(reason)+" "+detail)
	o.logf("run %s terminated: %s", ec.RunID, reason)
	return ec, nil
}

// observe gathers the current scene view for an agent: raw metadata, the
// structural analysis and a viewport screenshot. All three are best-effort;
// a dark bridge yields empty inputs, not a dead run.
func (o *Orchestrator) observe(ctx context.Context) (sceneInfo, analysis string, shot []byte) {
	raw, err := o.bridge.InspectScene(ctx)
	if err != nil {
		o.logf("  scene inspection unavailable: %v", err)
	} else {
		sceneInfo = raw
		analysis = scene.Probe(scene.Parse(raw)).Summary()
	}
	shot, err = o.bridge.CaptureViewport(ctx)
	if err != nil {
		o.logf("  viewport capture unavailable: %v", err)
		shot = nil
	}
	return sceneInfo, analysis, shot
}

// plan opens a new iteration by asking the planner for the next batch.
// Indices are 0-based and dense: History[i].Index == i, always.
func (o *Orchestrator) plan(ctx context.Context, ec *state.ExecutionContext) (*state.IterationState, error) {
	index := len(ec.History)
	o.logf("iteration %d: planning", index)

	sceneInfo, analysis, shot := o.observe(ctx)
	start := time.Now()
	tasks, err := o.planner.Propose(ctx, planner.Input{
		Requirement:    ec.Requirement,
		SceneInfo:      sceneInfo,
		SceneAnalysis:  analysis,
		ContextSummary: ec.Summary(),
		Screenshot:     shot,
	})
	o.logAgent(ec.RunID, "planner", index, "", err == nil, start, errDetail(err))
	if err != nil {
		return nil, err
	}

	ec.History = append(ec.History, state.IterationState{
		Index:     index,
		SubTasks:  tasks,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	})
	it := &ec.History[len(ec.History)-1]
	if err := o.store.Save(ec); err != nil {
		return nil, &PersistenceFailure{Op: "planned iteration", Err: err}
	}
	o.logEvent(ec.RunID, "iteration-planned", index, fmt.Sprintf("%d sub-tasks", len(tasks)))
	return it, nil
}

// execute runs every non-terminal sub-task of the iteration. A resumed run
// lands here with some tasks already terminal; those are left untouched.
func (o *Orchestrator) execute(ctx context.Context, ec *state.ExecutionContext, it *state.IterationState) error {
	if o.cfg.Parallel && distinctTargets(it.SubTasks) {
		return o.executeParallel(ctx, ec, it)
	}

	for i := range it.SubTasks {
		if it.SubTasks[i].Status.Terminal() {
			continue
		}
		if cancelled(ctx) {
			return nil // loop-level check records the reason
		}

		it.SubTasks[i].Status = state.TaskRunning
		if err := o.store.Save(ec); err != nil {
			return &PersistenceFailure{Op: "sub-task start", Err: err}
		}

		o.runTask(ctx, ec, it, &it.SubTasks[i])
		if err := o.store.Save(ec); err != nil {
			return &PersistenceFailure{Op: "sub-task outcome", Err: err}
		}
	}
	return nil
}

// executeParallel dispatches code generation for all pending sub-tasks at
// once. The bridge's session lock still serializes the actual scene
// mutations; outcomes land in each task's own slot, so proposal order is
// preserved when the batch is persisted.
func (o *Orchestrator) executeParallel(ctx context.Context, ec *state.ExecutionContext, it *state.IterationState) error {
	var pending []int
	for i := range it.SubTasks {
		if !it.SubTasks[i].Status.Terminal() {
			it.SubTasks[i].Status = state.TaskRunning
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	if err := o.store.Save(ec); err != nil {
		return &PersistenceFailure{Op: "sub-task start", Err: err}
	}
	o.logf("  dispatching %d sub-tasks in parallel", len(pending))

	var wg sync.WaitGroup
	for _, i := range pending {
		wg.Add(1)
		go func(t *state.SubTask) {
			defer wg.Done()
			o.runTask(ctx, ec, it, t)
		}(&it.SubTasks[i])
	}
	wg.Wait()

	if err := o.store.Save(ec); err != nil {
		return &PersistenceFailure{Op: "sub-task outcomes", Err: err}
	}
	return nil
}

// runTask generates and executes the script for one sub-task, recording the
// outcome in place. Failures stay inside the sub-task.
func (o *Orchestrator) runTask(ctx context.Context, ec *state.ExecutionContext, it *state.IterationState, t *state.SubTask) {
	o.logf("  [%s] %s", t.ID, t.Instruction)

	sceneInfo, err := o.bridge.InspectScene(ctx)
	if err != nil {
		sceneInfo = ""
	}

	start := time.Now()
	res, err := o.gen.Generate(ctx, *t, sceneInfo)
	o.logAgent(ec.RunID, "codegen", it.Index, t.ID, err == nil, start, errDetail(err))
	if err != nil {
		t.Status = state.TaskFailed
		t.Outcome = &state.ExecutionOutcome{
			Error:       err.Error(),
			FailureType: "generation-error",
		}
		o.logf("  [%s] failed: %v", t.ID, err)
		return
	}
	t.Attempts = res.Attempts

	outcome := o.bridge.Execute(ctx, res.Script)
	if o.events != nil {
		_ = o.events.LogBridgeCall(ec.RunID, "execute_code", t.ID, outcome.Success, outcome.DurationMs, outcome.Error)
	}
	if shot, err := o.bridge.CaptureViewport(ctx); err == nil {
		if path, err := o.store.SaveScreenshot(ec.RunID, it.Index, t.ID, shot); err == nil {
			outcome.Screenshot = path
		}
	}
	t.Outcome = outcome
	if outcome.Success {
		t.Status = state.TaskSucceeded
		o.logf("  [%s] done in %dms", t.ID, outcome.DurationMs)
	} else {
		t.Status = state.TaskFailed
		o.logf("  [%s] failed: %s", t.ID, outcome.Error)
	}
}

// evaluate closes the iteration with the judge's verdict and a checkpoint.
func (o *Orchestrator) evaluate(ctx context.Context, ec *state.ExecutionContext, it *state.IterationState) error {
	o.logf("iteration %d: evaluating", it.Index)

	sceneInfo, analysis, shot := o.observe(ctx)
	start := time.Now()
	result := o.judge.Evaluate(ctx, judge.Input{
		Requirement:   ec.Requirement,
		SceneInfo:     sceneInfo,
		SceneAnalysis: analysis,
		Screenshot:    shot,
	})
	o.logAgent(ec.RunID, "judge", it.Index, "", len(result.Warnings) == 0, start, "")

	it.Evaluation = result
	it.Degraded = it.AllFailed()
	it.CompletedAt = time.Now().UTC().Format(time.RFC3339)

	if _, err := o.store.SaveCheckpoint(ec, state.IterationLabel(it.Index)); err != nil {
		return &PersistenceFailure{Op: "iteration checkpoint", Err: err}
	}
	o.logEvent(ec.RunID, "iteration-evaluated", it.Index, fmt.Sprintf("score %.2f", result.Score))
	return nil
}

// distinctTargets reports whether every sub-task names a target and no two
// share one. Only then is parallel dispatch safe to attempt.
func distinctTargets(tasks []state.SubTask) bool {
	seen := make(map[string]bool, len(tasks))
	for i := range tasks {
		t := tasks[i].Target
		if t == "" || seen[t] {
			return false
		}
		seen[t] = true
	}
	return true
}

func cancelled(ctx context.Context) bool {
	return ctx.Err() != nil
}

func errDetail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
