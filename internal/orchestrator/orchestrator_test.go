package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/lucasnoah/scenesmith/internal/codegen"
	"github.com/lucasnoah/scenesmith/internal/config"
	"github.com/lucasnoah/scenesmith/internal/judge"
	"github.com/lucasnoah/scenesmith/internal/planner"
	"github.com/lucasnoah/scenesmith/internal/state"
)

type stubPlanner struct {
	batches [][]state.SubTask
	err     error
	calls   int
}

func (s *stubPlanner) Propose(ctx context.Context, in planner.Input) ([]state.SubTask, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	i := s.calls - 1
	if i >= len(s.batches) {
		i = len(s.batches) - 1
	}
	// Fresh copies: the loop mutates task state in place.
	batch := make([]state.SubTask, len(s.batches[i]))
	copy(batch, s.batches[i])
	return batch, nil
}

type stubGen struct {
	failFor map[string]bool
	mu      sync.Mutex
	calls   []string
}

func (s *stubGen) Generate(ctx context.Context, task state.SubTask, sceneInfo string) (*codegen.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, task.ID)
	s.mu.Unlock()
	if s.failFor[task.ID] {
		return nil, &codegen.GenerationFailure{TaskID: task.ID, Attempts: 3, LastErr: fmt.Errorf("no valid script")}
	}
	return &codegen.Result{Script: "script-" + task.ID, Attempts: 1}, nil
}

type stubJudge struct {
	scores []float64
	calls  int
}

func (s *stubJudge) Evaluate(ctx context.Context, in judge.Input) *state.EvaluationResult {
	s.calls++
	i := s.calls - 1
	if i >= len(s.scores) {
		i = len(s.scores) - 1
	}
	return &state.EvaluationResult{Score: s.scores[i], Rationale: "stub"}
}

type fakeBridge struct {
	failScripts map[string]string // script -> error message
	mu          sync.Mutex
	executed    []string
}

func (f *fakeBridge) Execute(ctx context.Context, script string) *state.ExecutionOutcome {
	f.mu.Lock()
	f.executed = append(f.executed, script)
	f.mu.Unlock()
	if msg, ok := f.failScripts[script]; ok {
		return &state.ExecutionOutcome{Error: msg, FailureType: "unknown"}
	}
	return &state.ExecutionOutcome{Success: true, Payload: "ok"}
}

func (f *fakeBridge) InspectScene(ctx context.Context) (string, error) {
	return `{"objects": []}`, nil
}

func (f *fakeBridge) CaptureViewport(ctx context.Context) ([]byte, error) {
	return []byte("png"), nil
}

func tasks(ids ...string) []state.SubTask {
	var out []state.SubTask
	for _, id := range ids {
		out = append(out, state.SubTask{ID: id, Instruction: "do " + id, Status: state.TaskPending})
	}
	return out
}

func newTestOrchestrator(t *testing.T, p PlannerStep, g GeneratorStep, j JudgeStep, cfg config.RunConfig) (*Orchestrator, *state.Store, *fakeBridge) {
	t.Helper()
	store := state.NewStore(t.TempDir())
	br := &fakeBridge{}
	return New(store, br, p, g, j, nil, cfg), store, br
}

func TestRunMeetsThresholdFirstIteration(t *testing.T) {
	p := &stubPlanner{batches: [][]state.SubTask{tasks("a", "b")}}
	g := &stubGen{}
	j := &stubJudge{scores: []float64{0.95}}
	o, store, br := newTestOrchestrator(t, p, g, j, config.RunConfig{MaxIterations: 5, ScoreThreshold: 0.9})

	ec, err := o.Run(context.Background(), RunOpts{Requirement: "a simple room"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ec.TerminationReason != state.ReasonThresholdMet {
		t.Errorf("TerminationReason = %q, want threshold-met", ec.TerminationReason)
	}
	if len(ec.History) != 1 {
		t.Fatalf("History has %d iterations, want 1", len(ec.History))
	}
	if ec.History[0].Index != 0 {
		t.Errorf("History[0].Index = %d, want 0 (indices start at zero)", ec.History[0].Index)
	}
	for _, task := range ec.History[0].SubTasks {
		if task.Status != state.TaskSucceeded {
			t.Errorf("task %s status = %q, want succeeded", task.ID, task.Status)
		}
		if task.Outcome == nil || !task.Outcome.Success {
			t.Errorf("task %s outcome = %+v", task.ID, task.Outcome)
		}
	}
	if len(br.executed) != 2 {
		t.Errorf("bridge executed %d scripts, want 2", len(br.executed))
	}

	// Terminal state must be on disk.
	persisted, err := store.LoadLatest(ec.RunID)
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if persisted.TerminationReason != state.ReasonThresholdMet {
		t.Errorf("persisted reason = %q", persisted.TerminationReason)
	}
	if store.LatestCheckpointPath(ec.RunID) == "" {
		t.Error("no checkpoint written")
	}
}

func TestRunIsolatesGenerationFailure(t *testing.T) {
	p := &stubPlanner{batches: [][]state.SubTask{tasks("good", "bad", "also-good")}}
	g := &stubGen{failFor: map[string]bool{"bad": true}}
	j := &stubJudge{scores: []float64{0.95}}
	o, _, _ := newTestOrchestrator(t, p, g, j, config.RunConfig{MaxIterations: 5, ScoreThreshold: 0.9})

	ec, err := o.Run(context.Background(), RunOpts{Requirement: "r"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	it := ec.History[0]
	byID := map[string]state.SubTask{}
	for _, task := range it.SubTasks {
		byID[task.ID] = task
	}
	if byID["bad"].Status != state.TaskFailed {
		t.Errorf("bad task status = %q, want failed", byID["bad"].Status)
	}
	if byID["bad"].Outcome.FailureType != "generation-error" {
		t.Errorf("bad task FailureType = %q", byID["bad"].Outcome.FailureType)
	}
	if byID["good"].Status != state.TaskSucceeded || byID["also-good"].Status != state.TaskSucceeded {
		t.Error("sibling tasks should not be affected by one generation failure")
	}
	if it.Degraded {
		t.Error("iteration with successes is not degraded")
	}
}

func TestRunMarksDegradedIteration(t *testing.T) {
	p := &stubPlanner{batches: [][]state.SubTask{tasks("x", "y")}}
	g := &stubGen{failFor: map[string]bool{"x": true, "y": true}}
	j := &stubJudge{scores: []float64{0.95}}
	o, _, _ := newTestOrchestrator(t, p, g, j, config.RunConfig{MaxIterations: 5, ScoreThreshold: 0.9})

	ec, err := o.Run(context.Background(), RunOpts{Requirement: "r"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !ec.History[0].Degraded {
		t.Error("iteration with zero successes should be marked degraded")
	}
	if j.calls != 1 {
		t.Errorf("judge called %d times, want 1 (evaluation still runs)", j.calls)
	}
}

func TestRunTerminatesOnPlanningFailure(t *testing.T) {
	p := &stubPlanner{err: &planner.PlanningFailure{Attempts: 3, LastErr: fmt.Errorf("no valid proposal")}}
	o, store, _ := newTestOrchestrator(t, p, &stubGen{}, &stubJudge{scores: []float64{0}}, config.RunConfig{MaxIterations: 5, ScoreThreshold: 0.9})

	ec, err := o.Run(context.Background(), RunOpts{Requirement: "r"})
	if err != nil {
		t.Fatalf("planning failure should terminate, not error: %v", err)
	}
	if ec.TerminationReason != state.ReasonUnrecoverable {
		t.Errorf("TerminationReason = %q, want unrecoverable-error", ec.TerminationReason)
	}

	persisted, err := store.LoadLatest(ec.RunID)
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if persisted.TerminationReason != state.ReasonUnrecoverable {
		t.Errorf("persisted reason = %q", persisted.TerminationReason)
	}
}

func TestRunExhaustsIterationBudget(t *testing.T) {
	p := &stubPlanner{batches: [][]state.SubTask{tasks("a")}}
	g := &stubGen{}
	j := &stubJudge{scores: []float64{0.5}}
	o, _, _ := newTestOrchestrator(t, p, g, j, config.RunConfig{MaxIterations: 3, ScoreThreshold: 0.9})

	ec, err := o.Run(context.Background(), RunOpts{Requirement: "r"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ec.TerminationReason != state.ReasonBudgetExhausted {
		t.Errorf("TerminationReason = %q, want budget-exhausted", ec.TerminationReason)
	}
	if len(ec.History) != 3 {
		t.Errorf("History has %d iterations, want 3", len(ec.History))
	}
	if p.calls != 3 {
		t.Errorf("planner called %d times, want 3", p.calls)
	}
	// History is append-only: indices strictly increasing from 0, no gaps.
	for i, it := range ec.History {
		if it.Index != i {
			t.Errorf("History[%d].Index = %d, want %d", i, it.Index, i)
		}
	}
}

func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &stubPlanner{batches: [][]state.SubTask{tasks("a")}}
	o, _, _ := newTestOrchestrator(t, p, &stubGen{}, &stubJudge{scores: []float64{0.95}}, config.RunConfig{MaxIterations: 5, ScoreThreshold: 0.9})

	ec, err := o.Run(ctx, RunOpts{Requirement: "r"})
	if err != nil {
		t.Fatalf("cancellation should terminate, not error: %v", err)
	}
	if ec.TerminationReason != state.ReasonUserCancelled {
		t.Errorf("TerminationReason = %q, want user-cancelled", ec.TerminationReason)
	}
	if p.calls != 0 {
		t.Errorf("planner called %d times after cancellation, want 0", p.calls)
	}
}

func TestRunResumeSkipsTerminalTasks(t *testing.T) {
	store := state.NewStore(t.TempDir())
	ec, err := store.Create("resumable scene")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	ec.History = append(ec.History, state.IterationState{
		Index: 0,
		SubTasks: []state.SubTask{
			{ID: "done", Instruction: "already ran", Status: state.TaskSucceeded,
				Outcome: &state.ExecutionOutcome{Success: true, Payload: "original"}},
			{ID: "todo", Instruction: "never ran", Status: state.TaskPending},
		},
		StartedAt: "2026-01-01T00:00:00Z",
	})
	if err := store.Save(ec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	p := &stubPlanner{batches: [][]state.SubTask{tasks("unused")}}
	g := &stubGen{}
	j := &stubJudge{scores: []float64{0.95}}
	o := New(store, &fakeBridge{}, p, g, j, nil, config.RunConfig{MaxIterations: 5, ScoreThreshold: 0.9})

	got, err := o.Run(context.Background(), RunOpts{ResumeRunID: ec.RunID})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got.TerminationReason != state.ReasonThresholdMet {
		t.Errorf("TerminationReason = %q", got.TerminationReason)
	}
	if p.calls != 0 {
		t.Errorf("planner called %d times, resume should reuse the open iteration", p.calls)
	}
	if len(g.calls) != 1 || g.calls[0] != "todo" {
		t.Errorf("generator calls = %v, want only the pending task", g.calls)
	}
	if got.History[0].SubTasks[0].Outcome.Payload != "original" {
		t.Error("resume must not touch an already-terminal task's outcome")
	}
}

func TestRunResumeAfterEvaluatedIterationPlansNext(t *testing.T) {
	store := state.NewStore(t.TempDir())
	ec, err := store.Create("interrupted between iterations")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	// Iteration 0 finished and was durably evaluated before the process died.
	ec.History = append(ec.History, state.IterationState{
		Index: 0,
		SubTasks: []state.SubTask{
			{ID: "done", Instruction: "already ran", Status: state.TaskSucceeded,
				Outcome: &state.ExecutionOutcome{Success: true, Payload: "original"}},
		},
		Evaluation:  &state.EvaluationResult{Score: 0.5, Rationale: "needs more"},
		StartedAt:   "2026-01-01T00:00:00Z",
		CompletedAt: "2026-01-01T00:01:00Z",
	})
	if _, err := store.SaveCheckpoint(ec, state.IterationLabel(0)); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	p := &stubPlanner{batches: [][]state.SubTask{tasks("next")}}
	g := &stubGen{}
	j := &stubJudge{scores: []float64{0.95}}
	o := New(store, &fakeBridge{}, p, g, j, nil, config.RunConfig{MaxIterations: 5, ScoreThreshold: 0.9})

	got, err := o.Run(context.Background(), RunOpts{ResumeRunID: ec.RunID})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if p.calls != 1 {
		t.Errorf("planner called %d times, want exactly 1 (a fresh iteration, never a re-plan)", p.calls)
	}
	if len(got.History) != 2 {
		t.Fatalf("History has %d iterations, want 2", len(got.History))
	}
	if got.History[1].Index != 1 {
		t.Errorf("resumed iteration Index = %d, want 1", got.History[1].Index)
	}
	if len(g.calls) != 1 || g.calls[0] != "next" {
		t.Errorf("generator calls = %v, want only the new iteration's task", g.calls)
	}

	// The completed iteration is untouched.
	prev := got.History[0]
	if prev.Evaluation == nil || prev.Evaluation.Score != 0.5 {
		t.Errorf("History[0].Evaluation = %+v, want original score 0.5", prev.Evaluation)
	}
	if prev.SubTasks[0].Outcome.Payload != "original" {
		t.Error("resume must not touch the evaluated iteration's outcomes")
	}
}

func TestRunResumeRejectsTerminatedRun(t *testing.T) {
	store := state.NewStore(t.TempDir())
	ec, err := store.Create("finished scene")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	ec.TerminationReason = state.ReasonThresholdMet
	if err := store.Save(ec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	o := New(store, &fakeBridge{}, &stubPlanner{}, &stubGen{}, &stubJudge{scores: []float64{1}}, nil, config.RunConfig{MaxIterations: 5, ScoreThreshold: 0.9})
	if _, err := o.Run(context.Background(), RunOpts{ResumeRunID: ec.RunID}); err == nil {
		t.Fatal("expected error resuming a terminated run")
	}
}

func TestRunRequiresRequirementOrResume(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, &stubPlanner{}, &stubGen{}, &stubJudge{scores: []float64{1}}, config.RunConfig{MaxIterations: 5, ScoreThreshold: 0.9})
	if _, err := o.Run(context.Background(), RunOpts{}); err == nil {
		t.Fatal("expected error for empty opts")
	}
}

func TestRunParallelPreservesOrder(t *testing.T) {
	batch := []state.SubTask{
		{ID: "t1", Instruction: "i1", Target: "floor", Status: state.TaskPending},
		{ID: "t2", Instruction: "i2", Target: "lighting", Status: state.TaskPending},
		{ID: "t3", Instruction: "i3", Target: "camera", Status: state.TaskPending},
	}
	p := &stubPlanner{batches: [][]state.SubTask{batch}}
	g := &stubGen{}
	j := &stubJudge{scores: []float64{0.95}}
	o, _, br := newTestOrchestrator(t, p, g, j, config.RunConfig{MaxIterations: 5, ScoreThreshold: 0.9, Parallel: true})

	ec, err := o.Run(context.Background(), RunOpts{Requirement: "r"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	it := ec.History[0]
	for i, wantID := range []string{"t1", "t2", "t3"} {
		if it.SubTasks[i].ID != wantID {
			t.Errorf("SubTasks[%d].ID = %q, want %q (proposal order must survive parallel dispatch)", i, it.SubTasks[i].ID, wantID)
		}
		if it.SubTasks[i].Status != state.TaskSucceeded {
			t.Errorf("SubTasks[%d].Status = %q", i, it.SubTasks[i].Status)
		}
	}
	if len(br.executed) != 3 {
		t.Errorf("bridge executed %d scripts, want 3", len(br.executed))
	}
}

func TestDistinctTargets(t *testing.T) {
	tests := []struct {
		name    string
		targets []string
		want    bool
	}{
		{"all distinct", []string{"a", "b", "c"}, true},
		{"shared target", []string{"a", "a"}, false},
		{"missing target", []string{"a", ""}, false},
		{"empty batch", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var batch []state.SubTask
			for i, target := range tt.targets {
				batch = append(batch, state.SubTask{ID: fmt.Sprintf("t%d", i), Target: target})
			}
			if got := distinctTargets(batch); got != tt.want {
				t.Errorf("distinctTargets = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPersistenceFailureUnwraps(t *testing.T) {
	inner := errors.New("disk full")
	pf := &PersistenceFailure{Op: "context", Err: inner}
	if !errors.Is(pf, inner) {
		t.Error("PersistenceFailure should unwrap to its cause")
	}
}
