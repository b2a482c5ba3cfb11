// Package judge wraps the scene-quality agent. A bad judge response never
// fails the run: malformed output degrades to score 0 with a synthetic
// flag so another iteration can be attempted.
package judge

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

// ParseErrorFlag is the synthetic missing-component entry recorded when
// the judge's response could not be parsed.
const ParseErrorFlag = "evaluation-parse-error"

// Input is everything the judging agent sees for one evaluation.
type Input struct {
	Requirement   string
	SceneInfo     string
	SceneAnalysis string
	Screenshot    []byte
}

// Judge wraps the judging model.
type Judge struct {
	llm      llm.Client
	progress io.Writer
}

// New creates a Judge.
func New(client llm.Client) *Judge {
	return &Judge{llm: client}
}

// SetProgress sets a writer for live progress output.
func (j *Judge) SetProgress(w io.Writer) {
	j.progress = w
}

func (j *Judge) logf(format string, args ...interface{}) {
	if j.progress != nil {
		fmt.Fprintf(j.progress, "  → "+format+"\n", args...)
	}
}

// Evaluate scores the current scene against the requirement. It never
// returns an error: any failure degrades to a zero-score result carrying
// the parse-error flag.
func (j *Judge) Evaluate(ctx context.Context, in Input) *state.EvaluationResult {
	tmpl, err := prompt.LoadTemplate("judge.md")
	if err != nil {
		return degraded(fmt.Sprintf("load judge template: %v", err))
	}

	rendered, err := prompt.Render(tmpl, prompt.Vars{
		"requirement":    in.Requirement,
		"scene_info":     in.SceneInfo,
		"scene_analysis": in.SceneAnalysis,
	})
	if err != nil {
		return degraded(fmt.Sprintf("render judge prompt: %v", err))
	}

	reply, err := j.llm.Complete(ctx, llm.Request{User: rendered, Image: in.Screenshot})
	if err != nil {
		j.logf("judge call failed: %v", err)
		return degraded(fmt.Sprintf("judge call failed: %v", err))
	}

	result := parseVerdict(reply)
	j.logf("judge score %.2f, %d missing", result.Score, len(result.Missing))
	return result
}

// verdict is the judge's wire shape.
type verdict struct {
	Score      *float64 `json:"score"`
	Rationale  string   `json:"rationale"`
	Missing    []string `json:"missing"`
	Suggestion string   `json:"suggestion"`
}

// parseVerdict extracts the judge's JSON verdict and normalizes the score
// into [0,1], clamping out-of-range values with a recorded warning.
func parseVerdict(reply string) *state.EvaluationResult {
	raw, err := extractJSONObject(reply)
	if err != nil {
		return degraded(err.Error())
	}

	var v verdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return degraded(fmt.Sprintf("verdict is not valid JSON: %v", err))
	}
	if v.Score == nil {
		return degraded("verdict has no score")
	}

	result := &state.EvaluationResult{
		Score:      *v.Score,
		Rationale:  v.Rationale,
		Missing:    v.Missing,
		Suggestion: v.Suggestion,
	}
	if result.Score < 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("score %v below range, clamped to 0", result.Score))
		result.Score = 0
	}
	if result.Score > 1 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("score %v above range, clamped to 1", result.Score))
		result.Score = 1
	}
	return result
}

// degraded builds the zero-score fallback result.
func degraded(reason string) *state.EvaluationResult {
	return &state.EvaluationResult{
		Score:    0,
		Missing:  []string{ParseErrorFlag},
		Warnings: []string{reason},
	}
}

// extractJSONObject pulls the outermost JSON object out of a model reply
// that may be wrapped in prose or markdown fences.
func extractJSONObject(reply string) (string, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("reply contains no JSON object")
	}
	return reply[start : end+1], nil
}
