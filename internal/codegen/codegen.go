// Package codegen wraps the code-producing agent: one sub-task instruction
// in, one host script out, with static validation and bounded retry.
package codegen

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/lucasnoah/scenesmith/internal/failure"
	"github.com/lucasnoah/scenesmith/internal/llm"
	"github.com/lucasnoah/scenesmith/internal/prompt"
	"github.com/lucasnoah/scenesmith/internal/state"
)

// GenerationFailure means the code agent produced no valid script for one
// sub-task within the retry budget. It is local to the sub-task: the run
// continues.
type GenerationFailure struct {
	TaskID   string
	Attempts int
	LastErr  error
}

func (e *GenerationFailure) Error() string {
	return fmt.Sprintf("code generation for %s failed after %d attempts: %v", e.TaskID, e.Attempts, e.LastErr)
}

func (e *GenerationFailure) Unwrap() error { return e.LastErr }

// Result is a validated script and the number of attempts it took.
type Result struct {
	Script   string
	Attempts int
}

// Generator wraps the code model with validation and bounded retry.
type Generator struct {
	llm        llm.Client
	maxRetries int
	progress   io.Writer
}

// New creates a Generator.
func New(client llm.Client, maxRetries int) *Generator {
	return &Generator{llm: client, maxRetries: maxRetries}
}

// SetProgress sets a writer for live progress output.
func (g *Generator) SetProgress(w io.Writer) {
	g.progress = w
}

func (g *Generator) logf(format string, args ...interface{}) {
	if g.progress != nil {
		fmt.Fprintf(g.progress, "  → "+format+"\n", args...)
	}
}

// Generate produces a script for one sub-task. Validation failures are fed
// back into the next attempt's prompt; exhausting the budget returns a
// GenerationFailure.
func (g *Generator) Generate(ctx context.Context, task state.SubTask, sceneInfo string) (*Result, error) {
	tmpl, err := prompt.LoadTemplate("codegen.md")
	if err != nil {
		return nil, err
	}

	var lastErr error
	failureMsg := ""
	suggestedFix := ""
	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		rendered, err := prompt.Render(tmpl, prompt.Vars{
			"instruction":   task.Instruction,
			"scene_info":    sceneInfo,
			"failure":       failureMsg,
			"suggested_fix": suggestedFix,
		})
		if err != nil {
			return nil, fmt.Errorf("render codegen prompt: %w", err)
		}

		reply, err := g.llm.Complete(ctx, llm.Request{User: rendered})
		if err != nil {
			lastErr = err
			failureMsg = fmt.Sprintf("agent call failed: %v", err)
			suggestedFix = failure.Classify(failureMsg).SuggestedFix
			g.logf("codegen attempt %d/%d for %s failed: %v", attempt, g.maxRetries, task.ID, err)
			continue
		}

		script := Sanitize(reply)
		if err := ValidateScript(script); err != nil {
			lastErr = err
			failureMsg = err.Error()
			suggestedFix = failure.Classify(failureMsg).SuggestedFix
			g.logf("codegen attempt %d/%d for %s rejected: %v", attempt, g.maxRetries, task.ID, err)
			continue
		}

		return &Result{Script: script, Attempts: attempt}, nil
	}

	return nil, &GenerationFailure{TaskID: task.ID, Attempts: g.maxRetries, LastErr: lastErr}
}

// Sanitize strips markdown code fences and surrounding whitespace from a
// model reply, leaving just the script body.
func Sanitize(reply string) string {
	s := strings.TrimSpace(reply)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:] // drop the ```python line
		}
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}

// ValidateScript performs the static checks a script must pass before
// dispatch: non-empty, no leftover fences, balanced delimiters. This is a
// sanity check, not a parser — semantic validity is the host's problem.
func ValidateScript(script string) error {
	if script == "" {
		return fmt.Errorf("generated script is empty")
	}
	if strings.Contains(script, "```") {
		return fmt.Errorf("generated script still contains markdown fences")
	}
	if err := checkBalance(script); err != nil {
		return err
	}
	return nil
}

// checkBalance verifies brackets balance outside string literals and
// comments. Triple-quoted strings are consumed whole so their contents
// (quotes, brackets, anything) never reach the bracket counter.
func checkBalance(script string) error {
	var stack []byte
	pairs := map[byte]byte{')': '(', ']': '[', '}': '{'}

	i, n := 0, len(script)
	for i < n {
		c := script[i]
		switch {
		case c == '#':
			for i < n && script[i] != '\n' {
				i++
			}
			continue
		case c == '\'' || c == '"':
			if i+2 < n && script[i+1] == c && script[i+2] == c {
				delim := script[i : i+3]
				end := strings.Index(script[i+3:], delim)
				if end == -1 {
					return fmt.Errorf("unterminated string literal in generated script")
				}
				i += 3 + end + 3
				continue
			}
			j := i + 1
			for j < n && script[j] != c {
				if script[j] == '\\' {
					j++ // skip the escaped character
				}
				j++
			}
			if j >= n {
				return fmt.Errorf("unterminated string literal in generated script")
			}
			i = j
		case c == '(' || c == '[' || c == '{':
			stack = append(stack, c)
		case c == ')' || c == ']' || c == '}':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[c] {
				return fmt.Errorf("unbalanced %q in generated script", rune(c))
			}
			stack = stack[:len(stack)-1]
		}
		i++
	}

	if len(stack) > 0 {
		return fmt.Errorf("unclosed %q in generated script", rune(stack[len(stack)-1]))
	}
	return nil
}
