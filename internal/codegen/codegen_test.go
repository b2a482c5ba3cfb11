package codegen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/lucasnoah/scenesmith/internal/llm"
	"github.com/lucasnoah/scenesmith/internal/state"
)

type scriptedLLM struct {
	replies []string
	prompts []string
}

func (s *scriptedLLM) Complete(ctx context.Context, req llm.Request) (string, error) {
	i := len(s.prompts)
	s.prompts = append(s.prompts, req.User)
	if i >= len(s.replies) {
		return "", fmt.Errorf("no reply scripted for call %d", i)
	}
	return s.replies[i], nil
}

func task(id string) state.SubTask {
	return state.SubTask{ID: id, Instruction: "add a cube", Status: state.TaskPending}
}

func TestGenerateStripsFences(t *testing.T) {
	mock := &scriptedLLM{replies: []string{
		"```python\nimport bpy\nbpy.ops.mesh.primitive_cube_add()\n```",
	}}
	g := New(mock, 3)

	res, err := g.Generate(context.Background(), task("t1"), "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if strings.Contains(res.Script, "```") {
		t.Errorf("fences not stripped: %q", res.Script)
	}
	if !strings.HasPrefix(res.Script, "import bpy") {
		t.Errorf("Script = %q", res.Script)
	}
	if res.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", res.Attempts)
	}
}

func TestGenerateRetriesWithFailureFeedback(t *testing.T) {
	mock := &scriptedLLM{replies: []string{
		"bpy.ops.mesh.primitive_cube_add((", // unbalanced
		"bpy.ops.mesh.primitive_cube_add()",
	}}
	g := New(mock, 3)

	res, err := g.Generate(context.Background(), task("t1"), "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", res.Attempts)
	}
	if !strings.Contains(mock.prompts[1], "unclosed") {
		t.Errorf("second prompt should carry the validation failure:\n%s", mock.prompts[1])
	}
}

func TestGenerateExhaustsBudget(t *testing.T) {
	mock := &scriptedLLM{replies: []string{"(", "(", "("}}
	g := New(mock, 3)

	_, err := g.Generate(context.Background(), task("t9"), "")
	var gf *GenerationFailure
	if !errors.As(err, &gf) {
		t.Fatalf("error = %v, want GenerationFailure", err)
	}
	if gf.TaskID != "t9" {
		t.Errorf("TaskID = %q", gf.TaskID)
	}
	if gf.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", gf.Attempts)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{"plain", "import bpy", "import bpy"},
		{"fenced", "```python\nimport bpy\n```", "import bpy"},
		{"bare fence", "```\nx = 1\n```", "x = 1"},
		{"whitespace", "  \nimport bpy\n  ", "import bpy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.reply); got != tt.want {
				t.Errorf("Sanitize = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateScript(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		wantErr bool
	}{
		{"valid", "bpy.data.objects['Cube'].location = (1, 2, 3)", false},
		{"empty", "", true},
		{"leftover fence", "```python", true},
		{"unbalanced open", "f(", true},
		{"unbalanced close", "f)", true},
		{"mismatched", "f(]", true},
		{"bracket inside string", `name = "weird (name"`, false},
		{"bracket inside comment", "x = 1  # don't worry about (this", false},
		{"unterminated string", `s = "oops`, true},
		{"escaped quote", `s = "he said \"hi\"" + f(x)`, false},
		{"triple-quoted string", `msg = """cube's side (left)"""`, false},
		{"triple-quoted single", "doc = '''it\"s fine ([{'''", false},
		{"multiline docstring", "def f():\n    \"\"\"adds a cube.\n    (unmatched in prose\n    \"\"\"\n    return g()", false},
		{"unterminated triple quote", `s = """oops`, true},
		{"empty string literal", `s = "" + f(x)`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateScript(tt.script)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateScript(%q) = %v, wantErr %v", tt.script, err, tt.wantErr)
			}
		})
	}
}
