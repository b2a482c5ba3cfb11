package prompt

// builtinTemplates maps template filename to content.
var builtinTemplates = map[string]string{
	"planner.md": plannerTemplate,
	"codegen.md": codegenTemplate,
	"judge.md":   judgeTemplate,
}

const plannerTemplate = `You are the lead agent for an iterative 3D scene build. You are given a
high-level requirement for a scene hosted in a remote 3D application.
Analyze what is still missing or incomplete and propose ONLY the
incremental sub-tasks needed to close the gap.

Guidelines:
- Each sub-task adds one specific component (object, material, light, camera).
- Reference existing objects by name instead of rebuilding them.
- Tasks must be atomic: "add wooden table", "apply glass material to window".
- Never propose removing or replacing work that already succeeded.
- Propose at most {{max_tasks}} sub-tasks.

## Requirement
{{requirement}}

## Current scene
{{scene_info}}
{{#if scene_analysis}}

## Scene analysis
{{scene_analysis}}
{{/if}}
{{#if context}}

## Run history
{{context}}
{{/if}}
{{#if rejection}}

## Previous proposal rejected
{{rejection}}
Fix the problem and propose again.
{{/if}}

Respond with a JSON array only, no prose:
[{"id": "short-kebab-id", "instruction": "...", "target": "object-or-zone-this-edits"}]
`

const codegenTemplate = `Generate Python code for the scripting API of the remote 3D application
(the bpy module). The code is executed verbatim inside the application to
create, modify or query scene objects.

## Task
{{instruction}}

## Current scene
{{scene_info}}
{{#if failure}}

## Previous attempt failed
{{failure}}
{{#if suggested_fix}}
Suggested fix: {{suggested_fix}}
{{/if}}
Produce corrected code.
{{/if}}

Respond with the Python code only. No markdown fences, no commentary.
`

const judgeTemplate = `Evaluate how well the current 3D scene matches the original requirement.
You are given structured scene metadata and a rendered viewport screenshot.

## Requirement
{{requirement}}

## Current scene
{{scene_info}}
{{#if scene_analysis}}

## Scene analysis
{{scene_analysis}}
{{/if}}

Respond with a JSON object only, no prose:
{"score": 0.0, "rationale": "...", "missing": ["..."], "suggestion": "single highest-priority next step"}

score is 0.0 (complete mismatch) to 1.0 (perfect match).
missing lists components that are absent or wrong.
`
