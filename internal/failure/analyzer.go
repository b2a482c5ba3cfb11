// Package failure classifies script execution errors from the scene host
// so that retries and planning passes get actionable feedback instead of
// raw tracebacks.
package failure

import "strings"

// Analysis is the classification of one failed script execution.
type Analysis struct {
	Type         string `json:"type"`
	RootCause    string `json:"root_cause"`
	SuggestedFix string `json:"suggested_fix"`
	Recoverable  bool   `json:"recoverable"`
}

// pattern maps error-text fragments to a failure class.
type pattern struct {
	fragments    []string
	rootCause    string
	suggestedFix string
	recoverable  bool
}

var patterns = map[string]pattern{
	"context-error": {
		fragments:    []string{"context is incorrect", "poll() failed", "invalid context", "not in object mode"},
		rootCause:    "operator called outside the mode or area it requires",
		suggestedFix: "switch to object mode and use data-level APIs instead of operators where possible",
		recoverable:  true,
	},
	"missing-object": {
		fragments:    []string{"object not found", "object does not exist", "keyerror", "not found in collection"},
		rootCause:    "script references an object name that is not in the scene",
		suggestedFix: "look up the object by its exact name from the scene metadata, or create it first",
		recoverable:  true,
	},
	"material-error": {
		fragments:    []string{"material not found", "material slot", "shader error", "texture missing"},
		rootCause:    "material or texture referenced before it was created",
		suggestedFix: "create the material and assign it to a slot before configuring nodes",
		recoverable:  true,
	},
	"geometry-error": {
		fragments:    []string{"mesh operation failed", "vertex group", "face index", "edge loop"},
		rootCause:    "mesh-level operation on geometry that does not support it",
		suggestedFix: "validate the mesh has the expected topology before editing it",
		recoverable:  true,
	},
	"syntax-error": {
		fragments:    []string{"syntaxerror", "indentationerror", "invalid syntax", "unexpected eof"},
		rootCause:    "generated script is not valid Python",
		suggestedFix: "regenerate the script; keep it short and avoid multi-line string literals",
		recoverable:  true,
	},
	"attribute-error": {
		fragments:    []string{"attributeerror", "has no attribute"},
		rootCause:    "script uses an API attribute that does not exist on the target",
		suggestedFix: "check the object type before accessing type-specific attributes",
		recoverable:  true,
	},
	"transport": {
		fragments:    []string{"timeout", "deadline exceeded", "connection refused", "broken pipe", "connection reset", "i/o timeout"},
		rootCause:    "scene host unreachable or did not answer in time",
		suggestedFix: "verify the scene host is running and reachable, then retry",
		recoverable:  false,
	},
}

// Classify maps an execution error message to a failure analysis.
// Unrecognized errors come back as type "unknown" and recoverable, since
// an unfamiliar script error is usually worth one more attempt.
func Classify(errMsg string) Analysis {
	lower := strings.ToLower(errMsg)
	for typ, p := range patterns {
		for _, frag := range p.fragments {
			if strings.Contains(lower, frag) {
				return Analysis{
					Type:         typ,
					RootCause:    p.rootCause,
					SuggestedFix: p.suggestedFix,
					Recoverable:  p.recoverable,
				}
			}
		}
	}
	return Analysis{
		Type:        "unknown",
		RootCause:   "unclassified execution error",
		Recoverable: true,
	}
}
