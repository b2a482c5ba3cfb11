package scene

import (
	"fmt"
	"math"
	"strings"
)

// Analysis is the probe's structural verdict on a snapshot. It feeds the
// planner and judge prompts so the agents see more than raw metadata.
type Analysis struct {
	Issues          []string `json:"issues,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
	ObjectCount     int      `json:"object_count"`
	LightCount      int      `json:"light_count"`
	CameraCount     int      `json:"camera_count"`
	MaterialCount   int      `json:"material_count"`
	Score           float64  `json:"score"` // structural completeness, [0,1]
}

// Probe inspects a snapshot for structural problems: missing cameras or
// lights, underpowered lighting, and overlapping object placements.
func Probe(snap *Snapshot) *Analysis {
	a := &Analysis{
		ObjectCount:   len(snap.Objects),
		LightCount:    len(snap.Lights),
		CameraCount:   len(snap.Cameras),
		MaterialCount: len(snap.Materials),
	}

	if a.ObjectCount == 0 {
		a.Issues = append(a.Issues, "scene contains no objects")
	}
	if a.CameraCount == 0 {
		a.Issues = append(a.Issues, "no camera in scene")
		a.Recommendations = append(a.Recommendations, "add a camera framing the main subject")
	}
	if a.LightCount == 0 {
		a.Issues = append(a.Issues, "no lights in scene")
		a.Recommendations = append(a.Recommendations, "add at least one key light")
	} else if totalEnergy(snap.Lights) < 10 {
		a.Issues = append(a.Issues, "total light energy is very low, scene may render dark")
	}
	if a.ObjectCount > 0 && a.MaterialCount == 0 {
		a.Recommendations = append(a.Recommendations, "objects have no materials assigned")
	}

	for _, pair := range overlappingPairs(snap.Objects) {
		a.Issues = append(a.Issues, fmt.Sprintf("objects %s and %s overlap", pair[0], pair[1]))
	}

	a.Score = completeness(a)
	return a
}

// Summary renders the analysis as prompt-ready text.
func (a *Analysis) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "objects=%d lights=%d cameras=%d materials=%d structural-score=%.2f\n",
		a.ObjectCount, a.LightCount, a.CameraCount, a.MaterialCount, a.Score)
	for _, issue := range a.Issues {
		fmt.Fprintf(&b, "issue: %s\n", issue)
	}
	for _, rec := range a.Recommendations {
		fmt.Fprintf(&b, "recommend: %s\n", rec)
	}
	return strings.TrimRight(b.String(), "\n")
}

func totalEnergy(lights []Light) float64 {
	var sum float64
	for _, l := range lights {
		sum += l.Energy
	}
	return sum
}

// overlappingPairs finds object pairs whose bounding spheres intersect.
// Objects with zero dimensions (unreported) are skipped.
func overlappingPairs(objects []Object) [][2]string {
	var pairs [][2]string
	for i := 0; i < len(objects); i++ {
		for j := i + 1; j < len(objects); j++ {
			a, b := objects[i], objects[j]
			ra, rb := radius(a.Dimensions), radius(b.Dimensions)
			if ra == 0 || rb == 0 {
				continue
			}
			if distance(a.Location, b.Location) < (ra+rb)*0.5 {
				pairs = append(pairs, [2]string{a.Name, b.Name})
			}
		}
	}
	return pairs
}

func radius(dims [3]float64) float64 {
	return math.Max(dims[0], math.Max(dims[1], dims[2])) / 2
}

func distance(a, b [3]float64) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// completeness scores basic scene readiness: objects, lighting and a
// camera each contribute, overlap issues subtract.
func completeness(a *Analysis) float64 {
	score := 0.0
	if a.ObjectCount > 0 {
		score += 0.4
	}
	if a.LightCount > 0 {
		score += 0.3
	}
	if a.CameraCount > 0 {
		score += 0.3
	}
	penalty := 0.05 * float64(len(a.Issues))
	return math.Max(0, math.Min(1, score-penalty))
}
