package scene

import (
	"encoding/json"
	"strings"
)

// Object is one scene object as reported by the scene host.
type Object struct {
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	Location   [3]float64 `json:"location"`
	Dimensions [3]float64 `json:"dimensions"`
	Materials  []string   `json:"materials,omitempty"`
}

// Light is one light source.
type Light struct {
	Name     string     `json:"name"`
	Type     string     `json:"type"` // POINT, SUN, SPOT, AREA
	Location [3]float64 `json:"location"`
	Energy   float64    `json:"energy"`
}

// Camera is one camera.
type Camera struct {
	Name     string     `json:"name"`
	Location [3]float64 `json:"location"`
	Active   bool       `json:"active"`
}

// Snapshot is the structured form of the scene host's metadata dump.
// Raw always preserves the original payload for prompt context.
type Snapshot struct {
	Objects   []Object `json:"objects"`
	Lights    []Light  `json:"lights"`
	Cameras   []Camera `json:"cameras"`
	Materials []string `json:"materials"`
	Raw       string   `json:"-"`
}

// sceneInfoPayload mirrors the JSON shape of the host's get_scene_info
// response. Lights and cameras may arrive either in dedicated arrays or
// mixed into objects, depending on the host version.
type sceneInfoPayload struct {
	Name      string   `json:"name"`
	Objects   []Object `json:"objects"`
	Lights    []Light  `json:"lights"`
	Cameras   []Camera `json:"cameras"`
	Materials []string `json:"materials"`
}

// Parse converts raw scene metadata into a Snapshot. JSON is tried first;
// anything unparseable falls back to line-oriented extraction so a
// degraded host response still yields a usable (if sparse) snapshot.
func Parse(raw string) *Snapshot {
	snap := &Snapshot{Raw: raw}

	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		var payload sceneInfoPayload
		if err := json.Unmarshal([]byte(trimmed), &payload); err == nil {
			snap.Objects = payload.Objects
			snap.Lights = payload.Lights
			snap.Cameras = payload.Cameras
			snap.Materials = payload.Materials
			splitMixedObjects(snap)
			return snap
		}
	}

	parseLines(snap, trimmed)
	return snap
}

// splitMixedObjects moves LIGHT/CAMERA typed entries out of the object
// list when the host reports everything as objects.
func splitMixedObjects(snap *Snapshot) {
	var objects []Object
	for _, o := range snap.Objects {
		switch strings.ToUpper(o.Type) {
		case "LIGHT", "LAMP":
			snap.Lights = append(snap.Lights, Light{Name: o.Name, Type: "POINT", Location: o.Location})
		case "CAMERA":
			snap.Cameras = append(snap.Cameras, Camera{Name: o.Name, Location: o.Location})
		default:
			objects = append(objects, o)
		}
	}
	snap.Objects = objects
}

// parseLines handles the plain-text dump format: one entity per line with
// a "Kind:" prefix.
func parseLines(snap *Snapshot, raw string) {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		name, ok := strings.CutPrefix(line, "Object:")
		if ok {
			snap.Objects = append(snap.Objects, Object{Name: strings.TrimSpace(name), Type: "MESH"})
			continue
		}
		if name, ok = strings.CutPrefix(line, "Light:"); ok {
			snap.Lights = append(snap.Lights, Light{Name: strings.TrimSpace(name), Type: "POINT"})
			continue
		}
		if name, ok = strings.CutPrefix(line, "Camera:"); ok {
			snap.Cameras = append(snap.Cameras, Camera{Name: strings.TrimSpace(name)})
			continue
		}
		if name, ok = strings.CutPrefix(line, "Material:"); ok {
			snap.Materials = append(snap.Materials, strings.TrimSpace(name))
		}
	}
}
