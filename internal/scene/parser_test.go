package scene

import "testing"

func TestParseJSON(t *testing.T) {
	raw := `{
		"name": "Scene",
		"objects": [
			{"name": "Table", "type": "MESH", "location": [0,0,0], "dimensions": [2,1,1]}
		],
		"lights": [
			{"name": "Key", "type": "SUN", "location": [0,0,5], "energy": 3.0}
		],
		"cameras": [
			{"name": "Camera", "location": [5,5,5], "active": true}
		],
		"materials": ["Wood"]
	}`

	snap := Parse(raw)
	if len(snap.Objects) != 1 || snap.Objects[0].Name != "Table" {
		t.Errorf("Objects = %+v", snap.Objects)
	}
	if len(snap.Lights) != 1 || snap.Lights[0].Energy != 3.0 {
		t.Errorf("Lights = %+v", snap.Lights)
	}
	if len(snap.Cameras) != 1 || !snap.Cameras[0].Active {
		t.Errorf("Cameras = %+v", snap.Cameras)
	}
	if len(snap.Materials) != 1 || snap.Materials[0] != "Wood" {
		t.Errorf("Materials = %+v", snap.Materials)
	}
	if snap.Raw != raw {
		t.Error("Raw payload should be preserved")
	}
}

func TestParseSplitsMixedObjects(t *testing.T) {
	raw := `{"objects": [
		{"name": "Cube", "type": "MESH"},
		{"name": "Lamp", "type": "LIGHT"},
		{"name": "Cam", "type": "CAMERA"}
	]}`

	snap := Parse(raw)
	if len(snap.Objects) != 1 || snap.Objects[0].Name != "Cube" {
		t.Errorf("Objects = %+v, want only Cube", snap.Objects)
	}
	if len(snap.Lights) != 1 || snap.Lights[0].Name != "Lamp" {
		t.Errorf("Lights = %+v, want Lamp", snap.Lights)
	}
	if len(snap.Cameras) != 1 || snap.Cameras[0].Name != "Cam" {
		t.Errorf("Cameras = %+v, want Cam", snap.Cameras)
	}
}

func TestParseLineFormat(t *testing.T) {
	raw := `Object: Table
Object: Chair
Light: Key
Camera: Main
Material: Wood`

	snap := Parse(raw)
	if len(snap.Objects) != 2 {
		t.Errorf("Objects = %+v, want 2", snap.Objects)
	}
	if len(snap.Lights) != 1 || snap.Lights[0].Name != "Key" {
		t.Errorf("Lights = %+v", snap.Lights)
	}
	if len(snap.Cameras) != 1 || snap.Cameras[0].Name != "Main" {
		t.Errorf("Cameras = %+v", snap.Cameras)
	}
	if len(snap.Materials) != 1 || snap.Materials[0] != "Wood" {
		t.Errorf("Materials = %+v", snap.Materials)
	}
}

func TestParseGarbage(t *testing.T) {
	snap := Parse("total nonsense, no structure at all")
	if len(snap.Objects)+len(snap.Lights)+len(snap.Cameras) != 0 {
		t.Errorf("garbage input should yield empty snapshot: %+v", snap)
	}
	if snap.Raw == "" {
		t.Error("Raw should still carry the payload")
	}
}
