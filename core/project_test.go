package core

import (
	"encoding/json"
	"testing"
)

func TestProjectUnmarshalCurrentShape(t *testing.T) {
	payload := `{
		"id": "p1",
		"name": "Beach edit",
		"baseImage": "data:image/png;base64,abc",
		"history": {
			"past": [[]],
			"present": [{"id":"l1","tool":"inpaint","params":{"prompt":"remove boat"},"isVisible":true}],
			"future": []
		}
	}`
	var p Project
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		t.Fatal(err)
	}
	if len(p.History.Present) != 1 || p.History.Present[0].ID != "l1" {
		t.Fatalf("present = %+v", p.History.Present)
	}
	if len(p.History.Past) != 1 {
		t.Errorf("past = %+v", p.History.Past)
	}
}

func TestProjectUnmarshalLegacyLayersArray(t *testing.T) {
	payload := `{
		"id": "p1",
		"name": "Old save",
		"baseImage": "data:image/png;base64,abc",
		"layers": [
			{"id":"l1","tool":"upscale","params":{"factor":2},"isVisible":true},
			{"id":"l2","tool":"remove-background","params":{},"isVisible":false}
		]
	}`
	var p Project
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		t.Fatal(err)
	}
	if len(p.History.Present) != 2 {
		t.Fatalf("legacy layers not adopted as present: %+v", p.History)
	}
	if len(p.History.Past) != 0 || len(p.History.Future) != 0 {
		t.Error("legacy project must load with empty past and future")
	}
	if p.History.Present[1].Visible {
		t.Error("legacy layer visibility lost")
	}
}
