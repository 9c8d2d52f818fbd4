package way

import (
	"encoding/json"
	"testing"
)

func TestWaystationRoundTripKeepsUnknownFields(t *testing.T) {
	in := `{"id":7,"name":"bugs","marks":[{"path":"/x.go","line":1,"column":4,"context":"func x()","tag":"todo"}],"owner":{"login":"ana"}}`
	var ws Waystation
	if err := json.Unmarshal([]byte(in), &ws); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ws.ID != "7" {
		t.Fatalf("numeric id not accepted: %q", ws.ID)
	}
	ws.Name = "bugs!"

	out, err := json.Marshal(ws)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(out, &fields); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if string(fields["id"]) != `7` {
		t.Fatalf("numeric id written back as %s", fields["id"])
	}
	if string(fields["owner"]) != `{"login":"ana"}` {
		t.Fatalf("owner lost: %s", out)
	}
	if string(fields["name"]) != `"bugs!"` {
		t.Fatalf("edit lost: %s", out)
	}
	var marks []map[string]json.RawMessage
	_ = json.Unmarshal(fields["marks"], &marks)
	if len(marks) != 1 || string(marks[0]["tag"]) != `"todo"` {
		t.Fatalf("mark extra lost: %s", fields["marks"])
	}
}

func TestWaystationNullAndEmpty(t *testing.T) {
	var ws Waystation
	if err := json.Unmarshal([]byte("null"), &ws); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if !ws.IsZero() {
		t.Fatalf("expected zero waystation")
	}
	out, _ := json.Marshal(ws)
	if string(out) != `{}` {
		t.Fatalf("unexpected encoding: %s", out)
	}
}

func TestWaystationWritesBackDecodedFields(t *testing.T) {
	cases := []struct {
		name string
		in   string
		edit func(*Waystation)
		want string
	}{
		{"numeric id", `{"id":7,"marks":[]}`, nil, `{"id":7,"marks":[]}`},
		{"string id", `{"id":"7"}`, nil, `{"id":"7"}`},
		{"null marks", `{"id":7,"name":null,"marks":null}`, nil, `{"id":7,"marks":null,"name":null}`},
		{"missing name and marks", `{"id":7,"kind":"x"}`, nil, `{"id":7,"kind":"x"}`},
		{"edited id", `{"id":7}`, func(w *Waystation) { w.ID = "8" }, `{"id":"8"}`},
		{"renamed", `{"id":7}`, func(w *Waystation) { w.Name = "trip" }, `{"id":7,"name":"trip"}`},
		{"all marks deleted", `{"id":7,"marks":[{"path":"/a","line":1,"column":1,"context":""}]}`, func(w *Waystation) { w.Marks = w.Marks[:0] }, `{"id":7,"marks":[]}`},
		{"mark added to null", `{"id":7,"marks":null}`, func(w *Waystation) { w.Marks = []Mark{{Path: "/a", Line: 1, Column: 1}} }, `{"id":7,"marks":[{"column":1,"context":"","line":1,"path":"/a"}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var ws Waystation
			if err := json.Unmarshal([]byte(tc.in), &ws); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if tc.edit != nil {
				tc.edit(&ws)
			}
			out, err := json.Marshal(ws)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(out) != tc.want {
				t.Fatalf("encoded %s, want %s", out, tc.want)
			}
		})
	}
}

func TestWaystationBuiltInGoOmitsUnsetFields(t *testing.T) {
	out, _ := json.Marshal(Waystation{ID: "ws-1"})
	if string(out) != `{"id":"ws-1"}` {
		t.Fatalf("unexpected encoding: %s", out)
	}
	out, _ = json.Marshal(Waystation{ID: "ws-1", Marks: []Mark{}})
	if string(out) != `{"id":"ws-1","marks":[]}` {
		t.Fatalf("unexpected encoding: %s", out)
	}
}

func TestIDRejectsObjects(t *testing.T) {
	var id ID
	if err := json.Unmarshal([]byte(`{"a":1}`), &id); err == nil {
		t.Fatalf("expected error for object id")
	}
}
