package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const fakeWay = `#!/bin/sh
dir=$(dirname "$0")
case "$1" in
  -j) cat "$dir/current.json" ;;
  open)
    if [ "$2" = "-j" ]; then
      echo '[{"id":"1","name":"alpha"},{"id":"2","name":"beta"},{"id":"3","name":""}]'
    else
      echo "{\"id\":\"$2\",\"name\":\"opened-$2\",\"marks\":[]}" > "$dir/current.json"
      echo opened
    fi ;;
  new)
    echo "{\"id\":\"9\",\"name\":\"$2\",\"marks\":[]}" > "$dir/current.json"
    echo created ;;
  mark) printf '%s\n' "$2" >> "$dir/marks.log" ;;
  *) exit 2 ;;
esac
`

type env struct {
	dir    string
	config string
}

func setup(t *testing.T) env {
	t.Helper()
	dir := t.TempDir()
	bin := filepath.Join(dir, "way")
	if err := os.WriteFile(bin, []byte(fakeWay), 0o755); err != nil {
		t.Fatalf("write fake way: %v", err)
	}
	current := `{"id":"1","name":"trip","marks":[{"path":"/a.go","line":2,"column":1,"context":"x := 1"}],"color":"teal"}`
	if err := os.WriteFile(filepath.Join(dir, "current.json"), []byte(current), 0o644); err != nil {
		t.Fatalf("write current: %v", err)
	}
	cfg := fmt.Sprintf("[way]\nbinary = %q\n\n[journal]\npath = %q\n\n[log]\nlevel = \"error\"\n", bin, filepath.Join(dir, "journal.db"))
	cfgPath := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env{dir: dir, config: cfgPath}
}

func (e env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(append([]string{"--config", e.config}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestShowFormats(t *testing.T) {
	e := setup(t)

	out, err := e.run(t, "show")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "trip [1]") || !strings.Contains(out, "/a.go:2:1") {
		t.Fatalf("unexpected text output:\n%s", out)
	}

	out, err = e.run(t, "show", "--format", "json")
	if err != nil {
		t.Fatalf("show json: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("decode json output: %v\n%s", err, out)
	}
	if doc["color"] != "teal" || doc["name"] != "trip" {
		t.Fatalf("unexpected json output: %v", doc)
	}

	out, err = e.run(t, "show", "-o", "yaml")
	if err != nil {
		t.Fatalf("show yaml: %v", err)
	}
	if !strings.Contains(out, "name: trip") || !strings.Contains(out, "color: teal") {
		t.Fatalf("unexpected yaml output:\n%s", out)
	}

	if _, err := e.run(t, "show", "--format", "xml"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestMarkEscapesContext(t *testing.T) {
	e := setup(t)
	src := filepath.Join(e.dir, "main.go")
	if err := os.WriteFile(src, []byte("package main\n"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	out, err := e.run(t, "mark", src, "--line", "3", "--column", "2", "--context", `say "hi"`)
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	if !strings.Contains(out, "Marked") {
		t.Fatalf("unexpected output: %s", out)
	}
	logged, err := os.ReadFile(filepath.Join(e.dir, "marks.log"))
	if err != nil {
		t.Fatalf("read marks log: %v", err)
	}
	want := src + `:3:2:say "hi"` + "\n"
	if string(logged) != want {
		t.Fatalf("way received %q, want %q", logged, want)
	}

	out, err = e.run(t, "history", "--format", "json")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var entries []map[string]any
	if err := json.Unmarshal([]byte(out), &entries); err != nil || len(entries) != 1 {
		t.Fatalf("history output %q: %v", out, err)
	}
	if entries[0]["command"] != "wayside.addMarkAtCursor" || entries[0]["outcome"] != "ok" {
		t.Fatalf("unexpected history entry: %v", entries[0])
	}
}

func TestMarkReadsContextFromFile(t *testing.T) {
	e := setup(t)
	src := filepath.Join(e.dir, "main.go")
	if err := os.WriteFile(src, []byte("package main\n\nfunc main() {}\n"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	if _, err := e.run(t, "mark", src, "-l", "3", "-c", "1"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	logged, _ := os.ReadFile(filepath.Join(e.dir, "marks.log"))
	if !strings.HasSuffix(string(logged), ":3:1:func main() {}\n") {
		t.Fatalf("way received %q", logged)
	}
}

func TestOpenByName(t *testing.T) {
	e := setup(t)
	out, err := e.run(t, "open", "beta")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if strings.TrimSpace(out) != "Opened opened-2" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestOpenSuggestsClosestName(t *testing.T) {
	e := setup(t)
	_, err := e.run(t, "open", "alpah")
	if err == nil || !strings.Contains(err.Error(), `did you mean "alpha"?`) {
		t.Fatalf("expected suggestion, got %v", err)
	}
	_, err = e.run(t, "open", "something-else-entirely")
	if err == nil || strings.Contains(err.Error(), "did you mean") {
		t.Fatalf("expected plain not-found error, got %v", err)
	}
}

func TestNewNamed(t *testing.T) {
	e := setup(t)
	out, err := e.run(t, "new", "side-quest")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if strings.TrimSpace(out) != "Created side-quest" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestClosest(t *testing.T) {
	names := []string{"alpha", "beta", "gamma"}
	if got, ok := closest("bta", names); !ok || got != "beta" {
		t.Fatalf("closest(bta) = %q %v", got, ok)
	}
	if _, ok := closest("zzzzzzzz", names); ok {
		t.Fatalf("expected no suggestion")
	}
	if _, ok := closest("x", nil); ok {
		t.Fatalf("expected no suggestion for empty list")
	}
}

func TestVersion(t *testing.T) {
	e := setup(t)
	out, err := e.run(t, "version")
	if err != nil || !strings.HasPrefix(out, "wayside ") {
		t.Fatalf("version: %q %v", out, err)
	}
}
