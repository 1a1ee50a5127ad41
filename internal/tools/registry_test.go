package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(t.TempDir(), Limits{
		ExecTimeout:   5 * time.Second,
		SearchTimeout: 5 * time.Second,
	})
}

func TestDefinitions_OrderAndCount(t *testing.T) {
	r := newTestRegistry(t)
	defs := r.Definitions()

	want := []string{"read_file", "write_file", "execute_command", "list_directory", "search_files"}
	if len(defs) != len(want) {
		t.Fatalf("definitions = %d, want %d", len(defs), len(want))
	}
	for i, name := range want {
		if defs[i].Name != name {
			t.Errorf("defs[%d].Name = %q, want %q", i, defs[i].Name, name)
		}
		if defs[i].Description == "" {
			t.Errorf("%s has no description", name)
		}
		if defs[i].Parameters["type"] != "object" {
			t.Errorf("%s parameters are not an object schema", name)
		}
	}
}

func TestDispatch_UnknownTool(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Dispatch(context.Background(), "teleport", nil)
	if err == nil {
		t.Fatal("expected error for unknown tool")
	}
	var te *ToolError
	if !errors.As(err, &te) {
		t.Fatalf("error type = %T, want *ToolError", err)
	}
	if te.Tool != "teleport" {
		t.Errorf("ToolError.Tool = %q", te.Tool)
	}
}

func TestReadFile(t *testing.T) {
	r := newTestRegistry(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(path, []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := r.Dispatch(context.Background(), "read_file", map[string]any{"path": path})
	if err != nil {
		t.Fatal(err)
	}
	if result != "hello\n" {
		t.Errorf("result = %q", result)
	}
}

func TestReadFile_NotFound(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Dispatch(context.Background(), "read_file", map[string]any{
		"path": filepath.Join(t.TempDir(), "missing.txt"),
	})
	if err == nil {
		t.Fatal("expected error")
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error type = %T, want *NotFoundError inside ToolError", err)
	}
}

func TestReadFile_MissingArg(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.Dispatch(context.Background(), "read_file", map[string]any{}); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestWriteFile_CreatesParents(t *testing.T) {
	r := newTestRegistry(t)
	path := filepath.Join(t.TempDir(), "a", "b", "out.txt")

	result, err := r.Dispatch(context.Background(), "write_file", map[string]any{
		"path":    path,
		"content": "written",
	})
	if err != nil {
		t.Fatal(err)
	}
	info, ok := result.(map[string]any)
	if !ok {
		t.Fatalf("result type = %T", result)
	}
	if info["bytes_written"] != len("written") {
		t.Errorf("bytes_written = %v", info["bytes_written"])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "written" {
		t.Errorf("file contents = %q", data)
	}
}

func TestWriteFile_Overwrites(t *testing.T) {
	r := newTestRegistry(t)
	path := filepath.Join(t.TempDir(), "out.txt")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Dispatch(context.Background(), "write_file", map[string]any{
		"path":    path,
		"content": "new",
	}); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "new" {
		t.Errorf("file contents = %q", data)
	}
}

func TestExecuteCommand(t *testing.T) {
	r := newTestRegistry(t)
	result, err := r.Dispatch(context.Background(), "execute_command", map[string]any{
		"command": "echo out; echo err >&2; exit 3",
	})
	if err != nil {
		t.Fatal(err)
	}
	m := result.(map[string]any)
	if m["stdout"] != "out\n" {
		t.Errorf("stdout = %q", m["stdout"])
	}
	if m["stderr"] != "err\n" {
		t.Errorf("stderr = %q", m["stderr"])
	}
	if m["exit_code"] != 3 {
		t.Errorf("exit_code = %v", m["exit_code"])
	}
}

func TestExecuteCommand_WorkingDirectory(t *testing.T) {
	r := newTestRegistry(t)
	dir := t.TempDir()
	result, err := r.Dispatch(context.Background(), "execute_command", map[string]any{
		"command":           "pwd",
		"working_directory": dir,
	})
	if err != nil {
		t.Fatal(err)
	}
	m := result.(map[string]any)
	got, _ := filepath.EvalSymlinks(filepath.Clean(m["stdout"].(string)[:len(m["stdout"].(string))-1]))
	want, _ := filepath.EvalSymlinks(dir)
	if got != want {
		t.Errorf("pwd = %q, want %q", got, want)
	}
}

func TestExecuteCommand_Timeout(t *testing.T) {
	r := NewRegistry(t.TempDir(), Limits{ExecTimeout: 200 * time.Millisecond})
	start := time.Now()
	_, err := r.Dispatch(context.Background(), "execute_command", map[string]any{
		"command": "sleep 5",
	})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 3*time.Second {
		t.Error("timeout was not enforced")
	}
}

func TestListDirectory(t *testing.T) {
	r := newTestRegistry(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "b.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "a"), 0o755); err != nil {
		t.Fatal(err)
	}

	result, err := r.Dispatch(context.Background(), "list_directory", map[string]any{"path": dir})
	if err != nil {
		t.Fatal(err)
	}
	entries := result.([]map[string]any)
	if len(entries) != 2 {
		t.Fatalf("entries = %d", len(entries))
	}
	if entries[0]["name"] != "a" || entries[0]["is_dir"] != true {
		t.Errorf("entries[0] = %v", entries[0])
	}
	if entries[1]["name"] != "b.txt" || entries[1]["is_dir"] != false {
		t.Errorf("entries[1] = %v", entries[1])
	}
}

func TestListDirectory_NotFound(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Dispatch(context.Background(), "list_directory", map[string]any{
		"path": filepath.Join(t.TempDir(), "nope"),
	})
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error = %v, want *NotFoundError", err)
	}
}

func TestSearchFiles(t *testing.T) {
	r := newTestRegistry(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\nfunc main() {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("func is a keyword\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := r.Dispatch(context.Background(), "search_files", map[string]any{
		"pattern": `func \w+\(`,
		"path":    dir,
	})
	if err != nil {
		t.Fatal(err)
	}
	m := result.(map[string]any)
	matches := m["matches"].([]searchMatch)
	if len(matches) != 1 {
		t.Fatalf("matches = %d: %v", len(matches), matches)
	}
	if matches[0].Line != 2 {
		t.Errorf("line = %d", matches[0].Line)
	}
	if m["truncated"] != false {
		t.Error("unexpected truncation")
	}
}

func TestSearchFiles_Glob(t *testing.T) {
	r := newTestRegistry(t)
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.go"), []byte("target\n"), 0o644)
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("target\n"), 0o644)

	result, err := r.Dispatch(context.Background(), "search_files", map[string]any{
		"pattern": "target",
		"path":    dir,
		"glob":    "*.go",
	})
	if err != nil {
		t.Fatal(err)
	}
	matches := result.(map[string]any)["matches"].([]searchMatch)
	if len(matches) != 1 {
		t.Fatalf("matches = %d", len(matches))
	}
	if filepath.Base(matches[0].Path) != "a.go" {
		t.Errorf("match path = %q", matches[0].Path)
	}
}

func TestSearchFiles_BadPattern(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.Dispatch(context.Background(), "search_files", map[string]any{
		"pattern": "([",
	}); err == nil {
		t.Fatal("expected error for invalid regexp")
	}
}

func TestSearchFiles_Truncation(t *testing.T) {
	r := NewRegistry(t.TempDir(), Limits{MaxSearchBytes: 40, SearchTimeout: 5 * time.Second})
	dir := t.TempDir()
	big := ""
	for i := 0; i < 50; i++ {
		big += "needle line\n"
	}
	os.WriteFile(filepath.Join(dir, "big.txt"), []byte(big), 0o644)

	result, err := r.Dispatch(context.Background(), "search_files", map[string]any{
		"pattern": "needle",
		"path":    dir,
	})
	if err != nil {
		t.Fatal(err)
	}
	m := result.(map[string]any)
	if m["truncated"] != true {
		t.Error("expected truncation")
	}
	if len(m["matches"].([]searchMatch)) >= 50 {
		t.Error("matches were not capped")
	}
}
