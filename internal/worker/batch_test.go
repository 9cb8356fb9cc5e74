package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ppiankov/proofpulse/internal/model"
)

// mockChecker implements Checker
type mockChecker struct {
	failFor string
}

func (m *mockChecker) Check(ctx context.Context, inputType model.InputType, raw string) (*model.Result, error) {
	time.Sleep(5 * time.Millisecond)
	if raw == m.failFor {
		return nil, errors.New("check error")
	}
	return &model.Result{JobID: "job-" + raw, InputType: inputType, Claims: []model.FinalClaim{}}, nil
}

func writeBatchFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inputs.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBatchProcessor_Process(t *testing.T) {
	processor := NewBatchProcessor(&mockChecker{failFor: "https://bad.example"}, 2)

	inputs := []Input{
		{Type: model.InputURL, Raw: "https://a.example"},
		{Type: model.InputURL, Raw: "https://bad.example"},
		{Type: model.InputText, Raw: "Inflation fell to 3 percent."},
	}
	results := processor.Process(context.Background(), inputs)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, res := range results {
		if res.Input.Raw != inputs[i].Raw {
			t.Errorf("result %d out of order: %s", i, res.Input.Raw)
		}
	}
	if results[1].Error == nil || results[1].Result != nil {
		t.Errorf("expected failure for bad input, got %+v", results[1])
	}
	if results[0].Error != nil || results[0].Result.InputType != model.InputURL {
		t.Errorf("unexpected first result: %+v", results[0])
	}
}

func TestBatchProcessor_Process_Empty(t *testing.T) {
	processor := NewBatchProcessor(&mockChecker{}, 2)
	if results := processor.Process(context.Background(), nil); len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}

func TestReadInputsFromFile(t *testing.T) {
	dir := t.TempDir()
	notes := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(notes, []byte("The bridge opened in 1937."), 0o644); err != nil {
		t.Fatal(err)
	}

	content := "https://example.com/article\n# comment\n\n" +
		"report.PDF\n" +
		"clip.mp4\n" +
		notes + "\n" +
		"text: GDP grew 2.1 percent last quarter.\n" +
		"https://example.com/article\n"

	inputs, err := ReadInputsFromFile(writeBatchFile(t, content))
	if err != nil {
		t.Fatalf("ReadInputsFromFile failed: %v", err)
	}

	want := []struct {
		typ model.InputType
		raw string
	}{
		{model.InputURL, "https://example.com/article"},
		{model.InputPDF, "report.PDF"},
		{model.InputVideo, "clip.mp4"},
		{model.InputTxt, "The bridge opened in 1937."},
		{model.InputText, "GDP grew 2.1 percent last quarter."},
	}
	if len(inputs) != len(want) {
		t.Fatalf("expected %d inputs, got %d: %+v", len(want), len(inputs), inputs)
	}
	for i, w := range want {
		if inputs[i].Type != w.typ || inputs[i].Raw != w.raw {
			t.Errorf("input %d = %s %q, want %s %q", i, inputs[i].Type, inputs[i].Raw, w.typ, w.raw)
		}
	}
}

func TestReadInputsFromFile_Errors(t *testing.T) {
	if _, err := ReadInputsFromFile("non_existent_file.txt"); err == nil {
		t.Error("expected error for non-existent file")
	}
	if _, err := ReadInputsFromFile(writeBatchFile(t, "missing-notes.txt\n")); err == nil {
		t.Error("expected error for unreadable .txt entry")
	}
}

func TestBatchProcessor_ProcessFile(t *testing.T) {
	path := writeBatchFile(t, "http://example.com\nhttps://google.com\n# comment\n\nhttp://bing.com\n")
	processor := NewBatchProcessor(&mockChecker{}, 2)

	results, err := processor.ProcessFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("expected 3 results, got %d", len(results))
	}

	if _, err := processor.ProcessFile(context.Background(), "no_such_file.txt"); err == nil {
		t.Error("expected error for non-existent file")
	}
}

func TestCheckResult_GetError(t *testing.T) {
	r1 := &CheckResult{Input: Input{Raw: "http://example.com"}}
	if r1.GetError() != nil {
		t.Errorf("expected nil error, got %v", r1.GetError())
	}

	expected := errors.New("check failed")
	r2 := &CheckResult{Error: expected}
	if r2.GetError() != expected {
		t.Errorf("expected %v, got %v", expected, r2.GetError())
	}
}
