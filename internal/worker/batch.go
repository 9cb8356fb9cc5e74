package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/proofpulse/internal/model"
)

// Checker runs one input through the full pipeline
type Checker interface {
	Check(ctx context.Context, inputType model.InputType, raw string) (*model.Result, error)
}

// Input is one batch entry
type Input struct {
	Source string // Line as written in the batch file
	Type   model.InputType
	Raw    string
}

// CheckJob represents one batch check
type CheckJob struct {
	Index   int
	Input   Input
	Checker Checker
}

// Execute executes the check
func (j *CheckJob) Execute(ctx context.Context) Result {
	res, err := j.Checker.Check(ctx, j.Input.Type, j.Input.Raw)
	return &CheckResult{Index: j.Index, Input: j.Input, Result: res, Error: err}
}

// CheckResult represents the result of a check job
type CheckResult struct {
	Index  int
	Input  Input
	Result *model.Result
	Error  error
}

// GetError returns the error from the check
func (r *CheckResult) GetError() error {
	return r.Error
}

// BatchProcessor checks multiple inputs concurrently
type BatchProcessor struct {
	checker     Checker
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(checker Checker, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		checker:     checker,
		concurrency: concurrency,
	}
}

// Process checks every input and returns results in input order
func (b *BatchProcessor) Process(ctx context.Context, inputs []Input) []*CheckResult {
	if len(inputs) == 0 {
		return []*CheckResult{}
	}

	collector := NewResultCollector()
	pool := NewPool(b.concurrency, len(inputs), collector.Add)
	pool.Start()

	out := make([]*CheckResult, len(inputs))
	for i, in := range inputs {
		if err := pool.Submit(ctx, &CheckJob{Index: i, Input: in, Checker: b.checker}); err != nil {
			out[i] = &CheckResult{Index: i, Input: in, Error: err}
		}
	}
	pool.Wait()

	for _, r := range collector.Results() {
		cr := r.(*CheckResult)
		out[cr.Index] = cr
	}
	return out
}

// ProcessFile reads inputs from a file and checks them concurrently
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*CheckResult, error) {
	inputs, err := ReadInputsFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read inputs: %w", err)
	}

	return b.Process(ctx, inputs), nil
}

// ReadInputsFromFile reads batch entries, one per line. Blank lines and
// lines starting with # are skipped; repeated lines are checked once.
func ReadInputsFromFile(filePath string) ([]Input, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var inputs []Input
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if seen[line] {
			continue
		}
		seen[line] = true

		in, err := InferInput(line)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return inputs, nil
}

var videoExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".avi": true, ".mkv": true, ".webm": true,
	".m4a": true, ".mp3": true, ".wav": true,
}

// InferInput classifies one batch line: http(s) URLs, then local files by
// extension, and anything else as inline text. A .txt file is read in full.
func InferInput(line string) (Input, error) {
	in := Input{Source: line, Raw: line}

	lower := strings.ToLower(line)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		in.Type = model.InputURL
		return in, nil
	}

	if rest, ok := strings.CutPrefix(line, "text:"); ok {
		in.Type = model.InputText
		in.Raw = strings.TrimSpace(rest)
		return in, nil
	}

	switch ext := strings.ToLower(filepath.Ext(line)); {
	case ext == ".pdf":
		in.Type = model.InputPDF
	case videoExtensions[ext]:
		in.Type = model.InputVideo
	case ext == ".txt":
		data, err := os.ReadFile(line)
		if err != nil {
			return Input{}, fmt.Errorf("read %s: %w", line, err)
		}
		in.Type = model.InputTxt
		in.Raw = string(data)
	default:
		in.Type = model.InputText
	}
	return in, nil
}
