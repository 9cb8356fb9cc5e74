package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ppiankov/proofpulse/internal/model"
)

// writeResultJSON writes result as indented JSON to path, or stdout for "-"
func writeResultJSON(result *model.Result, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	data = append(data, '\n')

	if path == "" || path == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// printSummary renders one line per claim
func printSummary(w io.Writer, result *model.Result) {
	if len(result.Claims) == 0 {
		fmt.Fprintf(w, "  No factual claims found\n")
		return
	}
	for _, c := range result.Claims {
		fmt.Fprintf(w, "  %s %3d/100  %-19s %s\n", verdictMark(c.FinalVerdict), c.FinalScore, c.FinalVerdict, oneLine(c.ClaimText, 80))
	}
}

func verdictMark(v model.Verdict) string {
	switch v {
	case model.VerdictSupported, model.VerdictMostlySupported:
		return "✓"
	case model.VerdictContradicted, model.VerdictMostlyContradicted:
		return "✗"
	default:
		return "?"
	}
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// sanitizeFilename turns an input source into a short file-safe slug
func sanitizeFilename(s string) string {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "https://"), "http://")
	s = unsafeFilename.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-.")
	if len(s) > 100 {
		s = s[:100]
	}
	if s == "" {
		return "input"
	}
	return s
}
