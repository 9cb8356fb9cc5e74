package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/proofpulse/internal/model"
	"github.com/ppiankov/proofpulse/internal/worker"
)

var (
	outJSON      string
	inputTypeArg string
	checkTimeout time.Duration
	persist      bool
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check <input>",
	Short: "Verify the claims in a single input",
	Long: `Check runs one input through the full pipeline and prints a verdict
per claim. The input type is inferred unless --type is given:
http(s) URLs, .pdf files, video files, .txt files (read inline), and
anything else as literal text.

Example:
  proofpulse check "The Eiffel Tower is 330 metres tall."
  proofpulse check https://example.com/article --json result.json
  proofpulse check talk.mp4 --llm-provider openai`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVar(&outJSON, "json", "-", "output JSON path (- for stdout)")
	checkCmd.Flags().StringVar(&inputTypeArg, "type", "", "input type (text, txt, url, pdf, video); inferred when empty")
	checkCmd.Flags().DurationVar(&checkTimeout, "timeout", 5*time.Minute, "overall check timeout")
	checkCmd.Flags().BoolVar(&persist, "persist", false, "keep the job in the configured store instead of an in-memory one")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if !persist {
		cfg.Store.Backend = "memory"
	}

	in, err := resolveInput(args[0], inputTypeArg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer func() { _ = store.Close() }()

	p, err := buildPipeline(ctx, cfg, store, logger)
	if err != nil {
		return err
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Checking %s input: %s\n\n", in.Type, oneLine(in.Source, 80))
	}

	result, err := p.Check(ctx, in.Type, in.Raw)
	if err != nil {
		return fmt.Errorf("check failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "✓ Finished in %.2fs, %d claims\n\n", result.ProcessingTime, len(result.Claims))
	printSummary(os.Stderr, result)
	fmt.Fprintln(os.Stderr)

	return writeResultJSON(result, outJSON)
}

// resolveInput applies an explicit --type, or infers one from arg
func resolveInput(arg, typ string) (worker.Input, error) {
	if typ == "" {
		return worker.InferInput(arg)
	}

	inputType, ok := model.ParseInputType(typ)
	if !ok {
		return worker.Input{}, fmt.Errorf("invalid --type %q (supported: text, txt, url, pdf, video)", typ)
	}
	in := worker.Input{Source: arg, Type: inputType, Raw: arg}
	if inputType == model.InputTxt {
		data, err := os.ReadFile(arg)
		if err != nil {
			return worker.Input{}, fmt.Errorf("read %s: %w", arg, err)
		}
		in.Raw = string(data)
	}
	return in, nil
}
