package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/credence/internal/model"
	"github.com/ppiankov/credence/internal/worker"
)

var (
	concurrency  int
	batchRate    float64
	batchBurst   int
	batchOutput  string
	batchUser    string
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Verify many claims or URLs from a file in parallel",
	Long: `Batch verifies one submission per line:
- plain text is verified as a claim
- an absolute http(s) URL is verified as an article
- a JSON object {"text": ..., "url": ..., "contentType": ...} is used as-is

Blank lines, # comments and duplicates are skipped. Results are written
as JSON lines, in input order, to --output (default stdout).

Example:
  credence batch claims.txt
  credence batch claims.jsonl --concurrency 8 --rate 2 --output results.jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of concurrent workers")
	batchCmd.Flags().Float64Var(&batchRate, "rate", 0, "max verifications per second (0 = unlimited)")
	batchCmd.Flags().IntVar(&batchBurst, "burst", 1, "rate limiter burst size")
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "-", "output file for JSON lines (- for stdout)")
	batchCmd.Flags().StringVar(&batchUser, "user", "", "attribute verdicts to this user id")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for batch processing")
}

func runBatch(cmd *cobra.Command, args []string) (err error) {
	file := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	items, err := worker.ReadItemsFromFile(file)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Credence Batch Verification\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s (%d items)\n", file, len(items))
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", concurrency)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "\n")

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	var out io.Writer = os.Stdout
	if batchOutput != "-" {
		f, err := os.Create(batchOutput)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("close output: %w", closeErr)
			}
		}()
		out = f
	}

	processor := worker.NewBatchProcessor(a.service, concurrency, batchRate, batchBurst).
		WithUserID(batchUser).
		WithLogger(logger)
	results := processor.ProcessItems(ctx, items)

	if err := worker.WriteJSONL(out, results); err != nil {
		return err
	}
	printBatchSummary(worker.Summarize(results))
	return nil
}

func printBatchSummary(s worker.Summary) {
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d\n", s.Total)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", s.Failures)
	fmt.Fprintf(os.Stderr, "  Cached:    %d\n", s.Cached)

	labels := make([]string, 0, len(s.Labels))
	for l := range s.Labels {
		labels = append(labels, string(l))
	}
	sort.Strings(labels)
	for _, l := range labels {
		fmt.Fprintf(os.Stderr, "  %-10s %d\n", l+":", s.Labels[model.Label(l)])
	}
	fmt.Fprintf(os.Stderr, "\n")
}
