package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/credence/internal/model"
	"github.com/ppiankov/credence/internal/store"
)

var (
	historyLimit int
	historyUser  string
	historyJSON  bool
	historyStats bool
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent verdicts from the store",
	Long: `History prints the most recent verdicts, newest first.

Example:
  credence history --store sqlite --limit 50
  credence history --user 1c9e... --json
  credence history --stats`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", store.DefaultLimit, "number of verdicts to show (max 100)")
	historyCmd.Flags().StringVar(&historyUser, "user", "", "only verdicts by this user id")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print JSON instead of a table")
	historyCmd.Flags().BoolVar(&historyStats, "stats", false, "print verdict counts instead of the list")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if historyStats {
		stats, err := st.Stats(ctx, historyUser)
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		return printJSON(stats)
	}

	list, err := st.FetchRecent(ctx, historyLimit, historyUser)
	if err != nil {
		return fmt.Errorf("fetch history: %w", err)
	}
	if historyJSON {
		return printJSON(list)
	}
	return printHistoryTable(list)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printHistoryTable(list []model.Verdict) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tTYPE\tVERDICT\tCONF\tCONTENT")
	for _, v := range list {
		content := v.ContentText
		if v.ContentType == model.ContentURL {
			content = v.ContentURL
		}
		if v.Meta.CachedFrom != "" {
			content += " (cached)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			v.CreatedAt.Local().Format("2006-01-02 15:04"),
			v.ContentType, v.Label, v.Confidence, truncate(content, 60))
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
