package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/bulwark/internal/core/config"
	"github.com/vietddude/bulwark/internal/infra/dlq"
)

var listLimit int64

var listDLQCmd = &cobra.Command{
	Use:   "list-dlq",
	Short: "List entries parked in the dead letter queue",
	Run:   runListDLQ,
}

func init() {
	listDLQCmd.Flags().Int64Var(&listLimit, "limit", 50, "maximum entries to list")
	rootCmd.AddCommand(listDLQCmd)
}

func runListDLQ(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Redis.URL == "" {
		fmt.Println("No redis configured; the dead letter queue is disabled.")
		return
	}

	queue, err := dlq.NewQueue(cfg.Redis)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = queue.Close()
	}()

	entries, err := queue.List(context.Background(), listLimit)
	if err != nil {
		slog.Error("Failed to list dead letter queue", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ID\tURL\tTYPE\tREPLAYS\tNEXT RETRY\tERROR")

	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			e.ID, e.URL, e.ErrorType, e.ReplayCount,
			e.NextRetryAt.Format(time.RFC3339), e.Error)
	}
	_ = w.Flush()
}
