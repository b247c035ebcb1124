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
	"github.com/vietddude/bulwark/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show archived attempt totals per destination",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		fmt.Println("No database configured; nothing is archived.")
		return
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	summaries, err := postgres.NewAttemptRepo(db).Summarize(ctx)
	if err != nil {
		slog.Error("Failed to summarize attempts", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "DESTINATION\tATTEMPTS\tSUCCESSES\tFAILURE RATE\tLAST ATTEMPT")

	for _, s := range summaries {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%.0f%%\t%s\n",
			s.Destination, s.Attempts, s.Successes,
			s.FailureRate()*100, s.LastAttempt.Format(time.RFC3339))
	}
	_ = w.Flush()
}
