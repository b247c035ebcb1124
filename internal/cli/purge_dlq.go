package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/bulwark/internal/core/config"
	"github.com/vietddude/bulwark/internal/infra/dlq"
)

var purgeDLQCmd = &cobra.Command{
	Use:   "purge-dlq",
	Short: "Drop every entry parked in the dead letter queue",
	Run:   runPurgeDLQ,
}

func init() {
	rootCmd.AddCommand(purgeDLQCmd)
}

func runPurgeDLQ(cmd *cobra.Command, args []string) {
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

	n, err := queue.PurgeAll(context.Background())
	if err != nil {
		slog.Error("Failed to purge dead letter queue", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Purged %d parked entries\n", n)
}
