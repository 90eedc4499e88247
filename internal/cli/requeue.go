package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/enrichops/overseer/internal/core/config"
	"github.com/enrichops/overseer/internal/infra/storage/postgres"
)

var requeueCmd = &cobra.Command{
	Use:   "requeue-stuck",
	Short: "Mark runs stuck past the timeout budget as timed out",
	Long:  `Transitions runs still in 'running' beyond the configured timeout budget to 'timeout', so the next supervision pass can retry or escalate them.`,
	Run:   runRequeue,
}

func init() {
	rootCmd.AddCommand(requeueCmd)
}

func runRequeue(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		fmt.Fprintln(os.Stderr, "requeue-stuck requires a database; set database.url in config")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	res, err := db.ExecContext(ctx, `
		UPDATE runs
		SET status = 'timeout',
		    completed_at = NOW(),
		    duration_ms = EXTRACT(EPOCH FROM (NOW() - started_at)) * 1000
		WHERE status = 'running'
		  AND started_at < NOW() - $1::interval`,
		fmt.Sprintf("%d seconds", int(cfg.Supervision.TimeoutBudget.Seconds())))
	if err != nil {
		fmt.Fprintf(os.Stderr, "update failed: %v\n", err)
		os.Exit(1)
	}

	n, _ := res.RowsAffected()
	fmt.Printf("Marked %d stuck runs as timed out\n", n)
}
