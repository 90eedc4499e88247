package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/enrichops/overseer/internal/core/config"
	"github.com/enrichops/overseer/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the latest run and check verdict for each agent",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		fmt.Fprintln(os.Stderr, "status requires a database; set database.url in config")
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

	rows, err := db.QueryxContext(ctx, `
		SELECT DISTINCT ON (r.agent)
			r.agent, r.status, r.scheduled_at,
			r.items_updated + r.items_created AS yield,
			COALESCE(c.check_status, 'pending') AS verdict,
			COALESCE(c.action_taken, 'none') AS action
		FROM runs r
		LEFT JOIN check_records c ON c.run_id = r.id
		ORDER BY r.agent, r.scheduled_at DESC, c.checked_at DESC NULLS LAST`)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query failed: %v\n", err)
		os.Exit(1)
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT\tSTATUS\tSCHEDULED\tYIELD\tVERDICT\tACTION")

	for rows.Next() {
		var (
			agent, status, verdict, action string
			scheduledAt                    time.Time
			yield                          int
		)
		if err := rows.Scan(&agent, &status, &scheduledAt, &yield, &verdict, &action); err != nil {
			fmt.Fprintf(os.Stderr, "scan failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			agent, status, scheduledAt.Format(time.RFC3339), yield, verdict, action)
	}
	if err := rows.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "iteration failed: %v\n", err)
		os.Exit(1)
	}

	_ = w.Flush()
}
