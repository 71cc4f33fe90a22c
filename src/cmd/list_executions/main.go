package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tradeforge/strategy-engine/src/dbutils"
	"github.com/tradeforge/strategy-engine/src/eventmodels"
	"github.com/tradeforge/strategy-engine/src/ledger"
	"github.com/tradeforge/strategy-engine/src/utils"
)

type RunArgs struct {
	StrategyID string
	Limit      int
	GoEnv      string
}

var runCmd = &cobra.Command{
	Use:   "go run src/cmd/list_executions/main.go --strategyID S3",
	Short: "Show recent execution ledger entries for a strategy",
	Run: func(cmd *cobra.Command, args []string) {
		goEnv, err := cmd.Flags().GetString("go-env")
		if err != nil {
			log.Fatalf("error getting go-env: %v", err)
		}

		strategyID, err := cmd.Flags().GetString("strategyID")
		if err != nil {
			log.Fatalf("error getting strategyID: %v", err)
		}

		if strategyID == "" {
			log.Fatalf("--strategyID is required")
		}

		limit, err := cmd.Flags().GetInt("limit")
		if err != nil {
			log.Fatalf("error getting limit: %v", err)
		}

		if err := Run(RunArgs{StrategyID: strategyID, Limit: limit, GoEnv: goEnv}); err != nil {
			log.Fatalf("Error: %v", err)
		}
	},
}

func Run(args RunArgs) error {
	projectsDir := os.Getenv("PROJECTS_DIR")
	if projectsDir == "" {
		log.Fatalf("missing PROJECTS_DIR environment variable")
	}

	if err := utils.InitEnvironmentVariables(projectsDir, args.GoEnv); err != nil {
		log.Fatalf("error loading environment variables: %v", err)
	}

	postgresURL, err := utils.GetEnv("POSTGRES_URL")
	if err != nil {
		log.Fatalf("missing POSTGRES_URL environment variable")
	}

	db, err := dbutils.InitPostgresWithUrl(postgresURL)
	if err != nil {
		return fmt.Errorf("failed to initialize postgres: %w", err)
	}

	ledgerService := ledger.NewService(db)

	records, err := ledgerService.FetchRecentExecutions(context.Background(), eventmodels.StrategyID(args.StrategyID), args.Limit)
	if err != nil {
		return fmt.Errorf("failed to fetch executions: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Executed At", "Mode", "Status", "Duration", "Subscribers", "Error"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, record := range records {
		table.Append([]string{
			record.ExecutedAt.Format(time.RFC3339),
			string(record.Mode),
			string(record.Status),
			fmt.Sprintf("%dms", record.DurationMs),
			fmt.Sprintf("%d", record.SubscriberCount),
			record.ErrorMessage,
		})
	}

	table.Render()
	return nil
}

func main() {
	runCmd.PersistentFlags().String("go-env", "development", "The go environment to use: development or production")
	runCmd.PersistentFlags().String("strategyID", "", "Strategy whose executions to list")
	runCmd.PersistentFlags().Int("limit", 25, "Maximum number of rows to show")

	runCmd.Execute()
}
