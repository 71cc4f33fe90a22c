package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tradeforge/strategy-engine/src/dbutils"
	"github.com/tradeforge/strategy-engine/src/eventmodels"
	"github.com/tradeforge/strategy-engine/src/ledger"
	"github.com/tradeforge/strategy-engine/src/utils"
)

type RunArgs struct {
	StrategyID string
	OutDir     string
	GoEnv      string
}

var runCmd = &cobra.Command{
	Use:   "go run src/cmd/export_trade_cycles/main.go --strategyID S3 --outDir /tmp",
	Short: "Export a strategy's trade cycles to CSV",
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

		outDir, err := cmd.Flags().GetString("outDir")
		if err != nil {
			log.Fatalf("error getting outDir: %v", err)
		}

		if err := Run(RunArgs{StrategyID: strategyID, OutDir: outDir, GoEnv: goEnv}); err != nil {
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

	cycles, err := ledgerService.FetchTradeCycles(context.Background(), eventmodels.StrategyID(args.StrategyID))
	if err != nil {
		return fmt.Errorf("failed to fetch trade cycles: %w", err)
	}

	if len(cycles) == 0 {
		log.Warnf("no trade cycles found for strategy %s", args.StrategyID)
		return nil
	}

	csvPath := filepath.Join(args.OutDir, fmt.Sprintf("trade_cycles_%s_%s.csv", args.StrategyID, time.Now().UTC().Format("2006-01-02_15-04-05")))

	out, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", csvPath, err)
	}
	defer out.Close()

	if err := ledger.ExportTradeCyclesToCsv(cycles, out); err != nil {
		return fmt.Errorf("failed to export trade cycles: %w", err)
	}

	fmt.Println("CSV file written to: ", csvPath)
	return nil
}

func main() {
	runCmd.PersistentFlags().String("go-env", "development", "The go environment to use: development or production")
	runCmd.PersistentFlags().String("strategyID", "", "Strategy whose trade cycles to export")
	runCmd.PersistentFlags().String("outDir", ".", "Directory to write the CSV file to")

	runCmd.Execute()
}
