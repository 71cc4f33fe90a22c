package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tradeforge/strategy-engine/src/coordination"
	"github.com/tradeforge/strategy-engine/src/credentials"
	"github.com/tradeforge/strategy-engine/src/dbutils"
	"github.com/tradeforge/strategy-engine/src/eventmodels"
	"github.com/tradeforge/strategy-engine/src/ledger"
	"github.com/tradeforge/strategy-engine/src/marketplace"
	"github.com/tradeforge/strategy-engine/src/orchestrator"
	"github.com/tradeforge/strategy-engine/src/progressapi"
	"github.com/tradeforge/strategy-engine/src/progresshub"
	"github.com/tradeforge/strategy-engine/src/provisioner"
	"github.com/tradeforge/strategy-engine/src/scheduler"
	"github.com/tradeforge/strategy-engine/src/utils"
)

type RunArgs struct {
	GoEnv      string
	ServerPort int
}

var runCmd = &cobra.Command{
	Use:   "go run src/cmd/worker/main.go",
	Short: "Run a strategy execution worker: scheduler fleet member plus progress API",
	Run: func(cmd *cobra.Command, args []string) {
		goEnv, err := cmd.Flags().GetString("go-env")
		if err != nil {
			log.Fatalf("error getting go-env: %v", err)
		}

		serverPort, err := cmd.Flags().GetInt("port")
		if err != nil {
			log.Fatalf("error getting port: %v", err)
		}

		if err := Run(RunArgs{GoEnv: goEnv, ServerPort: serverPort}); err != nil {
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

	redisURL, err := utils.GetEnv("REDIS_URL")
	if err != nil {
		log.Fatalf("missing REDIS_URL environment variable")
	}

	encryptionKeyB64, err := utils.GetEnv("CREDENTIAL_ENCRYPTION_KEY")
	if err != nil {
		log.Fatalf("missing CREDENTIAL_ENCRYPTION_KEY environment variable")
	}

	encryptionKey, err := base64.StdEncoding.DecodeString(encryptionKeyB64)
	if err != nil {
		log.Fatalf("CREDENTIAL_ENCRYPTION_KEY is not valid base64: %v", err)
	}

	strategiesRoot, err := utils.GetEnv("STRATEGIES_ROOT")
	if err != nil {
		log.Fatalf("missing STRATEGIES_ROOT environment variable")
	}

	envCacheDir := os.Getenv("ENV_CACHE_DIR")
	if envCacheDir == "" {
		envCacheDir = "/var/cache/strategy-engine/envs"
	}

	hostInterpreter := os.Getenv("PYTHON_INTERPRETER")
	if hostInterpreter == "" {
		hostInterpreter = "python3"
	}

	db, err := dbutils.InitPostgresWithUrl(postgresURL)
	if err != nil {
		return fmt.Errorf("failed to initialize postgres: %w", err)
	}

	redisOptions, err := redis.ParseURL(redisURL)
	if err != nil {
		return fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}

	redisClient := redis.NewClient(redisOptions)
	defer redisClient.Close()

	kv := coordination.NewRedisStore(redisClient)
	settingsStore := coordination.NewGormSettingsStore(db)
	coordinationService := coordination.NewService(kv, settingsStore, EventBus.New())

	strategyStore := marketplace.NewGormStore(db, strategiesRoot)
	envProvisioner := provisioner.NewProvisioner(envCacheDir, hostInterpreter)
	resolver := credentials.NewResolver(credentials.NewGormSubscriptionStore(db), credentials.NewAesDecryptor(encryptionKey))
	hub := progresshub.NewHub()
	executionLedger := ledger.NewService(db)

	config := orchestrator.DefaultConfig()
	config.BacktestTimeout = utils.GetEnvDuration("BACKTEST_TIMEOUT", config.BacktestTimeout)
	config.LiveTimeout = utils.GetEnvDuration("LIVE_TIMEOUT", config.LiveTimeout)

	executor := orchestrator.NewOrchestrator(strategyStore, envProvisioner, resolver, hub, executionLedger, config)

	lockTTL := utils.GetEnvDuration("LOCK_TTL", 300*time.Second)
	interval := utils.GetEnvDuration("SCHEDULE_INTERVAL", time.Minute)

	worker := scheduler.NewWorker(coordinationService, executor, executionLedger, lockTTL, interval)

	schedules, err := loadSchedules(context.Background(), strategyStore)
	if err != nil {
		return fmt.Errorf("failed to load schedules: %w", err)
	}

	log.WithFields(log.Fields{
		"owner_id":  worker.OwnerID(),
		"schedules": len(schedules),
		"lock_ttl":  lockTTL,
	}).Info("worker configured")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	router := mux.NewRouter()
	progressapi.SetupHandler(router.PathPrefix("/strategies").Subrouter(), hub)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", args.ServerPort),
		Handler: router,
	}

	go func() {
		log.Infof("progress API listening on :%d", args.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("progress API server stopped: %v", err)
		}
	}()

	worker.Run(ctx, schedules)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}

// loadSchedules turns every published marketplace listing into a standing
// schedule. SCHEDULE_MODE flips the whole fleet between live and backtest
// execution, defaulting to live.
func loadSchedules(ctx context.Context, store *marketplace.GormStore) ([]scheduler.Schedule, error) {
	records, err := store.ListPublished(ctx)
	if err != nil {
		return nil, err
	}

	mode := eventmodels.RunModeLive
	if strings.EqualFold(os.Getenv("SCHEDULE_MODE"), string(eventmodels.RunModeBacktest)) {
		mode = eventmodels.RunModeBacktest
	}

	schedules := make([]scheduler.Schedule, 0, len(records))
	for _, record := range records {
		schedules = append(schedules, scheduler.Schedule{
			StrategyID: eventmodels.StrategyID(record.StrategyID),
			Mode:       mode,
		})
	}

	return schedules, nil
}

func main() {
	runCmd.PersistentFlags().String("go-env", "development", "The go environment to use: development or production")
	runCmd.PersistentFlags().Int("port", 8090, "Port for the progress API server")

	runCmd.Execute()
}
