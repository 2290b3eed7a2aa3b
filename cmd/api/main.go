package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/thales-maciel/rode/internal/api"
	"github.com/thales-maciel/rode/internal/config"
	"github.com/thales-maciel/rode/internal/ledger"
	"github.com/thales-maciel/rode/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "api",
	Short: "Credit-ledger API replica",
	Long:  "Stateless credit-ledger API replica. All coordination happens at the shared Postgres store; any number of replicas can run behind the load balancer. Flags can also be set via environment (DB_SOURCE, SERVER_PORT, LEDGER_*).",
	RunE:  run,
}

func init() {
	rootCmd.PersistentFlags().String("db-source", "", "Postgres connection string")
	rootCmd.PersistentFlags().String("port", "8080", "HTTP listen port")
	rootCmd.PersistentFlags().Int32("db-max-conns", 10, "Connection pool upper bound for this replica")
	rootCmd.PersistentFlags().Duration("lock-timeout", 50*time.Millisecond, "Max wait for a contended client row")
	rootCmd.PersistentFlags().Int("retry-attempts", 3, "Apply attempts before surfacing contention")

	viper.BindPFlag("database.source", rootCmd.PersistentFlags().Lookup("db-source"))
	viper.BindPFlag("server.port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("database.max_conns", rootCmd.PersistentFlags().Lookup("db-max-conns"))
	viper.BindPFlag("ledger.lock_timeout", rootCmd.PersistentFlags().Lookup("lock-timeout"))
	viper.BindPFlag("ledger.retry_attempts", rootCmd.PersistentFlags().Lookup("retry-attempts"))
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	pgStore, err := store.New(context.Background(), cfg.DBSource, cfg.DBMaxConns, cfg.LockTimeout)
	if err != nil {
		return err
	}
	defer pgStore.Close()

	// Initialize Layers
	processor := ledger.NewProcessor(pgStore, ledger.Policy{
		MaxAttempts:   cfg.RetryAttempts,
		RetryBackoff:  cfg.RetryBackoff,
		StatementSize: cfg.StatementSize,
	})
	handler := api.NewHandler(processor)

	// Router
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", handler.HealthCheck)
	handler.Register(r)

	log.Printf("Server starting on :%s (env=%s, pool=%d)", cfg.Port, cfg.Env, cfg.DBMaxConns)
	return http.ListenAndServe(":"+cfg.Port, r)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
