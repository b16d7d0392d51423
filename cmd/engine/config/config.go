package config

import (
	"time"

	"expense-reconciliation-engine/internal/generator"
	"expense-reconciliation-engine/internal/ledger"
	"expense-reconciliation-engine/internal/reconciler"
	"expense-reconciliation-engine/internal/scheduler"
	"expense-reconciliation-engine/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// DefaultDatabasePath is used when neither flag, env, nor config file
// names a database location.
const DefaultDatabasePath = "data/engine.db"

// DatabasePath resolves the SQLite database location.
func DatabasePath() string {
	if path := viper.GetString("db-path"); path != "" {
		return path
	}
	return DefaultDatabasePath
}

// CreateLoggerConfig builds the logger configuration from global flags.
// Logs go to stderr so command output stays pipeable.
func CreateLoggerConfig(verbose bool) *logger.Config {
	config := logger.DefaultConfig()
	config.Output = logger.StderrOutput

	if verbose {
		config.Level = logger.DebugLevel
	} else if level := viper.GetString("log-level"); level != "" {
		config.Level = logger.Level(level)
	}

	if format := viper.GetString("log-format"); format != "" {
		config.Format = logger.Format(format)
	}

	return config
}

// CreateLedgerConfig builds the ledger client configuration. The API
// key is read from config/env only, never a flag.
func CreateLedgerConfig() *ledger.ClientConfig {
	config := ledger.DefaultClientConfig()

	config.BaseURL = viper.GetString("ledger-url")
	config.APIKey = viper.GetString("ledger-api-key")
	if timeout := viper.GetDuration("ledger-timeout"); timeout > 0 {
		config.Timeout = timeout
	}

	return config
}

// CreateGeneratorConfig builds the generation window configuration
// with CLI overrides applied.
func CreateGeneratorConfig(monthsBack, monthsForward int) *generator.Config {
	config := generator.DefaultConfig()

	if monthsBack >= 0 {
		config.MonthsBack = monthsBack
	}
	if monthsForward >= 0 {
		config.MonthsForward = monthsForward
	}

	return config
}

// CreateReconcilerConfig builds the matching tolerances with CLI
// overrides applied.
func CreateReconcilerConfig(amountTolerance float64, dateTolerance int) *reconciler.Config {
	config := reconciler.DefaultConfig()

	if amountTolerance > 0 {
		config.AmountTolerancePercent = decimal.NewFromFloat(amountTolerance)
	}
	if dateTolerance > 0 {
		config.DateToleranceDays = dateTolerance
	}
	if distance := viper.GetInt("vendor-distance"); distance > 0 {
		config.VendorDistanceThreshold = distance
	}
	if workers := viper.GetInt("sync-workers"); workers > 0 {
		config.MaxConcurrentAccounts = workers
	}

	return config
}

// CreateSchedulerConfig builds the daemon cadence configuration.
func CreateSchedulerConfig(syncInterval time.Duration, generateAt string) *scheduler.Config {
	config := scheduler.DefaultConfig()

	if syncInterval > 0 {
		config.SyncInterval = syncInterval
	}
	if generateAt != "" {
		config.GenerateAt = generateAt
	}

	return config
}
