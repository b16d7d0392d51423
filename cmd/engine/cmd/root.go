package cmd

import (
	"fmt"
	"os"

	"expense-reconciliation-engine/cmd/engine/config"
	"expense-reconciliation-engine/internal/ledger"
	"expense-reconciliation-engine/internal/notify"
	"expense-reconciliation-engine/internal/reconciler"
	"expense-reconciliation-engine/internal/storage"
	"expense-reconciliation-engine/internal/storage/sqlite"
	"expense-reconciliation-engine/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
	dbPath  string
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "engine",
	Short: "Recurring expense and transaction reconciliation engine",
	Long: `Engine manages recurring bill definitions, generates per-period bill
instances with participant splits, and reconciles them against ledger
transactions using skip rules and fuzzy attachment.

Examples:
  engine generate
  engine sync --account-id acc-checking
  engine skip --transaction-id tx-123 --create-rule
  engine consolidate preview
  engine serve`,
	Version: getVersionString(),

	// Errors go through the CLI error handler in main.
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db-path", "", "path to the SQLite database (default data/engine.db)")

	// Bind flags to viper
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("db-path", rootCmd.PersistentFlags().Lookup("db-path"))
}

// initConfig reads in config file and ENV variables.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)

		// If a config file is specified, read it in.
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(1)
		}

		if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}

	// Read environment variables that match
	viper.SetEnvPrefix("ENGINE")
	viper.AutomaticEnv()

	initLogger()
}

// initLogger installs the global logger before any command runs.
func initLogger() {
	log, err := logger.NewLogger(config.CreateLoggerConfig(viper.GetBool("verbose")))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %s\n", err)
		os.Exit(1)
	}
	logger.SetGlobalLogger(log)
}

// openStore opens the configured SQLite database.
func openStore() (storage.Store, error) {
	return sqlite.New(config.DatabasePath())
}

// buildReconciler wires the ledger client and reconciler from the
// resolved configuration.
func buildReconciler(store storage.Store, log logger.Logger) (*reconciler.Reconciler, error) {
	source, err := ledger.NewClient(config.CreateLedgerConfig(), log)
	if err != nil {
		return nil, err
	}
	return reconciler.New(store, source, nil, notify.NewLogSink(log),
		config.CreateReconcilerConfig(syncAmountTolerance, syncDateTolerance), log)
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
