package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"expense-reconciliation-engine/cmd/engine/config"
	"expense-reconciliation-engine/internal/generator"
	"expense-reconciliation-engine/internal/notify"
	"expense-reconciliation-engine/internal/scheduler"
	"expense-reconciliation-engine/pkg/errors"
	"expense-reconciliation-engine/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// Flags for the serve command
var (
	serveListenAddr   string
	serveSyncInterval time.Duration
	serveGenerateAt   string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler daemon with metrics and trigger endpoints",
	Long: `Serve runs the background scheduler: periodic ledger sync passes and a
daily generation pass. It also exposes a small HTTP surface with
prometheus metrics and manual trigger endpoints.

Endpoints:
  GET  /metrics           prometheus metrics
  POST /trigger/sync      run a sync pass now
  POST /trigger/generate  run a generation pass now

A trigger that collides with an in-flight pass of the same kind is
dropped and answered with 409.

Examples:
  engine serve
  engine serve --listen :8080 --sync-interval 5m --generate-at 04:30`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveListenAddr, "listen", ":9090", "HTTP listen address")
	serveCmd.Flags().DurationVar(&serveSyncInterval, "sync-interval", 0, "interval between sync passes (default 15m)")
	serveCmd.Flags().StringVar(&serveGenerateAt, "generate-at", "", "daily generation time, HH:MM (default 06:00)")
}

func runServe(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	log := logger.GetGlobalLogger()
	serveLog := log.WithComponent("serve")

	gen, err := generator.New(store, notify.NewLogSink(log), config.CreateGeneratorConfig(-1, -1), log)
	if err != nil {
		return err
	}
	rec, err := buildReconciler(store, log)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	sched, err := scheduler.New(gen, rec,
		config.CreateSchedulerConfig(serveSyncInterval, serveGenerateAt),
		scheduler.NewMetrics(registry), log)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/trigger/sync", triggerHandler(func(ctx context.Context) (interface{}, error) {
		return sched.TriggerSync(ctx)
	}))
	mux.HandleFunc("/trigger/generate", triggerHandler(func(ctx context.Context) (interface{}, error) {
		return sched.TriggerGenerate(ctx)
	}))

	server := &http.Server{Addr: serveListenAddr, Handler: mux}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)

	serverErr := make(chan error, 1)
	go func() {
		serveLog.WithField("addr", serveListenAddr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		serveLog.WithField("signal", sig.String()).Info("Shutting down")
	case err := <-serverErr:
		serveLog.WithError(err).Error("HTTP server failed")
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		serveLog.WithError(err).Warn("HTTP shutdown incomplete")
	}

	return sched.Stop(30 * time.Second)
}

// triggerHandler adapts a manual pass trigger to an HTTP endpoint.
func triggerHandler(trigger func(context.Context) (interface{}, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		result, err := trigger(r.Context())
		if err != nil {
			writeJSONError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

// writeJSONError maps pass errors to HTTP statuses; a busy pass is a
// conflict, not a failure.
func writeJSONError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.IsCode(err, errors.CodeSyncBusy) {
		status = http.StatusConflict
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	body := map[string]string{"error": err.Error()}
	if engineErr, ok := errors.AsEngineError(err); ok {
		body["error"] = engineErr.Message
		body["code"] = string(engineErr.Code)
	}
	json.NewEncoder(w).Encode(body)
}
