package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"isoquant/adapters/api"
	"isoquant/app"
	"isoquant/domain/evaluation"
	"isoquant/domain/run"
	"isoquant/internal/container"
)

func newServeCmd() *cobra.Command {
	var (
		truth     string
		threshold float64
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored runs, reports and metrics over HTTP",
		Long: `Serve the run store configured by DATABASE_URL or BADGER_DIR.

Routes: /runs, /runs/{id}, /report?format=json|md|html, /metrics, /healthz`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := container.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer c.Shutdown(context.Background())
			if c.Runs == nil {
				return errors.New("serve needs DATABASE_URL or BADGER_DIR")
			}

			gt := evaluation.NewGroundTruth(splitList(truth)...)
			evalCfg := app.EvalConfig{Criteria: evaluation.Criteria{Threshold: threshold}}
			server := api.NewServer(c.Runs, func(runs []*run.PipelineRun) evaluation.Report {
				return c.Evaluation.Evaluate(runs, gt, evalCfg)
			}, c.Recorder)

			srv := &http.Server{
				Addr:              ":" + cfg.Server.Port,
				Handler:           server,
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				logger.Info("listening on %s", srv.Addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&truth, "truth", "", "Comma-separated truly differential proteins used by /report")
	cmd.Flags().Float64Var(&threshold, "threshold", 0.05, "q-value threshold for calls")

	return cmd
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
