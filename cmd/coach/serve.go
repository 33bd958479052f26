package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/marcandre22/ready-mix-coach/internal/api"
	"github.com/marcandre22/ready-mix-coach/internal/dataset"
)

const shutdownGrace = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the coach over HTTP",
	Long:  `Start the HTTP API: /ask, /kpis, /suggestions, /tools/{name}, /healthz and /metrics.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx, stop := signalContext()
		defer stop()
		return serve(ctx)
	},
}

func init() {
	serveCmd.Flags().Int("port", 8080, "HTTP port")
	serveCmd.Flags().Bool("watch", false, "Reload the data file when it changes")
	if err := viper.BindPFlags(serveCmd.Flags()); err != nil {
		fatal("Error binding serve flags", err)
	}
}

func serve(ctx context.Context) error {
	a, err := setup(ctx, true)
	if err != nil {
		return err
	}
	log := a.log.WithField("service", "ready-mix-coach")
	log.WithField("version", version).Info("starting service")

	st := a.store.Current()
	summary := dataset.Summarize(st.Tickets, a.log)
	log.WithFields(map[string]interface{}{
		"source":  st.Source,
		"tickets": summary.TotalTickets,
		"trucks":  summary.Trucks,
	}).Info("dataset loaded")

	if a.cfg.Watch {
		if a.cfg.Data == "" || dataset.IsDSN(a.cfg.Data) {
			log.Warn("watch needs a data file, ignoring")
		} else {
			go func() {
				if err := dataset.Watch(ctx, a.cfg.Data, a.store, a.datasetOptions(), 500*time.Millisecond); err != nil {
					a.log.WithError(err).Error("dataset watcher stopped")
				}
			}()
		}
	}

	srv := api.New(a.coach, a.store, a.log, a.metrics).NewHTTPServer(a.cfg.Addr())
	errc := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
