package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/marcandre22/ready-mix-coach/internal/assistant"
	"github.com/marcandre22/ready-mix-coach/internal/config"
	"github.com/marcandre22/ready-mix-coach/internal/dataset"
	"github.com/marcandre22/ready-mix-coach/internal/logger"
	"github.com/marcandre22/ready-mix-coach/internal/metrics"
	"github.com/marcandre22/ready-mix-coach/internal/processor"
	"github.com/marcandre22/ready-mix-coach/internal/synth"
	"github.com/marcandre22/ready-mix-coach/internal/types"
)

// Set by the linker at release time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:           "coach",
	Short:         "Ask questions about your ready-mix fleet.",
	Long:          `Ready-Mix Coach turns delivery tickets into fleet KPIs and answers dispatcher questions about them.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(versionCmd)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to config file (default .coach.yaml in . or $HOME)")
	flags.String("data", "", "Ticket source: .xlsx, .csv or .parquet path, or a sqlite://, postgres:// or mysql:// DSN (empty = synthetic data)")
	flags.String("timezone", "Local", "Timezone the reporting windows are computed in")
	flags.Float64("op-minutes", config.DefaultOpMinutes, "Operating minutes per truck per day")
	flags.Float64("utilization-benchmark", config.DefaultBenchmarkPct, "Utilization target in percent")
	flags.String("guidelines", "", "Optional guidelines YAML replacing the built-in persona")
	flags.Int64("seed", 42, "Seed for the synthetic dataset")
	flags.Bool("cache", true, "Cache KPI snapshots per dataset version, filter and minute")
	if err := viper.BindPFlags(flags); err != nil {
		fatal("Error binding root flags", err)
	}

	flags.String("model", "", "Assistant model (default gpt-4o, falls back to gpt-4o-mini)")
	flags.String("base-url", "", "OpenAI-compatible API base URL")
	flags.Duration("timeout", config.DefaultTimeout, "Assistant timeout per question")
	flags.Bool("mock", false, "Use the offline assistant")
	for key, name := range map[string]string{
		"assistant.model":    "model",
		"assistant.base-url": "base-url",
		"assistant.timeout":  "timeout",
		"assistant.mock":     "mock",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			fatal("Error binding assistant flags", err)
		}
	}
}

func initConfig() {
	config.LoadEnv()
	config.Init(viper.GetViper())
}

func fatal(msg string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// app is everything a command needs, built from the resolved config.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	store   *dataset.Holder
	coach   *processor.Coach
	metrics *metrics.Metrics
}

// setup resolves config and loads the dataset. Logs go to stderr so stdout
// stays clean for answers, reports and the MCP protocol.
func setup(ctx context.Context, withMetrics bool) (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	log := logger.NewWithOptions(logger.Options{Out: os.Stderr})

	a := &app{cfg: cfg, log: log}
	if withMetrics {
		a.metrics = metrics.New()
	}

	tickets, source, err := loadTickets(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.store = dataset.NewHolder(tickets, source)
	a.metrics.Dataset(a.store.Current().Version, len(tickets))
	a.store.OnSwap(func(s *dataset.Store) {
		a.metrics.Dataset(s.Version, len(s.Tickets))
	})

	guidelines, err := assistant.LoadGuidelines(cfg.Guidelines)
	if err != nil {
		return nil, err
	}
	asst, err := assistant.New(assistant.Config{
		BaseURL: cfg.Assistant.BaseURL,
		Model:   cfg.Assistant.Model,
		Timeout: cfg.Assistant.Timeout,
		Mock:    cfg.Assistant.Mock,
	}, log)
	if err != nil {
		log.WithError(err).Warn("assistant disabled, answering from rules only")
	}
	if oa, ok := asst.(*assistant.OpenAI); ok {
		log.WithField("models", strings.Join(oa.Models(), ",")).Info("assistant ready")
	}

	a.coach = processor.New(a.store, asst, processor.Options{
		OpMinutes:    cfg.OpMinutes,
		BenchmarkPct: cfg.Benchmark,
		Cache:        cfg.Cache,
		Guidelines:   guidelines,
		Location:     cfg.Location(),
		Log:          log,
		Metrics:      a.metrics,
	})
	return a, nil
}

func (a *app) datasetOptions() dataset.Options {
	return dataset.Options{Location: a.cfg.Location(), Log: a.log}
}

func loadTickets(ctx context.Context, cfg *config.Config, log *logger.Logger) ([]types.Ticket, string, error) {
	opts := dataset.Options{Location: cfg.Location(), Log: log}
	switch {
	case cfg.Data == "":
		log.WithField("seed", cfg.Seed).Info("no data configured, generating synthetic tickets")
		return synth.Generate(synth.Options{Seed: cfg.Seed, Now: time.Now().In(cfg.Location())}), "synthetic", nil
	case dataset.IsDSN(cfg.Data):
		tickets, err := dataset.LoadDSN(ctx, cfg.Data, opts)
		if err != nil {
			return nil, "", err
		}
		return tickets, redactDSN(cfg.Data), nil
	default:
		tickets, err := dataset.Load(cfg.Data, opts)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load dataset %s: %w", cfg.Data, err)
		}
		return tickets, cfg.Data, nil
	}
}

// redactDSN keeps the scheme and drops credentials and host details.
func redactDSN(dsn string) string {
	if i := strings.Index(dsn, "://"); i >= 0 {
		return dsn[:i] + "://…"
	}
	return "dsn"
}
