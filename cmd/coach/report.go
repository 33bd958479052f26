package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/marcandre22/ready-mix-coach/internal/dataset"
	"github.com/marcandre22/ready-mix-coach/internal/report"
	"github.com/marcandre22/ready-mix-coach/internal/window"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the fleet KPI report",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := setup(ctx, false)
		if err != nil {
			return err
		}
		format, err := report.ParseFormat(viper.GetString("output"))
		if err != nil {
			return err
		}
		w, err := window.Parse(viper.GetString("window"))
		if err != nil {
			return err
		}
		opts := report.Options{
			Format:       format,
			Window:       w,
			BenchmarkPct: a.cfg.Benchmark,
			TopN:         viper.GetInt("top"),
			UseColors:    viper.GetBool("color") && !color.NoColor,
			Precision:    viper.GetInt("precision"),
		}

		st := a.store.Current()
		snap := a.coach.Snapshot(dataset.Filter{}, a.coach.Now())
		r := report.Build(snap, dataset.Summarize(st.Tickets, a.log), opts)
		return report.Write(cmd.OutOrStdout(), r, opts)
	},
}

func init() {
	f := reportCmd.Flags()
	f.String("output", "text", "Output format: text or json")
	f.String("window", "today", "Window for rankings and stages")
	f.Int("top", 5, "Number of drivers to rank")
	f.Bool("color", true, "Colorize the text report")
	f.Int("precision", 1, "Decimal precision for numbers")
	if err := viper.BindPFlags(f); err != nil {
		fatal("Error binding report flags", err)
	}
}
