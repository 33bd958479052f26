package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcandre22/ready-mix-coach/internal/dataset"
	"github.com/marcandre22/ready-mix-coach/internal/processor"
)

var askFlags struct {
	plant, site, driver, project string
	from, to                     string
	asJSON                       bool
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question and exit",
	Example: `  coach ask "total volume today"
  coach ask --plant Laval "which driver added the most water this week"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := setup(ctx, false)
		if err != nil {
			return err
		}
		from, to, err := dataset.ParseDateRange(askFlags.from, askFlags.to, a.cfg.Location())
		if err != nil {
			return err
		}
		res := a.coach.Ask(ctx, processor.Request{
			Question: strings.Join(args, " "),
			Filter: dataset.Filter{
				Plant:   askFlags.plant,
				Site:    askFlags.site,
				Driver:  askFlags.driver,
				Project: askFlags.project,
				From:    from,
				To:      to,
			},
		})

		out := cmd.OutOrStdout()
		if askFlags.asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		fmt.Fprintln(out, res.Answer)
		if res.Notice != "" {
			fmt.Fprintln(os.Stderr, res.Notice)
		}
		if res.Source == processor.SourceUnavailable {
			return fmt.Errorf("assistant unavailable")
		}
		return nil
	},
}

func init() {
	f := askCmd.Flags()
	f.StringVar(&askFlags.plant, "plant", "", "Only tickets from this origin plant")
	f.StringVar(&askFlags.site, "site", "", "Only tickets to this job site")
	f.StringVar(&askFlags.driver, "driver", "", "Only tickets of this driver")
	f.StringVar(&askFlags.project, "project", "", "Only tickets of this project")
	f.StringVar(&askFlags.from, "from", "", "First day to include (YYYY-MM-DD)")
	f.StringVar(&askFlags.to, "to", "", "Last day to include (YYYY-MM-DD)")
	f.BoolVar(&askFlags.asJSON, "json", false, "Print the full result as JSON")
}
