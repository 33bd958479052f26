package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcandre22/ready-mix-coach/internal/dataset"
	"github.com/marcandre22/ready-mix-coach/internal/types"
)

var exportCmd = &cobra.Command{
	Use:   "export <destination>",
	Short: "Write the current dataset to a file or database",
	Long: `Export the loaded tickets. The destination picks the format: .csv, .xlsx
or .parquet files, or a sqlite://, postgres:// or mysql:// DSN, which gets
a tickets table.`,
	Example: `  coach export tickets.parquet
  coach --data tickets.xlsx export sqlite://fleet.db`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := setup(ctx, false)
		if err != nil {
			return err
		}
		dest := args[0]
		tickets := a.store.Current().Tickets

		switch {
		case dataset.IsDSN(dest):
			err = dataset.ExportDSN(ctx, dest, tickets)
		default:
			err = exportFile(dest, tickets)
		}
		if err != nil {
			return fmt.Errorf("export to %s failed: %w", dest, err)
		}
		a.log.WithField("tickets", len(tickets)).WithField("destination", redactDSN(dest)).Info("export complete")
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d tickets.\n", len(tickets))
		return nil
	},
}

func exportFile(path string, tickets []types.Ticket) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := dataset.WriteCSV(f, tickets); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	case ".xlsx":
		return dataset.WriteXLSX(path, tickets)
	case ".parquet":
		return dataset.WriteParquet(tickets, path)
	}
	return fmt.Errorf("unsupported export format %q", filepath.Ext(path))
}
