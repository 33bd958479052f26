package main

import (
	"github.com/spf13/cobra"

	"github.com/marcandre22/ready-mix-coach/internal/mcptools"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the coach MCP server on stdio",
	Long:  `Launch an MCP server that lets AI agents call the fleet aggregation tools.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx, stop := signalContext()
		defer stop()

		// stdio carries the protocol; setup logs to stderr.
		a, err := setup(ctx, false)
		if err != nil {
			return err
		}
		return mcptools.Serve(ctx, mcptools.NewToolbox(a.coach), version)
	},
}
