package cli

import (
	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Execute a single ingestion tick and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().FetchOnce(cmd.Context())
	},
}
