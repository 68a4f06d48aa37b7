package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/netlayer/igmphost/core"
)

// statusCmd prints the membership state of a running daemon
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-interface membership state and recently seen queriers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := core.CtlRequest(ctlSock(), "status")
		if err != nil {
			return err
		}
		fmt.Print(res)
		return nil
	},
	GroupID: "igmp",
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
