package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/netlayer/igmphost/core"
)

// leaveCmd asks a running daemon to drop a membership
var leaveCmd = &cobra.Command{
	Use:   "leave <interface> <group>",
	Short: "Leave a multicast group on an interface",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := core.CtlRequest(ctlSock(), fmt.Sprintf("leave %s %s", args[0], args[1]))
		if err != nil {
			return err
		}
		fmt.Print(res)
		return nil
	},
	GroupID: "igmp",
}

func init() {
	rootCmd.AddCommand(leaveCmd)
}
