package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/netlayer/igmphost/core"
)

// joinCmd asks a running daemon to join a group
var joinCmd = &cobra.Command{
	Use:   "join <interface> <group>",
	Short: "Join a multicast group on an interface",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := core.CtlRequest(ctlSock(), fmt.Sprintf("join %s %s", args[0], args[1]))
		if err != nil {
			return err
		}
		fmt.Print(res)
		return nil
	},
	GroupID: "igmp",
}

func init() {
	rootCmd.AddCommand(joinCmd)
}
