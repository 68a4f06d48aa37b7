package cmd

import (
	"github.com/spf13/cobra"

	"github.com/netlayer/igmphost/core"
	"github.com/netlayer/igmphost/state"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the igmphost daemon",
	Long:  `This will run igmphost on the current host. It needs CAP_NET_RAW to open the raw IGMP sockets.`,
	Run: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		logPath, _ := cmd.Flags().GetString("log")
		err := core.Bootstrap(state.ConfigPath, logPath, verbose)
		if err != nil {
			panic(err)
		}
	},
	GroupID: "igmp",
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	runCmd.Flags().StringP("log", "l", "", "Also write logs to this file")
}
