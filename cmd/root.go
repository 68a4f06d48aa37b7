package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/netlayer/igmphost/state"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "igmphost",
	Short: "Host-side IGMP membership daemon",
	Long: `igmphost joins and leaves IPv4 multicast groups on behalf of local
consumers, answers membership queries, and keeps each link in the oldest
IGMP version its routers require.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "init",
		Title: "Initialize igmphost",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "igmp",
		Title: "IGMP Commands",
	})
	rootCmd.PersistentFlags().StringVarP(&state.ConfigPath, "config", "c", state.ConfigPath, "daemon configuration file")
}

// ctlSock resolves the control socket path, falling back to the default
// when no config file is readable.
func ctlSock() string {
	cfg, err := state.ReadConfig(state.ConfigPath)
	if err != nil {
		return state.DefaultCtlSock
	}
	return cfg.CtlSock
}
