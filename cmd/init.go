package cmd

import (
	"fmt"
	"net/netip"
	"os"
	"path"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/netlayer/igmphost/state"
)

// initCmd writes a starter configuration file
var initCmd = &cobra.Command{
	Use:   "init <interface>",
	Short: "Write a starter configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(state.ConfigPath); err == nil {
			return fmt.Errorf("%s already exists, refusing to overwrite", state.ConfigPath)
		}

		cfg := state.Config{
			Interfaces: []state.InterfaceCfg{
				{
					Name:   args[0],
					Groups: []netip.Addr{netip.MustParseAddr("239.255.0.1")},
				},
			},
		}
		state.ExpandConfig(&cfg)
		if err := state.ConfigValidator(&cfg); err != nil {
			return err
		}

		bytes, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(path.Dir(state.ConfigPath), 0700); err != nil {
			return err
		}
		if err := os.WriteFile(state.ConfigPath, bytes, 0600); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", state.ConfigPath)
		return nil
	},
	GroupID: "init",
}

func init() {
	rootCmd.AddCommand(initCmd)
}
