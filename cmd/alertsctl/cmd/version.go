package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/alertboard/pkg/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit, and build time of alertsctl.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if GetOutput() == outputTable {
			fmt.Println(config.VersionString("alertsctl"))
			return nil
		}
		return render(os.Stdout, GetOutput(), config.GetBuildInfo(), nil)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
