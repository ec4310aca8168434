package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/alertboard/internal/screen"
)

var alertLimit int

// alertCmd represents the alert command group
var alertCmd = &cobra.Command{
	Use:   "alert",
	Short: "Alert feed commands",
	Long: `Commands for reading and moderating the alert feed.

Examples:
  # Show the 20 newest alerts
  alertsctl alert list --limit 20

  # Remove an alert (admin only)
  alertsctl alert delete 3f0c9a4e-...`,
}

var alertListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alerts, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkOutput(GetOutput()); err != nil {
			return err
		}
		c, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		alerts, err := c.ListAlerts(cmd.Context(), alertLimit)
		if err != nil {
			return fmt.Errorf("list alerts: %w", err)
		}
		return render(os.Stdout, GetOutput(), alerts, func(tw *tabwriter.Writer) {
			if len(alerts) == 0 {
				fmt.Fprintln(tw, "No alerts.")
				return
			}
			fmt.Fprintln(tw, "ID\tWHEN\tBY\tTEXT")
			for _, a := range alerts {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					a.ID,
					screen.FormatTimestamp(a.Timestamp, nil),
					a.Email,
					truncate(a.Text, 60),
				)
			}
		})
	},
}

var alertDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Remove an alert (admin only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		if err := c.DeleteAlert(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("delete alert: %w", err)
		}
		fmt.Printf("Alert %s deleted.\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(alertCmd)
	alertCmd.AddCommand(alertListCmd, alertDeleteCmd)
	alertListCmd.Flags().IntVarP(&alertLimit, "limit", "n", 0, "maximum number of alerts (0 = all)")
}
