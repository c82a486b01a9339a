package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session state and the screen the auth gate selects",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closeApp, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp()

		snap := a.Session.Snapshot()
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "State:\t%s\n", snap.State)
		fmt.Fprintf(tw, "Logged in:\t%t\n", snap.LoggedIn)
		fmt.Fprintf(tw, "Screen:\t%s\n", a.Router.Current())
		fmt.Fprintf(tw, "API:\t%s\n", cfg.APIURL)
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
