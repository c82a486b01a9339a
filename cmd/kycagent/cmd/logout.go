package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jmcleod/kycagent/session"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and delete the stored tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closeApp, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp()

		return reportLogout(cmd.OutOrStdout(), cmd.ErrOrStderr(), a.Logout(cmd.Context()))
	},
}

// reportLogout prints the outcome of a logout. A token left in the store is
// only a warning: the session itself has ended.
func reportLogout(out, errOut io.Writer, err error) error {
	if errors.Is(err, session.ErrTokenNotCleared) {
		fmt.Fprintf(errOut, "Warning: %s\n", err)
		err = nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Signed out")
	return nil
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
