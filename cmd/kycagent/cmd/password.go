package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var passwordForm struct {
	email, token, password, confirm, oldPassword string
}

var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Reset or change a password",
}

var passwordResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Request a password reset token by email",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closeApp, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp()

		msg, err := a.TriggerPasswordReset(cmd.Context(), passwordForm.email)
		if err != nil {
			return err
		}
		printMessage(cmd, msg, "A reset token has been sent.")
		return nil
	},
}

var passwordCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that a reset token is still valid",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closeApp, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp()

		msg, err := a.CheckResetToken(cmd.Context(), passwordForm.token)
		if err != nil {
			return err
		}
		printMessage(cmd, msg, "Reset token is valid.")
		return nil
	},
}

var passwordSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set a new password with a reset token",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closeApp, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp()

		msg, err := a.SetNewPassword(cmd.Context(), passwordForm.token, passwordForm.password, passwordForm.confirm)
		if err != nil {
			return err
		}
		printMessage(cmd, msg, "Password changed.")
		return nil
	},
}

var passwordChangeCmd = &cobra.Command{
	Use:   "change",
	Short: "Change the password of the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closeApp, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp()

		msg, err := a.ChangePassword(cmd.Context(), passwordForm.oldPassword, passwordForm.password)
		if err != nil {
			return err
		}
		printMessage(cmd, msg, "Password changed.")
		return nil
	},
}

func printMessage(cmd *cobra.Command, msg, fallback string) {
	if msg == "" {
		msg = fallback
	}
	fmt.Fprintln(cmd.OutOrStdout(), msg)
}

func init() {
	rootCmd.AddCommand(passwordCmd)
	passwordCmd.AddCommand(passwordResetCmd, passwordCheckCmd, passwordSetCmd, passwordChangeCmd)

	passwordResetCmd.Flags().StringVar(&passwordForm.email, "email", "", "Account email")
	passwordCheckCmd.Flags().StringVar(&passwordForm.token, "token", "", "Reset token")
	passwordSetCmd.Flags().StringVar(&passwordForm.token, "token", "", "Reset token")
	passwordSetCmd.Flags().StringVar(&passwordForm.password, "password", "", "New password")
	passwordSetCmd.Flags().StringVar(&passwordForm.confirm, "confirm", "", "New password again")
	passwordChangeCmd.Flags().StringVar(&passwordForm.oldPassword, "old", "", "Current password")
	passwordChangeCmd.Flags().StringVar(&passwordForm.password, "new", "", "New password")
}
