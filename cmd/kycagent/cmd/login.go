package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmcleod/kycagent/identity"
)

var (
	loginUsername string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and keep the session token",
	Long: `Sign in with a username and password. The access token is sealed in the
local token store. When --password is omitted it is read from stdin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		password := loginPassword
		if password == "" {
			p, err := readLine(cmd.InOrStdin())
			if err != nil {
				return err
			}
			password = p
		}

		a, closeApp, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp()

		creds := identity.Credentials{Username: loginUsername, Password: password}
		if err := a.SubmitLogin(cmd.Context(), creds); err != nil {
			return err
		}
		name, _ := a.Session.Snapshot().UserDetails["name"].(string)
		if name == "" {
			name = loginUsername
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", name)
		return nil
	},
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Username or email")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Password (read from stdin when empty)")
}
