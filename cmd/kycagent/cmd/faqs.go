package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var faqsCmd = &cobra.Command{
	Use:   "faqs",
	Short: "Show the frequently asked questions",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closeApp, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp()

		entries, fromServer := a.FAQs(cmd.Context())
		if !fromServer {
			logger.Debug("showing built-in faqs")
		}
		out := cmd.OutOrStdout()
		for i, e := range entries {
			if i > 0 {
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "%d. %s\n   %s\n", i+1, e.Question, e.Answer)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(faqsCmd)
}
