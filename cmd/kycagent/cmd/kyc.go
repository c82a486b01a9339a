package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/kycagent/kyc"
)

const dateLayout = "2006-01-02"

var kycCmd = &cobra.Command{
	Use:   "kyc",
	Short: "Submit and list KYC applications",
}

var kycForm struct {
	name, login, phone, idType, idNumber, idExpiry string
	currentAddress, permanentAddress              string
	idDocument, proofOfAddress, selfie            string
}

var kycSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Upload the documents and create a KYC application",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := kycApplication()
		if err != nil {
			return err
		}

		a, closeApp, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp()

		msg, err := a.SubmitKYC(cmd.Context(), application)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	},
}

var kycListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the KYC applications of the signed-in agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closeApp, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp()

		recs, err := a.ListKYC(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(recs) == 0 {
			fmt.Fprintln(out, "No KYC applications.")
			return nil
		}
		for i, rec := range recs {
			if i > 0 {
				fmt.Fprintln(out)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, k := range rec.Keys() {
				fmt.Fprintf(tw, "%s:\t%v\n", kyc.FormatLabel(k), rec[k])
			}
			if err := tw.Flush(); err != nil {
				return err
			}
		}
		return nil
	},
}

func kycApplication() (kyc.Application, error) {
	app := kyc.Application{
		Name:             kycForm.name,
		Login:            kycForm.login,
		Phone:            kycForm.phone,
		IDType:           kycForm.idType,
		IDNumber:         kycForm.idNumber,
		CurrentAddress:   kycForm.currentAddress,
		PermanentAddress: kycForm.permanentAddress,
	}
	if kycForm.idExpiry != "" {
		t, err := time.Parse(dateLayout, kycForm.idExpiry)
		if err != nil {
			return app, fmt.Errorf("invalid --id-expiry: %w", err)
		}
		app.IDExpiryDate = t
	}
	var err error
	if app.Documents.IDDocument, err = readDocument(kycForm.idDocument); err != nil {
		return app, err
	}
	if app.Documents.ProofOfAddress, err = readDocument(kycForm.proofOfAddress); err != nil {
		return app, err
	}
	if app.Documents.Selfie, err = readDocument(kycForm.selfie); err != nil {
		return app, err
	}
	return app, nil
}

// readDocument returns the file at path, or nil for an empty path.
func readDocument(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}
	return data, nil
}

func init() {
	rootCmd.AddCommand(kycCmd)
	kycCmd.AddCommand(kycSubmitCmd, kycListCmd)

	f := kycSubmitCmd.Flags()
	f.StringVar(&kycForm.name, "name", "", "Customer name")
	f.StringVar(&kycForm.login, "login", "", "Customer login")
	f.StringVar(&kycForm.phone, "phone", "", "Customer phone number")
	f.StringVar(&kycForm.idType, "id-type", "", "Identity document type")
	f.StringVar(&kycForm.idNumber, "id-number", "", "Identity document number")
	f.StringVar(&kycForm.idExpiry, "id-expiry", "", "Identity document expiry date (YYYY-MM-DD, default today)")
	f.StringVar(&kycForm.currentAddress, "current-address", "", "Current address")
	f.StringVar(&kycForm.permanentAddress, "permanent-address", "", "Permanent address")
	f.StringVar(&kycForm.idDocument, "id-document", "", "Path to the identity document image")
	f.StringVar(&kycForm.proofOfAddress, "proof-of-address", "", "Path to the proof of address image")
	f.StringVar(&kycForm.selfie, "selfie", "", "Path to the selfie image")
}
