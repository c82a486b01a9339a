package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/kycagent/registration"
)

var regForm struct {
	name, email, phone, password, confirm, userType, idType string
	customerID, address, idNumber, idExpiration           string
	idProof, proofOfAddress, selfie                       string
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a new user",
	Long: `Register an existing, new or prospective customer. Existing customers need
--customer-id; new and prospective customers need --address, --id-number and
--id-proof, and new customers also --proof-of-address. A selfie is always
required.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := registrationForm()
		if err != nil {
			return err
		}

		a, closeApp, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp()

		msg, err := a.Register(cmd.Context(), r)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	},
}

func registrationForm() (registration.Registration, error) {
	r := registration.Registration{
		Name:            regForm.name,
		Email:           regForm.email,
		Phone:           regForm.phone,
		Password:        regForm.password,
		ConfirmPassword: regForm.confirm,
		IDType:          regForm.idType,
		CustomerID:      regForm.customerID,
		Address:         regForm.address,
		IDNumber:        regForm.idNumber,
	}
	if regForm.userType != "" {
		ut, err := registration.ParseUserType(regForm.userType)
		if err != nil {
			return r, err
		}
		r.UserType = ut
	}
	if regForm.idExpiration != "" {
		t, err := time.Parse(dateLayout, regForm.idExpiration)
		if err != nil {
			return r, fmt.Errorf("invalid --id-expiration: %w", err)
		}
		r.IDExpiration = t
	}
	var err error
	if r.IDProof, err = readDocument(regForm.idProof); err != nil {
		return r, err
	}
	if r.ProofOfAddress, err = readDocument(regForm.proofOfAddress); err != nil {
		return r, err
	}
	if r.Selfie, err = readDocument(regForm.selfie); err != nil {
		return r, err
	}
	return r, nil
}

func init() {
	rootCmd.AddCommand(registerCmd)

	f := registerCmd.Flags()
	f.StringVar(&regForm.name, "name", "", "Full name")
	f.StringVar(&regForm.email, "email", "", "Email address")
	f.StringVar(&regForm.phone, "phone", "", "Phone number (at least 10 digits)")
	f.StringVar(&regForm.password, "password", "", "Password")
	f.StringVar(&regForm.confirm, "confirm-password", "", "Password again")
	f.StringVar(&regForm.userType, "user-type", "", "existing, new or prospective")
	f.StringVar(&regForm.idType, "id-type", "", "Identity document type")
	f.StringVar(&regForm.customerID, "customer-id", "", "Customer id (existing customers)")
	f.StringVar(&regForm.address, "address", "", "Address (new and prospective customers)")
	f.StringVar(&regForm.idNumber, "id-number", "", "Identity document number")
	f.StringVar(&regForm.idExpiration, "id-expiration", "", "Identity document expiry (YYYY-MM-DD)")
	f.StringVar(&regForm.idProof, "id-proof", "", "Path to the ID proof image")
	f.StringVar(&regForm.proofOfAddress, "proof-of-address", "", "Path to the proof of address image")
	f.StringVar(&regForm.selfie, "selfie", "", "Path to the selfie image")
}
