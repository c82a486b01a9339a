// Package registration validates and submits new-user sign-ups.
package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode"

	"github.com/jmcleod/kycagent/api"
	"github.com/jmcleod/kycagent/imagehost"
)

// UserType selects which fields a registration requires.
type UserType string

const (
	Existing    UserType = "existing"
	New         UserType = "new"
	Prospective UserType = "prospective"
)

// ParseUserType returns the UserType named by s.
func ParseUserType(s string) (UserType, error) {
	switch t := UserType(s); t {
	case Existing, New, Prospective:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownUserType, s)
	}
}

var (
	ErrUnknownUserType = errors.New("unknown user type")
	// ErrUpload is returned when a document could not be uploaded.
	ErrUpload = errors.New("document upload failed")
)

const (
	MsgMissingFields    = "Please fill in all required fields."
	MsgPasswordMismatch = "Passwords do not match."
	MsgShortPhone       = "Phone number must be at least 10 digits."
	MsgUserTypeFields   = "Please complete all required fields for your user type."
	MsgMissingSelfie    = "Please upload a selfie."
	MsgUploadFailed     = "Failed to upload images."
	MsgRegistered       = "Registration successful. Please sign in."

	minPhoneDigits = 10
	dateLayout     = "2006-01-02"
)

// Registration is the data captured by the sign-up form.
type Registration struct {
	Name            string
	Email           string
	Phone           string
	Password        string
	ConfirmPassword string
	UserType        UserType
	IDType          string

	// Existing customers only.
	CustomerID string

	// New and prospective customers only.
	Address      string
	IDNumber     string
	IDExpiration time.Time

	IDProof        []byte
	ProofOfAddress []byte
	Selfie         []byte
}

// Validate applies the form rules in order and reports the first failure.
func (r Registration) Validate() error {
	if r.Name == "" || r.Email == "" || r.Password == "" || r.ConfirmPassword == "" || r.UserType == "" {
		return api.Precondition(MsgMissingFields)
	}
	if r.Password != r.ConfirmPassword {
		return api.Precondition(MsgPasswordMismatch)
	}
	if r.UserType != Prospective && digits(r.Phone) < minPhoneDigits {
		return api.Precondition(MsgShortPhone)
	}
	switch r.UserType {
	case Existing:
		if r.CustomerID == "" {
			return api.Precondition(MsgUserTypeFields)
		}
	case New, Prospective:
		if r.Address == "" || r.IDNumber == "" || len(r.IDProof) == 0 ||
			(r.UserType == New && len(r.ProofOfAddress) == 0) {
			return api.Precondition(MsgUserTypeFields)
		}
	default:
		return api.Precondition(MsgUserTypeFields)
	}
	if len(r.Selfie) == 0 {
		return api.Precondition(MsgMissingSelfie)
	}
	return nil
}

func digits(s string) int {
	n := 0
	for _, c := range s {
		if unicode.IsDigit(c) {
			n++
		}
	}
	return n
}

// Signupper submits a registration payload.
type Signupper interface {
	Signup(ctx context.Context, payload map[string]any) (string, error)
}

// DeviceIdentifier supplies the stable identifier of this installation.
type DeviceIdentifier interface {
	DeviceID(ctx context.Context) (string, error)
}

// Flow runs a registration end to end.
type Flow struct {
	signup   Signupper
	uploader imagehost.Uploader
	devices  DeviceIdentifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewFlow returns a Flow. devices may be nil, in which case device_uid is
// sent empty.
func NewFlow(signup Signupper, uploader imagehost.Uploader, devices DeviceIdentifier, logger *slog.Logger) *Flow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{signup: signup, uploader: uploader, devices: devices, logger: logger, now: time.Now}
}

// Register validates r, uploads the documents that are present one after
// another and submits the payload. The first failed upload aborts.
func (f *Flow) Register(ctx context.Context, r Registration) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}

	urls := map[string]string{}
	for _, d := range []struct {
		field string
		data  []byte
	}{
		{"id_proof", r.IDProof},
		{"proof_of_address", r.ProofOfAddress},
		{"selfie", r.Selfie},
	} {
		if len(d.data) == 0 {
			continue
		}
		u, err := f.uploader.Upload(ctx, d.data)
		if err != nil {
			f.logger.Warn("document upload failed", slog.String("document", d.field), slog.String("error", err.Error()))
			return "", &api.Failure{
				Kind:    api.KindRejected,
				Message: MsgUploadFailed,
				Err:     fmt.Errorf("%w: %s: %w", ErrUpload, d.field, err),
			}
		}
		urls[d.field] = u
	}

	payload := map[string]any{
		"name":             r.Name,
		"email":            r.Email,
		"password":         r.Password,
		"confirm_password": r.ConfirmPassword,
		"id_type":          r.IDType,
		"user_type":        string(r.UserType),
		"device_uid":       f.deviceID(ctx),
	}
	for k, v := range urls {
		payload[k] = v
	}
	if r.UserType != Prospective {
		payload["phone"] = r.Phone
	}
	switch r.UserType {
	case Existing:
		payload["customer_id"] = r.CustomerID
	case New, Prospective:
		exp := r.IDExpiration
		if exp.IsZero() {
			exp = f.now()
		}
		payload["address"] = r.Address
		payload["id_number"] = r.IDNumber
		payload["id_expiration"] = exp.Format(dateLayout)
	}

	msg, err := f.signup.Signup(ctx, payload)
	if err != nil {
		return "", err
	}
	f.logger.Info("registration submitted", slog.String("user_type", string(r.UserType)))
	if msg == "" {
		msg = MsgRegistered
	}
	return msg, nil
}

func (f *Flow) deviceID(ctx context.Context) string {
	if f.devices == nil {
		return ""
	}
	id, err := f.devices.DeviceID(ctx)
	if err != nil {
		f.logger.Warn("device id unavailable", slog.String("error", err.Error()))
		return ""
	}
	return id
}
