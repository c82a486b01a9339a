package registration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/kycagent/api"
)

type stubSignup struct {
	payload map[string]any
	msg     string
	err     error
}

func (s *stubSignup) Signup(_ context.Context, payload map[string]any) (string, error) {
	s.payload = payload
	return s.msg, s.err
}

type stubUploader struct {
	n      int
	failAt int
}

func (s *stubUploader) Upload(context.Context, []byte) (string, error) {
	s.n++
	if s.n == s.failAt {
		return "", errors.New("boom")
	}
	return "https://img.test/" + string(rune('0'+s.n)), nil
}

type stubDevices string

func (d stubDevices) DeviceID(context.Context) (string, error) { return string(d), nil }

func newRegistration(t UserType) Registration {
	return Registration{
		Name:            "Sam",
		Email:           "sam@example.com",
		Phone:           "0123456789",
		Password:        "pw",
		ConfirmPassword: "pw",
		UserType:        t,
		IDType:          "passport",
		CustomerID:      "C-9",
		Address:         "1 Main St",
		IDNumber:        "X1",
		IDExpiration:    time.Date(2031, 1, 2, 0, 0, 0, 0, time.UTC),
		IDProof:         []byte("id"),
		ProofOfAddress:  []byte("poa"),
		Selfie:          []byte("me"),
	}
}

func TestValidateOrder(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Registration)
		want   string
	}{
		{"MissingEmail", func(r *Registration) { r.Email = "" }, MsgMissingFields},
		{"MissingUserType", func(r *Registration) { r.UserType = "" }, MsgMissingFields},
		{"Mismatch", func(r *Registration) { r.ConfirmPassword = "other"; r.Phone = "" }, MsgPasswordMismatch},
		{"ShortPhone", func(r *Registration) { r.Phone = "12345"; r.Address = "" }, MsgShortPhone},
		{"NewNeedsProofOfAddress", func(r *Registration) { r.ProofOfAddress = nil }, MsgUserTypeFields},
		{"NewNeedsIDNumber", func(r *Registration) { r.IDNumber = ""; r.Selfie = nil }, MsgUserTypeFields},
		{"Selfie", func(r *Registration) { r.Selfie = nil }, MsgMissingSelfie},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRegistration(New)
			tc.mutate(&r)
			err := r.Validate()
			require.ErrorIs(t, err, api.ErrPrecondition)
			assert.Equal(t, tc.want, api.UserMessage(err))
		})
	}
}

func TestValidatePerUserType(t *testing.T) {
	existing := newRegistration(Existing)
	existing.Address, existing.IDNumber, existing.IDProof, existing.ProofOfAddress = "", "", nil, nil
	assert.NoError(t, existing.Validate())
	existing.CustomerID = ""
	assert.Equal(t, MsgUserTypeFields, api.UserMessage(existing.Validate()))

	prospective := newRegistration(Prospective)
	prospective.Phone = ""
	prospective.ProofOfAddress = nil
	assert.NoError(t, prospective.Validate(), "prospective users need neither phone nor proof of address")

	odd := newRegistration("vip")
	assert.Equal(t, MsgUserTypeFields, api.UserMessage(odd.Validate()))
}

func TestRegisterPayload(t *testing.T) {
	t.Run("Existing", func(t *testing.T) {
		su := &stubSignup{}
		r := newRegistration(Existing)
		r.IDProof, r.ProofOfAddress = nil, nil
		f := NewFlow(su, &stubUploader{}, stubDevices("dev-1"), nil)

		msg, err := f.Register(t.Context(), r)
		require.NoError(t, err)
		assert.Equal(t, MsgRegistered, msg)
		p := su.payload
		assert.Equal(t, "C-9", p["customer_id"])
		assert.Equal(t, "0123456789", p["phone"])
		assert.Equal(t, "dev-1", p["device_uid"])
		assert.Equal(t, "https://img.test/1", p["selfie"])
		assert.NotContains(t, p, "address")
		assert.NotContains(t, p, "id_number")
		assert.NotContains(t, p, "id_proof")
	})

	t.Run("Prospective", func(t *testing.T) {
		su := &stubSignup{msg: "Welcome"}
		r := newRegistration(Prospective)
		r.ProofOfAddress = nil
		msg, err := NewFlow(su, &stubUploader{}, nil, nil).Register(t.Context(), r)
		require.NoError(t, err)
		assert.Equal(t, "Welcome", msg)
		p := su.payload
		assert.NotContains(t, p, "phone")
		assert.NotContains(t, p, "customer_id")
		assert.Equal(t, "2031-01-02", p["id_expiration"])
		assert.Equal(t, "https://img.test/1", p["id_proof"])
		assert.Equal(t, "https://img.test/2", p["selfie"])
		assert.Equal(t, "", p["device_uid"])
	})
}

func TestRegisterUploadFailureAborts(t *testing.T) {
	su := &stubSignup{}
	up := &stubUploader{failAt: 2}
	_, err := NewFlow(su, up, nil, nil).Register(t.Context(), newRegistration(New))
	assert.ErrorIs(t, err, ErrUpload)
	assert.Equal(t, MsgUploadFailed, api.UserMessage(err))
	assert.Equal(t, 2, up.n)
	assert.Nil(t, su.payload, "signup is never called")
}

func TestRegisterRejected(t *testing.T) {
	su := &stubSignup{err: api.Rejected("Email already registered")}
	_, err := NewFlow(su, &stubUploader{}, nil, nil).Register(t.Context(), newRegistration(New))
	assert.ErrorIs(t, err, api.ErrRejected)
}

func TestParseUserType(t *testing.T) {
	ut, err := ParseUserType("prospective")
	require.NoError(t, err)
	assert.Equal(t, Prospective, ut)
	_, err = ParseUserType("admin")
	assert.ErrorIs(t, err, ErrUnknownUserType)
}
