package kyc

import (
	"errors"

	"github.com/jmcleod/kycagent/api"
)

var (
	// ErrUpload is returned when a document could not be uploaded. No
	// application is created when it occurs.
	ErrUpload = errors.New("document upload failed")
	// ErrTokenRejected is returned when the server refuses the session token.
	ErrTokenRejected = api.ErrTokenRejected
)

// User-facing messages.
const (
	MsgMissingFields = "Please fill in all required fields."
	MsgMissingImages = "Please upload all required images."
	MsgUploadFailed  = "Failed to upload images."
	MsgCreated       = "KYC Application created successfully."
	MsgCreateFailed  = "An error occurred."
	MsgListFailed    = "Failed to fetch KYC Applications."
)
