// Package kyc submits and lists KYC applications on behalf of the signed-in
// agent.
package kyc

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jmcleod/kycagent/api"
	"github.com/jmcleod/kycagent/imagehost"
)

const (
	EndpointCreate = "/api/kyc/create"
	EndpointList   = "/api/kyc/get"

	dateLayout = "2006-01-02"
)

// Documents are the three images attached to an application.
type Documents struct {
	IDDocument     []byte
	ProofOfAddress []byte
	Selfie         []byte
}

// Application is the data captured for one KYC application.
type Application struct {
	Name             string
	Login            string
	Phone            string
	IDType           string
	IDNumber         string
	IDExpiryDate     time.Time
	CurrentAddress   string
	PermanentAddress string
	Documents        Documents
}

// Validate checks the fields required before anything is uploaded.
func (a Application) Validate() error {
	if a.Name == "" || a.Login == "" || a.IDType == "" || a.IDNumber == "" {
		return api.Precondition(MsgMissingFields)
	}
	d := a.Documents
	if len(d.IDDocument) == 0 || len(d.ProofOfAddress) == 0 || len(d.Selfie) == 0 {
		return api.Precondition(MsgMissingImages)
	}
	return nil
}

// Record is one application as returned by the server. Its schema belongs
// to the backend.
type Record map[string]any

// Keys returns the record's keys in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FormatLabel turns a record key such as "id_type" into "Id Type".
func FormatLabel(key string) string {
	// Casers are stateful; one per call.
	return cases.Title(language.English).String(strings.ReplaceAll(key, "_", " "))
}

// Service talks to the KYC endpoints.
type Service struct {
	client   *api.Client
	uploader imagehost.Uploader
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithClock overrides the clock used for a missing expiry date.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New returns a Service that uploads documents through uploader.
func New(client *api.Client, uploader imagehost.Uploader, opts ...Option) *Service {
	s := &Service{
		client:   client,
		uploader: uploader,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates app, uploads its documents one after another and creates
// the application. The first failed upload aborts the submission.
func (s *Service) Submit(ctx context.Context, accessToken string, app Application) (string, error) {
	if err := app.Validate(); err != nil {
		return "", err
	}

	docs := []struct {
		name string
		data []byte
	}{
		{"id_document", app.Documents.IDDocument},
		{"proof_of_address", app.Documents.ProofOfAddress},
		{"selfie", app.Documents.Selfie},
	}
	urls := make([]string, len(docs))
	for i, d := range docs {
		u, err := s.uploader.Upload(ctx, d.data)
		if err != nil {
			s.logger.Warn("document upload failed", slog.String("document", d.name), slog.String("error", err.Error()))
			return "", &api.Failure{
				Kind:    api.KindRejected,
				Message: MsgUploadFailed,
				Err:     fmt.Errorf("%w: %s: %w", ErrUpload, d.name, err),
			}
		}
		urls[i] = u
	}

	expiry := app.IDExpiryDate
	if expiry.IsZero() {
		expiry = s.now()
	}
	payload := map[string]string{
		"name":                 app.Name,
		"login":                app.Login,
		"phone":                app.Phone,
		"id_type":              app.IDType,
		"id_number":            app.IDNumber,
		"id_expiry_date":       expiry.Format(dateLayout),
		"id_document_url":      urls[0],
		"proof_of_address_url": urls[1],
		"selfie_url":           urls[2],
		"current_address":      app.CurrentAddress,
		"permanent_address":    app.PermanentAddress,
	}

	resp, err := s.client.Do(ctx, api.Request{
		Method:   http.MethodPost,
		Endpoint: EndpointCreate,
		Header:   map[string]string{api.HeaderAccessToken: accessToken},
		Payload:  payload,
	})
	if err != nil {
		return "", err
	}
	if resp.TokenRejected() {
		return "", ErrTokenRejected
	}
	if !resp.Status() {
		return "", resp.Failure(MsgCreateFailed)
	}
	s.logger.Info("kyc application created", slog.String("login", app.Login))
	if m := resp.Message(); m != "" {
		return m, nil
	}
	return MsgCreated, nil
}

type listResponse struct {
	Status       any      `json:"status"`
	Applications []Record `json:"kyc_applications"`
}

// List returns the applications visible to the signed-in agent.
func (s *Service) List(ctx context.Context, accessToken string) ([]Record, error) {
	resp, err := s.client.Do(ctx, api.Request{
		Method:   http.MethodGet,
		Endpoint: EndpointList,
		Header:   map[string]string{api.HeaderAccessToken: accessToken},
	})
	if err != nil {
		return nil, err
	}
	if resp.TokenRejected() {
		return nil, ErrTokenRejected
	}
	if !resp.Status() {
		return nil, resp.Failure(MsgListFailed)
	}
	var out listResponse
	if err := resp.Decode(&out); err != nil {
		return nil, api.Rejected(MsgListFailed)
	}
	return out.Applications, nil
}
