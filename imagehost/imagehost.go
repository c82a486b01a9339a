// Package imagehost uploads document images to an external image host and
// returns their public URLs.
package imagehost

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultURL     = "https://api.imgbb.com/1/upload"
	DefaultTimeout = 60 * time.Second

	formContentType = "application/x-www-form-urlencoded;charset=UTF-8"
	fallbackMessage = "Image upload failed"
)

var (
	// ErrNoImage is returned for an empty image.
	ErrNoImage = errors.New("no image data")
	// ErrFailed matches every upload the host did not accept.
	ErrFailed = errors.New("image upload failed")
)

// Uploader stores an image and returns a URL for it.
type Uploader interface {
	Upload(ctx context.Context, image []byte) (string, error)
}

// ImgBB is an Uploader for the ImgBB upload API.
type ImgBB struct {
	endpoint   string
	key        string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

// Option configures an ImgBB uploader.
type Option func(*ImgBB)

// WithEndpoint overrides the upload URL.
func WithEndpoint(u string) Option {
	return func(i *ImgBB) {
		i.endpoint = u
	}
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(i *ImgBB) {
		i.httpClient = hc
	}
}

// WithTimeout bounds each upload. Default: 60s.
func WithTimeout(d time.Duration) Option {
	return func(i *ImgBB) {
		i.timeout = d
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *ImgBB) {
		i.logger = l
	}
}

// NewImgBB returns an uploader authenticating with key.
func NewImgBB(key string, opts ...Option) *ImgBB {
	i := &ImgBB{
		endpoint:   DefaultURL,
		key:        key,
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

type uploadResponse struct {
	Success bool `json:"success"`
	Data    struct {
		URL string `json:"url"`
	} `json:"data"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Upload posts image as base64 form data and returns data.url.
func (i *ImgBB) Upload(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", ErrNoImage
	}
	form := url.Values{}
	form.Set("key", i.key)
	form.Set("image", base64.StdEncoding.EncodeToString(image))

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("building upload request: %w", err)
	}
	req.Header.Set("Content-Type", formContentType)

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFailed, err)
	}
	defer resp.Body.Close()

	var out uploadResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decoding response: %w", ErrFailed, err)
	}
	if !out.Success || out.Data.URL == "" {
		msg := out.Error.Message
		if msg == "" {
			msg = fallbackMessage
		}
		i.logger.Warn("image upload rejected", slog.Int("status", resp.StatusCode), slog.String("message", msg))
		return "", fmt.Errorf("%w: %s", ErrFailed, msg)
	}
	i.logger.Debug("image uploaded", slog.Int("bytes", len(image)))
	return out.Data.URL, nil
}
