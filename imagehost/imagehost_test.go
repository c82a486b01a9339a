package imagehost_test

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/kycagent/imagehost"
)

func TestImgBBUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Contains(t, r.Header.Get("Content-Type"), "application/x-www-form-urlencoded")
		assert.Equal(t, "k1", r.PostForm.Get("key"))
		img, err := base64.StdEncoding.DecodeString(r.PostForm.Get("image"))
		assert.NoError(t, err)
		assert.Equal(t, []byte("png-bytes"), img)
		w.Write([]byte(`{"success":true,"data":{"url":"https://i.example/abc.png"}}`))
	}))
	defer srv.Close()

	up := imagehost.NewImgBB("k1", imagehost.WithEndpoint(srv.URL))
	got, err := up.Upload(t.Context(), []byte("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "https://i.example/abc.png", got)
}

func TestImgBBUploadFailures(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"HostMessage", `{"success":false,"error":{"message":"Invalid API v1 key."}}`, "Invalid API v1 key."},
		{"NoMessage", `{"success":false}`, "Image upload failed"},
		{"Malformed", `not json`, "decoding response"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := imagehost.NewImgBB("k", imagehost.WithEndpoint(srv.URL)).Upload(t.Context(), []byte("x"))
			require.Error(t, err)
			assert.ErrorIs(t, err, imagehost.ErrFailed)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestImgBBUploadEmpty(t *testing.T) {
	_, err := imagehost.NewImgBB("k").Upload(t.Context(), nil)
	assert.ErrorIs(t, err, imagehost.ErrNoImage)
}

func TestImgBBUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	u := srv.URL
	srv.Close()

	_, err := imagehost.NewImgBB("k", imagehost.WithEndpoint(u)).Upload(t.Context(), []byte("x"))
	assert.ErrorIs(t, err, imagehost.ErrFailed)
}

func TestImgBBUploadTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	up := imagehost.NewImgBB("k1", imagehost.WithEndpoint(srv.URL), imagehost.WithTimeout(50*time.Millisecond))
	_, err := up.Upload(t.Context(), []byte("png-bytes"))
	require.ErrorIs(t, err, imagehost.ErrFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
