package api_test

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/kycagent/api"
)

func TestDoSendsHeadersAndPayload(t *testing.T) {
	var heads atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			heads.Add(1)
			return
		}
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/auth/get_tokens", r.URL.Path)
		assert.Equal(t, api.ContentType, r.Header.Get("Content-Type"))
		assert.Equal(t, "12345", r.Header.Get(api.HeaderClientID))
		assert.Equal(t, "t1", r.Header.Get(api.HeaderAccessToken))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "kyc_db", body["db"])
		w.Write([]byte(`{"access_token":"t1","name":"A"}`))
	}))
	defer srv.Close()

	c := api.New(srv.URL+"/", "12345")
	resp, err := c.Do(t.Context(), api.Request{
		Method:   http.MethodPost,
		Endpoint: "/api/auth/get_tokens",
		Header:   map[string]string{api.HeaderAccessToken: "t1"},
		Payload:  map[string]string{"db": "kyc_db"},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), heads.Load(), "one HEAD probe per request")
	assert.Equal(t, "t1", resp.AccessToken())
	assert.Equal(t, "A", resp.String("name"))
	assert.False(t, resp.ConnectionError())
}

func TestDoGetCarriesQueryAndNoBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			return
		}
		b, _ := io.ReadAll(r.Body)
		assert.Empty(t, b)
		assert.Equal(t, "7", r.URL.Query().Get("userId"))
		w.Write([]byte(`{"status":true,"kyc_applications":[]}`))
	}))
	defer srv.Close()

	resp, err := api.New(srv.URL, "c").Do(t.Context(), api.Request{
		Method:   http.MethodGet,
		Endpoint: "/api/kyc/get",
		Query:    map[string][]string{"userId": {"7"}},
		Payload:  map[string]string{"ignored": "yes"},
	})
	require.NoError(t, err)
	assert.True(t, resp.Status())
}

func TestDoStatusCodesDoNotDecideSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"description":"Wrong login/password"}`))
	}))
	defer srv.Close()

	resp, err := api.New(srv.URL, "c").Do(t.Context(), api.Request{Endpoint: "/x"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Wrong login/password", resp.Message())

	f := resp.Failure("fallback")
	assert.Equal(t, api.KindRejected, f.Kind)
	assert.Equal(t, "Wrong login/password", f.Message)
}

func TestDoUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	for _, probe := range []bool{true, false} {
		opts := []api.Option{}
		if !probe {
			opts = append(opts, api.WithoutProbe())
		}
		resp, err := api.New(url, "c", opts...).Do(t.Context(), api.Request{Endpoint: "/api/auth/get_tokens"})
		require.NoError(t, err)
		assert.True(t, resp.ConnectionError())
		assert.NotEmpty(t, resp.String("error"))

		f := resp.Failure("unused")
		assert.ErrorIs(t, f, api.ErrConnectivity)
		assert.Equal(t, api.ConnectionMessage, f.Message)
	}
}

func TestDoTimeoutIsConnectivityFailure(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	resp, err := api.New(srv.URL, "c", api.WithTimeout(50*time.Millisecond), api.WithoutProbe()).
		Do(t.Context(), api.Request{Endpoint: "/slow"})
	require.NoError(t, err)
	assert.True(t, resp.ConnectionError())
}

func TestDoMalformedBodyIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>gateway error</html>`))
	}))
	defer srv.Close()

	resp, err := api.New(srv.URL, "c").Do(t.Context(), api.Request{Endpoint: "/x"})
	require.NoError(t, err)
	assert.True(t, resp.Malformed)
	assert.Empty(t, resp.AccessToken())

	f := resp.Failure("An error occurred.")
	assert.ErrorIs(t, f, api.ErrRejected)
	assert.Equal(t, "An error occurred.", f.Message)
}

func TestDoUnsupportedMethod(t *testing.T) {
	_, err := api.New("http://127.0.0.1:1", "c").Do(t.Context(), api.Request{Method: http.MethodDelete, Endpoint: "/x"})
	assert.ErrorIs(t, err, api.ErrUnsupportedMethod)
	assert.ErrorIs(t, err, api.ErrPrecondition)
}

func TestTokenRejected(t *testing.T) {
	cases := []struct {
		name string
		resp api.Response
		want bool
	}{
		{"401", api.Response{StatusCode: 401, Body: map[string]any{}}, true},
		{"403", api.Response{StatusCode: 403, Body: map[string]any{}}, true},
		{"error field", api.Response{StatusCode: 200, Body: map[string]any{"error": "invalid_token"}}, true},
		{"code field", api.Response{StatusCode: 200, Body: map[string]any{"code": "token_expired"}}, true},
		{"other error", api.Response{StatusCode: 400, Body: map[string]any{"error": "bad_request"}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.resp.TokenRejected())
		})
	}
}

func TestTruthy(t *testing.T) {
	assert.False(t, api.Truthy(nil))
	assert.False(t, api.Truthy(false))
	assert.False(t, api.Truthy(""))
	assert.False(t, api.Truthy(float64(0)))
	assert.True(t, api.Truthy(true))
	assert.True(t, api.Truthy("yes"))
	assert.True(t, api.Truthy(float64(1)))
	assert.True(t, api.Truthy(map[string]any{}))
}

func TestFailureErrors(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	f := api.Connectivity(cause)
	assert.ErrorIs(t, f, api.ErrConnectivity)
	assert.ErrorIs(t, f, cause)
	assert.NotErrorIs(t, f, api.ErrRejected)
	assert.Equal(t, api.ConnectionMessage, api.UserMessage(f))

	p := api.Precondition("Passwords do not match.")
	assert.ErrorIs(t, p, api.ErrPrecondition)
	assert.Equal(t, "Passwords do not match.", api.UserMessage(p))
	assert.Equal(t, "plain", api.UserMessage(errors.New("plain")))
}
