package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchManifestSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.Equal(t, "/manifest.json", r.URL.Path)
		w.Write([]byte(`{"modules":{}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok-123", 1024, time.Second, time.Second)
	body, err := c.FetchManifest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"modules":{}}`, string(body))
}

func TestFetchArtifactSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/modules/sg/v1.0.0.bin", r.URL.Path)
		w.Write([]byte("binary-content"))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok-123", 1024, time.Second, time.Second)
	body, err := c.FetchArtifact(context.Background(), "modules/sg/v1.0.0.bin")
	require.NoError(t, err)
	assert.Equal(t, "binary-content", string(body))
}

func TestFetchHTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok-123", 1024, time.Second, time.Second)
	_, err := c.FetchManifest(context.Background())
	require.Error(t, err)

	var catErr *Error
	require.ErrorAs(t, err, &catErr)
	assert.Equal(t, KindHTTPStatus, catErr.Kind)
	assert.Equal(t, http.StatusInternalServerError, catErr.StatusCode)
}

func TestFetchBodyTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 10000))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok-123", 16, time.Second, time.Second)
	_, err := c.FetchArtifact(context.Background(), "big.bin")
	require.Error(t, err)

	var catErr *Error
	require.ErrorAs(t, err, &catErr)
	assert.Equal(t, KindBodyTooLarge, catErr.Kind)
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte("too-slow"))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok-123", 1024, 5*time.Millisecond, 5*time.Millisecond)
	_, err := c.FetchManifest(context.Background())
	require.Error(t, err)

	var catErr *Error
	require.ErrorAs(t, err, &catErr)
	assert.Equal(t, KindTimeout, catErr.Kind)
}

func TestFetchNotConnected(t *testing.T) {
	c := New("http://127.0.0.1:1", "tok-123", 1024, 200*time.Millisecond, 200*time.Millisecond)
	_, err := c.FetchManifest(context.Background())
	require.Error(t, err)

	var catErr *Error
	require.ErrorAs(t, err, &catErr)
	assert.Equal(t, KindNotConnected, catErr.Kind)
}
