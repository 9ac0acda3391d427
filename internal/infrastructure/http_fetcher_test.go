package infrastructure

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/offline-mirror-go/internal/domain"
)

func testFetchConfig() *domain.FetchConfig {
	return &domain.FetchConfig{
		Timeout:     5 * time.Second,
		MaxRetries:  2,
		RetryDelay:  10 * time.Millisecond,
		UserAgent:   "offline-mirror-test",
		AccessToken: "secret",
		MaxFileSize: 1024,
		Concurrency: 2,
	}
}

func TestHTTPTaskProvider_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "offline-mirror-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("PNGDATA"))
	}))
	defer server.Close()

	config := testFetchConfig()
	config.APIHost = strings.TrimPrefix(server.URL, "http://")
	provider := NewHTTPTaskProvider(config, nil)
	result, err := provider.Fetch(context.Background(), server.URL+"/logo.png")
	require.NoError(t, err)

	assert.Equal(t, "PNGDATA", string(result.Body))
	assert.Equal(t, "image/png", result.ContentType)
	assert.Equal(t, server.URL+"/logo.png", result.URL)
}

func TestHTTPTaskProvider_Fetch_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	provider := NewHTTPTaskProvider(testFetchConfig(), nil)
	result, err := provider.Fetch(context.Background(), server.URL)
	require.NoError(t, err)

	assert.Equal(t, "ok", string(result.Body))
	assert.Equal(t, int32(3), hits.Load())
}

func TestHTTPTaskProvider_Fetch_ClientErrorFailsFast(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	provider := NewHTTPTaskProvider(testFetchConfig(), nil)
	_, err := provider.Fetch(context.Background(), server.URL+"/missing.png")
	require.Error(t, err)

	var statusErr *domain.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.True(t, errors.Is(err, domain.ErrFetchFailed))
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPTaskProvider_Fetch_ExhaustsRetries(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	provider := NewHTTPTaskProvider(testFetchConfig(), nil)
	_, err := provider.Fetch(context.Background(), server.URL)
	require.Error(t, err)

	assert.True(t, errors.Is(err, domain.ErrFetchFailed))
	assert.Equal(t, int32(3), hits.Load())
}

func TestHTTPTaskProvider_Fetch_TooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer server.Close()

	provider := NewHTTPTaskProvider(testFetchConfig(), nil)
	_, err := provider.Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrFetchFailed))
}

func TestHTTPTaskProvider_Fetch_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	provider := NewHTTPTaskProvider(testFetchConfig(), nil)
	_, err := provider.Fetch(ctx, server.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestHTTPTaskProvider_Fetch_InvalidURL(t *testing.T) {
	provider := NewHTTPTaskProvider(testFetchConfig(), nil)
	_, err := provider.Fetch(context.Background(), "http://[::1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidURL))
}

func TestHTTPTaskProvider_Fetch_TokenOnlyForAPIHost(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Write([]byte("api"))
	}))
	defer api.Close()

	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte("cdn"))
	}))
	defer cdn.Close()

	config := testFetchConfig()
	config.APIHost = strings.TrimPrefix(api.URL, "http://")
	provider := NewHTTPTaskProvider(config, nil)

	_, err := provider.Fetch(context.Background(), api.URL+"/api/v1/files/1")
	require.NoError(t, err)
	_, err = provider.Fetch(context.Background(), cdn.URL+"/logo.png")
	require.NoError(t, err)
}

func TestHTTPTaskProvider_Fetch_NoAPIHostSendsNoToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	provider := NewHTTPTaskProvider(testFetchConfig(), nil)
	_, err := provider.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
}
