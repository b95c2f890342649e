package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/extraction-tracker/internal/infrastructure/resilience"
)

func TestEndpointsDirectMode(t *testing.T) {
	endpoints, err := NewEndpoints(ModeDirect, "http://backend:9000/", "")
	require.NoError(t, err)

	assert.Equal(t, "http://backend:9000/owner-1/file-1/process/stream", endpoints.StreamURL("owner-1", "file-1"))
	assert.Equal(t, "http://backend:9000/owner-1/file-1/process/abort", endpoints.AbortURL("owner-1", "file-1"))
}

func TestEndpointsGatewayMode(t *testing.T) {
	endpoints, err := NewEndpoints(ModeGateway, "", "https://gw.example.com")
	require.NoError(t, err)

	assert.Equal(t, "https://gw.example.com/api/extraction/owner-1/file-1/process/stream", endpoints.StreamURL("owner-1", "file-1"))
}

func TestEndpointsEscapesPathSegments(t *testing.T) {
	endpoints, err := NewEndpoints(ModeDirect, "http://backend:9000", "")
	require.NoError(t, err)

	assert.Equal(t, "http://backend:9000/own%2Fer/fi%20le/process/stream", endpoints.StreamURL("own/er", "fi le"))
}

func TestEndpointsRejectsMissingBase(t *testing.T) {
	_, err := NewEndpoints(ModeDirect, "", "")
	assert.Error(t, err)
	_, err = NewEndpoints(ModeGateway, "http://backend:9000", "")
	assert.Error(t, err)
	_, err = NewEndpoints(Mode("proxy"), "http://backend:9000", "")
	assert.Error(t, err)
}

func TestAbortPostsOwnerAndResource(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	endpoints, err := NewEndpoints(ModeDirect, server.URL, "")
	require.NoError(t, err)
	client := NewClient(endpoints, ClientOptions{Token: "tok-123"})

	require.NoError(t, client.Abort(context.Background(), "owner-1", "file-1"))
	assert.Equal(t, "/owner-1/file-1/process/abort", gotPath)
	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, map[string]string{"owner_id": "owner-1", "resource_id": "file-1"}, gotBody)
}

func TestAbortSurfacesServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "queue unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	endpoints, err := NewEndpoints(ModeDirect, server.URL, "")
	require.NoError(t, err)
	client := NewClient(endpoints, ClientOptions{})

	err = client.Abort(context.Background(), "owner-1", "file-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "queue unavailable")
}

func TestAbortRetriesServerErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	endpoints, err := NewEndpoints(ModeDirect, server.URL, "")
	require.NoError(t, err)
	executor := resilience.NewExecutor("backend.abort", resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	}, ClassifyError, nil)
	client := NewClient(endpoints, ClientOptions{Executor: executor})

	require.NoError(t, client.Abort(context.Background(), "owner-1", "file-1"))
	assert.Equal(t, 3, attempts)
}

func TestClassifyErrorTreatsClientErrorsAsPermanent(t *testing.T) {
	statusErr := &httpStatusError{status: http.StatusNotFound}
	class := ClassifyError(statusErr)
	assert.False(t, class.Retryable)
	assert.False(t, class.RecordFailure)

	class = ClassifyError(&httpStatusError{status: http.StatusBadGateway})
	assert.True(t, class.Retryable)

	class = ClassifyError(context.Canceled)
	assert.False(t, class.Retryable)

	class = ClassifyError(errors.New("connection reset"))
	assert.True(t, class.Retryable)
}
