package mercury

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goliatone/go-scptracker/components/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClientFetchStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/6533/status/id" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Basic abc123" {
			t.Fatalf("expected normalised auth header, got %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Fatalf("expected json content type, got %q", got)
		}
		w.Write([]byte(`{"data":{"derived":{"firmware_version":"3.120.x","model":"EP1502","mac":"00:11:22","scp_number":6533,"cards_capacity":"500","total_cards":120}}}`))
	}))
	t.Cleanup(server.Close)

	client, err := NewHTTPClient(HTTPConfig{BaseURL: server.URL + "/"})
	require.NoError(t, err)
	snap, err := client.FetchStatus(context.Background(), tracker.NumericID(6533), "  abc123 ")
	require.NoError(t, err)

	assert.Equal(t, "6533", snap.SCPNumber)
	assert.Equal(t, "3.120.x", snap.FirmwareVersion)
	assert.Equal(t, "EP1502", snap.Model)
	assert.Equal(t, "00:11:22", snap.MAC)
	assert.Equal(t, int64(500), snap.Capacity)
	assert.Equal(t, int64(120), snap.Total)
	assert.Equal(t, int64(380), snap.Available())
	assert.NotNil(t, snap.Raw["data"])
}

func TestHTTPClientEscapesID(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(server.Close)

	client, err := NewHTTPClient(HTTPConfig{BaseURL: server.URL})
	require.NoError(t, err)
	_, err = client.FetchStatus(context.Background(), tracker.TextID("lobby door/2"), "Basic x")
	require.NoError(t, err)
	assert.Equal(t, "/v1/lobby%20door%2F2/status/id", gotPath)
}

func TestHTTPClientNonSuccessUsesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token expired", http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	client, err := NewHTTPClient(HTTPConfig{BaseURL: server.URL})
	require.NoError(t, err)
	_, err = client.FetchStatus(context.Background(), tracker.NumericID(1), "abc")

	var transportErr *tracker.TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, http.StatusUnauthorized, transportErr.Status)
	assert.Equal(t, "HTTP 401 - token expired", err.Error())
}

func TestHTTPClientNonSuccessFallsBackToStatusText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	client, err := NewHTTPClient(HTTPConfig{BaseURL: server.URL})
	require.NoError(t, err)
	_, err = client.FetchStatus(context.Background(), tracker.NumericID(1), "abc")
	require.Error(t, err)
	assert.Equal(t, "HTTP 502 - Bad Gateway", err.Error())
}

func TestHTTPClientMalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":`))
	}))
	t.Cleanup(server.Close)

	client, err := NewHTTPClient(HTTPConfig{BaseURL: server.URL})
	require.NoError(t, err)
	_, err = client.FetchStatus(context.Background(), tracker.NumericID(1), "abc")

	var parseErr *tracker.ParseError
	assert.True(t, errors.As(err, &parseErr))
}

func TestHTTPClientMissingTokenSkipsRequest(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	t.Cleanup(server.Close)

	client, err := NewHTTPClient(HTTPConfig{BaseURL: server.URL})
	require.NoError(t, err)
	_, err = client.FetchStatus(context.Background(), tracker.NumericID(1), "   ")
	assert.ErrorIs(t, err, tracker.ErrMissingToken)
	assert.Zero(t, calls)
}

func TestHTTPClientHonoursCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})

	client, err := NewHTTPClient(HTTPConfig{BaseURL: server.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.FetchStatus(ctx, tracker.NumericID(1), "abc")

	var transportErr *tracker.TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Zero(t, transportErr.Status)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewHTTPClientDefaults(t *testing.T) {
	client, err := NewHTTPClient(HTTPConfig{})
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL+"/v1/5720/status/id", client.StatusURL(tracker.NumericID(5720)))

	_, err = NewHTTPClient(HTTPConfig{BaseURL: "not a url"})
	assert.Error(t, err)
}

func TestNormalizeToken(t *testing.T) {
	cases := map[string]string{
		"":              "",
		"   ":           "",
		"abc":           "Basic abc",
		" Basic abc ":   "Basic abc",
		"basic abc":     "basic abc",
		"BASIC abc":     "BASIC abc",
		"Basicabc":      "Basic Basicabc",
		"Bearer abc":    "Basic Bearer abc",
		"\tdGVzdA==\n":  "Basic dGVzdA==",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeToken(in), "input %q", in)
	}
}
