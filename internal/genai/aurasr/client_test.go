package aurasr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"clarity-mcp/internal/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL: baseURL,
		Tokens:  auth.StaticToken("oomol-token"),
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// --- NewClient ---

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{Tokens: auth.StaticToken("x")})
	assert.Error(t, err)

	_, err = NewClient(Config{BaseURL: "http://localhost"})
	assert.Error(t, err)

	c, err := NewClient(Config{BaseURL: "http://localhost", Tokens: auth.StaticToken("x")})
	require.NoError(t, err)
	assert.Equal(t, defaultAuraSRTimeout, c.timeout)
	assert.Equal(t, "/submit", c.submitPath)
	assert.Equal(t, "/result", c.resultPath)
}

// --- SubmitEnhanceTask ---

func TestSubmitEnhanceTask_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/submit", r.URL.Path)
		assert.Equal(t, "oomol-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "https://x/img.png", body["imageURL"])

		writeJSON(w, http.StatusOK, map[string]interface{}{"sessionID": "abc123", "success": true})
	}))
	defer ts.Close()

	res, err := newTestClient(t, ts.URL).SubmitEnhanceTask(context.Background(), "https://x/img.png")
	require.NoError(t, err)
	assert.Equal(t, "abc123", res.SessionID)
	assert.True(t, res.Success)
}

func TestSubmitEnhanceTask_SuccessFlag(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"missing", `{"sessionID":"abc123"}`, false},
		{"true", `{"sessionID":"abc123","success":true}`, true},
		{"false", `{"sessionID":"abc123","success":false}`, false},
		{"string true", `{"sessionID":"abc123","success":"true"}`, false},
		{"null", `{"sessionID":"abc123","success":null}`, false},
		{"number", `{"sessionID":"abc123","success":1}`, false},
		{"object", `{"sessionID":"abc123","success":{"ok":true}}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			res, err := newTestClient(t, ts.URL).SubmitEnhanceTask(context.Background(), "https://x/img.png")
			require.NoError(t, err)
			assert.Equal(t, "abc123", res.SessionID)
			assert.Equal(t, tt.want, res.Success)
		})
	}
}

func TestSubmitEnhanceTask_NonStringSessionID(t *testing.T) {
	for _, body := range []string{`{"sessionID":123,"success":true}`, `{"sessionID":null}`, `{"sessionID":""}`} {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(body))
		}))

		_, err := newTestClient(t, ts.URL).SubmitEnhanceTask(context.Background(), "https://x/img.png")
		ts.Close()
		assert.ErrorIs(t, err, ErrMalformedResponse, body)
	}
}

func TestSubmitEnhanceTask_BadGateway(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer ts.Close()

	_, err := newTestClient(t, ts.URL).SubmitEnhanceTask(context.Background(), "https://x/img.png")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.Contains(t, err.Error(), "temporarily unavailable")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
}

func TestSubmitEnhanceTask_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"error field", http.StatusBadRequest, `{"error":"invalid image url","message":"ignored"}`, "invalid image url"},
		{"message field", http.StatusUnauthorized, `{"message":"token expired"}`, "token expired"},
		{"structured error", http.StatusUnprocessableEntity, `{"error":{"code":42}}`, `{"code":42}`},
		{"plain text body", http.StatusInternalServerError, "upstream exploded\n", "upstream exploded"},
		{"json without known fields", http.StatusForbidden, `{"detail":"nope"}`, `{"detail":"nope"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			_, err := newTestClient(t, ts.URL).SubmitEnhanceTask(context.Background(), "https://x/img.png")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrRequestRejected)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestSubmitEnhanceTask_MissingSessionID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": false, "reason": "quota"})
	}))
	defer ts.Close()

	_, err := newTestClient(t, ts.URL).SubmitEnhanceTask(context.Background(), "https://x/img.png")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.Contains(t, err.Error(), `"reason":"quota"`)
}

func TestSubmitEnhanceTask_NonJSONSuccessBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer ts.Close()

	_, err := newTestClient(t, ts.URL).SubmitEnhanceTask(context.Background(), "https://x/img.png")
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestSubmitEnhanceTask_TransportError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	_, err := newTestClient(t, url).SubmitEnhanceTask(context.Background(), "https://x/img.png")
	assert.ErrorIs(t, err, ErrTransport)
}

func TestSubmitEnhanceTask_TokenError(t *testing.T) {
	var called bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer ts.Close()

	c, err := NewClient(Config{BaseURL: ts.URL, Tokens: auth.StaticToken("")})
	require.NoError(t, err)

	_, err = c.SubmitEnhanceTask(context.Background(), "https://x/img.png")
	assert.ErrorIs(t, err, auth.ErrNoToken)
	assert.False(t, called)
}

// --- QueryEnhanceTask ---

func TestQueryEnhanceTask_Completed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/result/abc123", r.URL.Path)
		assert.Equal(t, "oomol-token", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"state": "completed",
			"data":  map[string]interface{}{"image": map[string]interface{}{"url": "https://x/out.png", "width": 2048}},
		})
	}))
	defer ts.Close()

	status, err := newTestClient(t, ts.URL).QueryEnhanceTask(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status.State)
	assert.Equal(t, "https://x/out.png", status.ImageURL)
	assert.Equal(t, "completed", status.Raw["state"])
	assert.Contains(t, status.Raw, "data")
}

func TestQueryEnhanceTask_EscapesSessionID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/result/a%2Fb", r.URL.EscapedPath())
		writeJSON(w, http.StatusOK, map[string]interface{}{"state": "queued"})
	}))
	defer ts.Close()

	status, err := newTestClient(t, ts.URL).QueryEnhanceTask(context.Background(), "a/b")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, status.State)
}

func TestQueryEnhanceTask_NonSuccessStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"session not found"}`))
	}))
	defer ts.Close()

	_, err := newTestClient(t, ts.URL).QueryEnhanceTask(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRequestRejected)
	assert.Contains(t, err.Error(), "session not found")
}

func TestQueryEnhanceTask_MalformedBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`["not", "an", "object"]`))
	}))
	defer ts.Close()

	_, err := newTestClient(t, ts.URL).QueryEnhanceTask(context.Background(), "abc123")
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestQueryEnhanceTask_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer ts.Close()

	c, err := NewClient(Config{BaseURL: ts.URL, Tokens: auth.StaticToken("t"), Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = c.QueryEnhanceTask(context.Background(), "abc123")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Contains(t, err.Error(), "timed out")
}
