package risk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPDelegateApproves(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var opp map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&opp))
		assert.Equal(t, "opp-1", opp["id"])

		_ = json.NewEncoder(w).Encode(map[string]any{"approved": true, "reason": "ok"})
	}))
	defer srv.Close()

	d := NewHTTPDelegate(srv.URL, time.Second)
	res, err := d.Evaluate(context.Background(), testOpp())
	require.NoError(t, err)
	assert.True(t, res.Approved)
}

func TestHTTPDelegateRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"approved": false, "reason": "token concentration"})
	}))
	defer srv.Close()

	d := NewHTTPDelegate(srv.URL, time.Second)
	res, err := d.Evaluate(context.Background(), testOpp())
	require.NoError(t, err)
	assert.False(t, res.Approved)
	assert.Equal(t, "token concentration", res.Reason)
}

// A non-200 answer is an error so the gate fails closed instead of treating
// it as a verdict.
func TestHTTPDelegateErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewHTTPDelegate(srv.URL, time.Second)
	_, err := d.Evaluate(context.Background(), testOpp())
	require.Error(t, err)
}

func TestHTTPDelegateUnreachable(t *testing.T) {
	d := NewHTTPDelegate("http://127.0.0.1:1", 50*time.Millisecond)
	_, err := d.Evaluate(context.Background(), testOpp())
	require.Error(t, err)
}
