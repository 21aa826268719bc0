package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Overview(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "google", r.URL.Query().Get("engine"))
		assert.Equal(t, "what is groundwater", r.URL.Query().Get("q"))
		assert.Equal(t, "serp-key", r.URL.Query().Get("api_key"))
		w.Write([]byte(`{"ai_overview": {"text_blocks": [
			{"type": "paragraph", "snippet": ""},
			{"type": "paragraph", "snippet": "Groundwater is water held in <b>aquifers</b> &amp; soil."}
		]}}`))
	}))
	defer srv.Close()

	got, err := NewClient("serp-key", srv.URL).Overview(context.Background(), "what is groundwater")
	require.NoError(t, err)
	assert.Equal(t, "Groundwater is water held in aquifers & soil.", got)
}

func TestClient_Overview_Absent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"organic_results": []}`))
	}))
	defer srv.Close()

	got, err := NewClient("serp-key", srv.URL).Overview(context.Background(), "aquifer")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClient_Search_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient("bad", srv.URL).Overview(context.Background(), "aquifer")
	assert.ErrorContains(t, err, "401")
}

func TestResponse_Snippet_Nil(t *testing.T) {
	var r *Response
	_, ok := r.Snippet()
	assert.False(t, ok)
}
