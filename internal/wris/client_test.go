package wris

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lox/groundwater/internal/models"
)

var bhopal = models.LocationQuery{
	District:  "Bhopal",
	State:     "Madhya Pradesh",
	StartDate: time.Date(2026, 9, 17, 0, 0, 0, 0, time.UTC),
	EndDate:   time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC),
}

type fakeArchive struct {
	location string
	payload  []byte
}

func (f *fakeArchive) StoreRawPayload(_ context.Context, location string, payload []byte) (int64, error) {
	f.location = location
	f.payload = payload
	return 1, nil
}

func TestClient_Fetch_Success(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/groundwater", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "Madhya Pradesh", q.Get("stateName"))
		assert.Equal(t, "Bhopal", q.Get("districtName"))
		assert.Equal(t, "CGWB", q.Get("agencyName"))
		assert.Equal(t, "2026-09-17", q.Get("startdate"))
		assert.Equal(t, "2026-10-17", q.Get("enddate"))
		assert.Equal(t, "false", q.Get("download"))
		assert.Equal(t, "0", q.Get("page"))
		assert.Equal(t, "100", q.Get("size"))
		w.Write([]byte(`[{"dataTime":"2026-10-01T00:00:00","dataValue":-4.2}]`))
	}))
	defer srv.Close()

	archive := &fakeArchive{}
	c := NewClient(srv.URL+"/", time.Second, zap.NewNop())
	c.SetArchive(archive)

	body, err := c.Fetch(context.Background(), bhopal)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"dataTime":"2026-10-01T00:00:00","dataValue":-4.2}]`, string(body))
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "Bhopal", archive.location)
	assert.Equal(t, body, archive.payload)
}

func TestClient_Fetch_EmptyState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "", r.URL.Query().Get("stateName"))
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	q := bhopal
	q.State = ""
	_, err := NewClient(srv.URL, time.Second, zap.NewNop()).Fetch(context.Background(), q)
	require.NoError(t, err)
}

func TestClient_Fetch_NonOK(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second, zap.NewNop()).Fetch(context.Background(), bhopal)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "Bhopal", fe.Location)
	assert.Contains(t, err.Error(), "502")
	assert.Equal(t, int32(1), calls.Load(), "must not retry")
}

func TestClient_Fetch_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, time.Second, zap.NewNop()).Fetch(context.Background(), bhopal)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "Bhopal", fe.Location)
}

func TestClient_Fetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 20*time.Millisecond, zap.NewNop()).Fetch(context.Background(), bhopal)
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
}

func TestClient_Fetch_NotConfigured(t *testing.T) {
	_, err := NewClient("", time.Second, zap.NewNop()).Fetch(context.Background(), bhopal)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestClient_Fetch_StatusErrorsDoNotTripBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		switch r.URL.Query().Get("districtName") {
		case "Bhopal":
			w.Write([]byte(`[]`))
		case "Quux":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, zap.NewNop())
	for _, district := range []string{"Foo", "Bar", "Baz", "Qux", "Quux", "Corge"} {
		_, err := c.Fetch(context.Background(), models.LocationQuery{District: district, StartDate: bhopal.StartDate, EndDate: bhopal.EndDate})
		var se *StatusError
		require.ErrorAs(t, err, &se)
	}

	body, err := c.Fetch(context.Background(), bhopal)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(body))
	assert.Equal(t, int32(7), calls.Load(), "every location reaches the provider")
}

func TestClient_Fetch_BreakerOpensOnTimeouts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 20*time.Millisecond, zap.NewNop())
	for i := 0; i < 7; i++ {
		_, err := c.Fetch(context.Background(), bhopal)
		require.Error(t, err)
	}
	assert.Equal(t, int32(5), calls.Load(), "breaker short-circuits after five consecutive timeouts")
}
