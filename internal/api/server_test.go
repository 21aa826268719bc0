package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lox/groundwater/internal/agent"
	"github.com/lox/groundwater/internal/api"
	"github.com/lox/groundwater/internal/chart"
	"github.com/lox/groundwater/internal/models"
	"github.com/lox/groundwater/internal/session"
)

// stubAgent answers "compare" messages with a two-location dataset and echoes everything else.
type stubAgent struct{}

func (stubAgent) NewSession() models.SessionState {
	return models.SessionState{
		ID:      uuid.NewString(),
		History: []models.ChatTurn{{Sender: models.SenderAssistant, Content: agent.Greeting}},
	}
}

func (a stubAgent) Reset(models.SessionState) models.SessionState {
	return a.NewSession()
}

func (stubAgent) Turn(_ context.Context, st models.SessionState, text string) (models.SessionState, agent.Result) {
	st.History = append(st.History, models.ChatTurn{Sender: models.SenderUser, Content: text})
	res := agent.Result{Kind: agent.KindGeneral, Reply: "echo: " + text}
	if strings.HasPrefix(text, "compare") {
		base := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
		st.Dataset = &models.Dataset{Rows: []models.Row{
			{Timestamp: base, Value: -8.1, Location: "Bhopal"},
			{Timestamp: base.AddDate(0, 0, 1), Value: -8.3, Location: "Bhopal"},
			{Timestamp: base, Value: -12.0, Location: "Raipur"},
		}}
		res = agent.Result{
			Kind:     agent.KindComparison,
			Reply:    "Raipur is deeper.",
			Progress: []string{"Fetching Bhopal...", "Fetching Raipur..."},
			Loaded:   []string{"Bhopal", "Raipur"},
		}
	}
	st.History = append(st.History, models.ChatTurn{Sender: models.SenderAssistant, Content: res.Reply})
	return st, res
}

func newTestServer(t *testing.T) (*api.Server, *session.Store) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	sessions := session.NewStore(clock)
	srv := api.NewServer(stubAgent{}, sessions, chart.NewCache(time.Minute, clock), "8080", zap.NewNop())
	return srv, sessions
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func createSession(t *testing.T, h http.Handler) models.SessionState {
	t.Helper()
	w := do(t, h, "POST", "/api/sessions", "")
	require.Equal(t, http.StatusCreated, w.Code)
	var st models.SessionState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	return st
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	w := do(t, srv.Handler(), "GET", "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	w := do(t, srv.Handler(), "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestCreateAndGetSession(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)
	h := srv.Handler()

	st := createSession(t, h)
	assert.NotEmpty(t, st.ID)
	require.Len(t, st.History, 1)
	assert.Equal(t, agent.Greeting, st.History[0].Content)

	w := do(t, h, "GET", "/api/sessions/"+st.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var got models.SessionState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, st.ID, got.ID)
}

func TestGetSession_NotFound(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	w := do(t, srv.Handler(), "GET", "/api/sessions/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPostMessage(t *testing.T) {
	t.Parallel()
	srv, sessions := newTestServer(t)
	h := srv.Handler()
	st := createSession(t, h)

	w := do(t, h, "POST", "/api/sessions/"+st.ID+"/messages", `{"message": "compare Bhopal and Raipur"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.TurnResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, agent.KindComparison, resp.Kind)
	assert.Equal(t, "Raipur is deeper.", resp.Reply)
	assert.Equal(t, []string{"Fetching Bhopal...", "Fetching Raipur..."}, resp.Progress)
	assert.Len(t, resp.Session.History, 3)

	stored, ok := sessions.Get(st.ID)
	require.True(t, ok)
	require.NotNil(t, stored.Dataset)
	assert.Len(t, stored.Dataset.Rows, 3)
}

func TestPostMessage_BadRequests(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)
	h := srv.Handler()
	st := createSession(t, h)

	assert.Equal(t, http.StatusBadRequest, do(t, h, "POST", "/api/sessions/"+st.ID+"/messages", `{"message": "  "}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, "POST", "/api/sessions/"+st.ID+"/messages", `not json`).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, "POST", "/api/sessions/nope/messages", `{"message": "hi"}`).Code)
}

func TestDatasetAndChart(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)
	h := srv.Handler()
	st := createSession(t, h)

	assert.Equal(t, http.StatusNotFound, do(t, h, "GET", "/api/sessions/"+st.ID+"/dataset", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, "GET", "/api/sessions/"+st.ID+"/chart.png", "").Code)

	do(t, h, "POST", "/api/sessions/"+st.ID+"/messages", `{"message": "compare Bhopal and Raipur"}`)

	w := do(t, h, "GET", "/api/sessions/"+st.ID+"/dataset", "")
	require.Equal(t, http.StatusOK, w.Code)
	var ds api.DatasetResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ds))
	assert.Equal(t, []string{"Bhopal", "Raipur"}, ds.Locations)
	require.Len(t, ds.Stats, 2)
	assert.Equal(t, 2, ds.Stats[0].Count)
	assert.InDelta(t, -8.2, ds.Stats[0].Mean, 1e-9)

	w = do(t, h, "GET", "/api/sessions/"+st.ID+"/chart.png", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "\x89PNG"))
}

func TestResetSession(t *testing.T) {
	t.Parallel()
	srv, sessions := newTestServer(t)
	h := srv.Handler()
	st := createSession(t, h)
	do(t, h, "POST", "/api/sessions/"+st.ID+"/messages", `{"message": "compare Bhopal and Raipur"}`)

	w := do(t, h, "POST", "/api/sessions/"+st.ID+"/reset", "")
	require.Equal(t, http.StatusOK, w.Code)
	var fresh models.SessionState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fresh))

	assert.NotEqual(t, st.ID, fresh.ID)
	assert.Len(t, fresh.History, 1)
	assert.Nil(t, fresh.Dataset)

	_, ok := sessions.Get(st.ID)
	assert.False(t, ok, "old session discarded")
	_, ok = sessions.Get(fresh.ID)
	assert.True(t, ok)
}

func TestIndexPage_SetsCookie(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	w := do(t, srv.Handler(), "GET", "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Hello! I can compare groundwater trends for you.")

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "groundwater_session", cookies[0].Name)
}

func TestIndexPage_SubmitAndRender(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)
	h := srv.Handler()

	w := do(t, h, "GET", "/", "")
	cookie := w.Result().Cookies()[0]

	form := url.Values{"message": {"compare Bhopal and Raipur"}}
	req := httptest.NewRequest("POST", "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusSeeOther, w.Code)

	req = httptest.NewRequest("GET", "/", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "compare Bhopal and Raipur")
	assert.Contains(t, body, "Raipur is deeper.")
	assert.Contains(t, body, `<img class="chart"`)
	assert.Contains(t, body, "-8.20")

	req = httptest.NewRequest("GET", "/chart.png", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIndexPage_Reset(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)
	h := srv.Handler()

	w := do(t, h, "GET", "/", "")
	cookie := w.Result().Cookies()[0]

	req := httptest.NewRequest("POST", "/reset", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusSeeOther, w.Code)

	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.NotEqual(t, cookie.Value, cookies[len(cookies)-1].Value)
}
