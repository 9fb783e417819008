package httpapi

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pymada-go/pymada/pkg/models"
	"github.com/pymada-go/pymada/pkg/store"
)

func newTestServer(token string) *Server {
	return NewServer(store.NewMemStore(), token, nil, nil)
}

func TestAuthBypassWhenTokenEmpty(t *testing.T) {
	s := newTestServer("")
	req := httptest.NewRequest(http.MethodGet, "/url_tasks_length/", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRejectsMissingOrWrongToken(t *testing.T) {
	s := newTestServer("secret")

	req := httptest.NewRequest(http.MethodGet, "/url_tasks_length/", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/url_tasks_length/", nil)
	req2.Header.Set(tokenHeader, "wrong")
	rec2 := httptest.NewRecorder()
	s.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusUnauthorized, rec2.Code)

	req3 := httptest.NewRequest(http.MethodGet, "/url_tasks_length/", nil)
	req3.Header.Set(tokenHeader, "secret")
	rec3 := httptest.NewRecorder()
	s.ServeHTTP(rec3, req3)
	assert.Equal(t, http.StatusOK, rec3.Code)
}

func TestHealthEndpointsBypassAuth(t *testing.T) {
	s := newTestServer("secret")

	for _, path := range []string{"/health/live", "/health/ready", "/health"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		assert.NotEqual(t, http.StatusUnauthorized, rec.Code, "health endpoints must not require the token: %s", path)
	}
}

func TestCreateAndListTasks(t *testing.T) {
	s := newTestServer("")

	body, _ := json.Marshal([]*models.UrlTask{{URL: "http://a"}, {URL: "http://b"}})
	req := httptest.NewRequest(http.MethodPost, "/urls/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/urls/", nil)
	rec2 := httptest.NewRecorder()
	s.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)

	var tasks []*models.UrlTask
	require.NoError(t, json.NewDecoder(rec2.Body).Decode(&tasks))
	assert.Len(t, tasks, 2)
}

func TestCompleteTaskClearsAgentAssignment(t *testing.T) {
	s := newTestServer("")
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()

	agent := &models.Agent{Hostname: "h", AgentURL: "http://a"}
	require.NoError(t, s.store.Agents().Create(ctx, agent))

	task := &models.UrlTask{URL: "http://x"}
	require.NoError(t, s.store.Tasks().Create(ctx, task))
	require.NoError(t, s.store.Tasks().Assign(ctx, task.ID, agent.ID, 100))
	require.NoError(t, s.store.Agents().AssignTask(ctx, agent.ID, task.ID))

	result := "done"
	body, _ := json.Marshal(map[string]interface{}{"task_result": &result})
	req := httptest.NewRequest(http.MethodPut, "/urls/"+task.ID.String()+"/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	updatedAgent, err := s.store.Agents().Get(ctx, agent.ID)
	require.NoError(t, err)
	assert.Nil(t, updatedAgent.AssignedTaskID)

	updatedTask, err := s.store.Tasks().Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskComplete, updatedTask.TaskState)
}

func TestRegisterAgentIsFindOrCreate(t *testing.T) {
	s := newTestServer("")

	body, _ := json.Marshal(map[string]string{"hostname": "h1", "agent_url": "http://agent1"})

	req := httptest.NewRequest(http.MethodPost, "/register_agent/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var first models.Agent
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&first))

	req2 := httptest.NewRequest(http.MethodPost, "/register_agent/", bytes.NewReader(body))
	rec2 := httptest.NewRecorder()
	s.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code, "re-registering the same identity returns 200, not a duplicate")

	var second models.Agent
	require.NoError(t, json.NewDecoder(rec2.Body).Decode(&second))
	assert.Equal(t, first.ID, second.ID)
}

func TestScreenshotsForTaskReturns404WhenEmpty(t *testing.T) {
	s := newTestServer("")
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()

	task := &models.UrlTask{URL: "http://x"}
	require.NoError(t, s.store.Tasks().Create(ctx, task))

	req := httptest.NewRequest(http.MethodGet, "/task_screenshots/"+task.ID.String()+"/", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateScreenshotAndFetchImage(t *testing.T) {
	s := newTestServer("")
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()

	task := &models.UrlTask{URL: "http://x"}
	require.NoError(t, s.store.Tasks().Create(ctx, task))

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("task", task.ID.String()))
	part, err := w.CreateFormFile("image", "shot.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("fake-png-bytes"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/screenshots/", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.Screenshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))

	req2 := httptest.NewRequest(http.MethodGet, "/screenshots/"+created.ID.String()+"/", nil)
	rec2 := httptest.NewRecorder()
	s.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)
	assert.Equal(t, "image/png", rec2.Header().Get("Content-Type"))
	assert.Equal(t, "fake-png-bytes", rec2.Body.String())
}

func TestStatsReflectsTaskCounts(t *testing.T) {
	s := newTestServer("")
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()

	require.NoError(t, s.store.Tasks().Create(ctx, &models.UrlTask{URL: "http://a"}))
	require.NoError(t, s.store.Tasks().Create(ctx, &models.UrlTask{URL: "http://b"}))

	req := httptest.NewRequest(http.MethodGet, "/stats/", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats statsPayload
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, int64(2), stats.URLs)
	assert.Equal(t, int64(2), stats.URLsQueued)
}
