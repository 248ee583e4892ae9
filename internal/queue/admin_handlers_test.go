package queue_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-phongkham/internal/queue"
)

type fakeInspector struct {
	archived []*asynq.TaskInfo
	ran      []string
	missing  map[string]bool
}

func (f *fakeInspector) GetQueueInfo(name string) (*asynq.QueueInfo, error) {
	if name != queue.QueueDefault {
		return nil, asynq.ErrQueueNotFound
	}
	return &asynq.QueueInfo{Queue: name, Size: 3, Pending: 2, Archived: len(f.archived)}, nil
}

func (f *fakeInspector) ListArchivedTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return f.archived, nil
}

func (f *fakeInspector) RunTask(_ string, id string) error {
	if f.missing[id] {
		return asynq.ErrTaskNotFound
	}
	f.ran = append(f.ran, id)
	return nil
}

func (f *fakeInspector) RunAllArchivedTasks(string) (int, error) {
	return len(f.archived), nil
}

func newAdminRouter(insp queue.Inspector) http.Handler {
	r := chi.NewRouter()
	h := &queue.AdminHandler{Inspector: insp, Logger: zerolog.Nop()}
	r.Route("/admin/queue", h.Routes)
	return r
}

func TestAdminStats(t *testing.T) {
	router := newAdminRouter(&fakeInspector{archived: []*asynq.TaskInfo{{ID: "a"}}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/queue/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, queue.QueueDefault, body["queue"])
	require.EqualValues(t, 1, body["archived"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/queue/stats?queue=nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminListAndReplayArchived(t *testing.T) {
	insp := &fakeInspector{
		archived: []*asynq.TaskInfo{{ID: "t1", Type: queue.TypeLowStockCheck, Payload: []byte(`{"productIds":["p1"]}`), LastErr: "db down"}},
		missing:  map[string]bool{"gone": true},
	}
	router := newAdminRouter(insp)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/queue/archived", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"lastError":"db down"`)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/queue/archived/replay", strings.NewReader(`{"ids":["t1","gone"]}`))
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"t1"}, insp.ran)
	require.Contains(t, rec.Body.String(), `"gone"`)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/admin/queue/archived/replay", strings.NewReader(`{"all":true}`))
	router.ServeHTTP(rec, req)
	require.JSONEq(t, `{"replayed":1}`, rec.Body.String())

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/admin/queue/archived/replay", strings.NewReader(`{}`))
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminWithoutInspector(t *testing.T) {
	rec := httptest.NewRecorder()
	newAdminRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/queue/stats", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
