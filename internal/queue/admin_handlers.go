package queue

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-phongkham/internal/common"
)

// Inspector is the subset of asynq.Inspector the admin endpoints need.
type Inspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListArchivedTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	RunTask(queue, id string) error
	RunAllArchivedTasks(queue string) (int, error)
}

// AdminHandler exposes queue stats and dead task replay.
type AdminHandler struct {
	Inspector Inspector
	PageSize  int
	Logger    zerolog.Logger
}

type archivedItem struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Payload   string `json:"payload"`
	Retried   int    `json:"retried"`
	LastError string `json:"lastError,omitempty"`
}

// Routes mounts the admin endpoints.
func (h *AdminHandler) Routes(r chi.Router) {
	r.Get("/stats", h.Stats)
	r.Get("/archived", h.ListArchived)
	r.Post("/archived/replay", h.Replay)
}

func (h *AdminHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.Inspector == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", "background queue is not configured", nil)
		return false
	}
	return true
}

func queueName(r *http.Request) string {
	if q := strings.TrimSpace(r.URL.Query().Get("queue")); q != "" {
		return q
	}
	return QueueDefault
}

// Stats returns the size of each task state in a queue.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	info, err := h.Inspector.GetQueueInfo(queueName(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"queue":     info.Queue,
		"size":      info.Size,
		"pending":   info.Pending,
		"active":    info.Active,
		"scheduled": info.Scheduled,
		"retry":     info.Retry,
		"archived":  info.Archived,
		"processed": info.Processed,
		"failed":    info.Failed,
		"paused":    info.Paused,
		"latencyMs": info.Latency.Milliseconds(),
	})
}

// ListArchived returns tasks that exhausted their retries.
func (h *AdminHandler) ListArchived(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	page := common.QueryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	tasks, err := h.Inspector.ListArchivedTasks(queueName(r), asynq.PageSize(h.pageSize()), asynq.Page(page))
	if err != nil {
		h.fail(w, err)
		return
	}
	items := make([]archivedItem, 0, len(tasks))
	for _, t := range tasks {
		items = append(items, archivedItem{
			ID:        t.ID,
			Type:      t.Type,
			Payload:   string(t.Payload),
			Retried:   t.Retried,
			LastError: t.LastErr,
		})
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": items, "page": page})
}

type replayRequest struct {
	IDs []string `json:"ids"`
	All bool     `json:"all"`
}

// Replay moves archived tasks back to pending, either by id or all at once.
func (h *AdminHandler) Replay(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req replayRequest
	if err := common.Decode(r, nil, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if len(req.IDs) == 0 && !req.All {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "ids or all required", nil)
		return
	}
	queue := queueName(r)
	if req.All {
		n, err := h.Inspector.RunAllArchivedTasks(queue)
		if err != nil {
			h.fail(w, err)
			return
		}
		h.Logger.Info().Str("queue", queue).Int("count", n).Msg("archived tasks replayed")
		common.JSON(w, http.StatusOK, map[string]any{"replayed": n})
		return
	}
	replayed := make([]string, 0, len(req.IDs))
	failed := map[string]string{}
	for _, id := range req.IDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if err := h.Inspector.RunTask(queue, id); err != nil {
			failed[id] = err.Error()
			continue
		}
		replayed = append(replayed, id)
	}
	resp := map[string]any{"replayed": replayed}
	if len(failed) > 0 {
		resp["failed"] = failed
	}
	common.JSON(w, http.StatusOK, resp)
}

func (h *AdminHandler) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, asynq.ErrQueueNotFound) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "queue not found", nil)
		return
	}
	h.Logger.Error().Err(err).Msg("queue inspector failed")
	common.WriteError(w, common.Internal(err))
}

func (h *AdminHandler) pageSize() int {
	if h.PageSize <= 0 {
		return 50
	}
	return h.PageSize
}

