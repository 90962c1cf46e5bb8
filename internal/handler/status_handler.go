package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/bookman/internal/model"
	"github.com/hitoshi/bookman/internal/repository"
)

// StatusHandler はカンバンステータス管理のHTTPハンドラー。
type StatusHandler struct {
	statuses repository.StatusRepository
	logger   *slog.Logger
}

// NewStatusHandler はStatusHandlerを生成する。
func NewStatusHandler(statuses repository.StatusRepository, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{statuses: statuses, logger: logger}
}

type statusResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	SortOrder int    `json:"sort_order"`
}

func toStatusResponse(s *model.KanbanStatus) statusResponse {
	return statusResponse{ID: s.ID, Name: s.Name, Color: s.Color, SortOrder: s.SortOrder}
}

type statusRequest struct {
	Name      string `json:"name"`
	Color     string `json:"color"`
	SortOrder int    `json:"sort_order"`
}

// List は所有者のステータス一覧をsort_order順で返す。
// GET /api/kanban-statuses
func (h *StatusHandler) List(w http.ResponseWriter, r *http.Request) {
	oid, ok := ownerID(w, r)
	if !ok {
		return
	}

	statuses, err := h.statuses.List(r.Context(), oid)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	out := make([]statusResponse, len(statuses))
	for i, s := range statuses {
		out[i] = toStatusResponse(s)
	}
	writeJSON(w, http.StatusOK, out)
}

// Create はステータスを作成する。
// POST /api/kanban-statuses
func (h *StatusHandler) Create(w http.ResponseWriter, r *http.Request) {
	oid, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "リクエストボディの解析に失敗しました。")
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "名前は必須です。")
		return
	}

	status := &model.KanbanStatus{
		ID:        uuid.NewString(),
		UserID:    oid,
		Name:      req.Name,
		Color:     req.Color,
		SortOrder: req.SortOrder,
	}
	if status.Color == "" {
		status.Color = "#7f8c8d"
	}

	if err := h.statuses.Create(r.Context(), status); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toStatusResponse(status))
}

// Update はステータスを更新する。
// PUT /api/kanban-statuses/{id}
func (h *StatusHandler) Update(w http.ResponseWriter, r *http.Request) {
	oid, ok := ownerID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "リクエストボディの解析に失敗しました。")
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "名前は必須です。")
		return
	}

	status := &model.KanbanStatus{
		ID:        id,
		Name:      req.Name,
		Color:     req.Color,
		SortOrder: req.SortOrder,
	}
	updated, err := h.statuses.Update(r.Context(), status, oid)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if !updated {
		writeBadRequest(w, "指定されたステータスが見つかりません。")
		return
	}
	writeJSON(w, http.StatusOK, toStatusResponse(status))
}

// Delete はステータスを削除する。
// 予約が参照しているステータスは外部キー制約により削除できない。
// DELETE /api/kanban-statuses/{id}
func (h *StatusHandler) Delete(w http.ResponseWriter, r *http.Request) {
	oid, ok := ownerID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	deleted, err := h.statuses.Delete(r.Context(), id, oid)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if !deleted {
		writeBadRequest(w, "指定されたステータスが見つかりません。")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reorderRequest struct {
	IDs []string `json:"ids"`
}

// Reorder はステータスの表示順を一括更新する。
// PUT /api/kanban-statuses/reorder
func (h *StatusHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	oid, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req reorderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "リクエストボディの解析に失敗しました。")
		return
	}
	if len(req.IDs) == 0 {
		writeBadRequest(w, "idsは必須です。")
		return
	}

	if err := h.statuses.Reorder(r.Context(), oid, req.IDs); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
