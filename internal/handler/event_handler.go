package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/bookman/internal/event"
	"github.com/hitoshi/bookman/internal/model"
)

// EventHandler は予約管理のHTTPハンドラー。
type EventHandler struct {
	service *event.Service
	logger  *slog.Logger
}

// NewEventHandler はEventHandlerを生成する。
func NewEventHandler(service *event.Service, logger *slog.Logger) *EventHandler {
	return &EventHandler{service: service, logger: logger}
}

// eventResponse は予約情報のAPIレスポンス。カンバン表示用の結合フィールドを含む。
type eventResponse struct {
	ID                string    `json:"id"`
	ProfessionalID    string    `json:"professional_id"`
	ProfessionalName  string    `json:"professional_name,omitempty"`
	ProfessionalColor string    `json:"professional_color,omitempty"`
	ClientName        string    `json:"client_name"`
	ClientCPF         string    `json:"client_cpf,omitempty"`
	ClientPhone       string    `json:"client_phone,omitempty"`
	Notes             string    `json:"notes,omitempty"`
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	StatusID          string    `json:"status_id"`
	StatusName        string    `json:"status_name,omitempty"`
	StatusColor       string    `json:"status_color,omitempty"`
	Synced            bool      `json:"synced"`
	CreatedAt         time.Time `json:"created_at"`
}

func toEventResponse(ev *model.Event) eventResponse {
	return eventResponse{
		ID:                ev.ID,
		ProfessionalID:    ev.ProfessionalID,
		ProfessionalName:  ev.ProfessionalName,
		ProfessionalColor: ev.ProfessionalColor,
		ClientName:        ev.ClientName,
		ClientCPF:         ev.ClientCPF,
		ClientPhone:       ev.ClientPhone,
		Notes:             ev.Notes,
		StartTime:         ev.StartTime,
		EndTime:           ev.EndTime,
		StatusID:          ev.StatusID,
		StatusName:        ev.StatusName,
		StatusColor:       ev.StatusColor,
		Synced:            ev.Synced(),
		CreatedAt:         ev.CreatedAt,
	}
}

type eventRequest struct {
	ProfessionalID string    `json:"professional_id"`
	ClientName     string    `json:"client_name"`
	ClientCPF      string    `json:"client_cpf"`
	ClientPhone    string    `json:"client_phone"`
	Notes          string    `json:"notes"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	StatusID       string    `json:"status_id"`
}

// List は予約一覧を返す。professional_id・dateクエリで絞り込める。
// GET /api/events?professional_id=xxx&date=YYYY-MM-DD
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	oid, ok := ownerID(w, r)
	if !ok {
		return
	}

	events, err := h.service.List(r.Context(), oid,
		r.URL.Query().Get("professional_id"),
		r.URL.Query().Get("date"),
	)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	out := make([]eventResponse, len(events))
	for i, ev := range events {
		out[i] = toEventResponse(ev)
	}
	writeJSON(w, http.StatusOK, out)
}

// Get は予約を1件取得する。
// GET /api/events/{id}
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	oid, ok := ownerID(w, r)
	if !ok {
		return
	}

	ev, err := h.service.Get(r.Context(), chi.URLParam(r, "id"), oid)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(ev))
}

// Create は予約を作成する。
// POST /api/events
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	oid, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "リクエストボディの解析に失敗しました。")
		return
	}

	ev, err := h.service.Create(r.Context(), oid, event.CreateInput{
		ProfessionalID: req.ProfessionalID,
		ClientName:     req.ClientName,
		ClientCPF:      req.ClientCPF,
		ClientPhone:    req.ClientPhone,
		Notes:          req.Notes,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		StatusID:       req.StatusID,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventResponse(ev))
}

// Update は予約を更新する。
// PUT /api/events/{id}
func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	oid, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "リクエストボディの解析に失敗しました。")
		return
	}

	ev, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), oid, event.UpdateInput{
		ProfessionalID: req.ProfessionalID,
		ClientName:     req.ClientName,
		ClientCPF:      req.ClientCPF,
		ClientPhone:    req.ClientPhone,
		Notes:          req.Notes,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		StatusID:       req.StatusID,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(ev))
}

type statusPatchRequest struct {
	StatusID string `json:"status_id"`
}

// PatchStatus はカンバンのカード移動でステータスのみを更新する。
// PATCH /api/events/{id}/status
func (h *EventHandler) PatchStatus(w http.ResponseWriter, r *http.Request) {
	oid, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req statusPatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "リクエストボディの解析に失敗しました。")
		return
	}

	ev, err := h.service.UpdateStatus(r.Context(), chi.URLParam(r, "id"), oid, req.StatusID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(ev))
}

// Delete は予約を削除する。
// DELETE /api/events/{id}
func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	oid, ok := ownerID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id"), oid); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
