package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/bookman/internal/availability"
	"github.com/hitoshi/bookman/internal/model"
)

// AvailabilityHandler は週次テンプレート・例外・空き枠解決のHTTPハンドラー。
type AvailabilityHandler struct {
	service *availability.Service
	logger  *slog.Logger
}

// NewAvailabilityHandler はAvailabilityHandlerを生成する。
func NewAvailabilityHandler(service *availability.Service, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{service: service, logger: logger}
}

type ruleResponse struct {
	ID             string `json:"id"`
	ProfessionalID string `json:"professional_id"`
	DayOfWeek      int    `json:"day_of_week"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
}

func toRuleResponse(rule *model.AvailabilityRule) ruleResponse {
	return ruleResponse{
		ID:             rule.ID,
		ProfessionalID: rule.ProfessionalID,
		DayOfWeek:      rule.DayOfWeek,
		StartTime:      rule.StartTime,
		EndTime:        rule.EndTime,
	}
}

type exceptionResponse struct {
	ID             string `json:"id"`
	ProfessionalID string `json:"professional_id"`
	ExceptionDate  string `json:"exception_date"`
	StartTime      string `json:"start_time,omitempty"`
	EndTime        string `json:"end_time,omitempty"`
	AllDay         bool   `json:"all_day"`
}

func toExceptionResponse(e *model.AvailabilityException) exceptionResponse {
	return exceptionResponse{
		ID:             e.ID,
		ProfessionalID: e.ProfessionalID,
		ExceptionDate:  e.ExceptionDate,
		StartTime:      e.StartTime,
		EndTime:        e.EndTime,
		AllDay:         e.AllDay(),
	}
}

// ListRules はプロフェッショナルの週次テンプレートを返す。
// GET /api/professionals/{id}/availabilities
func (h *AvailabilityHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	oid, ok := ownerID(w, r)
	if !ok {
		return
	}
	profID := chi.URLParam(r, "id")

	rules, err := h.service.ListRules(r.Context(), profID, oid)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	out := make([]ruleResponse, len(rules))
	for i, rule := range rules {
		out[i] = toRuleResponse(rule)
	}
	writeJSON(w, http.StatusOK, out)
}

type ruleRequest struct {
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// CreateRule はテンプレートエントリを作成する。
// POST /api/professionals/{id}/availabilities
func (h *AvailabilityHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	oid, ok := ownerID(w, r)
	if !ok {
		return
	}
	profID := chi.URLParam(r, "id")

	var req ruleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "リクエストボディの解析に失敗しました。")
		return
	}

	rule, err := h.service.CreateRule(r.Context(), oid, profID, req.DayOfWeek, req.StartTime, req.EndTime)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRuleResponse(rule))
}

type windowRequest struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// UpdateRule はテンプレートエントリの時間帯を更新する。
// PUT /api/availabilities/{id}
func (h *AvailabilityHandler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	oid, ok := ownerID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var req windowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "リクエストボディの解析に失敗しました。")
		return
	}

	if err := h.service.UpdateRule(r.Context(), id, oid, req.StartTime, req.EndTime); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteRule はテンプレートエントリを削除する。
// DELETE /api/availabilities/{id}
func (h *AvailabilityHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	oid, ok := ownerID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	if err := h.service.DeleteRule(r.Context(), id, oid); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type copyDayRequest struct {
	SourceDay  int   `json:"source_day"`
	TargetDays []int `json:"target_days"`
}

// CopyDay はある曜日のテンプレートを複数の曜日へ複製する。
// POST /api/professionals/{id}/availabilities/copy
func (h *AvailabilityHandler) CopyDay(w http.ResponseWriter, r *http.Request) {
	oid, ok := ownerID(w, r)
	if !ok {
		return
	}
	profID := chi.URLParam(r, "id")

	var req copyDayRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "リクエストボディの解析に失敗しました。")
		return
	}

	if err := h.service.CopyDay(r.Context(), oid, profID, req.SourceDay, req.TargetDays); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListExceptions はプロフェッショナルの例外一覧を返す。
// GET /api/professionals/{id}/exceptions?date=YYYY-MM-DD
func (h *AvailabilityHandler) ListExceptions(w http.ResponseWriter, r *http.Request) {
	oid, ok := ownerID(w, r)
	if !ok {
		return
	}
	profID := chi.URLParam(r, "id")

	exceptions, err := h.service.ListExceptions(r.Context(), profID, oid, r.URL.Query().Get("date"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	out := make([]exceptionResponse, len(exceptions))
	for i, e := range exceptions {
		out[i] = toExceptionResponse(e)
	}
	writeJSON(w, http.StatusOK, out)
}

type exceptionRequest struct {
	ExceptionDate string `json:"exception_date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
}

// CreateException は例外を作成する。時間帯を省略すると終日ブロックになる。
// POST /api/professionals/{id}/exceptions
func (h *AvailabilityHandler) CreateException(w http.ResponseWriter, r *http.Request) {
	oid, ok := ownerID(w, r)
	if !ok {
		return
	}
	profID := chi.URLParam(r, "id")

	var req exceptionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "リクエストボディの解析に失敗しました。")
		return
	}

	exception, err := h.service.CreateException(r.Context(), oid, profID, req.ExceptionDate, req.StartTime, req.EndTime)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toExceptionResponse(exception))
}

// UpdateException は例外の時間帯を更新する。
// PUT /api/exceptions/{id}
func (h *AvailabilityHandler) UpdateException(w http.ResponseWriter, r *http.Request) {
	oid, ok := ownerID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var req windowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "リクエストボディの解析に失敗しました。")
		return
	}

	if err := h.service.UpdateException(r.Context(), id, oid, req.StartTime, req.EndTime); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteException は例外を削除する。
// DELETE /api/exceptions/{id}
func (h *AvailabilityHandler) DeleteException(w http.ResponseWriter, r *http.Request) {
	oid, ok := ownerID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	if err := h.service.DeleteException(r.Context(), id, oid); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Month は月間の空き枠を返す。管理画面と公開予約ページの両方から使う。
// GET /api/professionals/{id}/availability?year=2026&month=9
// GET /public/professionals/{id}/availability?year=2026&month=9
func (h *AvailabilityHandler) Month(w http.ResponseWriter, r *http.Request) {
	if _, ok := ownerID(w, r); !ok {
		return
	}
	profID := chi.URLParam(r, "id")

	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		writeBadRequest(w, "yearパラメータが不正です。")
		return
	}
	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil || month < 1 || month > 12 {
		writeBadRequest(w, "monthパラメータが不正です。")
		return
	}

	slots, err := h.service.ResolveMonth(r.Context(), profID, year, time.Month(month))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}
