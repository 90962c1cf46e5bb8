package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/bookman/internal/model"
	"github.com/hitoshi/bookman/internal/repository"
)

// ProfessionalHandler はプロフェッショナル管理のHTTPハンドラー。
type ProfessionalHandler struct {
	professionals repository.ProfessionalRepository
	events        repository.EventRepository
	logger        *slog.Logger
}

// NewProfessionalHandler はProfessionalHandlerを生成する。
func NewProfessionalHandler(
	professionals repository.ProfessionalRepository,
	events repository.EventRepository,
	logger *slog.Logger,
) *ProfessionalHandler {
	return &ProfessionalHandler{
		professionals: professionals,
		events:        events,
		logger:        logger,
	}
}

// professionalResponse はプロフェッショナル情報のAPIレスポンス。
type professionalResponse struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Specialties      string    `json:"specialties"`
	CRM              string    `json:"crm"`
	Observations     string    `json:"observations"`
	Color            string    `json:"color"`
	GoogleCalendarID string    `json:"google_calendar_id"`
	WatchActive      bool      `json:"watch_active"`
	WatchExpiresAt   time.Time `json:"watch_expires_at,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func toProfessionalResponse(p *model.Professional) professionalResponse {
	return professionalResponse{
		ID:               p.ID,
		Name:             p.Name,
		Email:            p.Email,
		Specialties:      p.Specialties,
		CRM:              p.CRM,
		Observations:     p.Observations,
		Color:            p.Color,
		GoogleCalendarID: p.GoogleCalendarID,
		WatchActive:      p.GoogleChannelID != "",
		WatchExpiresAt:   p.WatchExpiresAt,
		CreatedAt:        p.CreatedAt,
	}
}

type professionalRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Specialties  string `json:"specialties"`
	CRM          string `json:"crm"`
	Observations string `json:"observations"`
	Color        string `json:"color"`
}

// List は所有者のプロフェッショナル一覧を返す。
// GET /api/professionals
func (h *ProfessionalHandler) List(w http.ResponseWriter, r *http.Request) {
	oid, ok := ownerID(w, r)
	if !ok {
		return
	}

	profs, err := h.professionals.ListByOwner(r.Context(), oid)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	out := make([]professionalResponse, len(profs))
	for i, p := range profs {
		out[i] = toProfessionalResponse(p)
	}
	writeJSON(w, http.StatusOK, out)
}

// Get はプロフェッショナルを1件取得する。
// GET /api/professionals/{id}
func (h *ProfessionalHandler) Get(w http.ResponseWriter, r *http.Request) {
	oid, ok := ownerID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	prof, err := h.professionals.FindByIDForOwner(r.Context(), id, oid)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if prof == nil {
		handleServiceError(w, h.logger, model.NewProfessionalNotFoundError(id))
		return
	}
	writeJSON(w, http.StatusOK, toProfessionalResponse(prof))
}

// Create はプロフェッショナルを作成する。
// POST /api/professionals
func (h *ProfessionalHandler) Create(w http.ResponseWriter, r *http.Request) {
	oid, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req professionalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "リクエストボディの解析に失敗しました。")
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "名前は必須です。")
		return
	}

	now := time.Now()
	prof := &model.Professional{
		ID:              uuid.NewString(),
		AdministratorID: oid,
		Name:            req.Name,
		Email:           req.Email,
		Specialties:     req.Specialties,
		CRM:             req.CRM,
		Observations:    req.Observations,
		Color:           req.Color,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if prof.Color == "" {
		prof.Color = "#3788d8"
	}

	if err := h.professionals.Create(r.Context(), prof); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProfessionalResponse(prof))
}

// Update はプロフェッショナルの基本情報を更新する。
// PUT /api/professionals/{id}
func (h *ProfessionalHandler) Update(w http.ResponseWriter, r *http.Request) {
	oid, ok := ownerID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var req professionalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "リクエストボディの解析に失敗しました。")
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "名前は必須です。")
		return
	}

	prof := &model.Professional{
		ID:           id,
		Name:         req.Name,
		Email:        req.Email,
		Specialties:  req.Specialties,
		CRM:          req.CRM,
		Observations: req.Observations,
		Color:        req.Color,
	}
	updated, err := h.professionals.Update(r.Context(), prof, oid)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if !updated {
		handleServiceError(w, h.logger, model.NewProfessionalNotFoundError(id))
		return
	}

	fresh, err := h.professionals.FindByIDForOwner(r.Context(), id, oid)
	if err != nil || fresh == nil {
		handleServiceError(w, h.logger, model.NewProfessionalNotFoundError(id))
		return
	}
	writeJSON(w, http.StatusOK, toProfessionalResponse(fresh))
}

// Delete はプロフェッショナルを削除する。配下の予約と可用性もCASCADEで消える。
// DELETE /api/professionals/{id}
func (h *ProfessionalHandler) Delete(w http.ResponseWriter, r *http.Request) {
	oid, ok := ownerID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	deleted, err := h.professionals.Delete(r.Context(), id, oid)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if !deleted {
		handleServiceError(w, h.logger, model.NewProfessionalNotFoundError(id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportICS はプロフェッショナルの予約一覧をiCalendar形式で出力する。
// GET /api/professionals/{id}/calendar.ics
func (h *ProfessionalHandler) ExportICS(w http.ResponseWriter, r *http.Request) {
	oid, ok := ownerID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	prof, err := h.professionals.FindByIDForOwner(r.Context(), id, oid)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if prof == nil {
		handleServiceError(w, h.logger, model.NewProfessionalNotFoundError(id))
		return
	}

	events, err := h.events.ListByProfessional(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	cal := buildCalendar(prof, events)
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", prof.Name+".ics"))
	if err := cal.SerializeTo(w); err != nil {
		h.logger.Error("iCalendarの出力に失敗しました", slog.String("error", err.Error()))
	}
}

// buildCalendar は予約一覧からiCalendarを構築する。
func buildCalendar(prof *model.Professional, events []*model.Event) *ics.Calendar {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//bookman//agenda//JA")
	cal.SetName(prof.Name)

	for _, ev := range events {
		ve := cal.AddEvent(ev.ID + "@bookman")
		ve.SetCreatedTime(ev.CreatedAt)
		ve.SetDtStampTime(ev.UpdatedAt)
		ve.SetStartAt(ev.StartTime)
		ve.SetEndAt(ev.EndTime)
		ve.SetSummary(ev.ClientName)
		if ev.Notes != "" {
			ve.SetDescription(ev.Notes)
		}
	}
	return cal
}
