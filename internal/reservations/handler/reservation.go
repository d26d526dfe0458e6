package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"agenda/internal/reservations/service"
	httputil "agenda/pkg/http"
	"agenda/pkg/logger"
	"agenda/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type ReservationHandler struct {
	service service.ReservationService
	log     *logger.Logger
}

func NewReservationHandler(service service.ReservationService, log *logger.Logger) *ReservationHandler {
	return &ReservationHandler{
		service: service,
		log:     log,
	}
}

func (h *ReservationHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	tenantID, ok := h.tenant(w, r, "Create")
	if !ok {
		return
	}

	var req model.CreateReservationRequest
	if !h.decode(w, r, "Create", &req, false) {
		return
	}

	reservation, err := h.service.Create(r.Context(), tenantID, &req)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if err := httputil.WriteCreated(w, model.NewCreatedReservation(reservation)); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *ReservationHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tenantID, ok := h.tenant(w, r, "GetByID")
	if !ok {
		return
	}

	reservation, err := h.service.GetByID(r.Context(), tenantID, ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, reservation); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tenantID, ok := h.tenant(w, r, "Cancel")
	if !ok {
		return
	}

	var req model.CancelRequest
	if !h.decode(w, r, "Cancel", &req, true) {
		return
	}

	reservation, err := h.service.Cancel(r.Context(), tenantID, ps.ByName("id"), req.CancelToken)
	if err != nil {
		h.writeError(w, "Cancel", err)
		return
	}

	if err := httputil.WriteSuccess(w, reservation); err != nil {
		h.log.Error("failed to write success response", "handler", "Cancel", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) Complete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tenantID, ok := h.tenant(w, r, "Complete")
	if !ok {
		return
	}

	var req model.CompleteRequest
	if !h.decode(w, r, "Complete", &req, true) {
		return
	}

	reservation, err := h.service.Complete(r.Context(), tenantID, ps.ByName("id"), req.IssueReviewToken)
	if err != nil {
		h.writeError(w, "Complete", err)
		return
	}

	if err := httputil.WriteSuccess(w, reservation); err != nil {
		h.log.Error("failed to write success response", "handler", "Complete", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) Reschedule(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tenantID, ok := h.tenant(w, r, "Reschedule")
	if !ok {
		return
	}

	var req model.RescheduleRequest
	if !h.decode(w, r, "Reschedule", &req, false) {
		return
	}

	reservation, err := h.service.Reschedule(r.Context(), tenantID, ps.ByName("id"), &req)
	if err != nil {
		h.writeError(w, "Reschedule", err)
		return
	}

	if err := httputil.WriteSuccess(w, reservation); err != nil {
		h.log.Error("failed to write success response", "handler", "Reschedule", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) FreeSlots(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tenantID, ok := h.tenant(w, r, "FreeSlots")
	if !ok {
		return
	}

	query := r.URL.Query()
	serviceID := query.Get("service_id")
	date := query.Get("date")

	if serviceID == "" || date == "" {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Both 'service_id' and 'date' query parameters are required",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "FreeSlots", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	slots, err := h.service.FreeSlots(r.Context(), tenantID, ps.ByName("id"), serviceID, date)
	if err != nil {
		h.writeError(w, "FreeSlots", err)
		return
	}

	if err := httputil.WriteSuccess(w, slots); err != nil {
		h.log.Error("failed to write success response", "handler", "FreeSlots", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) VerifyReviewToken(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	tenantID, ok := h.tenant(w, r, "VerifyReviewToken")
	if !ok {
		return
	}

	claim, err := h.service.VerifyReviewToken(r.Context(), tenantID, r.URL.Query().Get("token"))
	if err != nil {
		h.writeError(w, "VerifyReviewToken", err)
		return
	}

	if err := httputil.WriteSuccess(w, claim); err != nil {
		h.log.Error("failed to write success response", "handler", "VerifyReviewToken", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) tenant(w http.ResponseWriter, r *http.Request, handler string) (string, bool) {
	tenantID, err := httputil.ExtractTenantID(r)
	if err != nil {
		h.writeError(w, handler, err)
		return "", false
	}
	return tenantID, true
}

// decode reads the JSON body into dst. Optional bodies may be empty.
func (h *ReservationHandler) decode(w http.ResponseWriter, r *http.Request, handler string, dst any, optional bool) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}

	if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
		Error: "Invalid request body",
	}); writeErr != nil {
		h.log.Error("failed to write JSON response", "handler", handler, "operation", "WriteJSON", "error", writeErr)
	}
	return false
}

func (h *ReservationHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *ReservationHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/reservations", h.Create)
	router.GET("/api/v1/reservations/id/:id", h.GetByID)
	router.POST("/api/v1/reservations/id/:id/cancel", h.Cancel)
	router.POST("/api/v1/reservations/id/:id/complete", h.Complete)
	router.POST("/api/v1/reservations/id/:id/reschedule", h.Reschedule)
	router.GET("/api/v1/resources/:id/free-slots", h.FreeSlots)
	router.GET("/api/v1/reviews/verify", h.VerifyReviewToken)
}
