package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mmeshcher/autoservice-system/internal/model"
	"github.com/mmeshcher/autoservice-system/internal/service"
)

type consumedPartResponse struct {
	PartID    int64   `json:"part_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type attachedServiceResponse struct {
	ServiceID int64   `json:"service_id"`
	Name      string  `json:"name"`
	BasePrice float64 `json:"base_price"`
}

type orderResponse struct {
	ID            int64                     `json:"id"`
	Description   string                    `json:"description"`
	MechanicNotes string                    `json:"mechanic_notes,omitempty"`
	Status        string                    `json:"status"`
	StartDate     string                    `json:"start_date"`
	EndDate       *string                   `json:"end_date,omitempty"`
	VehicleID     int64                     `json:"vehicle_id"`
	MechanicID    *int64                    `json:"mechanic_id,omitempty"`
	Parts         []consumedPartResponse    `json:"parts"`
	Services      []attachedServiceResponse `json:"services"`
}

func toOrderResponse(o model.RepairOrder) orderResponse {
	resp := orderResponse{
		ID:            o.ID,
		Description:   o.Description,
		MechanicNotes: o.MechanicNotes,
		Status:        string(o.Status),
		StartDate:     o.StartDate.Format(time.RFC3339),
		VehicleID:     o.VehicleID,
		MechanicID:    o.MechanicID,
		Parts:         make([]consumedPartResponse, 0, len(o.Parts)),
		Services:      make([]attachedServiceResponse, 0, len(o.Services)),
	}

	if o.EndDate != nil {
		endDate := o.EndDate.Format(time.RFC3339)
		resp.EndDate = &endDate
	}

	for _, p := range o.Parts {
		resp.Parts = append(resp.Parts, consumedPartResponse{
			PartID:    p.PartID,
			Name:      p.PartName,
			Quantity:  p.Quantity,
			UnitPrice: p.UnitPrice,
		})
	}
	for _, svc := range o.Services {
		resp.Services = append(resp.Services, attachedServiceResponse{
			ServiceID: svc.ServiceID,
			Name:      svc.Name,
			BasePrice: svc.BasePrice,
		})
	}

	return resp
}

type bookingRequest struct {
	VehicleID int64  `json:"vehicle_id"`
	ServiceID int64  `json:"service_id"`
	StartDate string `json:"start_date"`
	Notes     string `json:"notes"`
}

// CreateBooking создаёт заказ по онлайн-записи клиента.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req bookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	startDate, ok := parseDate(req.StartDate)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.CreateBooking(r.Context(), actor, service.BookingInput{
		VehicleID: req.VehicleID,
		ServiceID: req.ServiceID,
		StartDate: startDate,
		Notes:     req.Notes,
	})
	if err != nil {
		h.respondError(w, err, "create booking error")
		return
	}

	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

type intakeRequest struct {
	VehicleID   int64  `json:"vehicle_id"`
	ServiceID   int64  `json:"service_id"`
	MechanicID  int64  `json:"mechanic_id"`
	Description string `json:"description"`
	StartDate   string `json:"start_date"`
}

// CreateOrder создаёт заказ от имени приёмки.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req intakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	startDate, ok := parseDate(req.StartDate)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.CreateIntakeOrder(r.Context(), actor, service.IntakeInput{
		VehicleID:   req.VehicleID,
		ServiceID:   req.ServiceID,
		MechanicID:  req.MechanicID,
		Description: req.Description,
		StartDate:   startDate,
	})
	if err != nil {
		h.respondError(w, err, "create intake order error")
		return
	}

	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

// ListOrders возвращает заказы, видимые текущему пользователю.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orders, err := h.service.ListOrders(r.Context(), actor)
	if err != nil {
		h.respondError(w, err, "list orders error")
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, toOrderResponse(o))
	}

	writeJSON(w, http.StatusOK, resp)
}

// RepairHistory возвращает завершённые заказы, новые первыми.
func (h *Handler) RepairHistory(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orders, err := h.service.RepairHistory(r.Context(), actor)
	if err != nil {
		h.respondError(w, err, "repair history error")
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, toOrderResponse(o))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetOrder возвращает заказ с составом работ.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	id, ok := idParam(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.GetOrder(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, err, "get order error")
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(*order))
}

type orderPatchRequest struct {
	Description *string  `json:"description"`
	StartDate   *string  `json:"start_date"`
	Status      *string  `json:"status"`
	MechanicID  *int64   `json:"mechanic_id"`
	ServiceIDs  *[]int64 `json:"service_ids"`
}

// EditOrder применяет частичное обновление заказа. Отсутствующее в теле поле
// не меняется.
func (h *Handler) EditOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	id, ok := idParam(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req orderPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	patch := model.OrderPatch{
		Description: req.Description,
		MechanicID:  req.MechanicID,
		ServiceIDs:  req.ServiceIDs,
	}
	if req.StartDate != nil {
		startDate, ok := parseDate(*req.StartDate)
		if !ok {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		patch.StartDate = &startDate
	}
	if req.Status != nil {
		status := model.OrderStatus(*req.Status)
		patch.Status = &status
	}

	if err := h.service.EditOrder(r.Context(), actor, id, patch); err != nil {
		h.respondError(w, err, "edit order error")
		return
	}

	w.WriteHeader(http.StatusOK)
}

type replaceServicesRequest struct {
	ServiceIDs []int64 `json:"service_ids"`
}

// ReplaceServices заменяет весь набор услуг заказа.
func (h *Handler) ReplaceServices(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	id, ok := idParam(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req replaceServicesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.ReplaceServices(r.Context(), actor, id, req.ServiceIDs); err != nil {
		h.respondError(w, err, "replace services error")
		return
	}

	w.WriteHeader(http.StatusOK)
}

// DeleteOrder удаляет заказ без финансовой истории.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	id, ok := idParam(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteOrder(r.Context(), actor, id); err != nil {
		h.respondError(w, err, "delete order error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type assignMechanicRequest struct {
	MechanicID int64 `json:"mechanic_id"`
}

// AssignMechanic назначает механика на заказ.
func (h *Handler) AssignMechanic(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	id, ok := idParam(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req assignMechanicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.AssignMechanic(r.Context(), actor, id, req.MechanicID); err != nil {
		h.respondError(w, err, "assign mechanic error")
		return
	}

	w.WriteHeader(http.StatusOK)
}

type consumePartRequest struct {
	PartID   int64 `json:"part_id"`
	Quantity int   `json:"quantity"`
}

// ConsumePart списывает запчасть со склада в заказ.
func (h *Handler) ConsumePart(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	id, ok := idParam(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req consumePartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	consumed, err := h.service.ConsumePart(r.Context(), actor, id, req.PartID, req.Quantity)
	if err != nil {
		h.respondError(w, err, "consume part error")
		return
	}

	writeJSON(w, http.StatusCreated, consumedPartResponse{
		PartID:    consumed.PartID,
		Name:      consumed.PartName,
		Quantity:  consumed.Quantity,
		UnitPrice: consumed.UnitPrice,
	})
}

type missingPartRequest struct {
	PartID int64 `json:"part_id"`
}

// ReportMissingPart фиксирует нехватку запчасти по заказу.
func (h *Handler) ReportMissingPart(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	id, ok := idParam(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req missingPartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.ReportMissingPart(r.Context(), actor, id, req.PartID); err != nil {
		h.respondError(w, err, "report missing part error")
		return
	}

	w.WriteHeader(http.StatusOK)
}

type notesRequest struct {
	Note string `json:"note"`
}

// AppendNotes дописывает заметку механика к заказу.
func (h *Handler) AppendNotes(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	id, ok := idParam(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req notesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.AppendNotes(r.Context(), actor, id, req.Note); err != nil {
		h.respondError(w, err, "append notes error")
		return
	}

	w.WriteHeader(http.StatusOK)
}

// CompleteOrder завершает заказ.
func (h *Handler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	id, ok := idParam(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.Complete(r.Context(), actor, id); err != nil {
		h.respondError(w, err, "complete order error")
		return
	}

	w.WriteHeader(http.StatusOK)
}

type setStatusRequest struct {
	Status string `json:"status"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// SetStatus выполняет ручной перевод статуса заказа.
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	id, ok := idParam(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.SetStatus(r.Context(), actor, id, model.OrderStatus(req.Status)); err != nil {
		h.respondError(w, err, "set status error")
		return
	}

	w.WriteHeader(http.StatusOK)
}

// GetStatus возвращает статус заказа по номеру.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	id, ok := idParam(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	status, err := h.service.CheckOrderStatus(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, err, "get status error")
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{Status: string(status)})
}

// OrderTotal возвращает разбивку стоимости заказа.
func (h *Handler) OrderTotal(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	id, ok := idParam(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	total, err := h.service.OrderTotal(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, err, "order total error")
		return
	}

	writeJSON(w, http.StatusOK, total)
}

// Invoice возвращает рассчитанные данные счёта по заказу.
func (h *Handler) Invoice(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	id, ok := idParam(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	invoice, err := h.service.Invoice(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, err, "invoice error")
		return
	}

	writeJSON(w, http.StatusOK, invoice)
}

// IncomeReport возвращает финансовую сводку по завершённым заказам.
func (h *Handler) IncomeReport(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	summary, err := h.service.SummarizeIncome(r.Context(), actor)
	if err != nil {
		h.respondError(w, err, "income report error")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}
