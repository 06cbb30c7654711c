// Package handler содержит HTTP-обработчики API сервиса автосервиса.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/autoservice-system/internal/billing"
	"github.com/mmeshcher/autoservice-system/internal/middleware"
	"github.com/mmeshcher/autoservice-system/internal/model"
	"github.com/mmeshcher/autoservice-system/internal/report"
	"github.com/mmeshcher/autoservice-system/internal/repository"
	"github.com/mmeshcher/autoservice-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, in service.RegisterInput) (int64, error)
	AuthenticateUser(ctx context.Context, email, password string) (*model.User, error)

	AddVehicle(ctx context.Context, actor service.Actor, in service.VehicleInput) (int64, error)
	ListVehicles(ctx context.Context, actor service.Actor) ([]model.Vehicle, error)
	DeleteVehicle(ctx context.Context, actor service.Actor, vehicleID int64) error

	CreateBooking(ctx context.Context, actor service.Actor, in service.BookingInput) (int64, error)
	CreateIntakeOrder(ctx context.Context, actor service.Actor, in service.IntakeInput) (int64, error)
	ListOrders(ctx context.Context, actor service.Actor) ([]model.RepairOrder, error)
	RepairHistory(ctx context.Context, actor service.Actor) ([]model.RepairOrder, error)
	GetOrder(ctx context.Context, actor service.Actor, orderID int64) (*model.RepairOrder, error)
	EditOrder(ctx context.Context, actor service.Actor, orderID int64, patch model.OrderPatch) error
	ReplaceServices(ctx context.Context, actor service.Actor, orderID int64, serviceIDs []int64) error
	DeleteOrder(ctx context.Context, actor service.Actor, orderID int64) error
	AssignMechanic(ctx context.Context, actor service.Actor, orderID, mechanicID int64) error
	ConsumePart(ctx context.Context, actor service.Actor, orderID, partID int64, quantity int) (model.ConsumedPart, error)
	ReportMissingPart(ctx context.Context, actor service.Actor, orderID, partID int64) error
	AppendNotes(ctx context.Context, actor service.Actor, orderID int64, note string) error
	Complete(ctx context.Context, actor service.Actor, orderID int64) error
	SetStatus(ctx context.Context, actor service.Actor, orderID int64, status model.OrderStatus) error
	CheckOrderStatus(ctx context.Context, actor service.Actor, orderID int64) (model.OrderStatus, error)

	OrderTotal(ctx context.Context, actor service.Actor, orderID int64) (billing.Total, error)
	Invoice(ctx context.Context, actor service.Actor, orderID int64) (*model.Invoice, error)
	SummarizeIncome(ctx context.Context, actor service.Actor) (report.IncomeSummary, error)

	AddPart(ctx context.Context, actor service.Actor, p model.Part) (int64, error)
	ListParts(ctx context.Context, actor service.Actor) ([]model.Part, error)
	RestockPart(ctx context.Context, actor service.Actor, partID int64, delta int) error
	DeletePart(ctx context.Context, actor service.Actor, partID int64) error

	AddService(ctx context.Context, actor service.Actor, svc model.Service) (int64, error)
	UpdateService(ctx context.Context, actor service.Actor, svc model.Service) error
	ListServices(ctx context.Context) ([]model.Service, error)
	DeleteService(ctx context.Context, actor service.Actor, serviceID int64) error

	AddEmployee(ctx context.Context, actor service.Actor, in service.RegisterInput) (int64, error)
	ListEmployees(ctx context.Context, actor service.Actor, role model.Role) ([]model.User, error)
	DeleteEmployee(ctx context.Context, actor service.Actor, userID int64) error
}

// Handler реализует HTTP-обработчики API сервиса автосервиса.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

func actorFromContext(ctx context.Context) (service.Actor, bool) {
	userID, ok := middleware.GetUserIDFromContext(ctx)
	if !ok {
		return service.Actor{}, false
	}
	role, ok := middleware.GetRoleFromContext(ctx)
	if !ok {
		return service.Actor{}, false
	}
	return service.Actor{ID: userID, Role: role}, true
}

func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

// parseDate принимает дату в RFC3339 или в виде YYYY-MM-DD.
func parseDate(value string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

type idResponse struct {
	ID int64 `json:"id"`
}

// respondError переводит ошибки бизнес-логики и репозитория в HTTP-статусы.
// Непредвиденные ошибки логируются и отдаются как 500 без деталей.
func (h *Handler) respondError(w http.ResponseWriter, err error, msg string) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, service.ErrValidation):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrVehicleNotFound),
		errors.Is(err, repository.ErrPartNotFound),
		errors.Is(err, repository.ErrServiceNotFound),
		errors.Is(err, repository.ErrOrderNotFound):
		status = http.StatusNotFound
	case errors.Is(err, repository.ErrUserExists),
		errors.Is(err, repository.ErrUserReferenced),
		errors.Is(err, repository.ErrVehicleExists),
		errors.Is(err, repository.ErrVehicleHasRepairs),
		errors.Is(err, repository.ErrPartExists),
		errors.Is(err, repository.ErrPartInUse),
		errors.Is(err, repository.ErrInsufficientStock),
		errors.Is(err, repository.ErrServiceInUse),
		errors.Is(err, repository.ErrOrderCompleted),
		errors.Is(err, repository.ErrOrderHasParts),
		errors.Is(err, repository.ErrInvalidStatusTransition):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		h.logger.Error(msg, zap.Error(err))
	}

	http.Error(w, http.StatusText(status), status)
}

type registerRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Role           string `json:"role"`
	PhoneNumber    string `json:"phone_number"`
	TaxID          string `json:"tax_id"`
	Specialization string `json:"specialization"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	role := model.Role(req.Role)
	if req.Role == "" {
		role = model.RoleClient
	}

	userID, err := h.service.RegisterUser(r.Context(), service.RegisterInput{
		Email:          req.Email,
		Password:       req.Password,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Role:           role,
		PhoneNumber:    req.PhoneNumber,
		TaxID:          req.TaxID,
		Specialization: req.Specialization,
	})
	if err != nil {
		h.respondError(w, err, "register user error")
		return
	}

	if err := h.authMiddleware.SetAuthCookie(w, userID, role); err != nil {
		h.logger.Error("set auth cookie error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, idResponse{ID: userID})
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	user, err := h.service.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(w, err, "login user error")
		return
	}

	if err := h.authMiddleware.SetAuthCookie(w, user.ID, user.Role); err != nil {
		h.logger.Error("set auth cookie error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, idResponse{ID: user.ID})
}

type vehicleRequest struct {
	Make               string `json:"make"`
	Model              string `json:"model"`
	VIN                string `json:"vin"`
	RegistrationNumber string `json:"registration_number"`
	OwnerID            int64  `json:"owner_id"`
}

type vehicleResponse struct {
	ID                 int64  `json:"id"`
	Make               string `json:"make"`
	Model              string `json:"model"`
	VIN                string `json:"vin,omitempty"`
	RegistrationNumber string `json:"registration_number"`
	OwnerID            int64  `json:"owner_id"`
}

// AddVehicle регистрирует автомобиль текущего клиента или указанного владельца.
func (h *Handler) AddVehicle(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req vehicleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.AddVehicle(r.Context(), actor, service.VehicleInput{
		Make:               req.Make,
		Model:              req.Model,
		VIN:                req.VIN,
		RegistrationNumber: req.RegistrationNumber,
		OwnerID:            req.OwnerID,
	})
	if err != nil {
		h.respondError(w, err, "add vehicle error")
		return
	}

	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

// ListVehicles возвращает автомобили, видимые текущему пользователю.
func (h *Handler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	vehicles, err := h.service.ListVehicles(r.Context(), actor)
	if err != nil {
		h.respondError(w, err, "list vehicles error")
		return
	}

	resp := make([]vehicleResponse, 0, len(vehicles))
	for _, v := range vehicles {
		resp = append(resp, vehicleResponse{
			ID:                 v.ID,
			Make:               v.Make,
			Model:              v.Model,
			VIN:                v.VIN,
			RegistrationNumber: v.RegistrationNumber,
			OwnerID:            v.OwnerID,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// DeleteVehicle удаляет автомобиль клиента без истории заказов.
func (h *Handler) DeleteVehicle(w http.ResponseWriter, r *http.Request) {
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

	if err := h.service.DeleteVehicle(r.Context(), actor, id); err != nil {
		h.respondError(w, err, "delete vehicle error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type partRequest struct {
	Name          string  `json:"name"`
	Code          string  `json:"code"`
	Price         float64 `json:"price"`
	StockQuantity int     `json:"stock_quantity"`
}

type partResponse struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	Code          string  `json:"code"`
	Price         float64 `json:"price"`
	StockQuantity int     `json:"stock_quantity"`
}

// AddPart добавляет складскую позицию запчасти.
func (h *Handler) AddPart(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req partRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.AddPart(r.Context(), actor, model.Part{
		Name:          req.Name,
		Code:          req.Code,
		Price:         req.Price,
		StockQuantity: req.StockQuantity,
	})
	if err != nil {
		h.respondError(w, err, "add part error")
		return
	}

	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

// ListParts возвращает складские позиции.
func (h *Handler) ListParts(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	parts, err := h.service.ListParts(r.Context(), actor)
	if err != nil {
		h.respondError(w, err, "list parts error")
		return
	}

	resp := make([]partResponse, 0, len(parts))
	for _, p := range parts {
		resp = append(resp, partResponse{
			ID:            p.ID,
			Name:          p.Name,
			Code:          p.Code,
			Price:         p.Price,
			StockQuantity: p.StockQuantity,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

type restockRequest struct {
	Delta int `json:"delta"`
}

// RestockPart изменяет остаток запчасти на указанную величину.
func (h *Handler) RestockPart(w http.ResponseWriter, r *http.Request) {
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

	var req restockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.RestockPart(r.Context(), actor, id, req.Delta); err != nil {
		h.respondError(w, err, "restock part error")
		return
	}

	w.WriteHeader(http.StatusOK)
}

// DeletePart удаляет запчасть без истории списаний.
func (h *Handler) DeletePart(w http.ResponseWriter, r *http.Request) {
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

	if err := h.service.DeletePart(r.Context(), actor, id); err != nil {
		h.respondError(w, err, "delete part error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type serviceRequest struct {
	Name      string  `json:"name"`
	BasePrice float64 `json:"base_price"`
}

type serviceResponse struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	BasePrice float64 `json:"base_price"`
}

// AddCatalogService добавляет услугу в прейскурант.
func (h *Handler) AddCatalogService(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req serviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.AddService(r.Context(), actor, model.Service{
		Name:      req.Name,
		BasePrice: req.BasePrice,
	})
	if err != nil {
		h.respondError(w, err, "add service error")
		return
	}

	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

// UpdateCatalogService меняет название и цену услуги прейскуранта.
func (h *Handler) UpdateCatalogService(w http.ResponseWriter, r *http.Request) {
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

	var req serviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	err := h.service.UpdateService(r.Context(), actor, model.Service{
		ID:        id,
		Name:      req.Name,
		BasePrice: req.BasePrice,
	})
	if err != nil {
		h.respondError(w, err, "update service error")
		return
	}

	w.WriteHeader(http.StatusOK)
}

// ListCatalogServices возвращает прейскурант услуг.
func (h *Handler) ListCatalogServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.service.ListServices(r.Context())
	if err != nil {
		h.respondError(w, err, "list services error")
		return
	}

	resp := make([]serviceResponse, 0, len(services))
	for _, svc := range services {
		resp = append(resp, serviceResponse{
			ID:        svc.ID,
			Name:      svc.Name,
			BasePrice: svc.BasePrice,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// DeleteCatalogService удаляет услугу, не привязанную к заказам.
func (h *Handler) DeleteCatalogService(w http.ResponseWriter, r *http.Request) {
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

	if err := h.service.DeleteService(r.Context(), actor, id); err != nil {
		h.respondError(w, err, "delete service error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type employeeResponse struct {
	ID             int64  `json:"id"`
	Email          string `json:"email"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Role           string `json:"role"`
	PhoneNumber    string `json:"phone_number,omitempty"`
	Specialization string `json:"specialization,omitempty"`
}

// AddEmployee регистрирует сотрудника (механика или приёмку).
func (h *Handler) AddEmployee(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.AddEmployee(r.Context(), actor, service.RegisterInput{
		Email:          req.Email,
		Password:       req.Password,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Role:           model.Role(req.Role),
		PhoneNumber:    req.PhoneNumber,
		TaxID:          req.TaxID,
		Specialization: req.Specialization,
	})
	if err != nil {
		h.respondError(w, err, "add employee error")
		return
	}

	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

// ListEmployees возвращает сотрудников указанной роли (параметр role,
// по умолчанию — механики).
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	role := model.Role(r.URL.Query().Get("role"))
	if role == "" {
		role = model.RoleMechanic
	}
	if !role.IsValid() {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	users, err := h.service.ListEmployees(r.Context(), actor, role)
	if err != nil {
		h.respondError(w, err, "list employees error")
		return
	}

	resp := make([]employeeResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, employeeResponse{
			ID:             u.ID,
			Email:          u.Email,
			FirstName:      u.FirstName,
			LastName:       u.LastName,
			Role:           string(u.Role),
			PhoneNumber:    u.PhoneNumber,
			Specialization: u.Specialization,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// DeleteEmployee удаляет сотрудника без назначенных заказов.
func (h *Handler) DeleteEmployee(w http.ResponseWriter, r *http.Request) {
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

	if err := h.service.DeleteEmployee(r.Context(), actor, id); err != nil {
		h.respondError(w, err, "delete employee error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
