// Package service реализует бизнес-логику автосервиса: регистрацию,
// учёт автомобилей, жизненный цикл ремонтных заказов и отчётность.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/autoservice-system/internal/model"
	"github.com/mmeshcher/autoservice-system/internal/repository"
	"github.com/mmeshcher/autoservice-system/internal/validation"
)

// Ошибки уровня бизнес-логики.
var (
	// ErrValidation возвращается при некорректных входных данных; состояние не меняется.
	ErrValidation = errors.New("validation failed")
	// ErrPermissionDenied возвращается, когда роль пользователя не входит
	// в набор ролей, допущенных к операции.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInvalidCredentials возвращается при неверном email или пароле.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateUser(ctx context.Context, u model.User) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	ListUsersByRole(ctx context.Context, role model.Role) ([]model.User, error)
	DeleteUser(ctx context.Context, id int64) error

	CreateVehicle(ctx context.Context, v model.Vehicle) (int64, error)
	GetVehicle(ctx context.Context, id int64) (*model.Vehicle, error)
	ListVehiclesByOwner(ctx context.Context, ownerID int64) ([]model.Vehicle, error)
	ListVehicles(ctx context.Context) ([]model.Vehicle, error)
	DeleteVehicle(ctx context.Context, id int64) error

	CreatePart(ctx context.Context, p model.Part) (int64, error)
	GetPart(ctx context.Context, id int64) (*model.Part, error)
	ListParts(ctx context.Context) ([]model.Part, error)
	RestockPart(ctx context.Context, id int64, delta int) error
	DeletePart(ctx context.Context, id int64) error

	CreateService(ctx context.Context, s model.Service) (int64, error)
	UpdateService(ctx context.Context, s model.Service) error
	GetService(ctx context.Context, id int64) (*model.Service, error)
	ListServices(ctx context.Context) ([]model.Service, error)
	DeleteService(ctx context.Context, id int64) error

	CreateOrder(ctx context.Context, order model.RepairOrder, serviceIDs []int64) (int64, error)
	GetOrder(ctx context.Context, orderID int64) (*model.RepairOrder, error)
	ListOrders(ctx context.Context) ([]model.RepairOrder, error)
	ListOrdersByMechanic(ctx context.Context, mechanicID int64) ([]model.RepairOrder, error)
	ListOrdersByOwner(ctx context.Context, ownerID int64, doneOnly bool) ([]model.RepairOrder, error)
	ListCompletedOrders(ctx context.Context) ([]model.RepairOrder, error)
	AssignMechanic(ctx context.Context, orderID, mechanicID int64) error
	ConsumePart(ctx context.Context, orderID, partID int64, quantity int) (model.ConsumedPart, error)
	ReportMissingPart(ctx context.Context, orderID, partID int64) error
	AppendMechanicNotes(ctx context.Context, orderID int64, note string) error
	CompleteOrder(ctx context.Context, orderID int64) error
	UpdateOrder(ctx context.Context, orderID int64, patch model.OrderPatch) error
	DeleteOrder(ctx context.Context, orderID int64) error
}

// Actor описывает действующего пользователя операции: идентификатор и роль
// из проверенного токена. Сервис доверяет роли как есть.
type Actor struct {
	ID   int64
	Role model.Role
}

// operation перечисляет операции сервиса для централизованной проверки прав.
type operation string

const (
	opAddVehicle        operation = "add vehicle"
	opDeleteVehicle     operation = "delete vehicle"
	opListVehicles      operation = "list vehicles"
	opCreateBooking     operation = "create booking"
	opCreateIntake      operation = "create intake order"
	opAssignMechanic    operation = "assign mechanic"
	opConsumePart       operation = "consume part"
	opReportMissingPart operation = "report missing part"
	opAppendNotes       operation = "append mechanic notes"
	opCompleteOrder     operation = "complete order"
	opSetStatus         operation = "set status"
	opEditOrder         operation = "edit order"
	opDeleteOrder       operation = "delete order"
	opListOrders        operation = "list orders"
	opViewInvoice       operation = "view invoice"
	opIncomeReport      operation = "income report"
	opManageParts       operation = "manage parts"
	opListParts         operation = "list parts"
	opManageCatalog     operation = "manage service catalog"
	opManageEmployees   operation = "manage employees"
)

// operationRoles задаёт для каждой операции набор допущенных ролей.
// Проверка выполняется один раз на входе в операцию, а не разбросана по коду.
var operationRoles = map[operation][]model.Role{
	opAddVehicle:        {model.RoleClient, model.RoleReception},
	opDeleteVehicle:     {model.RoleClient},
	opListVehicles:      {model.RoleClient, model.RoleReception, model.RoleOwner},
	opCreateBooking:     {model.RoleClient},
	opCreateIntake:      {model.RoleReception},
	opAssignMechanic:    {model.RoleReception},
	opConsumePart:       {model.RoleMechanic},
	opReportMissingPart: {model.RoleMechanic},
	opAppendNotes:       {model.RoleMechanic},
	opCompleteOrder:     {model.RoleMechanic, model.RoleOwner},
	opSetStatus:         {model.RoleReception, model.RoleMechanic},
	opEditOrder:         {model.RoleReception},
	opDeleteOrder:       {model.RoleReception},
	opListOrders:        {model.RoleClient, model.RoleMechanic, model.RoleReception, model.RoleOwner},
	opViewInvoice:       {model.RoleClient, model.RoleReception, model.RoleOwner},
	opIncomeReport:      {model.RoleOwner},
	opManageParts:       {model.RoleOwner},
	opListParts:         {model.RoleMechanic, model.RoleReception, model.RoleOwner},
	opManageCatalog:     {model.RoleOwner},
	opManageEmployees:   {model.RoleOwner},
}

func authorize(actor Actor, op operation) error {
	for _, role := range operationRoles[op] {
		if actor.Role == role {
			return nil
		}
	}
	return fmt.Errorf("%w: %s requires another role", ErrPermissionDenied, op)
}

// Service содержит бизнес-логику автосервиса.
type Service struct {
	repo Repository
}

// NewService создаёт новый сервис с указанным репозиторием.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterInput содержит данные регистрации пользователя.
type RegisterInput struct {
	Email          string
	Password       string
	FirstName      string
	LastName       string
	Role           model.Role
	PhoneNumber    string
	TaxID          string
	Specialization string
}

// RegisterUser регистрирует нового пользователя после валидации входных данных.
func (s *Service) RegisterUser(ctx context.Context, in RegisterInput) (int64, error) {
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return 0, fmt.Errorf("%w: invalid email", ErrValidation)
	}
	if len(in.Password) < 4 {
		return 0, fmt.Errorf("%w: password must be at least 4 characters", ErrValidation)
	}
	if in.FirstName == "" || in.LastName == "" {
		return 0, fmt.Errorf("%w: first and last name are required", ErrValidation)
	}
	if !in.Role.IsValid() {
		return 0, fmt.Errorf("%w: unknown role %q", ErrValidation, in.Role)
	}

	phone, ok := validation.NormalizePhone(in.PhoneNumber)
	if !ok {
		return 0, fmt.Errorf("%w: phone number must be 9 digits", ErrValidation)
	}

	taxID := in.TaxID
	if taxID != "" {
		if !validation.IsValidTaxID(taxID) {
			return 0, fmt.Errorf("%w: invalid tax id", ErrValidation)
		}
		taxID = strings.NewReplacer("-", "", " ", "").Replace(taxID)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	return s.repo.CreateUser(ctx, model.User{
		Email:          in.Email,
		PasswordHash:   hash,
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		Role:           in.Role,
		PhoneNumber:    phone,
		TaxID:          taxID,
		Specialization: in.Specialization,
	})
}

// AuthenticateUser проверяет email и пароль пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (*model.User, error) {
	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

// VehicleInput содержит данные регистрации автомобиля.
type VehicleInput struct {
	Make               string
	Model              string
	VIN                string
	RegistrationNumber string
	// OwnerID учитывается только для приёмки; клиент всегда регистрирует на себя.
	OwnerID int64
}

// AddVehicle регистрирует автомобиль. Клиент регистрирует только свои
// автомобили, приёмка может указать любого владельца.
func (s *Service) AddVehicle(ctx context.Context, actor Actor, in VehicleInput) (int64, error) {
	if err := authorize(actor, opAddVehicle); err != nil {
		return 0, err
	}
	if in.Make == "" || in.Model == "" || in.RegistrationNumber == "" {
		return 0, fmt.Errorf("%w: make, model and registration number are required", ErrValidation)
	}

	vin, ok := validation.NormalizeVIN(in.VIN)
	if !ok {
		return 0, fmt.Errorf("%w: chassis id must be 17 alphanumeric characters", ErrValidation)
	}

	ownerID := actor.ID
	if actor.Role == model.RoleReception {
		if in.OwnerID == 0 {
			return 0, fmt.Errorf("%w: owner is required", ErrValidation)
		}
		ownerID = in.OwnerID
	}

	return s.repo.CreateVehicle(ctx, model.Vehicle{
		Make:               in.Make,
		Model:              in.Model,
		VIN:                vin,
		RegistrationNumber: in.RegistrationNumber,
		OwnerID:            ownerID,
	})
}

// ListVehicles возвращает автомобили, видимые пользователю:
// клиенту — только свои, персоналу — все.
func (s *Service) ListVehicles(ctx context.Context, actor Actor) ([]model.Vehicle, error) {
	if err := authorize(actor, opListVehicles); err != nil {
		return nil, err
	}
	if actor.Role == model.RoleClient {
		return s.repo.ListVehiclesByOwner(ctx, actor.ID)
	}
	return s.repo.ListVehicles(ctx)
}

// DeleteVehicle удаляет автомобиль клиента. Автомобиль с историей заказов
// защищён ссылочной целостностью: удаление отклоняется как конфликт.
func (s *Service) DeleteVehicle(ctx context.Context, actor Actor, vehicleID int64) error {
	if err := authorize(actor, opDeleteVehicle); err != nil {
		return err
	}

	v, err := s.repo.GetVehicle(ctx, vehicleID)
	if err != nil {
		return err
	}
	if v.OwnerID != actor.ID {
		return fmt.Errorf("%w: vehicle belongs to another client", ErrPermissionDenied)
	}

	return s.repo.DeleteVehicle(ctx, vehicleID)
}

// AddPart добавляет складскую позицию запчасти.
func (s *Service) AddPart(ctx context.Context, actor Actor, p model.Part) (int64, error) {
	if err := authorize(actor, opManageParts); err != nil {
		return 0, err
	}
	if p.Name == "" || p.Code == "" {
		return 0, fmt.Errorf("%w: part name and code are required", ErrValidation)
	}
	if p.Price < 0 {
		return 0, fmt.Errorf("%w: part price must not be negative", ErrValidation)
	}
	if p.StockQuantity < 0 {
		return 0, fmt.Errorf("%w: stock quantity must not be negative", ErrValidation)
	}
	return s.repo.CreatePart(ctx, p)
}

// ListParts возвращает складские позиции.
func (s *Service) ListParts(ctx context.Context, actor Actor) ([]model.Part, error) {
	if err := authorize(actor, opListParts); err != nil {
		return nil, err
	}
	return s.repo.ListParts(ctx)
}

// RestockPart изменяет остаток запчасти на delta (приход или административная
// корректировка). Остаток не может стать отрицательным.
func (s *Service) RestockPart(ctx context.Context, actor Actor, partID int64, delta int) error {
	if err := authorize(actor, opManageParts); err != nil {
		return err
	}
	if delta == 0 {
		return fmt.Errorf("%w: restock delta must not be zero", ErrValidation)
	}
	return s.repo.RestockPart(ctx, partID, delta)
}

// DeletePart удаляет запчасть без истории списаний.
func (s *Service) DeletePart(ctx context.Context, actor Actor, partID int64) error {
	if err := authorize(actor, opManageParts); err != nil {
		return err
	}
	return s.repo.DeletePart(ctx, partID)
}

// AddService добавляет услугу в прейскурант.
func (s *Service) AddService(ctx context.Context, actor Actor, svc model.Service) (int64, error) {
	if err := authorize(actor, opManageCatalog); err != nil {
		return 0, err
	}
	if svc.Name == "" {
		return 0, fmt.Errorf("%w: service name is required", ErrValidation)
	}
	if svc.BasePrice < 0 {
		return 0, fmt.Errorf("%w: service price must not be negative", ErrValidation)
	}
	return s.repo.CreateService(ctx, svc)
}

// UpdateService меняет название и цену услуги. Зафиксированные в заказах цены
// не пересчитываются.
func (s *Service) UpdateService(ctx context.Context, actor Actor, svc model.Service) error {
	if err := authorize(actor, opManageCatalog); err != nil {
		return err
	}
	if svc.Name == "" {
		return fmt.Errorf("%w: service name is required", ErrValidation)
	}
	if svc.BasePrice < 0 {
		return fmt.Errorf("%w: service price must not be negative", ErrValidation)
	}
	return s.repo.UpdateService(ctx, svc)
}

// ListServices возвращает прейскурант. Доступен всем аутентифицированным
// пользователям: клиент выбирает услугу при записи.
func (s *Service) ListServices(ctx context.Context) ([]model.Service, error) {
	return s.repo.ListServices(ctx)
}

// DeleteService удаляет услугу, не привязанную ни к одному заказу.
func (s *Service) DeleteService(ctx context.Context, actor Actor, serviceID int64) error {
	if err := authorize(actor, opManageCatalog); err != nil {
		return err
	}
	return s.repo.DeleteService(ctx, serviceID)
}

// AddEmployee регистрирует сотрудника (механика или приёмку).
func (s *Service) AddEmployee(ctx context.Context, actor Actor, in RegisterInput) (int64, error) {
	if err := authorize(actor, opManageEmployees); err != nil {
		return 0, err
	}
	if in.Role != model.RoleMechanic && in.Role != model.RoleReception {
		return 0, fmt.Errorf("%w: employee role must be mechanic or reception", ErrValidation)
	}
	return s.RegisterUser(ctx, in)
}

// ListEmployees возвращает сотрудников указанной роли.
func (s *Service) ListEmployees(ctx context.Context, actor Actor, role model.Role) ([]model.User, error) {
	if err := authorize(actor, opManageEmployees); err != nil {
		return nil, err
	}
	return s.repo.ListUsersByRole(ctx, role)
}

// DeleteEmployee удаляет сотрудника. Владельца удалить нельзя; сотрудник
// с назначенными заказами защищён ссылочной целостностью.
func (s *Service) DeleteEmployee(ctx context.Context, actor Actor, userID int64) error {
	if err := authorize(actor, opManageEmployees); err != nil {
		return err
	}

	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.Role == model.RoleOwner {
		return fmt.Errorf("%w: owner account cannot be removed", ErrValidation)
	}

	return s.repo.DeleteUser(ctx, userID)
}
