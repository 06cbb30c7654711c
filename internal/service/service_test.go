package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/autoservice-system/internal/model"
	"github.com/mmeshcher/autoservice-system/internal/repository"
)

// stubRepo реализует Repository для модульных тестов сервиса.
type stubRepo struct {
	createUserID  int64
	createUserErr error
	createdUser   *model.User

	getUserByEmail    *model.User
	getUserByEmailErr error

	getUserByID    *model.User
	getUserByIDErr error

	deletedUserID int64

	vehicle       *model.Vehicle
	vehicleErr    error
	createdVeh    *model.Vehicle
	deletedVehID  int64
	ownerVehicles []model.Vehicle
	allVehicles   []model.Vehicle

	part    *model.Part
	restock struct {
		partID int64
		delta  int
	}

	createdOrder      *model.RepairOrder
	createdOrderSvcs  []int64
	order             *model.RepairOrder
	orderErr          error
	orders            []model.RepairOrder
	mechanicOrders    []model.RepairOrder
	ownerOrders       []model.RepairOrder
	completedOrders   []model.RepairOrder
	listOrdersCalled  string
	assigned          struct{ orderID, mechanicID int64 }
	consumed          model.ConsumedPart
	consumeErr        error
	consumeCall       struct {
		orderID, partID int64
		quantity        int
	}
	missingCall  struct{ orderID, partID int64 }
	appendedNote string
	completedID  int64
	patched      *model.OrderPatch
	patchedID    int64
	updateErr    error
	deletedOrder int64
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateUser(ctx context.Context, u model.User) (int64, error) {
	s.createdUser = &u
	return s.createUserID, s.createUserErr
}

func (s *stubRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.getUserByEmail, s.getUserByEmailErr
}

func (s *stubRepo) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return s.getUserByID, s.getUserByIDErr
}

func (s *stubRepo) ListUsersByRole(ctx context.Context, role model.Role) ([]model.User, error) {
	return nil, nil
}

func (s *stubRepo) DeleteUser(ctx context.Context, id int64) error {
	s.deletedUserID = id
	return nil
}

func (s *stubRepo) CreateVehicle(ctx context.Context, v model.Vehicle) (int64, error) {
	s.createdVeh = &v
	return 1, nil
}

func (s *stubRepo) GetVehicle(ctx context.Context, id int64) (*model.Vehicle, error) {
	return s.vehicle, s.vehicleErr
}

func (s *stubRepo) ListVehiclesByOwner(ctx context.Context, ownerID int64) ([]model.Vehicle, error) {
	return s.ownerVehicles, nil
}

func (s *stubRepo) ListVehicles(ctx context.Context) ([]model.Vehicle, error) {
	return s.allVehicles, nil
}

func (s *stubRepo) DeleteVehicle(ctx context.Context, id int64) error {
	s.deletedVehID = id
	return nil
}

func (s *stubRepo) CreatePart(ctx context.Context, p model.Part) (int64, error) { return 1, nil }

func (s *stubRepo) GetPart(ctx context.Context, id int64) (*model.Part, error) {
	if s.part == nil {
		return nil, repository.ErrPartNotFound
	}
	return s.part, nil
}

func (s *stubRepo) ListParts(ctx context.Context) ([]model.Part, error) { return nil, nil }

func (s *stubRepo) RestockPart(ctx context.Context, id int64, delta int) error {
	s.restock.partID = id
	s.restock.delta = delta
	return nil
}

func (s *stubRepo) DeletePart(ctx context.Context, id int64) error { return nil }

func (s *stubRepo) CreateService(ctx context.Context, svc model.Service) (int64, error) {
	return 1, nil
}

func (s *stubRepo) UpdateService(ctx context.Context, svc model.Service) error { return nil }

func (s *stubRepo) GetService(ctx context.Context, id int64) (*model.Service, error) {
	return nil, repository.ErrServiceNotFound
}

func (s *stubRepo) ListServices(ctx context.Context) ([]model.Service, error) { return nil, nil }

func (s *stubRepo) DeleteService(ctx context.Context, id int64) error { return nil }

func (s *stubRepo) CreateOrder(ctx context.Context, order model.RepairOrder, serviceIDs []int64) (int64, error) {
	s.createdOrder = &order
	s.createdOrderSvcs = serviceIDs
	return 10, nil
}

func (s *stubRepo) GetOrder(ctx context.Context, orderID int64) (*model.RepairOrder, error) {
	return s.order, s.orderErr
}

func (s *stubRepo) ListOrders(ctx context.Context) ([]model.RepairOrder, error) {
	s.listOrdersCalled = "all"
	return s.orders, nil
}

func (s *stubRepo) ListOrdersByMechanic(ctx context.Context, mechanicID int64) ([]model.RepairOrder, error) {
	s.listOrdersCalled = "mechanic"
	return s.mechanicOrders, nil
}

func (s *stubRepo) ListOrdersByOwner(ctx context.Context, ownerID int64, doneOnly bool) ([]model.RepairOrder, error) {
	s.listOrdersCalled = "owner"
	return s.ownerOrders, nil
}

func (s *stubRepo) ListCompletedOrders(ctx context.Context) ([]model.RepairOrder, error) {
	return s.completedOrders, nil
}

func (s *stubRepo) AssignMechanic(ctx context.Context, orderID, mechanicID int64) error {
	s.assigned.orderID = orderID
	s.assigned.mechanicID = mechanicID
	return nil
}

func (s *stubRepo) ConsumePart(ctx context.Context, orderID, partID int64, quantity int) (model.ConsumedPart, error) {
	s.consumeCall.orderID = orderID
	s.consumeCall.partID = partID
	s.consumeCall.quantity = quantity
	return s.consumed, s.consumeErr
}

func (s *stubRepo) ReportMissingPart(ctx context.Context, orderID, partID int64) error {
	s.missingCall.orderID = orderID
	s.missingCall.partID = partID
	return nil
}

func (s *stubRepo) AppendMechanicNotes(ctx context.Context, orderID int64, note string) error {
	s.appendedNote = note
	return nil
}

func (s *stubRepo) CompleteOrder(ctx context.Context, orderID int64) error {
	s.completedID = orderID
	return nil
}

func (s *stubRepo) UpdateOrder(ctx context.Context, orderID int64, patch model.OrderPatch) error {
	s.patchedID = orderID
	s.patched = &patch
	return s.updateErr
}

func (s *stubRepo) DeleteOrder(ctx context.Context, orderID int64) error {
	s.deletedOrder = orderID
	return nil
}

var (
	client    = Actor{ID: 1, Role: model.RoleClient}
	mechanic  = Actor{ID: 2, Role: model.RoleMechanic}
	reception = Actor{ID: 3, Role: model.RoleReception}
	owner     = Actor{ID: 4, Role: model.RoleOwner}
)

func TestRegisterUserValidation(t *testing.T) {
	svc := NewService(&stubRepo{})

	valid := RegisterInput{
		Email:     "jan@example.com",
		Password:  "secret",
		FirstName: "Jan",
		LastName:  "Kowalski",
		Role:      model.RoleClient,
	}

	tests := []struct {
		name   string
		mutate func(*RegisterInput)
	}{
		{"short password", func(in *RegisterInput) { in.Password = "abc" }},
		{"invalid email", func(in *RegisterInput) { in.Email = "not-an-email" }},
		{"missing name", func(in *RegisterInput) { in.FirstName = "" }},
		{"unknown role", func(in *RegisterInput) { in.Role = "janitor" }},
		{"bad phone", func(in *RegisterInput) { in.PhoneNumber = "12345" }},
		{"bad tax id", func(in *RegisterInput) { in.TaxID = "1234567890" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := svc.RegisterUser(context.Background(), in)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestRegisterUserNormalizesTaxID(t *testing.T) {
	repo := &stubRepo{createUserID: 5}
	svc := NewService(repo)

	id, err := svc.RegisterUser(context.Background(), RegisterInput{
		Email:       "anna@example.com",
		Password:    "secret",
		FirstName:   "Anna",
		LastName:    "Nowak",
		Role:        model.RoleClient,
		PhoneNumber: "501-234-567",
		TaxID:       "123-456-32-18",
	})
	if err != nil {
		t.Fatalf("RegisterUser error: %v", err)
	}
	if id != 5 {
		t.Fatalf("id = %d, want 5", id)
	}
	if repo.createdUser.TaxID != "1234563218" {
		t.Fatalf("TaxID = %q, want normalized digits", repo.createdUser.TaxID)
	}
	if repo.createdUser.PhoneNumber != "501234567" {
		t.Fatalf("PhoneNumber = %q, want normalized digits", repo.createdUser.PhoneNumber)
	}
	if len(repo.createdUser.PasswordHash) == 0 {
		t.Fatalf("password hash must not be empty")
	}
}

func TestAuthenticateUser(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	repo := &stubRepo{
		getUserByEmail: &model.User{ID: 1, Email: "jan@example.com", PasswordHash: hash, Role: model.RoleClient},
	}
	svc := NewService(repo)

	if _, err := svc.AuthenticateUser(context.Background(), "jan@example.com", "correct"); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	if _, err := svc.AuthenticateUser(context.Background(), "jan@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	repo.getUserByEmail = nil
	repo.getUserByEmailErr = repository.ErrUserNotFound
	if _, err := svc.AuthenticateUser(context.Background(), "ghost@example.com", "any"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user must map to ErrInvalidCredentials, got %v", err)
	}
}

func TestOperationPermissions(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		call func(svc *Service) error
	}{
		{"client cannot consume parts", func(svc *Service) error {
			_, err := svc.ConsumePart(ctx, client, 1, 1, 1)
			return err
		}},
		{"reception cannot consume parts", func(svc *Service) error {
			_, err := svc.ConsumePart(ctx, reception, 1, 1, 1)
			return err
		}},
		{"client cannot complete order", func(svc *Service) error {
			return svc.Complete(ctx, client, 1)
		}},
		{"reception cannot complete order", func(svc *Service) error {
			return svc.Complete(ctx, reception, 1)
		}},
		{"mechanic cannot assign mechanic", func(svc *Service) error {
			return svc.AssignMechanic(ctx, mechanic, 1, 2)
		}},
		{"mechanic cannot edit order", func(svc *Service) error {
			desc := "x"
			return svc.EditOrder(ctx, mechanic, 1, model.OrderPatch{Description: &desc})
		}},
		{"client cannot see income report", func(svc *Service) error {
			_, err := svc.SummarizeIncome(ctx, client)
			return err
		}},
		{"reception cannot manage employees", func(svc *Service) error {
			return svc.DeleteEmployee(ctx, reception, 2)
		}},
		{"mechanic cannot book appointments", func(svc *Service) error {
			_, err := svc.CreateBooking(ctx, mechanic, BookingInput{VehicleID: 1, ServiceID: 1, StartDate: time.Now()})
			return err
		}},
		{"client cannot report missing part", func(svc *Service) error {
			return svc.ReportMissingPart(ctx, client, 1, 1)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(&stubRepo{})
			if err := tt.call(svc); !errors.Is(err, ErrPermissionDenied) {
				t.Fatalf("expected ErrPermissionDenied, got %v", err)
			}
		})
	}
}

func TestOwnerCanComplete(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)

	if err := svc.Complete(context.Background(), owner, 7); err != nil {
		t.Fatalf("owner override must be allowed: %v", err)
	}
	if repo.completedID != 7 {
		t.Fatalf("completedID = %d, want 7", repo.completedID)
	}
}

func TestConsumePartQuantityValidation(t *testing.T) {
	svc := NewService(&stubRepo{})

	_, err := svc.ConsumePart(context.Background(), mechanic, 1, 1, 0)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for zero quantity, got %v", err)
	}
}

func TestConsumePartDelegates(t *testing.T) {
	repo := &stubRepo{
		consumed: model.ConsumedPart{ID: 1, PartID: 3, PartName: "oil filter", Quantity: 3, UnitPrice: 45.00},
	}
	svc := NewService(repo)

	record, err := svc.ConsumePart(context.Background(), mechanic, 9, 3, 3)
	if err != nil {
		t.Fatalf("ConsumePart error: %v", err)
	}
	if record.UnitPrice != 45.00 || record.Quantity != 3 {
		t.Fatalf("record = %+v, want captured price 45.00 x3", record)
	}
	if repo.consumeCall.orderID != 9 || repo.consumeCall.partID != 3 || repo.consumeCall.quantity != 3 {
		t.Fatalf("unexpected delegation args: %+v", repo.consumeCall)
	}
}

func TestConsumePartSurfacesInsufficientStock(t *testing.T) {
	repo := &stubRepo{consumeErr: repository.ErrInsufficientStock}
	svc := NewService(repo)

	_, err := svc.ConsumePart(context.Background(), mechanic, 1, 1, 100)
	if !errors.Is(err, repository.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestCreateBookingOwnership(t *testing.T) {
	repo := &stubRepo{
		vehicle: &model.Vehicle{ID: 1, OwnerID: 99},
	}
	svc := NewService(repo)

	_, err := svc.CreateBooking(context.Background(), client, BookingInput{
		VehicleID: 1, ServiceID: 2, StartDate: time.Now(),
	})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("booking a foreign vehicle must be denied, got %v", err)
	}
}

func TestCreateBookingSubmitsOrder(t *testing.T) {
	repo := &stubRepo{
		vehicle: &model.Vehicle{ID: 1, OwnerID: client.ID},
	}
	svc := NewService(repo)

	when := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	id, err := svc.CreateBooking(context.Background(), client, BookingInput{
		VehicleID: 1, ServiceID: 2, StartDate: when, Notes: "engine noise",
	})
	if err != nil {
		t.Fatalf("CreateBooking error: %v", err)
	}
	if id != 10 {
		t.Fatalf("id = %d, want 10", id)
	}
	if repo.createdOrder.Status != model.OrderStatusSubmitted {
		t.Fatalf("status = %s, want SUBMITTED", repo.createdOrder.Status)
	}
	if len(repo.createdOrderSvcs) != 1 || repo.createdOrderSvcs[0] != 2 {
		t.Fatalf("services = %v, want [2]", repo.createdOrderSvcs)
	}
}

func TestCreateIntakeOrderWithMechanic(t *testing.T) {
	repo := &stubRepo{
		getUserByID: &model.User{ID: 2, Role: model.RoleMechanic},
	}
	svc := NewService(repo)

	_, err := svc.CreateIntakeOrder(context.Background(), reception, IntakeInput{
		VehicleID: 1, ServiceID: 2, MechanicID: 2, Description: "brake check", StartDate: time.Now(),
	})
	if err != nil {
		t.Fatalf("CreateIntakeOrder error: %v", err)
	}
	if repo.createdOrder.Status != model.OrderStatusAccepted {
		t.Fatalf("status = %s, want ACCEPTED when mechanic assigned at intake", repo.createdOrder.Status)
	}
}

func TestAssignMechanicRequiresMechanicRole(t *testing.T) {
	repo := &stubRepo{
		getUserByID: &model.User{ID: 5, Role: model.RoleReception},
	}
	svc := NewService(repo)

	err := svc.AssignMechanic(context.Background(), reception, 1, 5)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("assigning a non-mechanic must fail validation, got %v", err)
	}
}

func TestSetStatusRejectsUnknownValue(t *testing.T) {
	svc := NewService(&stubRepo{})

	err := svc.SetStatus(context.Background(), reception, 1, model.OrderStatus("Gotowe"))
	if !errors.Is(err, repository.ErrInvalidStatusTransition) {
		t.Fatalf("expected ErrInvalidStatusTransition, got %v", err)
	}
}

func TestEditOrderValidation(t *testing.T) {
	svc := NewService(&stubRepo{})
	ctx := context.Background()

	if err := svc.EditOrder(ctx, reception, 1, model.OrderPatch{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty patch must fail validation, got %v", err)
	}

	bad := model.OrderStatus("CANCELLED")
	if err := svc.EditOrder(ctx, reception, 1, model.OrderPatch{Status: &bad}); !errors.Is(err, repository.ErrInvalidStatusTransition) {
		t.Fatalf("unknown status must be rejected, got %v", err)
	}

	empty := []int64{}
	if err := svc.EditOrder(ctx, reception, 1, model.OrderPatch{ServiceIDs: &empty}); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty service set must fail validation, got %v", err)
	}
}

func TestReplaceServicesDelegatesPatch(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)

	if err := svc.ReplaceServices(context.Background(), reception, 4, []int64{1, 2}); err != nil {
		t.Fatalf("ReplaceServices error: %v", err)
	}
	if repo.patchedID != 4 || repo.patched == nil || repo.patched.ServiceIDs == nil {
		t.Fatalf("expected service patch for order 4, got %+v", repo.patched)
	}
	if got := *repo.patched.ServiceIDs; len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("ServiceIDs = %v, want [1 2]", got)
	}
}

func TestListOrdersDispatchByRole(t *testing.T) {
	tests := []struct {
		name  string
		actor Actor
		want  string
	}{
		{"client sees own orders", client, "owner"},
		{"mechanic sees assigned orders", mechanic, "mechanic"},
		{"reception sees all orders", reception, "all"},
		{"owner sees all orders", owner, "all"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &stubRepo{}
			svc := NewService(repo)
			if _, err := svc.ListOrders(context.Background(), tt.actor); err != nil {
				t.Fatalf("ListOrders error: %v", err)
			}
			if repo.listOrdersCalled != tt.want {
				t.Fatalf("dispatched to %q, want %q", repo.listOrdersCalled, tt.want)
			}
		})
	}
}

func TestCheckOrderStatusHidesForeignOrders(t *testing.T) {
	repo := &stubRepo{
		order:   &model.RepairOrder{ID: 1, VehicleID: 1, Status: model.OrderStatusAccepted},
		vehicle: &model.Vehicle{ID: 1, OwnerID: 99},
	}
	svc := NewService(repo)

	_, err := svc.CheckOrderStatus(context.Background(), client, 1)
	if !errors.Is(err, repository.ErrOrderNotFound) {
		t.Fatalf("foreign order must look like not found, got %v", err)
	}
}

func TestDeleteEmployeeOwnerProtected(t *testing.T) {
	repo := &stubRepo{
		getUserByID: &model.User{ID: 4, Role: model.RoleOwner},
	}
	svc := NewService(repo)

	err := svc.DeleteEmployee(context.Background(), owner, 4)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("deleting the owner must be rejected, got %v", err)
	}
	if repo.deletedUserID != 0 {
		t.Fatalf("owner must not be deleted")
	}
}

func TestInvoiceComputesTotals(t *testing.T) {
	repo := &stubRepo{
		order: &model.RepairOrder{
			ID:        5,
			VehicleID: 1,
			Status:    model.OrderStatusDone,
			StartDate: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
			Services: []model.AttachedService{
				{ServiceID: 1, Name: "oil change", BasePrice: 250.00},
			},
			Parts: []model.ConsumedPart{
				{PartID: 1, PartName: "oil filter", Quantity: 3, UnitPrice: 45.00},
			},
		},
		vehicle:     &model.Vehicle{ID: 1, Make: "Toyota", Model: "Corolla", RegistrationNumber: "WX 12345", OwnerID: 1},
		getUserByID: &model.User{ID: 1, FirstName: "Jan", LastName: "Kowalski", TaxID: "1234563218"},
	}
	svc := NewService(repo)

	inv, err := svc.Invoice(context.Background(), reception, 5)
	if err != nil {
		t.Fatalf("Invoice error: %v", err)
	}
	if inv.Total != 385.00 || inv.ServicesCost != 250.00 || inv.PartsCost != 135.00 {
		t.Fatalf("totals = %+v, want 250.00 + 135.00 = 385.00", inv)
	}
	if len(inv.Parts) != 1 || inv.Parts[0].Amount != 135.00 {
		t.Fatalf("part line = %+v, want amount 135.00", inv.Parts)
	}
	if inv.Vehicle != "Toyota Corolla (WX 12345)" {
		t.Fatalf("vehicle line = %q", inv.Vehicle)
	}
}

func TestSummarizeIncome(t *testing.T) {
	repo := &stubRepo{
		completedOrders: []model.RepairOrder{
			{
				ID:     2,
				Status: model.OrderStatusDone,
				Services: []model.AttachedService{
					{ServiceID: 1, BasePrice: 150.00},
				},
			},
			{
				ID:     1,
				Status: model.OrderStatusDone,
				Parts: []model.ConsumedPart{
					{PartID: 1, Quantity: 2, UnitPrice: 60.00},
				},
			},
		},
	}
	svc := NewService(repo)

	summary, err := svc.SummarizeIncome(context.Background(), owner)
	if err != nil {
		t.Fatalf("SummarizeIncome error: %v", err)
	}
	if summary.TotalIncome != 270.00 {
		t.Fatalf("TotalIncome = %v, want 270.00", summary.TotalIncome)
	}
	if summary.Orders[0].OrderID != 1 || summary.Orders[1].OrderID != 2 {
		t.Fatalf("breakdown must be ordered by order id, got %+v", summary.Orders)
	}
}
