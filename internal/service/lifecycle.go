package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmeshcher/autoservice-system/internal/billing"
	"github.com/mmeshcher/autoservice-system/internal/model"
	"github.com/mmeshcher/autoservice-system/internal/report"
	"github.com/mmeshcher/autoservice-system/internal/repository"
)

// BookingInput содержит данные клиентской онлайн-записи.
type BookingInput struct {
	VehicleID int64
	ServiceID int64
	StartDate time.Time
	Notes     string
}

// CreateBooking создаёт заказ по онлайн-записи клиента. Заказ создаётся
// в статусе SUBMITTED с одной выбранной услугой; цена услуги фиксируется
// в момент записи.
func (s *Service) CreateBooking(ctx context.Context, actor Actor, in BookingInput) (int64, error) {
	if err := authorize(actor, opCreateBooking); err != nil {
		return 0, err
	}
	if in.VehicleID == 0 || in.ServiceID == 0 {
		return 0, fmt.Errorf("%w: vehicle and service are required", ErrValidation)
	}
	if in.StartDate.IsZero() {
		return 0, fmt.Errorf("%w: appointment date is required", ErrValidation)
	}

	v, err := s.repo.GetVehicle(ctx, in.VehicleID)
	if err != nil {
		return 0, err
	}
	if v.OwnerID != actor.ID {
		return 0, fmt.Errorf("%w: vehicle belongs to another client", ErrPermissionDenied)
	}

	description := "Online booking"
	if in.Notes != "" {
		description += ": " + in.Notes
	} else {
		description += ": service selected from the catalog"
	}

	return s.repo.CreateOrder(ctx, model.RepairOrder{
		Description: description,
		Status:      model.OrderStatusSubmitted,
		StartDate:   in.StartDate,
		VehicleID:   in.VehicleID,
	}, []int64{in.ServiceID})
}

// IntakeInput содержит данные заказа, создаваемого приёмкой.
type IntakeInput struct {
	VehicleID   int64
	ServiceID   int64
	MechanicID  int64
	Description string
	StartDate   time.Time
}

// CreateIntakeOrder создаёт заказ от имени приёмки. Если механик указан сразу,
// заказ минует SUBMITTED и создаётся в статусе ACCEPTED.
func (s *Service) CreateIntakeOrder(ctx context.Context, actor Actor, in IntakeInput) (int64, error) {
	if err := authorize(actor, opCreateIntake); err != nil {
		return 0, err
	}
	if in.VehicleID == 0 || in.ServiceID == 0 {
		return 0, fmt.Errorf("%w: vehicle and service are required", ErrValidation)
	}
	if in.StartDate.IsZero() {
		return 0, fmt.Errorf("%w: appointment date is required", ErrValidation)
	}

	order := model.RepairOrder{
		Description: in.Description,
		Status:      model.OrderStatusSubmitted,
		StartDate:   in.StartDate,
		VehicleID:   in.VehicleID,
	}

	if in.MechanicID != 0 {
		if err := s.ensureMechanic(ctx, in.MechanicID); err != nil {
			return 0, err
		}
		order.MechanicID = &in.MechanicID
		order.Status = model.OrderStatusAccepted
	}

	return s.repo.CreateOrder(ctx, order, []int64{in.ServiceID})
}

func (s *Service) ensureMechanic(ctx context.Context, userID int64) error {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.Role != model.RoleMechanic {
		return fmt.Errorf("%w: user %d is not a mechanic", ErrValidation, userID)
	}
	return nil
}

// AssignMechanic назначает механика на заказ. Заказ в статусе SUBMITTED
// переводится в ACCEPTED; повторное назначение того же механика безопасно.
func (s *Service) AssignMechanic(ctx context.Context, actor Actor, orderID, mechanicID int64) error {
	if err := authorize(actor, opAssignMechanic); err != nil {
		return err
	}
	if err := s.ensureMechanic(ctx, mechanicID); err != nil {
		return err
	}
	return s.repo.AssignMechanic(ctx, orderID, mechanicID)
}

// ConsumePart списывает запчасть со склада в заказ. При нехватке остатка
// операция отклоняется, ни заказ, ни склад не меняются.
func (s *Service) ConsumePart(ctx context.Context, actor Actor, orderID, partID int64, quantity int) (model.ConsumedPart, error) {
	if err := authorize(actor, opConsumePart); err != nil {
		return model.ConsumedPart{}, err
	}
	if quantity < 1 {
		return model.ConsumedPart{}, fmt.Errorf("%w: quantity must be at least 1", ErrValidation)
	}
	return s.repo.ConsumePart(ctx, orderID, partID, quantity)
}

// ReportMissingPart фиксирует нехватку запчасти: заказ переводится
// в AWAITING_PARTS, в заметки механика добавляется строка с отметкой времени.
func (s *Service) ReportMissingPart(ctx context.Context, actor Actor, orderID, partID int64) error {
	if err := authorize(actor, opReportMissingPart); err != nil {
		return err
	}
	return s.repo.ReportMissingPart(ctx, orderID, partID)
}

// AppendNotes дописывает заметку механика к заказу.
func (s *Service) AppendNotes(ctx context.Context, actor Actor, orderID int64, note string) error {
	if err := authorize(actor, opAppendNotes); err != nil {
		return err
	}
	if note == "" {
		return fmt.Errorf("%w: note must not be empty", ErrValidation)
	}
	return s.repo.AppendMechanicNotes(ctx, orderID, note)
}

// Complete завершает заказ: статус DONE, отметка времени завершения.
// Повторный вызов идемпотентен.
func (s *Service) Complete(ctx context.Context, actor Actor, orderID int64) error {
	if err := authorize(actor, opCompleteOrder); err != nil {
		return err
	}
	return s.repo.CompleteOrder(ctx, orderID)
}

// SetStatus выполняет ручной перевод статуса. Неизвестные статусы
// и выход из терминального статуса отклоняются.
func (s *Service) SetStatus(ctx context.Context, actor Actor, orderID int64, status model.OrderStatus) error {
	if err := authorize(actor, opSetStatus); err != nil {
		return err
	}
	if !status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", repository.ErrInvalidStatusTransition, status)
	}
	return s.repo.UpdateOrder(ctx, orderID, model.OrderPatch{Status: &status})
}

// EditOrder применяет частичное обновление заказа от приёмки. Все проверки
// патча выполняются до записи; при любой ошибке не меняется ни одно поле.
func (s *Service) EditOrder(ctx context.Context, actor Actor, orderID int64, patch model.OrderPatch) error {
	if err := authorize(actor, opEditOrder); err != nil {
		return err
	}
	if patch.IsEmpty() {
		return fmt.Errorf("%w: patch must change at least one field", ErrValidation)
	}
	if patch.Status != nil && !patch.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", repository.ErrInvalidStatusTransition, *patch.Status)
	}
	if patch.MechanicID != nil && *patch.MechanicID != 0 {
		if err := s.ensureMechanic(ctx, *patch.MechanicID); err != nil {
			return err
		}
	}
	if patch.ServiceIDs != nil && len(*patch.ServiceIDs) == 0 {
		return fmt.Errorf("%w: order must keep at least one service", ErrValidation)
	}
	return s.repo.UpdateOrder(ctx, orderID, patch)
}

// ReplaceServices заменяет весь набор привязанных услуг заказа. Цены новых
// привязок фиксируются по текущему прейскуранту.
func (s *Service) ReplaceServices(ctx context.Context, actor Actor, orderID int64, serviceIDs []int64) error {
	if err := authorize(actor, opEditOrder); err != nil {
		return err
	}
	if len(serviceIDs) == 0 {
		return fmt.Errorf("%w: order must keep at least one service", ErrValidation)
	}
	return s.repo.UpdateOrder(ctx, orderID, model.OrderPatch{ServiceIDs: &serviceIDs})
}

// DeleteOrder удаляет заказ без финансовой истории (отмена записи).
func (s *Service) DeleteOrder(ctx context.Context, actor Actor, orderID int64) error {
	if err := authorize(actor, opDeleteOrder); err != nil {
		return err
	}
	return s.repo.DeleteOrder(ctx, orderID)
}

// ListOrders возвращает заказы, видимые пользователю: клиенту — по его
// автомобилям, механику — назначенные ему, персоналу — все.
func (s *Service) ListOrders(ctx context.Context, actor Actor) ([]model.RepairOrder, error) {
	if err := authorize(actor, opListOrders); err != nil {
		return nil, err
	}

	switch actor.Role {
	case model.RoleClient:
		return s.repo.ListOrdersByOwner(ctx, actor.ID, false)
	case model.RoleMechanic:
		return s.repo.ListOrdersByMechanic(ctx, actor.ID)
	default:
		return s.repo.ListOrders(ctx)
	}
}

// RepairHistory возвращает завершённые заказы клиента, новые первыми.
func (s *Service) RepairHistory(ctx context.Context, actor Actor) ([]model.RepairOrder, error) {
	if err := authorize(actor, opListOrders); err != nil {
		return nil, err
	}
	if actor.Role == model.RoleClient {
		return s.repo.ListOrdersByOwner(ctx, actor.ID, true)
	}
	return s.repo.ListCompletedOrders(ctx)
}

// GetOrder возвращает заказ с составом работ. Клиент видит только заказы
// по своим автомобилям.
func (s *Service) GetOrder(ctx context.Context, actor Actor, orderID int64) (*model.RepairOrder, error) {
	if err := authorize(actor, opListOrders); err != nil {
		return nil, err
	}

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if actor.Role == model.RoleClient {
		if err := s.ensureOwnOrder(ctx, actor, order); err != nil {
			return nil, err
		}
	}

	return order, nil
}

func (s *Service) ensureOwnOrder(ctx context.Context, actor Actor, order *model.RepairOrder) error {
	v, err := s.repo.GetVehicle(ctx, order.VehicleID)
	if err != nil {
		return err
	}
	if v.OwnerID != actor.ID {
		return fmt.Errorf("%w: order belongs to another client", ErrPermissionDenied)
	}
	return nil
}

// OrderTotal возвращает разбивку стоимости заказа.
func (s *Service) OrderTotal(ctx context.Context, actor Actor, orderID int64) (billing.Total, error) {
	order, err := s.GetOrder(ctx, actor, orderID)
	if err != nil {
		return billing.Total{}, err
	}
	return billing.ComputeTotal(*order), nil
}

// Invoice собирает полностью рассчитанные данные счёта по заказу для внешнего
// рендера документов. Клиент получает счёт только по своим заказам.
func (s *Service) Invoice(ctx context.Context, actor Actor, orderID int64) (*model.Invoice, error) {
	if err := authorize(actor, opViewInvoice); err != nil {
		return nil, err
	}

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	v, err := s.repo.GetVehicle(ctx, order.VehicleID)
	if err != nil {
		return nil, err
	}
	if actor.Role == model.RoleClient && v.OwnerID != actor.ID {
		return nil, fmt.Errorf("%w: order belongs to another client", ErrPermissionDenied)
	}

	owner, err := s.repo.GetUserByID(ctx, v.OwnerID)
	if err != nil {
		return nil, err
	}

	total := billing.ComputeTotal(*order)

	invoice := &model.Invoice{
		OrderID:      order.ID,
		ClientName:   owner.FirstName + " " + owner.LastName,
		ClientTaxID:  owner.TaxID,
		Vehicle:      fmt.Sprintf("%s %s (%s)", v.Make, v.Model, v.RegistrationNumber),
		Date:         order.StartDate.Format("2006-01-02"),
		Services:     make([]model.InvoiceLine, 0, len(order.Services)),
		Parts:        make([]model.InvoiceLine, 0, len(order.Parts)),
		ServicesCost: total.ServicesCost,
		PartsCost:    total.PartsCost,
		Total:        total.Total,
	}

	for _, svc := range order.Services {
		invoice.Services = append(invoice.Services, model.InvoiceLine{
			Name:      svc.Name,
			Quantity:  1,
			UnitPrice: svc.BasePrice,
			Amount:    svc.BasePrice,
		})
	}
	for _, p := range order.Parts {
		invoice.Parts = append(invoice.Parts, model.InvoiceLine{
			Name:      p.PartName,
			Quantity:  p.Quantity,
			UnitPrice: p.UnitPrice,
			Amount:    p.UnitPrice * float64(p.Quantity),
		})
	}

	return invoice, nil
}

// SummarizeIncome строит финансовую сводку по всем завершённым заказам.
// Операция только читает данные.
func (s *Service) SummarizeIncome(ctx context.Context, actor Actor) (report.IncomeSummary, error) {
	if err := authorize(actor, opIncomeReport); err != nil {
		return report.IncomeSummary{}, err
	}

	orders, err := s.repo.ListCompletedOrders(ctx)
	if err != nil {
		return report.IncomeSummary{}, err
	}

	return report.Summarize(orders), nil
}

// CheckOrderStatus возвращает статус заказа клиента по номеру.
func (s *Service) CheckOrderStatus(ctx context.Context, actor Actor, orderID int64) (model.OrderStatus, error) {
	order, err := s.GetOrder(ctx, actor, orderID)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			// Не раскрываем существование чужих заказов.
			return "", repository.ErrOrderNotFound
		}
		return "", err
	}
	return order.Status, nil
}
