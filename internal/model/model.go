// Package model содержит доменные сущности сервиса автосервиса.
package model

import "time"

// Role описывает бизнес-роль пользователя. Роль неизменна после регистрации,
// все проверки прав в сервисе опираются только на это поле.
type Role string

const (
	RoleClient    Role = "client"
	RoleMechanic  Role = "mechanic"
	RoleReception Role = "reception"
	RoleOwner     Role = "owner"
)

// IsValid сообщает, входит ли роль в закрытый перечень ролей системы.
func (r Role) IsValid() bool {
	switch r {
	case RoleClient, RoleMechanic, RoleReception, RoleOwner:
		return true
	}
	return false
}

// User представляет зарегистрированного пользователя автосервиса.
type User struct {
	ID             int64
	Email          string
	PasswordHash   []byte
	FirstName      string
	LastName       string
	Role           Role
	PhoneNumber    string
	TaxID          string
	Specialization string
	CreatedAt      time.Time
}

// Vehicle описывает автомобиль клиента.
type Vehicle struct {
	ID                 int64
	Make               string
	Model              string
	VIN                string
	RegistrationNumber string
	OwnerID            int64
}

// Part описывает складскую позицию запчасти.
type Part struct {
	ID            int64
	Name          string
	Code          string
	Price         float64
	StockQuantity int
}

// Service описывает услугу из прейскуранта с фиксированной ценой.
type Service struct {
	ID        int64
	Name      string
	BasePrice float64
}

// OrderStatus описывает статус ремонтного заказа.
type OrderStatus string

const (
	OrderStatusSubmitted     OrderStatus = "SUBMITTED"
	OrderStatusAccepted      OrderStatus = "ACCEPTED"
	OrderStatusAwaitingParts OrderStatus = "AWAITING_PARTS"
	OrderStatusDone          OrderStatus = "DONE"
)

// IsValid сообщает, входит ли статус в закрытый перечень статусов заказа.
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusSubmitted, OrderStatusAccepted, OrderStatusAwaitingParts, OrderStatusDone:
		return true
	}
	return false
}

// IsTerminal сообщает, является ли статус терминальным.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDone
}

// transitions задаёт таблицу допустимых переходов статусов.
// Переход в тот же статус всегда разрешён и трактуется как no-op.
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusSubmitted:     {OrderStatusAccepted, OrderStatusAwaitingParts, OrderStatusDone},
	OrderStatusAccepted:      {OrderStatusSubmitted, OrderStatusAwaitingParts, OrderStatusDone},
	OrderStatusAwaitingParts: {OrderStatusSubmitted, OrderStatusAccepted, OrderStatusDone},
	OrderStatusDone:          {},
}

// CanTransition сообщает, разрешён ли переход заказа из статуса from в статус to.
// Неизвестные статусы и любой выход из терминального статуса запрещены.
func CanTransition(from, to OrderStatus) bool {
	if !from.IsValid() || !to.IsValid() {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ConsumedPart описывает неизменяемую запись о списании запчасти в заказ.
// Цена фиксируется в момент списания и не зависит от последующих правок склада.
type ConsumedPart struct {
	ID        int64
	PartID    int64
	PartName  string
	Quantity  int
	UnitPrice float64
}

// AttachedService описывает услугу, привязанную к заказу,
// с ценой, зафиксированной в момент привязки.
type AttachedService struct {
	ServiceID int64
	Name      string
	BasePrice float64
}

// RepairOrder описывает ремонтный заказ — центральный агрегат сервиса.
type RepairOrder struct {
	ID            int64
	Description   string
	MechanicNotes string
	Status        OrderStatus
	StartDate     time.Time
	EndDate       *time.Time
	VehicleID     int64
	MechanicID    *int64
	Parts         []ConsumedPart
	Services      []AttachedService
}

// OrderPatch описывает частичное обновление заказа. Нулевой указатель означает
// «поле не меняется», поэтому параллельные правки не затирают чужие поля.
type OrderPatch struct {
	Description *string
	StartDate   *time.Time
	Status      *OrderStatus
	// MechanicID с нулевым значением снимает назначение механика.
	MechanicID *int64
	// ServiceIDs заменяет весь набор привязанных услуг.
	ServiceIDs *[]int64
}

// IsEmpty сообщает, что патч не меняет ни одного поля.
func (p OrderPatch) IsEmpty() bool {
	return p.Description == nil && p.StartDate == nil && p.Status == nil &&
		p.MechanicID == nil && p.ServiceIDs == nil
}

// InvoiceLine описывает одну строку счёта: услугу или запчасть.
type InvoiceLine struct {
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Amount    float64 `json:"amount"`
}

// Invoice содержит полностью рассчитанные данные счёта для внешнего рендера
// документов. Никакой логики форматирования здесь нет.
type Invoice struct {
	OrderID      int64         `json:"order_id"`
	ClientName   string        `json:"client_name"`
	ClientTaxID  string        `json:"client_tax_id,omitempty"`
	Vehicle      string        `json:"vehicle"`
	Date         string        `json:"date"`
	Services     []InvoiceLine `json:"services"`
	Parts        []InvoiceLine `json:"parts"`
	ServicesCost float64       `json:"services_cost"`
	PartsCost    float64       `json:"parts_cost"`
	Total        float64       `json:"total"`
}
