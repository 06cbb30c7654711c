// Package report содержит построение финансовой сводки по завершённым заказам.
package report

import (
	"sort"
	"time"

	"github.com/mmeshcher/autoservice-system/internal/billing"
	"github.com/mmeshcher/autoservice-system/internal/model"
)

// OrderSummary описывает одну строку сводки по завершённому заказу.
type OrderSummary struct {
	OrderID      int64     `json:"order_id"`
	StartDate    time.Time `json:"start_date"`
	ServicesCost float64   `json:"services_cost"`
	PartsCost    float64   `json:"parts_cost"`
	Total        float64   `json:"total"`
}

// IncomeSummary содержит агрегированный доход по всем завершённым заказам.
type IncomeSummary struct {
	TotalIncome    float64        `json:"total_income"`
	PartsIncome    float64        `json:"parts_income"`
	ServicesIncome float64        `json:"services_income"`
	FinishedCount  int            `json:"finished_count"`
	Orders         []OrderSummary `json:"orders"`
}

// Summarize строит сводку дохода по завершённым заказам. Заказы в других
// статусах игнорируются. Разбивка упорядочена по идентификатору заказа
// по возрастанию; порядок детерминирован и не зависит от порядка входа.
// Функция только читает данные и не меняет ни заказы, ни склад.
func Summarize(orders []model.RepairOrder) IncomeSummary {
	summary := IncomeSummary{Orders: []OrderSummary{}}

	for _, order := range orders {
		if order.Status != model.OrderStatusDone {
			continue
		}

		total := billing.ComputeTotal(order)
		summary.Orders = append(summary.Orders, OrderSummary{
			OrderID:      order.ID,
			StartDate:    order.StartDate,
			ServicesCost: total.ServicesCost,
			PartsCost:    total.PartsCost,
			Total:        total.Total,
		})

		summary.ServicesIncome += total.ServicesCost
		summary.PartsIncome += total.PartsCost
		summary.TotalIncome += total.Total
	}

	summary.FinishedCount = len(summary.Orders)

	sort.Slice(summary.Orders, func(i, j int) bool {
		return summary.Orders[i].OrderID < summary.Orders[j].OrderID
	})

	return summary
}
