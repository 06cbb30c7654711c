// Package billing содержит чистый расчёт стоимости ремонтного заказа.
package billing

import (
	"math"

	"github.com/mmeshcher/autoservice-system/internal/model"
)

// Total содержит разбивку стоимости заказа.
type Total struct {
	ServicesCost float64 `json:"services_cost"`
	PartsCost    float64 `json:"parts_cost"`
	Total        float64 `json:"total"`
}

// ComputeTotal считает стоимость заказа по привязанным услугам и списанным
// запчастям. Используются цены, зафиксированные в момент привязки и списания.
// Функция не имеет побочных эффектов и применима к заказу в любом статусе.
func ComputeTotal(order model.RepairOrder) Total {
	var servicesCents, partsCents int64

	for _, s := range order.Services {
		servicesCents += toCents(s.BasePrice)
	}
	for _, p := range order.Parts {
		partsCents += toCents(p.UnitPrice) * int64(p.Quantity)
	}

	return Total{
		ServicesCost: fromCents(servicesCents),
		PartsCost:    fromCents(partsCents),
		Total:        fromCents(servicesCents + partsCents),
	}
}

// Суммирование в копейках исключает накопление ошибки плавающей точки
// на длинных заказах.
func toCents(v float64) int64 {
	return int64(math.Round(v * 100))
}

func fromCents(c int64) float64 {
	return float64(c) / 100
}
