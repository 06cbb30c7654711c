package report

import (
	"testing"

	"github.com/mmeshcher/autoservice-system/internal/model"
)

func TestSummarizeFiltersAndAggregates(t *testing.T) {
	orders := []model.RepairOrder{
		{
			ID:     7,
			Status: model.OrderStatusDone,
			Services: []model.AttachedService{
				{ServiceID: 1, BasePrice: 250.00},
			},
			Parts: []model.ConsumedPart{
				{PartID: 1, Quantity: 3, UnitPrice: 45.00},
			},
		},
		{
			ID:     3,
			Status: model.OrderStatusDone,
			Services: []model.AttachedService{
				{ServiceID: 2, BasePrice: 150.00},
			},
		},
		{
			ID:     9,
			Status: model.OrderStatusAccepted,
			Parts: []model.ConsumedPart{
				{PartID: 2, Quantity: 10, UnitPrice: 100.00},
			},
		},
	}

	got := Summarize(orders)

	if got.FinishedCount != 2 {
		t.Fatalf("FinishedCount = %d, want 2", got.FinishedCount)
	}
	if got.ServicesIncome != 400.00 {
		t.Fatalf("ServicesIncome = %v, want 400.00", got.ServicesIncome)
	}
	if got.PartsIncome != 135.00 {
		t.Fatalf("PartsIncome = %v, want 135.00", got.PartsIncome)
	}
	if got.TotalIncome != 535.00 {
		t.Fatalf("TotalIncome = %v, want 535.00", got.TotalIncome)
	}
	if got.TotalIncome != got.PartsIncome+got.ServicesIncome {
		t.Fatalf("total %v != parts %v + services %v", got.TotalIncome, got.PartsIncome, got.ServicesIncome)
	}
}

func TestSummarizeStableOrdering(t *testing.T) {
	orders := []model.RepairOrder{
		{ID: 5, Status: model.OrderStatusDone},
		{ID: 1, Status: model.OrderStatusDone},
		{ID: 3, Status: model.OrderStatusDone},
	}

	got := Summarize(orders)

	want := []int64{1, 3, 5}
	if len(got.Orders) != len(want) {
		t.Fatalf("len(Orders) = %d, want %d", len(got.Orders), len(want))
	}
	for i, id := range want {
		if got.Orders[i].OrderID != id {
			t.Fatalf("Orders[%d].OrderID = %d, want %d", i, got.Orders[i].OrderID, id)
		}
	}
}

func TestSummarizeEmpty(t *testing.T) {
	got := Summarize(nil)

	if got.FinishedCount != 0 || got.TotalIncome != 0 {
		t.Fatalf("empty input must produce zero summary, got %+v", got)
	}
	if got.Orders == nil {
		t.Fatalf("Orders must be an empty slice, not nil")
	}
}
