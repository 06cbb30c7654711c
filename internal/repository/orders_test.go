package repository

import (
	"testing"
	"time"

	"github.com/mmeshcher/autoservice-system/internal/model"
)

func statusPtr(s model.OrderStatus) *model.OrderStatus { return &s }

func TestTerminalOrderPatch(t *testing.T) {
	description := "new description"
	startDate := time.Now()
	mechanicID := int64(7)
	serviceIDs := []int64{1, 2}

	tests := []struct {
		name     string
		status   model.OrderStatus
		patch    model.OrderPatch
		wantNoop bool
	}{
		{
			name:     "repeat done is a no-op",
			status:   model.OrderStatusDone,
			patch:    model.OrderPatch{Status: statusPtr(model.OrderStatusDone)},
			wantNoop: true,
		},
		{
			name:     "leaving done is rejected",
			status:   model.OrderStatusDone,
			patch:    model.OrderPatch{Status: statusPtr(model.OrderStatusAccepted)},
			wantNoop: false,
		},
		{
			name:   "repeat done with description change is rejected",
			status: model.OrderStatusDone,
			patch: model.OrderPatch{
				Status:      statusPtr(model.OrderStatusDone),
				Description: &description,
			},
			wantNoop: false,
		},
		{
			name:   "repeat done with start date change is rejected",
			status: model.OrderStatusDone,
			patch: model.OrderPatch{
				Status:    statusPtr(model.OrderStatusDone),
				StartDate: &startDate,
			},
			wantNoop: false,
		},
		{
			name:   "repeat done with mechanic change is rejected",
			status: model.OrderStatusDone,
			patch: model.OrderPatch{
				Status:     statusPtr(model.OrderStatusDone),
				MechanicID: &mechanicID,
			},
			wantNoop: false,
		},
		{
			name:   "repeat done with service replacement is rejected",
			status: model.OrderStatusDone,
			patch: model.OrderPatch{
				Status:     statusPtr(model.OrderStatusDone),
				ServiceIDs: &serviceIDs,
			},
			wantNoop: false,
		},
		{
			name:     "patch without status is rejected",
			status:   model.OrderStatusDone,
			patch:    model.OrderPatch{Description: &description},
			wantNoop: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTerminalNoop(tt.status, tt.patch); got != tt.wantNoop {
				t.Errorf("isTerminalNoop(%s, %+v) = %v, want %v", tt.status, tt.patch, got, tt.wantNoop)
			}
		})
	}
}

func TestDedupeIDs(t *testing.T) {
	tests := []struct {
		name string
		ids  []int64
		want []int64
	}{
		{name: "no duplicates", ids: []int64{1, 2, 3}, want: []int64{1, 2, 3}},
		{name: "duplicates removed keeping order", ids: []int64{2, 1, 2, 3, 1}, want: []int64{2, 1, 3}},
		{name: "empty", ids: []int64{}, want: []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := dedupeIDs(tt.ids)
			if len(got) != len(tt.want) {
				t.Fatalf("dedupeIDs(%v) = %v, want %v", tt.ids, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("dedupeIDs(%v) = %v, want %v", tt.ids, got, tt.want)
				}
			}
		})
	}
}
