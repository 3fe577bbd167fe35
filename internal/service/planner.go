package service

import (
	"sort"
	"time"

	"github.com/outbound-wms/api/internal/inventory"
	"github.com/outbound-wms/api/internal/store"
	"github.com/shopspring/decimal"
)

// PlanLine is one batch pick inside an allocation plan.
type PlanLine struct {
	BatchNo    string
	ExpiryDate time.Time
	MRP        decimal.Decimal
	Quantity   int
}

// stockView tracks how much of each physical batch is still unclaimed within
// one allocation call. Entries are seeded lazily from the gateway's reported
// quantity the first time a batch is considered, so several orders planned in
// the same call contend for the same stock instead of each seeing a fresh
// copy.
type stockView map[string]int

func (v stockView) available(sku string, mrp decimal.Decimal, b inventory.Batch) int {
	key := inventory.BatchKey(sku, mrp, b.BatchNo)
	if qty, ok := v[key]; ok {
		return qty
	}
	v[key] = b.Quantity
	return b.Quantity
}

func (v stockView) consume(sku string, mrp decimal.Decimal, batchNo string, qty int) {
	v[inventory.BatchKey(sku, mrp, batchNo)] -= qty
}

// planAllocation picks batches for one order, first-expiry-first-out. Batches
// are walked in expiry order (stable, so the gateway's ordering breaks ties)
// and each contributes min(remaining, available). Distinct failures: no
// candidate batches at all versus candidates present but nothing allocatable.
func planAllocation(order store.Order, batches []inventory.Batch, view stockView) ([]PlanLine, int, error) {
	if len(batches) == 0 {
		return nil, 0, ErrNoValidInventory
	}

	sorted := make([]inventory.Batch, len(batches))
	copy(sorted, batches)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ExpiryDate.Before(sorted[j].ExpiryDate.Time)
	})

	remaining := order.RequestedQty - order.AllocatedQty
	total := 0
	var lines []PlanLine

	for _, b := range sorted {
		if remaining <= 0 {
			break
		}
		available := view.available(order.SKUCode, order.MRP, b)
		if available <= 0 {
			continue
		}
		qty := remaining
		if available < qty {
			qty = available
		}
		lines = append(lines, PlanLine{
			BatchNo:    b.BatchNo,
			ExpiryDate: b.ExpiryDate.Time,
			MRP:        b.MRP,
			Quantity:   qty,
		})
		view.consume(order.SKUCode, order.MRP, b.BatchNo, qty)
		remaining -= qty
		total += qty
	}

	if total == 0 {
		return nil, 0, ErrInsufficientStock
	}
	return lines, total, nil
}
