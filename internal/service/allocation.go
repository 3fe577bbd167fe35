package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/outbound-wms/api/internal/enum"
	"github.com/outbound-wms/api/internal/inventory"
	"github.com/outbound-wms/api/internal/store"
)

// Errors returned by the allocation service.
var (
	ErrOrderAlreadyCompleted = errors.New("order already completed")
	ErrOrderFullyAllocated   = errors.New("order already fully allocated")
	ErrNoValidInventory      = errors.New("no valid inventory available")
	ErrInsufficientStock     = errors.New("insufficient stock for allocation")
)

// AllocationStore defines the DB methods allocation needs.
// Satisfied by *store.Store.
type AllocationStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	WithNestedTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetOrderByNumberForUpdate(ctx context.Context, orderNumber string) (store.Order, error)
	ListOrdersByNumbersForUpdate(ctx context.Context, orderNumbers []string) ([]store.Order, error)
	SaveAllocations(ctx context.Context, orderID int64, allocs []store.Allocation) error
	UpdateOrderAllocation(ctx context.Context, orderID int64, allocatedQty int, status string) error
}

// InventoryGateway is the slice of the inventory client allocation uses.
type InventoryGateway interface {
	AvailableBatches(ctx context.Context, queries []inventory.SKUPriceQuery) (map[string][]inventory.Batch, error)
	DeductBulk(ctx context.Context, lines []inventory.DeductLine) error
}

// Notifier pushes allocation events to connected dashboard clients.
type Notifier interface {
	NotifyOrderAllocated(result AllocationResult)
}

// AllocationResult reports what one allocation call did to an order. The
// Allocations slice holds only this call's picks, not the full ledger.
type AllocationResult struct {
	OrderNumber  string
	RequestedQty int
	AllocatedQty int
	Status       string
	Allocations  []PlanLine
}

// BulkOrderResult is the per-order outcome inside a bulk run.
type BulkOrderResult struct {
	OrderNumber string
	Success     bool
	Message     string
	Allocation  *AllocationResult
}

// BulkAllocationResult tallies a bulk run. It is always returned with a nil
// error once the batch has been processed; per-order failures live in Results.
type BulkAllocationResult struct {
	TotalOrders  int
	SuccessCount int
	FailureCount int
	Results      []BulkOrderResult
}

// AllocationService reserves inventory against orders.
type AllocationService struct {
	store    AllocationStore
	gateway  InventoryGateway
	notifier Notifier
}

func NewAllocationService(st AllocationStore, gateway InventoryGateway, notifier Notifier) *AllocationService {
	return &AllocationService{store: st, gateway: gateway, notifier: notifier}
}

// Allocate runs the full allocation pipeline for one order inside a single
// transaction: lock, eligibility, availability, plan, deduct, persist.
func (s *AllocationService) Allocate(ctx context.Context, orderNumber string) (*AllocationResult, error) {
	var result *AllocationResult
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		order, err := s.store.GetOrderByNumberForUpdate(ctx, orderNumber)
		if err != nil {
			return err
		}
		if err := checkAllocatable(order); err != nil {
			return err
		}

		batchesByKey, err := s.gateway.AvailableBatches(ctx, []inventory.SKUPriceQuery{
			{SKU: order.SKUCode, MRP: order.MRP},
		})
		if err != nil {
			return err
		}

		lines, total, err := planAllocation(order, batchesByKey[inventory.Key(order.SKUCode, order.MRP)], stockView{})
		if err != nil {
			return err
		}

		if err := s.gateway.DeductBulk(ctx, deductLines(order, lines)); err != nil {
			return err
		}

		result, err = s.persistAllocation(ctx, order, lines, total)
		if err != nil {
			// The deduct went through but the local write did not, so stock
			// and ledger disagree until someone reconciles them.
			log.Printf("ERROR: reconcile order %s: inventory deducted %d units but allocation not persisted: %v",
				order.OrderNumber, total, err)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.NotifyOrderAllocated(*result)
	}
	return result, nil
}

// AllocateBulk allocates a batch of orders in one run. All orders are locked
// up front by a single query, availability is fetched once for the distinct
// (sku, mrp) pairs, and every order plans against a shared stock view so two
// orders cannot both claim the last units of a batch. One order's failure
// never fails the batch.
func (s *AllocationService) AllocateBulk(ctx context.Context, orderNumbers []string) (*BulkAllocationResult, error) {
	if len(orderNumbers) == 0 {
		return &BulkAllocationResult{Results: []BulkOrderResult{}}, nil
	}

	var results []BulkOrderResult

	// Blank entries fail individually; the rest are deduped keeping first
	// occurrence order.
	seen := make(map[string]bool)
	var normalized []string
	for _, raw := range orderNumbers {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			results = append(results, BulkOrderResult{
				OrderNumber: raw,
				Message:     "Order number is missing",
			})
			continue
		}
		if seen[trimmed] {
			continue
		}
		seen[trimmed] = true
		normalized = append(normalized, trimmed)
	}

	if len(normalized) == 0 {
		return tally(results), nil
	}

	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		locked, err := s.store.ListOrdersByNumbersForUpdate(ctx, normalized)
		if err != nil {
			return err
		}
		orderByNumber := make(map[string]store.Order, len(locked))
		for _, o := range locked {
			orderByNumber[o.OrderNumber] = o
		}

		var allocatable []store.Order
		for _, number := range normalized {
			order, ok := orderByNumber[number]
			if !ok {
				results = append(results, failureResult(number, store.ErrOrderNotFound))
				continue
			}
			if err := checkAllocatable(order); err != nil {
				results = append(results, failureResult(number, err))
				continue
			}
			allocatable = append(allocatable, order)
		}
		if len(allocatable) == 0 {
			return nil
		}

		queries := make([]inventory.SKUPriceQuery, 0, len(allocatable))
		for _, o := range allocatable {
			queries = append(queries, inventory.SKUPriceQuery{SKU: o.SKUCode, MRP: o.MRP})
		}
		batchesByKey, err := s.gateway.AvailableBatches(ctx, queries)
		if err != nil {
			for _, o := range allocatable {
				results = append(results, failureResult(o.OrderNumber, err))
			}
			return nil
		}

		// Plan every order against one shared stock view, in request order.
		view := stockView{}
		type orderPlan struct {
			order store.Order
			lines []PlanLine
			total int
		}
		var plans []orderPlan
		for _, o := range allocatable {
			lines, total, err := planAllocation(o, batchesByKey[inventory.Key(o.SKUCode, o.MRP)], view)
			if err != nil {
				results = append(results, failureResult(o.OrderNumber, err))
				continue
			}
			plans = append(plans, orderPlan{order: o, lines: lines, total: total})
		}
		if len(plans) == 0 {
			return nil
		}

		var allDeducts []inventory.DeductLine
		for _, p := range plans {
			allDeducts = append(allDeducts, deductLines(p.order, p.lines)...)
		}
		if err := s.gateway.DeductBulk(ctx, allDeducts); err != nil {
			for _, p := range plans {
				results = append(results, failureResult(p.order.OrderNumber, err))
			}
			return nil
		}

		// Each order commits in its own savepoint so one failed persist rolls
		// back that order alone, not its siblings.
		for _, p := range plans {
			p := p
			var result *AllocationResult
			err := s.store.WithNestedTx(ctx, func(ctx context.Context) error {
				var err error
				result, err = s.persistAllocation(ctx, p.order, p.lines, p.total)
				return err
			})
			if err != nil {
				log.Printf("ERROR: reconcile order %s: inventory deducted %d units but allocation not persisted: %v",
					p.order.OrderNumber, p.total, err)
				results = append(results, failureResult(p.order.OrderNumber, err))
				continue
			}
			results = append(results, BulkOrderResult{
				OrderNumber: p.order.OrderNumber,
				Success:     true,
				Message:     "Allocation completed",
				Allocation:  result,
			})
			if s.notifier != nil {
				s.notifier.NotifyOrderAllocated(*result)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tally(results), nil
}

func checkAllocatable(order store.Order) error {
	if order.Status == enum.OrderStatusCompleted {
		return ErrOrderAlreadyCompleted
	}
	if order.RequestedQty-order.AllocatedQty <= 0 {
		return ErrOrderFullyAllocated
	}
	return nil
}

func (s *AllocationService) persistAllocation(ctx context.Context, order store.Order, lines []PlanLine, total int) (*AllocationResult, error) {
	allocs := make([]store.Allocation, 0, len(lines))
	for _, l := range lines {
		allocs = append(allocs, store.Allocation{
			SKUCode:      order.SKUCode,
			BatchNo:      l.BatchNo,
			ExpiryDate:   l.ExpiryDate,
			MRP:          l.MRP,
			AllocatedQty: l.Quantity,
		})
	}
	if err := s.store.SaveAllocations(ctx, order.ID, allocs); err != nil {
		return nil, err
	}

	allocatedQty := order.AllocatedQty + total
	status := enum.DeriveOrderStatus(allocatedQty, order.RequestedQty)
	if err := s.store.UpdateOrderAllocation(ctx, order.ID, allocatedQty, status); err != nil {
		return nil, err
	}

	return &AllocationResult{
		OrderNumber:  order.OrderNumber,
		RequestedQty: order.RequestedQty,
		AllocatedQty: allocatedQty,
		Status:       status,
		Allocations:  lines,
	}, nil
}

func deductLines(order store.Order, lines []PlanLine) []inventory.DeductLine {
	deducts := make([]inventory.DeductLine, 0, len(lines))
	for _, l := range lines {
		deducts = append(deducts, inventory.DeductLine{
			BatchNo:    l.BatchNo,
			SKU:        order.SKUCode,
			Quantity:   l.Quantity,
			MRP:        order.MRP,
			ExpiryDate: inventory.Date{Time: l.ExpiryDate},
		})
	}
	return deducts
}

func failureResult(orderNumber string, err error) BulkOrderResult {
	return BulkOrderResult{
		OrderNumber: orderNumber,
		Message:     fmt.Sprintf("Allocation failed for order %s: %s", orderNumber, failureReason(err)),
	}
}

// failureReason renders an error the way the bulk API reports it.
func failureReason(err error) string {
	switch {
	case errors.Is(err, store.ErrOrderNotFound):
		return "Order not found"
	case errors.Is(err, ErrOrderAlreadyCompleted):
		return "Order already completed"
	case errors.Is(err, ErrOrderFullyAllocated):
		return "Order already fully allocated"
	case errors.Is(err, ErrNoValidInventory):
		return "No valid inventory available"
	case errors.Is(err, ErrInsufficientStock):
		return "Insufficient stock for allocation"
	default:
		return err.Error()
	}
}

func tally(results []BulkOrderResult) *BulkAllocationResult {
	successCount := 0
	for _, r := range results {
		if r.Success {
			successCount++
		}
	}
	if results == nil {
		results = []BulkOrderResult{}
	}
	return &BulkAllocationResult{
		TotalOrders:  len(results),
		SuccessCount: successCount,
		FailureCount: len(results) - successCount,
		Results:      results,
	}
}
