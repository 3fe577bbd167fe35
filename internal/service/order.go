package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/outbound-wms/api/internal/enum"
	"github.com/outbound-wms/api/internal/store"
	"github.com/shopspring/decimal"
)

const maxOrderNumberRetries = 3

// Errors returned by the order service.
var (
	ErrCustomerNameRequired = errors.New("customer_name is required")
	ErrAddressRequired      = errors.New("address is required")
	ErrSKURequired          = errors.New("sku_code is required")
	ErrInvalidMRP           = errors.New("mrp must be > 0")
	ErrInvalidQuantity      = errors.New("requested_qty must be > 0")
	ErrInvalidStatus        = errors.New("invalid status filter")
	ErrInvalidDateRange     = errors.New("from date must be less than to date")
	ErrInvalidExportFilter  = errors.New("invalid export filter")
)

// OrderStore defines the DB methods needed to manage orders.
// Satisfied by *store.Store.
type OrderStore interface {
	CreateOrder(ctx context.Context, o *store.Order) error
	GetOrderByID(ctx context.Context, id int64) (store.Order, error)
	ListOrders(ctx context.Context, f store.OrderFilter) ([]store.Order, int, error)
	ListOrdersInRange(ctx context.Context, from, to *time.Time) ([]store.Order, error)
	GetOrderSummary(ctx context.Context) (store.OrderSummary, error)
	GetStatusDistribution(ctx context.Context) ([]store.StatusCount, error)
	GetDailyOrders(ctx context.Context, days int) ([]store.DailyCount, error)
	GetDailyAllocations(ctx context.Context, days int) ([]store.DailyQuantity, error)
}

// CreateOrderRequest is the validated input for creating an order.
type CreateOrderRequest struct {
	CustomerName string
	Address      string
	SKUCode      string
	MRP          decimal.Decimal
	RequestedQty int
}

// ListOrdersRequest selects one page of orders.
type ListOrdersRequest struct {
	Page    int
	Size    int
	Status  string
	SKUCode string
	From    *time.Time
	To      *time.Time
}

// PagedOrders is one page of orders plus paging metadata.
type PagedOrders struct {
	Content       []store.Order
	CurrentPage   int
	TotalPages    int
	TotalElements int
}

// DashboardAnalytics collects the chart series for the dashboard.
type DashboardAnalytics struct {
	StatusDistribution []store.StatusCount
	DailyOrders        []store.DailyCount
	DailyAllocations   []store.DailyQuantity
}

// OrderService handles order lifecycle outside of allocation.
type OrderService struct {
	store OrderStore
}

func NewOrderService(st OrderStore) *OrderService {
	return &OrderService{store: st}
}

// CreateOrder validates and persists a new order in PENDING state. The order
// number is ORD- plus eight random hex characters; on the rare collision the
// insert is retried with a fresh number.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*store.Order, error) {
	if strings.TrimSpace(req.CustomerName) == "" {
		return nil, ErrCustomerNameRequired
	}
	if strings.TrimSpace(req.Address) == "" {
		return nil, ErrAddressRequired
	}
	if strings.TrimSpace(req.SKUCode) == "" {
		return nil, ErrSKURequired
	}
	if !req.MRP.IsPositive() {
		return nil, ErrInvalidMRP
	}
	if req.RequestedQty <= 0 {
		return nil, ErrInvalidQuantity
	}

	var lastErr error
	for attempt := 0; attempt < maxOrderNumberRetries; attempt++ {
		order := &store.Order{
			OrderNumber:  generateOrderNumber(),
			CustomerName: strings.TrimSpace(req.CustomerName),
			Address:      strings.TrimSpace(req.Address),
			SKUCode:      strings.TrimSpace(req.SKUCode),
			MRP:          req.MRP,
			RequestedQty: req.RequestedQty,
			AllocatedQty: 0,
			Status:       enum.OrderStatusPending,
		}
		err := s.store.CreateOrder(ctx, order)
		if err == nil {
			return order, nil
		}
		if errors.Is(err, store.ErrOrderNumberTaken) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

func generateOrderNumber() string {
	return "ORD-" + strings.ToUpper(uuid.NewString()[:8])
}

// ListOrders returns one page of orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, req ListOrdersRequest) (*PagedOrders, error) {
	if req.Status != "" && !isValidOrderStatus(req.Status) {
		return nil, ErrInvalidStatus
	}
	if req.From != nil && req.To != nil && req.From.After(*req.To) {
		return nil, ErrInvalidDateRange
	}
	if req.Page < 0 {
		req.Page = 0
	}
	if req.Size <= 0 {
		req.Size = 10
	}
	if req.Size > 100 {
		req.Size = 100
	}

	orders, total, err := s.store.ListOrders(ctx, store.OrderFilter{
		Status:  req.Status,
		SKUCode: strings.TrimSpace(req.SKUCode),
		From:    req.From,
		To:      req.To,
		Page:    req.Page,
		Size:    req.Size,
	})
	if err != nil {
		return nil, err
	}

	totalPages := (total + req.Size - 1) / req.Size
	if orders == nil {
		orders = []store.Order{}
	}
	return &PagedOrders{
		Content:       orders,
		CurrentPage:   req.Page,
		TotalPages:    totalPages,
		TotalElements: total,
	}, nil
}

// GetOrderDetails loads one order with its full allocation ledger.
func (s *OrderService) GetOrderDetails(ctx context.Context, id int64) (*store.Order, error) {
	order, err := s.store.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *OrderService) GetDashboardSummary(ctx context.Context) (*store.OrderSummary, error) {
	sum, err := s.store.GetOrderSummary(ctx)
	if err != nil {
		return nil, err
	}
	return &sum, nil
}

func (s *OrderService) GetDashboardAnalytics(ctx context.Context) (*DashboardAnalytics, error) {
	distribution, err := s.store.GetStatusDistribution(ctx)
	if err != nil {
		return nil, err
	}
	dailyOrders, err := s.store.GetDailyOrders(ctx, 7)
	if err != nil {
		return nil, err
	}
	dailyAllocations, err := s.store.GetDailyAllocations(ctx, 7)
	if err != nil {
		return nil, err
	}
	return &DashboardAnalytics{
		StatusDistribution: distribution,
		DailyOrders:        dailyOrders,
		DailyAllocations:   dailyAllocations,
	}, nil
}

// exportRange turns an export filter into a created_at range. now is passed
// in so tests can pin it.
func exportRange(filter string, from, to *time.Time, now time.Time) (*time.Time, *time.Time, error) {
	switch filter {
	case "", enum.ExportFilterAll:
		return nil, nil, nil
	case enum.ExportFilterToday:
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		end := start.AddDate(0, 0, 1)
		return &start, &end, nil
	case enum.ExportFilterLast7Days:
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, -6)
		return &start, nil, nil
	case enum.ExportFilterCustom:
		if from != nil && to != nil && from.After(*to) {
			return nil, nil, ErrInvalidDateRange
		}
		return from, to, nil
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrInvalidExportFilter, filter)
	}
}

func isValidOrderStatus(s string) bool {
	switch s {
	case enum.OrderStatusPending, enum.OrderStatusPartial, enum.OrderStatusCompleted:
		return true
	}
	return false
}
