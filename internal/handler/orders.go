package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/outbound-wms/api/internal/enum"
	"github.com/outbound-wms/api/internal/inventory"
	"github.com/outbound-wms/api/internal/service"
	"github.com/outbound-wms/api/internal/store"
)

// OrderServicer is the slice of the order service the handlers use.
type OrderServicer interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*store.Order, error)
	ListOrders(ctx context.Context, req service.ListOrdersRequest) (*service.PagedOrders, error)
	GetOrderDetails(ctx context.Context, id int64) (*store.Order, error)
	GetDashboardSummary(ctx context.Context) (*store.OrderSummary, error)
	GetDashboardAnalytics(ctx context.Context) (*service.DashboardAnalytics, error)
	ExportOrders(ctx context.Context, filter string, from, to *time.Time) ([]byte, error)
}

// Allocator is the slice of the allocation service the handlers use.
type Allocator interface {
	Allocate(ctx context.Context, orderNumber string) (*service.AllocationResult, error)
	AllocateBulk(ctx context.Context, orderNumbers []string) (*service.BulkAllocationResult, error)
}

// OrderHandler handles order and dashboard endpoints.
type OrderHandler struct {
	orders      OrderServicer
	allocations Allocator
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orders OrderServicer, allocations Allocator) *OrderHandler {
	return &OrderHandler{orders: orders, allocations: allocations}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Fixed paths must come before the numeric {id} catch-all.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/orders", h.Create)
	r.Get("/orders", h.List)
	r.Post("/orders/allocate/bulk", h.AllocateBulk)
	r.Post("/orders/{orderNumber}/allocate", h.Allocate)
	r.Get("/orders/summary", h.Summary)
	r.Get("/orders/analytics", h.Analytics)
	r.Get("/orders/export", h.Export)
	r.Get("/orders/{id:[0-9]+}", h.Details)
}

// --- Request / Response types ---

type createOrderRequest struct {
	CustomerName string  `json:"customerName"`
	Address      string  `json:"address"`
	SKUCode      string  `json:"skuCode"`
	MRP          float64 `json:"mrp"`
	RequestedQty int     `json:"requestedQty"`
}

type bulkAllocateRequest struct {
	OrderNumbers []string `json:"orderNumbers"`
}

type orderResponse struct {
	OrderNumber  string    `json:"orderNumber"`
	CustomerName string    `json:"customerName"`
	Address      string    `json:"address"`
	SKUCode      string    `json:"skuCode"`
	MRP          float64   `json:"mrp"`
	RequestedQty int       `json:"requestedQty"`
	AllocatedQty int       `json:"allocatedQty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
}

type pagedResponse struct {
	Content       []orderResponse `json:"content"`
	CurrentPage   int             `json:"currentPage"`
	TotalPages    int             `json:"totalPages"`
	TotalElements int             `json:"totalElements"`
}

type batchAllocationDetail struct {
	BatchNo      string  `json:"batchNo"`
	ExpiryDate   string  `json:"expiryDate"`
	MRP          float64 `json:"mrp"`
	AllocatedQty int     `json:"allocatedQty"`
}

type allocationResponse struct {
	OrderNumber  string                  `json:"orderNumber"`
	RequestedQty int                     `json:"requestedQty"`
	AllocatedQty int                     `json:"allocatedQty"`
	Status       string                  `json:"status"`
	Allocations  []batchAllocationDetail `json:"allocations"`
}

type bulkOrderResult struct {
	OrderNumber string              `json:"orderNumber"`
	Success     bool                `json:"success"`
	Message     string              `json:"message"`
	Allocation  *allocationResponse `json:"allocation"`
}

type bulkAllocationResponse struct {
	TotalOrders  int               `json:"totalOrders"`
	SuccessCount int               `json:"successCount"`
	FailureCount int               `json:"failureCount"`
	Results      []bulkOrderResult `json:"results"`
}

type dashboardSummaryResponse struct {
	TotalOrders            int `json:"totalOrders"`
	PendingOrders          int `json:"pendingOrders"`
	PartialOrders          int `json:"partialOrders"`
	CompletedOrders        int `json:"completedOrders"`
	TodayOrders            int `json:"todayOrders"`
	TotalAllocatedQuantity int `json:"totalAllocatedQuantity"`
}

type dailyOrderData struct {
	Date       string `json:"date"`
	OrderCount int    `json:"orderCount"`
}

type dailyAllocationData struct {
	Date         string `json:"date"`
	AllocatedQty int    `json:"allocatedQty"`
}

type dashboardAnalyticsResponse struct {
	StatusDistribution map[string]int        `json:"statusDistribution"`
	DailyOrders        []dailyOrderData      `json:"dailyOrders"`
	DailyAllocations   []dailyAllocationData `json:"dailyAllocations"`
}

type orderAllocationResponse struct {
	BatchNo      string  `json:"batchNo"`
	ExpDate      string  `json:"expDate"`
	MRP          float64 `json:"mrp"`
	AllocatedQty int     `json:"allocatedQty"`
}

type orderDetailsResponse struct {
	ID           int64                     `json:"id"`
	OrderNumber  string                    `json:"orderNumber"`
	SKUCode      string                    `json:"skuCode"`
	CustomerName string                    `json:"customerName"`
	Address      string                    `json:"address"`
	MRP          float64                   `json:"mrp"`
	RequestedQty int                       `json:"requestedQty"`
	AllocatedQty int                       `json:"allocatedQty"`
	Status       string                    `json:"status"`
	CreatedAt    time.Time                 `json:"createdAt"`
	Allocations  []orderAllocationResponse `json:"allocations"`
}

// --- Handlers ---

// Create handles POST /orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), service.CreateOrderRequest{
		CustomerName: req.CustomerName,
		Address:      req.Address,
		SKUCode:      req.SKUCode,
		MRP:          decimal.NewFromFloat(req.MRP),
		RequestedQty: req.RequestedQty,
	})
	if err != nil {
		if isValidationError(err) {
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
			return
		}
		writeInternalError(w, err)
		return
	}

	writeSuccess(w, "Order created successfully", toOrderResponse(*order))
}

// List handles GET /orders with paging and filters.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	req := service.ListOrdersRequest{
		Status:  r.URL.Query().Get("status"),
		SKUCode: r.URL.Query().Get("skuCode"),
	}

	var err error
	if req.Page, err = queryInt(r, "page", 0); err != nil {
		writeError(w, http.StatusBadRequest, "page: must be a number", "VALIDATION_ERROR")
		return
	}
	if req.Size, err = queryInt(r, "size", 10); err != nil {
		writeError(w, http.StatusBadRequest, "size: must be a number", "VALIDATION_ERROR")
		return
	}
	if req.Page < 0 {
		writeError(w, http.StatusBadRequest, "page: must be 0 or greater", "VALIDATION_ERROR")
		return
	}

	if req.From, err = queryDateTime(r, "fromDate"); err != nil {
		writeError(w, http.StatusBadRequest, "fromDate: must be an ISO date-time", "VALIDATION_ERROR")
		return
	}
	if req.To, err = queryDateTime(r, "toDate"); err != nil {
		writeError(w, http.StatusBadRequest, "toDate: must be an ISO date-time", "VALIDATION_ERROR")
		return
	}

	page, err := h.orders.ListOrders(r.Context(), req)
	if err != nil {
		if isValidationError(err) {
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
			return
		}
		writeInternalError(w, err)
		return
	}

	content := make([]orderResponse, 0, len(page.Content))
	for _, o := range page.Content {
		content = append(content, toOrderResponse(o))
	}

	writeSuccess(w, "Orders fetched successfully", pagedResponse{
		Content:       content,
		CurrentPage:   page.CurrentPage,
		TotalPages:    page.TotalPages,
		TotalElements: page.TotalElements,
	})
}

// Allocate handles POST /orders/{orderNumber}/allocate.
func (h *OrderHandler) Allocate(w http.ResponseWriter, r *http.Request) {
	orderNumber := chi.URLParam(r, "orderNumber")

	result, err := h.allocations.Allocate(r.Context(), orderNumber)
	if err != nil {
		writeAllocationError(w, orderNumber, err)
		return
	}

	writeSuccess(w, "Allocation Completed Successfully", toAllocationResponse(*result))
}

// AllocateBulk handles POST /orders/allocate/bulk.
func (h *OrderHandler) AllocateBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkAllocateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.OrderNumbers) == 0 {
		writeError(w, http.StatusBadRequest, "orderNumbers: Order numbers are required", "VALIDATION_ERROR")
		return
	}

	result, err := h.allocations.AllocateBulk(r.Context(), req.OrderNumbers)
	if err != nil {
		if errors.Is(err, inventory.ErrUnavailable) {
			writeError(w, http.StatusBadGateway, err.Error(), "INVENTORY_SERVICE_ERROR")
			return
		}
		writeInternalError(w, err)
		return
	}

	results := make([]bulkOrderResult, 0, len(result.Results))
	for _, res := range result.Results {
		item := bulkOrderResult{
			OrderNumber: res.OrderNumber,
			Success:     res.Success,
			Message:     res.Message,
		}
		if res.Allocation != nil {
			alloc := toAllocationResponse(*res.Allocation)
			item.Allocation = &alloc
		}
		results = append(results, item)
	}

	writeSuccess(w, "Bulk allocation processed", bulkAllocationResponse{
		TotalOrders:  result.TotalOrders,
		SuccessCount: result.SuccessCount,
		FailureCount: result.FailureCount,
		Results:      results,
	})
}

// Summary handles GET /orders/summary.
func (h *OrderHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.orders.GetDashboardSummary(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}

	writeSuccess(w, "Dashboard summary fetched successfully", dashboardSummaryResponse{
		TotalOrders:            summary.TotalOrders,
		PendingOrders:          summary.PendingOrders,
		PartialOrders:          summary.PartialOrders,
		CompletedOrders:        summary.CompletedOrders,
		TodayOrders:            summary.TodayOrders,
		TotalAllocatedQuantity: summary.TotalAllocatedQuantity,
	})
}

// Analytics handles GET /orders/analytics.
func (h *OrderHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := h.orders.GetDashboardAnalytics(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}

	distribution := make(map[string]int, len(analytics.StatusDistribution))
	for _, sc := range analytics.StatusDistribution {
		distribution[sc.Status] = sc.Count
	}

	dailyOrders := make([]dailyOrderData, 0, len(analytics.DailyOrders))
	for _, d := range analytics.DailyOrders {
		dailyOrders = append(dailyOrders, dailyOrderData{
			Date:       d.Date.Format("2006-01-02"),
			OrderCount: d.Count,
		})
	}

	dailyAllocations := make([]dailyAllocationData, 0, len(analytics.DailyAllocations))
	for _, d := range analytics.DailyAllocations {
		dailyAllocations = append(dailyAllocations, dailyAllocationData{
			Date:         d.Date.Format("2006-01-02"),
			AllocatedQty: d.Quantity,
		})
	}

	writeSuccess(w, "Dashboard analytics fetched successfully", dashboardAnalyticsResponse{
		StatusDistribution: distribution,
		DailyOrders:        dailyOrders,
		DailyAllocations:   dailyAllocations,
	})
}

// Export handles GET /orders/export; streams an xlsx workbook.
func (h *OrderHandler) Export(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("filter")
	if filter == "" {
		filter = enum.ExportFilterAll
	}

	from, err := queryDate(r, "startDate")
	if err != nil {
		writeError(w, http.StatusBadRequest, "startDate: must be an ISO date", "VALIDATION_ERROR")
		return
	}
	to, err := queryDate(r, "endDate")
	if err != nil {
		writeError(w, http.StatusBadRequest, "endDate: must be an ISO date", "VALIDATION_ERROR")
		return
	}

	content, err := h.orders.ExportOrders(r.Context(), filter, from, to)
	if err != nil {
		if isValidationError(err) {
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
			return
		}
		writeInternalError(w, err)
		return
	}

	fileName := "orders_export_" + time.Now().Format("2006-01-02") + ".xlsx"
	w.Header().Set("Content-Disposition", "attachment; filename="+fileName)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.WriteHeader(http.StatusOK)
	w.Write(content)
}

// Details handles GET /orders/{id}.
func (h *OrderHandler) Details(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id: must be a number", "VALIDATION_ERROR")
		return
	}

	order, err := h.orders.GetOrderDetails(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Order not found with id: %d", id), "ORDER_NOT_FOUND")
			return
		}
		writeInternalError(w, err)
		return
	}

	allocations := make([]orderAllocationResponse, 0, len(order.Allocations))
	for _, a := range order.Allocations {
		mrp, _ := a.MRP.Float64()
		allocations = append(allocations, orderAllocationResponse{
			BatchNo:      a.BatchNo,
			ExpDate:      a.ExpiryDate.Format("2006-01-02"),
			MRP:          mrp,
			AllocatedQty: a.AllocatedQty,
		})
	}

	mrp, _ := order.MRP.Float64()
	writeSuccess(w, "Order details fetched successfully", orderDetailsResponse{
		ID:           order.ID,
		OrderNumber:  order.OrderNumber,
		SKUCode:      order.SKUCode,
		CustomerName: order.CustomerName,
		Address:      order.Address,
		MRP:          mrp,
		RequestedQty: order.RequestedQty,
		AllocatedQty: order.AllocatedQty,
		Status:       order.Status,
		CreatedAt:    order.CreatedAt,
		Allocations:  allocations,
	})
}

// --- Helpers ---

func toOrderResponse(o store.Order) orderResponse {
	mrp, _ := o.MRP.Float64()
	return orderResponse{
		OrderNumber:  o.OrderNumber,
		CustomerName: o.CustomerName,
		Address:      o.Address,
		SKUCode:      o.SKUCode,
		MRP:          mrp,
		RequestedQty: o.RequestedQty,
		AllocatedQty: o.AllocatedQty,
		Status:       o.Status,
		CreatedAt:    o.CreatedAt,
	}
}

func toAllocationResponse(result service.AllocationResult) allocationResponse {
	details := make([]batchAllocationDetail, 0, len(result.Allocations))
	for _, line := range result.Allocations {
		mrp, _ := line.MRP.Float64()
		details = append(details, batchAllocationDetail{
			BatchNo:      line.BatchNo,
			ExpiryDate:   line.ExpiryDate.Format("2006-01-02"),
			MRP:          mrp,
			AllocatedQty: line.Quantity,
		})
	}
	return allocationResponse{
		OrderNumber:  result.OrderNumber,
		RequestedQty: result.RequestedQty,
		AllocatedQty: result.AllocatedQty,
		Status:       result.Status,
		Allocations:  details,
	}
}

func writeAllocationError(w http.ResponseWriter, orderNumber string, err error) {
	switch {
	case errors.Is(err, store.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "Order not found: "+orderNumber, "ORDER_NOT_FOUND")
	case errors.Is(err, service.ErrOrderAlreadyCompleted):
		writeError(w, http.StatusBadRequest, "Order already completed", "ALLOCATION_ERROR")
	case errors.Is(err, service.ErrOrderFullyAllocated):
		writeError(w, http.StatusBadRequest, "Order already fully allocated", "ALLOCATION_ERROR")
	case errors.Is(err, service.ErrNoValidInventory):
		writeError(w, http.StatusBadRequest, "No valid inventory available", "ALLOCATION_ERROR")
	case errors.Is(err, service.ErrInsufficientStock):
		writeError(w, http.StatusBadRequest, "Insufficient stock for allocation", "ALLOCATION_ERROR")
	case errors.Is(err, inventory.ErrUnavailable):
		writeError(w, http.StatusBadGateway, err.Error(), "INVENTORY_SERVICE_ERROR")
	default:
		writeInternalError(w, err)
	}
}

func isValidationError(err error) bool {
	for _, target := range []error{
		service.ErrCustomerNameRequired,
		service.ErrAddressRequired,
		service.ErrSKURequired,
		service.ErrInvalidMRP,
		service.ErrInvalidQuantity,
		service.ErrInvalidStatus,
		service.ErrInvalidDateRange,
		service.ErrInvalidExportFilter,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func queryDateTime(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid date-time %q", raw)
}

func queryDate(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
