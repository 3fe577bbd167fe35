package enum

// ── Group A: State machines (CHECK constrained in DB) ──

const (
	OrderStatusPending   = "PENDING"
	OrderStatusPartial   = "PARTIAL"
	OrderStatusCompleted = "COMPLETED"
)

// DeriveOrderStatus recomputes an order's status from its quantities.
// Status is never written independently; every mutation derives it from
// (allocatedQty, requestedQty) so the two can never disagree.
func DeriveOrderStatus(allocatedQty, requestedQty int) string {
	switch {
	case allocatedQty <= 0:
		return OrderStatusPending
	case allocatedQty < requestedQty:
		return OrderStatusPartial
	default:
		return OrderStatusCompleted
	}
}

// ── Group B: Borderline (CHECK constrained in DB) ──

const (
	UserRoleAdmin = "ADMIN"
	UserRoleUser  = "USER"
)

// ── Group C: Request-level labels (no DB constraint) ──

const (
	ExportFilterAll       = "ALL"
	ExportFilterToday     = "TODAY"
	ExportFilterLast7Days = "LAST_7_DAYS"
	ExportFilterCustom    = "CUSTOM"
)

const (
	InventoryOperationDeduct = "DEDUCT"
)
