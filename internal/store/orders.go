package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

type Order struct {
	ID           int64
	OrderNumber  string
	CustomerName string
	Address      string
	SKUCode      string
	MRP          decimal.Decimal
	RequestedQty int
	AllocatedQty int
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Allocations  []Allocation
}

type Allocation struct {
	ID           int64
	OrderID      int64
	SKUCode      string
	BatchNo      string
	ExpiryDate   time.Time
	MRP          decimal.Decimal
	AllocatedQty int
	CreatedAt    time.Time
}

const orderColumns = `id, order_number, customer_name, address, sku_code, mrp, requested_qty, allocated_qty, status, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var mrp pgtype.Numeric
	err := row.Scan(&o.ID, &o.OrderNumber, &o.CustomerName, &o.Address, &o.SKUCode, &mrp,
		&o.RequestedQty, &o.AllocatedQty, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	if o.MRP, err = numericToDecimal(mrp); err != nil {
		return Order{}, fmt.Errorf("decode mrp: %w", err)
	}
	return o, nil
}

func (s *Store) CreateOrder(ctx context.Context, o *Order) error {
	const stmt = `
INSERT INTO orders (order_number, customer_name, address, sku_code, mrp, requested_qty, allocated_qty, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, created_at, updated_at`

	err := s.queryRow(ctx, stmt,
		o.OrderNumber,
		o.CustomerName,
		o.Address,
		o.SKUCode,
		decimalToNumeric(o.MRP),
		o.RequestedQty,
		o.AllocatedQty,
		o.Status,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrOrderNumberTaken
		}
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (s *Store) GetOrderByNumber(ctx context.Context, orderNumber string) (Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1`
	o, err := scanOrder(s.queryRow(ctx, query, orderNumber))
	if err != nil {
		if err == pgx.ErrNoRows {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// GetOrderByNumberForUpdate loads an order under a row lock. It must be
// called inside a transaction opened with WithTx.
func (s *Store) GetOrderByNumberForUpdate(ctx context.Context, orderNumber string) (Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1 FOR UPDATE`
	o, err := scanOrder(s.queryRow(ctx, query, orderNumber))
	if err != nil {
		if err == pgx.ErrNoRows {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, fmt.Errorf("get order for update: %w", err)
	}
	return o, nil
}

// ListOrdersByNumbersForUpdate locks every matching order in one statement.
// A single ANY query leaves lock acquisition ordering to Postgres, which
// keeps concurrent bulk runs from deadlocking each other. Unknown numbers
// are simply absent from the result.
func (s *Store) ListOrdersByNumbersForUpdate(ctx context.Context, orderNumbers []string) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_number = ANY($1) FOR UPDATE`
	rows, err := s.query(ctx, query, orderNumbers)
	if err != nil {
		return nil, fmt.Errorf("list orders for update: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *Store) GetOrderByID(ctx context.Context, id int64) (Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	o, err := scanOrder(s.queryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, fmt.Errorf("get order by id: %w", err)
	}
	o.Allocations, err = s.ListAllocationsByOrder(ctx, o.ID)
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

func (s *Store) ListAllocationsByOrder(ctx context.Context, orderID int64) ([]Allocation, error) {
	const query = `
SELECT id, order_id, sku_code, batch_no, expiry_date, mrp, allocated_qty, created_at
FROM order_allocations
WHERE order_id = $1
ORDER BY id`

	rows, err := s.query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	defer rows.Close()

	var allocs []Allocation
	for rows.Next() {
		var a Allocation
		var mrp pgtype.Numeric
		if err := rows.Scan(&a.ID, &a.OrderID, &a.SKUCode, &a.BatchNo, &a.ExpiryDate, &mrp, &a.AllocatedQty, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan allocation: %w", err)
		}
		if a.MRP, err = numericToDecimal(mrp); err != nil {
			return nil, fmt.Errorf("decode allocation mrp: %w", err)
		}
		allocs = append(allocs, a)
	}
	return allocs, rows.Err()
}

// SaveAllocations appends ledger rows for one order.
func (s *Store) SaveAllocations(ctx context.Context, orderID int64, allocs []Allocation) error {
	const stmt = `
INSERT INTO order_allocations (order_id, sku_code, batch_no, expiry_date, mrp, allocated_qty)
VALUES ($1, $2, $3, $4, $5, $6)`

	for _, a := range allocs {
		if _, err := s.exec(ctx, stmt, orderID, a.SKUCode, a.BatchNo, a.ExpiryDate, decimalToNumeric(a.MRP), a.AllocatedQty); err != nil {
			return fmt.Errorf("save allocation: %w", err)
		}
	}
	return nil
}

// UpdateOrderAllocation writes the new allocation progress on an order.
func (s *Store) UpdateOrderAllocation(ctx context.Context, orderID int64, allocatedQty int, status string) error {
	const stmt = `UPDATE orders SET allocated_qty = $2, status = $3, updated_at = NOW() WHERE id = $1`
	tag, err := s.exec(ctx, stmt, orderID, allocatedQty, status)
	if err != nil {
		return fmt.Errorf("update order allocation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

type OrderFilter struct {
	Status  string
	SKUCode string
	From    *time.Time
	To      *time.Time
	Page    int // zero-based
	Size    int
}

// ListOrders returns one page of orders, newest first, plus the unpaged total.
func (s *Store) ListOrders(ctx context.Context, f OrderFilter) ([]Order, int, error) {
	where, args := buildOrderFilter(f)

	var total int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)+1, len(args)+2)
	args = append(args, f.Size, f.Page*f.Size)

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}

// ListOrdersInRange returns all orders created inside [from, to), newest
// first, for the xlsx export. Nil bounds are open.
func (s *Store) ListOrdersInRange(ctx context.Context, from, to *time.Time) ([]Order, error) {
	where, args := buildOrderFilter(OrderFilter{From: from, To: to})
	rows, err := s.query(ctx, `SELECT `+orderColumns+` FROM orders`+where+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders in range: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func buildOrderFilter(f OrderFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.SKUCode != "" {
		add("sku_code = $%d", f.SKUCode)
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at < $%d", *f.To)
	}
	if len(conds) == 0 {
		return "", nil
	}
	where := " WHERE " + conds[0]
	for _, c := range conds[1:] {
		where += " AND " + c
	}
	return where, args
}
