package store

import (
	"context"
	"fmt"
	"time"
)

type OrderSummary struct {
	TotalOrders            int
	PendingOrders          int
	PartialOrders          int
	CompletedOrders        int
	TodayOrders            int
	TotalAllocatedQuantity int
}

type StatusCount struct {
	Status string
	Count  int
}

type DailyCount struct {
	Date  time.Time
	Count int
}

type DailyQuantity struct {
	Date     time.Time
	Quantity int
}

func (s *Store) GetOrderSummary(ctx context.Context) (OrderSummary, error) {
	const query = `
SELECT
	COUNT(*),
	COUNT(*) FILTER (WHERE status = 'PENDING'),
	COUNT(*) FILTER (WHERE status = 'PARTIAL'),
	COUNT(*) FILTER (WHERE status = 'COMPLETED'),
	COUNT(*) FILTER (WHERE created_at >= date_trunc('day', NOW())),
	COALESCE(SUM(allocated_qty), 0)
FROM orders`

	var sum OrderSummary
	err := s.queryRow(ctx, query).Scan(
		&sum.TotalOrders,
		&sum.PendingOrders,
		&sum.PartialOrders,
		&sum.CompletedOrders,
		&sum.TodayOrders,
		&sum.TotalAllocatedQuantity,
	)
	if err != nil {
		return OrderSummary{}, fmt.Errorf("order summary: %w", err)
	}
	return sum, nil
}

func (s *Store) GetStatusDistribution(ctx context.Context) ([]StatusCount, error) {
	const query = `SELECT status, COUNT(*) FROM orders GROUP BY status ORDER BY status`
	rows, err := s.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("status distribution: %w", err)
	}
	defer rows.Close()

	var counts []StatusCount
	for rows.Next() {
		var c StatusCount
		if err := rows.Scan(&c.Status, &c.Count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// GetDailyOrders counts orders per day for the last n days, including days
// with no orders.
func (s *Store) GetDailyOrders(ctx context.Context, days int) ([]DailyCount, error) {
	const query = `
SELECT d.day, COUNT(o.id)
FROM generate_series(date_trunc('day', NOW()) - ($1 - 1) * INTERVAL '1 day', date_trunc('day', NOW()), INTERVAL '1 day') AS d(day)
LEFT JOIN orders o ON o.created_at >= d.day AND o.created_at < d.day + INTERVAL '1 day'
GROUP BY d.day
ORDER BY d.day`

	rows, err := s.query(ctx, query, days)
	if err != nil {
		return nil, fmt.Errorf("daily orders: %w", err)
	}
	defer rows.Close()

	var counts []DailyCount
	for rows.Next() {
		var c DailyCount
		if err := rows.Scan(&c.Date, &c.Count); err != nil {
			return nil, fmt.Errorf("scan daily count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// GetDailyAllocations sums allocated quantities from the ledger per day for
// the last n days.
func (s *Store) GetDailyAllocations(ctx context.Context, days int) ([]DailyQuantity, error) {
	const query = `
SELECT d.day, COALESCE(SUM(a.allocated_qty), 0)
FROM generate_series(date_trunc('day', NOW()) - ($1 - 1) * INTERVAL '1 day', date_trunc('day', NOW()), INTERVAL '1 day') AS d(day)
LEFT JOIN order_allocations a ON a.created_at >= d.day AND a.created_at < d.day + INTERVAL '1 day'
GROUP BY d.day
ORDER BY d.day`

	rows, err := s.query(ctx, query, days)
	if err != nil {
		return nil, fmt.Errorf("daily allocations: %w", err)
	}
	defer rows.Close()

	var quantities []DailyQuantity
	for rows.Next() {
		var q DailyQuantity
		if err := rows.Scan(&q.Date, &q.Quantity); err != nil {
			return nil, fmt.Errorf("scan daily quantity: %w", err)
		}
		quantities = append(quantities, q)
	}
	return quantities, rows.Err()
}
