package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/outbound-wms/api/internal/enum"
	"github.com/outbound-wms/api/internal/store"
	"github.com/outbound-wms/api/internal/testutil"
)

func newTestStore(t *testing.T) (context.Context, *store.Store, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()
	pool := testutil.NewTestPool(t)
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)
	return ctx, store.New(pool), pool
}

func testOrder(orderNumber string) *store.Order {
	return &store.Order{
		OrderNumber:  orderNumber,
		CustomerName: "Acme Traders",
		Address:      "12 Dock Road",
		SKUCode:      "SKU-001",
		MRP:          decimal.NewFromFloat(99.50),
		RequestedQty: 10,
		Status:       enum.OrderStatusPending,
	}
}

func TestCreateOrder_RoundTrip(t *testing.T) {
	ctx, st, _ := newTestStore(t)

	o := testOrder("ORD-11111111")
	if err := st.CreateOrder(ctx, o); err != nil {
		t.Fatalf("create order: %v", err)
	}
	if o.ID == 0 {
		t.Fatal("expected generated id")
	}
	if o.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set")
	}

	got, err := st.GetOrderByNumber(ctx, "ORD-11111111")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.CustomerName != "Acme Traders" {
		t.Errorf("customer: got %s", got.CustomerName)
	}
	if !got.MRP.Equal(decimal.NewFromFloat(99.50)) {
		t.Errorf("mrp: got %s", got.MRP)
	}
	if got.Status != enum.OrderStatusPending {
		t.Errorf("status: got %s", got.Status)
	}
}

func TestCreateOrder_DuplicateNumber(t *testing.T) {
	ctx, st, _ := newTestStore(t)

	if err := st.CreateOrder(ctx, testOrder("ORD-22222222")); err != nil {
		t.Fatalf("create order: %v", err)
	}

	err := st.CreateOrder(ctx, testOrder("ORD-22222222"))
	if !errors.Is(err, store.ErrOrderNumberTaken) {
		t.Fatalf("expected ErrOrderNumberTaken, got %v", err)
	}
}

func TestGetOrderByNumber_NotFound(t *testing.T) {
	ctx, st, _ := newTestStore(t)

	_, err := st.GetOrderByNumber(ctx, "ORD-MISSING1")
	if !errors.Is(err, store.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestSaveAllocationsAndUpdate(t *testing.T) {
	ctx, st, pool := newTestStore(t)

	id := testutil.InsertOrder(t, ctx, pool, "ORD-33333333", "SKU-001", decimal.NewFromFloat(99.50), 10, 0, enum.OrderStatusPending)

	allocs := []store.Allocation{
		{SKUCode: "SKU-001", BatchNo: "BATCH-1", ExpiryDate: time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC), MRP: decimal.NewFromFloat(99.50), AllocatedQty: 4},
		{SKUCode: "SKU-001", BatchNo: "BATCH-2", ExpiryDate: time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC), MRP: decimal.NewFromFloat(99.50), AllocatedQty: 6},
	}
	if err := st.SaveAllocations(ctx, id, allocs); err != nil {
		t.Fatalf("save allocations: %v", err)
	}
	if err := st.UpdateOrderAllocation(ctx, id, 10, enum.OrderStatusCompleted); err != nil {
		t.Fatalf("update order: %v", err)
	}

	got, err := st.GetOrderByID(ctx, id)
	if err != nil {
		t.Fatalf("get order by id: %v", err)
	}
	if got.AllocatedQty != 10 {
		t.Errorf("allocated qty: got %d", got.AllocatedQty)
	}
	if got.Status != enum.OrderStatusCompleted {
		t.Errorf("status: got %s", got.Status)
	}
	if len(got.Allocations) != 2 {
		t.Fatalf("allocations: got %d, want 2", len(got.Allocations))
	}
	if got.Allocations[0].BatchNo != "BATCH-1" {
		t.Errorf("first batch: got %s", got.Allocations[0].BatchNo)
	}
}

func TestUpdateOrderAllocation_MissingOrder(t *testing.T) {
	ctx, st, _ := newTestStore(t)

	err := st.UpdateOrderAllocation(ctx, 9999, 5, enum.OrderStatusPartial)
	if !errors.Is(err, store.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx, st, _ := newTestStore(t)

	boom := errors.New("boom")
	err := st.WithTx(ctx, func(ctx context.Context) error {
		if err := st.CreateOrder(ctx, testOrder("ORD-44444444")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	_, err = st.GetOrderByNumber(ctx, "ORD-44444444")
	if !errors.Is(err, store.ErrOrderNotFound) {
		t.Fatalf("expected rollback, got %v", err)
	}
}

func TestWithNestedTx_IsolatesFailure(t *testing.T) {
	ctx, st, pool := newTestStore(t)

	idA := testutil.InsertOrder(t, ctx, pool, "ORD-55555AAA", "SKU-001", decimal.NewFromFloat(50), 5, 0, enum.OrderStatusPending)
	idB := testutil.InsertOrder(t, ctx, pool, "ORD-55555BBB", "SKU-001", decimal.NewFromFloat(50), 5, 0, enum.OrderStatusPending)

	boom := errors.New("boom")
	err := st.WithTx(ctx, func(ctx context.Context) error {
		// First nested unit fails and rolls back to its savepoint.
		nerr := st.WithNestedTx(ctx, func(ctx context.Context) error {
			if err := st.UpdateOrderAllocation(ctx, idA, 5, enum.OrderStatusCompleted); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(nerr, boom) {
			t.Fatalf("expected boom from nested tx, got %v", nerr)
		}

		// Second nested unit succeeds.
		return st.WithNestedTx(ctx, func(ctx context.Context) error {
			return st.UpdateOrderAllocation(ctx, idB, 5, enum.OrderStatusCompleted)
		})
	})
	if err != nil {
		t.Fatalf("outer tx: %v", err)
	}

	a, err := st.GetOrderByID(ctx, idA)
	if err != nil {
		t.Fatalf("get order A: %v", err)
	}
	if a.AllocatedQty != 0 || a.Status != enum.OrderStatusPending {
		t.Errorf("order A should be untouched, got qty=%d status=%s", a.AllocatedQty, a.Status)
	}

	b, err := st.GetOrderByID(ctx, idB)
	if err != nil {
		t.Fatalf("get order B: %v", err)
	}
	if b.AllocatedQty != 5 || b.Status != enum.OrderStatusCompleted {
		t.Errorf("order B should be updated, got qty=%d status=%s", b.AllocatedQty, b.Status)
	}
}

func TestListOrdersByNumbersForUpdate(t *testing.T) {
	ctx, st, pool := newTestStore(t)

	testutil.InsertOrder(t, ctx, pool, "ORD-66666AAA", "SKU-001", decimal.NewFromFloat(50), 5, 0, enum.OrderStatusPending)
	testutil.InsertOrder(t, ctx, pool, "ORD-66666BBB", "SKU-002", decimal.NewFromFloat(75), 8, 0, enum.OrderStatusPending)

	err := st.WithTx(ctx, func(ctx context.Context) error {
		orders, err := st.ListOrdersByNumbersForUpdate(ctx, []string{"ORD-66666AAA", "ORD-66666BBB", "ORD-GHOST000"})
		if err != nil {
			return err
		}
		if len(orders) != 2 {
			t.Errorf("locked orders: got %d, want 2", len(orders))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("with tx: %v", err)
	}
}

func TestListOrders_FiltersAndPaging(t *testing.T) {
	ctx, st, pool := newTestStore(t)

	testutil.InsertOrder(t, ctx, pool, "ORD-77777AAA", "SKU-001", decimal.NewFromFloat(50), 5, 0, enum.OrderStatusPending)
	testutil.InsertOrder(t, ctx, pool, "ORD-77777BBB", "SKU-001", decimal.NewFromFloat(50), 5, 5, enum.OrderStatusCompleted)
	testutil.InsertOrder(t, ctx, pool, "ORD-77777CCC", "SKU-002", decimal.NewFromFloat(75), 8, 2, enum.OrderStatusPartial)

	orders, total, err := st.ListOrders(ctx, store.OrderFilter{Status: enum.OrderStatusCompleted, Page: 0, Size: 10})
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if total != 1 || len(orders) != 1 || orders[0].OrderNumber != "ORD-77777BBB" {
		t.Errorf("status filter: got total=%d orders=%v", total, orders)
	}

	orders, total, err = st.ListOrders(ctx, store.OrderFilter{SKUCode: "SKU-001", Page: 0, Size: 10})
	if err != nil {
		t.Fatalf("list by sku: %v", err)
	}
	if total != 2 {
		t.Errorf("sku filter: got total=%d, want 2", total)
	}

	orders, total, err = st.ListOrders(ctx, store.OrderFilter{Page: 0, Size: 2})
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if total != 3 || len(orders) != 2 {
		t.Errorf("paging: got total=%d page=%d", total, len(orders))
	}
}

func TestGetOrderSummary(t *testing.T) {
	ctx, st, pool := newTestStore(t)

	testutil.InsertOrder(t, ctx, pool, "ORD-88888AAA", "SKU-001", decimal.NewFromFloat(50), 5, 0, enum.OrderStatusPending)
	testutil.InsertOrder(t, ctx, pool, "ORD-88888BBB", "SKU-001", decimal.NewFromFloat(50), 5, 5, enum.OrderStatusCompleted)
	testutil.InsertOrder(t, ctx, pool, "ORD-88888CCC", "SKU-002", decimal.NewFromFloat(75), 8, 2, enum.OrderStatusPartial)

	summary, err := st.GetOrderSummary(ctx)
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}
	if summary.TotalOrders != 3 {
		t.Errorf("total orders: got %d", summary.TotalOrders)
	}
	if summary.PendingOrders != 1 || summary.PartialOrders != 1 || summary.CompletedOrders != 1 {
		t.Errorf("status counts: %+v", summary)
	}
	if summary.TotalAllocatedQuantity != 7 {
		t.Errorf("allocated quantity: got %d, want 7", summary.TotalAllocatedQuantity)
	}
	if summary.TodayOrders != 3 {
		t.Errorf("today orders: got %d, want 3", summary.TodayOrders)
	}
}

func TestGetDailySeries(t *testing.T) {
	ctx, st, pool := newTestStore(t)

	id := testutil.InsertOrder(t, ctx, pool, "ORD-99999AAA", "SKU-001", decimal.NewFromFloat(50), 5, 3, enum.OrderStatusPartial)
	err := st.SaveAllocations(ctx, id, []store.Allocation{
		{SKUCode: "SKU-001", BatchNo: "BATCH-1", ExpiryDate: time.Now().AddDate(0, 1, 0), MRP: decimal.NewFromFloat(50), AllocatedQty: 3},
	})
	if err != nil {
		t.Fatalf("save allocations: %v", err)
	}

	days := 7
	orders, err := st.GetDailyOrders(ctx, days)
	if err != nil {
		t.Fatalf("daily orders: %v", err)
	}
	if len(orders) != days {
		t.Fatalf("daily orders length: got %d, want %d", len(orders), days)
	}
	if orders[days-1].Count != 1 {
		t.Errorf("today's order count: got %d, want 1", orders[days-1].Count)
	}

	quantities, err := st.GetDailyAllocations(ctx, days)
	if err != nil {
		t.Fatalf("daily allocations: %v", err)
	}
	if len(quantities) != days {
		t.Fatalf("daily allocations length: got %d, want %d", len(quantities), days)
	}
	if quantities[days-1].Quantity != 3 {
		t.Errorf("today's allocated qty: got %d, want 3", quantities[days-1].Quantity)
	}
}

func testUser(username, email string) *store.User {
	return &store.User{
		Username:     username,
		Email:        email,
		PasswordHash: "$2a$10$fakehashfakehashfakehashfakehashfakehashfakehashfak",
		FirstName:    "Pack",
		LastName:     "Station",
		PhoneNumber:  "9876543210",
		Role:         enum.UserRoleUser,
	}
}

func TestCreateUser_Conflicts(t *testing.T) {
	ctx, st, _ := newTestStore(t)

	if err := st.CreateUser(ctx, testUser("picker01", "picker01@test.com")); err != nil {
		t.Fatalf("create user: %v", err)
	}

	err := st.CreateUser(ctx, testUser("picker01", "other@test.com"))
	if !errors.Is(err, store.ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}

	err = st.CreateUser(ctx, testUser("other", "picker01@test.com"))
	if !errors.Is(err, store.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestGetUserByIdentifier(t *testing.T) {
	ctx, st, _ := newTestStore(t)

	u := testUser("picker01", "picker01@test.com")
	if err := st.CreateUser(ctx, u); err != nil {
		t.Fatalf("create user: %v", err)
	}

	byUsername, err := st.GetUserByIdentifier(ctx, "PICKER01")
	if err != nil {
		t.Fatalf("by username: %v", err)
	}
	if byUsername.ID != u.ID {
		t.Errorf("by username id: got %d, want %d", byUsername.ID, u.ID)
	}

	byEmail, err := st.GetUserByIdentifier(ctx, "Picker01@Test.com")
	if err != nil {
		t.Fatalf("by email: %v", err)
	}
	if byEmail.ID != u.ID {
		t.Errorf("by email id: got %d, want %d", byEmail.ID, u.ID)
	}

	_, err = st.GetUserByIdentifier(ctx, "nobody")
	if !errors.Is(err, store.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestTouchLastLogin(t *testing.T) {
	ctx, st, _ := newTestStore(t)

	u := testUser("picker01", "picker01@test.com")
	if err := st.CreateUser(ctx, u); err != nil {
		t.Fatalf("create user: %v", err)
	}

	if err := st.TouchLastLogin(ctx, u.ID); err != nil {
		t.Fatalf("touch last login: %v", err)
	}

	got, err := st.GetUserByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.LastLoginAt == nil {
		t.Fatal("expected last_login_at to be set")
	}
}

func TestTokenRevocation(t *testing.T) {
	ctx, st, _ := newTestStore(t)

	jti := "a-token-id"
	expires := time.Now().Add(time.Hour)

	revoked, err := st.IsTokenRevoked(ctx, jti)
	if err != nil {
		t.Fatalf("check revocation: %v", err)
	}
	if revoked {
		t.Fatal("token should not be revoked yet")
	}

	if err := st.RevokeToken(ctx, jti, expires); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	// Revoking again is a no-op.
	if err := st.RevokeToken(ctx, jti, expires); err != nil {
		t.Fatalf("revoke twice: %v", err)
	}

	revoked, err = st.IsTokenRevoked(ctx, jti)
	if err != nil {
		t.Fatalf("check revocation: %v", err)
	}
	if !revoked {
		t.Fatal("token should be revoked")
	}
}

func TestPurgeExpiredTokens(t *testing.T) {
	ctx, st, _ := newTestStore(t)

	if err := st.RevokeToken(ctx, "expired", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("revoke expired: %v", err)
	}
	if err := st.RevokeToken(ctx, "live", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("revoke live: %v", err)
	}

	purged, err := st.PurgeExpiredTokens(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged: got %d, want 1", purged)
	}

	revoked, err := st.IsTokenRevoked(ctx, "live")
	if err != nil {
		t.Fatalf("check revocation: %v", err)
	}
	if !revoked {
		t.Error("live revocation should survive the purge")
	}
}
