package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestKey(t *testing.T) {
	mrp := decimal.NewFromFloat(99.5)
	got := Key("  SKU-001 ", mrp)
	want := "sku-001||99.5"
	if got != want {
		t.Errorf("Key: got %q, want %q", got, want)
	}
}

func TestAvailableBatches(t *testing.T) {
	mrp := decimal.NewFromInt(50)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/available" {
			t.Errorf("path: got %q, want /available", r.URL.Path)
		}
		var req struct {
			Queries []SKUPriceQuery `json:"queries"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Queries) != 1 {
			t.Errorf("expected duplicate queries collapsed, got %d", len(req.Queries))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string][]Batch{
				Key("SKU-001", mrp): {
					{BatchNo: "B1", ExpiryDate: Date{time.Now().AddDate(0, 0, 5)}, MRP: mrp, Quantity: 4},
				},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	got, err := c.AvailableBatches(context.Background(), []SKUPriceQuery{
		{SKU: "SKU-001", MRP: mrp},
		{SKU: "sku-001", MRP: mrp},
	})
	if err != nil {
		t.Fatalf("available batches: %v", err)
	}
	batches := got[Key("SKU-001", mrp)]
	if len(batches) != 1 || batches[0].BatchNo != "B1" || batches[0].Quantity != 4 {
		t.Errorf("unexpected batches: %+v", batches)
	}
}

func TestAvailableBatches_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.AvailableBatches(context.Background(), []SKUPriceQuery{{SKU: "X", MRP: decimal.NewFromInt(1)}})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestAvailableBatches_ConnectionRefused(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 200*time.Millisecond)
	_, err := c.AvailableBatches(context.Background(), []SKUPriceQuery{{SKU: "X", MRP: decimal.NewFromInt(1)}})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestAvailableBatches_BusinessFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "Inventory fetch failed"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.AvailableBatches(context.Background(), []SKUPriceQuery{{SKU: "X", MRP: decimal.NewFromInt(1)}})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestDeductBulk(t *testing.T) {
	var gotOperation string
	var gotItems int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/save" {
			t.Errorf("path: got %q, want /save", r.URL.Path)
		}
		var req struct {
			Operation string       `json:"operation"`
			Items     []DeductLine `json:"items"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		gotOperation = req.Operation
		gotItems = len(req.Items)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	err := c.DeductBulk(context.Background(), []DeductLine{
		{BatchNo: "B1", SKU: "SKU-001", Quantity: 3, MRP: decimal.NewFromInt(50), ExpiryDate: Date{time.Now()}},
	})
	if err != nil {
		t.Fatalf("deduct bulk: %v", err)
	}
	if gotOperation != "DEDUCT" {
		t.Errorf("operation: got %q, want DEDUCT", gotOperation)
	}
	if gotItems != 1 {
		t.Errorf("items: got %d, want 1", gotItems)
	}
}

func TestDeductBulk_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not enough stock", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	err := c.DeductBulk(context.Background(), []DeductLine{
		{BatchNo: "B1", SKU: "SKU-001", Quantity: 99, MRP: decimal.NewFromInt(50)},
	})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestDeductBulk_EmptyIsNoop(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", time.Second)
	if err := c.DeductBulk(context.Background(), nil); err != nil {
		t.Errorf("expected nil error for empty deduct, got %v", err)
	}
}

func TestMockHandler_AvailableThenDeduct(t *testing.T) {
	srv := httptest.NewServer(NewMockHandler().Routes())
	defer srv.Close()

	mrp := decimal.NewFromInt(25)
	c := NewClient(srv.URL, time.Second)

	batches, err := c.AvailableBatches(context.Background(), []SKUPriceQuery{{SKU: "SKU-9", MRP: mrp}})
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	got := batches[Key("SKU-9", mrp)]
	if len(got) != 2 {
		t.Fatalf("expected 2 seeded batches, got %d", len(got))
	}
	if got[0].Quantity != 5 || got[1].Quantity != 10 {
		t.Errorf("unexpected seeded quantities: %d, %d", got[0].Quantity, got[1].Quantity)
	}

	err = c.DeductBulk(context.Background(), []DeductLine{
		{BatchNo: got[0].BatchNo, SKU: "SKU-9", Quantity: 3, MRP: mrp, ExpiryDate: got[0].ExpiryDate},
	})
	if err != nil {
		t.Fatalf("deduct: %v", err)
	}

	batches, err = c.AvailableBatches(context.Background(), []SKUPriceQuery{{SKU: "SKU-9", MRP: mrp}})
	if err != nil {
		t.Fatalf("available after deduct: %v", err)
	}
	if q := batches[Key("SKU-9", mrp)][0].Quantity; q != 2 {
		t.Errorf("remaining quantity: got %d, want 2", q)
	}

	err = c.DeductBulk(context.Background(), []DeductLine{
		{BatchNo: got[0].BatchNo, SKU: "SKU-9", Quantity: 50, MRP: mrp},
	})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable for overdraft, got %v", err)
	}
}
