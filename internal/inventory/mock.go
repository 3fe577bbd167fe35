package inventory

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// MockHandler is an in-process stand-in for the inventory service, used in
// local development. Each (sku, mrp) pair gets two deterministic batches, a
// near-expiry one with 5 units and a later one with 10, and deductions are
// tracked in memory so repeated allocations drain stock realistically.
type MockHandler struct {
	mu        sync.Mutex
	remaining map[string]int // BatchKey -> units left
}

func NewMockHandler() *MockHandler {
	return &MockHandler{remaining: make(map[string]int)}
}

func (m *MockHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/available", m.handleAvailable)
	r.Post("/save", m.handleSave)
	return r
}

func (m *MockHandler) handleAvailable(w http.ResponseWriter, r *http.Request) {
	var req availableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		m.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	data := make(map[string][]Batch, len(req.Queries))
	for _, q := range req.Queries {
		key := Key(q.SKU, q.MRP)
		if _, ok := data[key]; ok {
			continue
		}
		var batches []Batch
		for _, seed := range []struct {
			batchNo string
			days    int
			qty     int
		}{
			{"BATCH-1", 10, 5},
			{"BATCH-2", 30, 10},
		} {
			bk := BatchKey(q.SKU, q.MRP, seed.batchNo)
			if _, ok := m.remaining[bk]; !ok {
				m.remaining[bk] = seed.qty
			}
			batches = append(batches, Batch{
				BatchNo:    seed.batchNo,
				ExpiryDate: Date{time.Now().AddDate(0, 0, seed.days)},
				MRP:        q.MRP,
				Quantity:   m.remaining[bk],
				SKU:        q.SKU,
			})
		}
		data[key] = batches
	}

	m.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Available batches fetched",
		"data":    data,
	})
}

func (m *MockHandler) handleSave(w http.ResponseWriter, r *http.Request) {
	var req deductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		m.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Operation != "DEDUCT" {
		m.writeError(w, http.StatusBadRequest, "unsupported operation")
		return
	}
	if len(req.Items) == 0 {
		m.writeError(w, http.StatusBadRequest, "no items supplied")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Validate everything before touching stock so the deduct stays atomic.
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			m.writeError(w, http.StatusBadRequest, "invalid quantity")
			return
		}
		bk := BatchKey(item.SKU, item.MRP, item.BatchNo)
		if m.remaining[bk] < item.Quantity {
			m.writeError(w, http.StatusBadRequest, "Not enough stock")
			return
		}
	}
	for _, item := range req.Items {
		m.remaining[BatchKey(item.SKU, item.MRP, item.BatchNo)] -= item.Quantity
	}

	m.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Inventory deducted",
	})
}

func (m *MockHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (m *MockHandler) writeError(w http.ResponseWriter, status int, message string) {
	m.writeJSON(w, status, map[string]any{"success": false, "message": message})
}
