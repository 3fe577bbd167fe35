package router

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/outbound-wms/api/internal/config"
	"github.com/outbound-wms/api/internal/handler"
	"github.com/outbound-wms/api/internal/inventory"
	mw "github.com/outbound-wms/api/internal/middleware"
	"github.com/outbound-wms/api/internal/service"
	"github.com/outbound-wms/api/internal/store"
	"github.com/outbound-wms/api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
func New(cfg *config.Config, st *store.Store, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Services
	gateway := inventory.NewClient(cfg.InventoryURL, cfg.InventoryTimeout)
	orderService := service.NewOrderService(st)
	allocationService := service.NewAllocationService(st, gateway, &allocationNotifier{hub: hub})

	authHandler := handler.NewAuthHandler(st, cfg.JWTSecret)
	orderHandler := handler.NewOrderHandler(orderService, allocationService)

	r.Route("/api", func(r chi.Router) {
		// Auth routes (public)
		authHandler.RegisterRoutes(r)

		// Local stand-in for the external inventory service
		if cfg.MockInventory {
			r.Mount("/inventory", inventory.NewMockHandler().Routes())
		}

		// Protected routes (require authentication)
		r.Group(func(r chi.Router) {
			r.Use(mw.Authenticate(cfg.JWTSecret, st))

			r.Get("/auth/me", authHandler.Me)
			orderHandler.RegisterRoutes(r)
		})
	})

	log.Println("Router initialized with all handlers")
	return r
}

// allocationNotifier bridges the allocation service to the WebSocket hub.
type allocationNotifier struct {
	hub *ws.Hub
}

type allocationEvent struct {
	OrderNumber  string `json:"orderNumber"`
	RequestedQty int    `json:"requestedQty"`
	AllocatedQty int    `json:"allocatedQty"`
	Status       string `json:"status"`
}

func (n *allocationNotifier) NotifyOrderAllocated(result service.AllocationResult) {
	payload, err := json.Marshal(allocationEvent{
		OrderNumber:  result.OrderNumber,
		RequestedQty: result.RequestedQty,
		AllocatedQty: result.AllocatedQty,
		Status:       result.Status,
	})
	if err != nil {
		log.Printf("ERROR: marshal allocation event: %v", err)
		return
	}
	n.hub.Broadcast(ws.Event{Type: "order.allocated", Payload: payload})
}
