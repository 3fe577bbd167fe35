package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/outbound-wms/api/internal/config"
	"github.com/outbound-wms/api/internal/router"
	"github.com/outbound-wms/api/internal/store"
	"github.com/outbound-wms/api/internal/ws"
	"github.com/outbound-wms/api/migrations"
)

func main() {
	cfg := config.Load()

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Unable to ping database: %v", err)
	}
	log.Println("Connected to database")

	if err := migrations.Apply(ctx, pool); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	st := store.New(pool)

	hub := ws.NewHub()
	go hub.Run()

	r := router.New(cfg, st, hub)

	log.Printf("Starting server on :%s", cfg.Port)
	if err := http.ListenAndServe(fmt.Sprintf(":%s", cfg.Port), r); err != nil {
		log.Fatal(err)
	}
}
