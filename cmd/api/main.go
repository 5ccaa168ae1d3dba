package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"airops.org/internal/auth"
	"airops.org/internal/httpapi"
	"airops.org/internal/obs"
)

var version = "0.3.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("AIROPS_COMMIT"))

	secret := os.Getenv("AIROPS_AUTH_SECRET")
	if secret == "" {
		log.Fatal("AIROPS_AUTH_SECRET is required")
	}

	issuerOpts := []auth.IssuerOption{}
	if raw := os.Getenv("AIROPS_TOKEN_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			log.Fatalf("parse AIROPS_TOKEN_TTL: %v", err)
		}
		issuerOpts = append(issuerOpts, auth.WithTTL(ttl))
	}
	issuer, err := auth.NewIssuer([]byte(secret), issuerOpts...)
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}

	// Postgres when a DSN is configured, otherwise an in-memory store
	// good enough for local development.
	var (
		store auth.Store
		probe httpapi.ReadyProbe
	)
	if dsn := os.Getenv("AIROPS_PG_DSN"); dsn != "" {
		pg, err := auth.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer pg.Close()
		store = pg
		probe = httpapi.ReadyProbe{DB: pg.DB()}
	} else {
		store = auth.NewInMemory()
		log.Print("AIROPS_PG_DSN not set, using in-memory store")
	}

	svc, err := auth.NewService(store, issuer)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	api := httpapi.New(probe, version, svc)

	addr := os.Getenv("AIROPS_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting airops-auth %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
