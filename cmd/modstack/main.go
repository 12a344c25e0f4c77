package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"

	"github.com/avellaneda/modstack/internal/adapter/entitlement"
	adapterfsm "github.com/avellaneda/modstack/internal/adapter/fsm"
	riveradapter "github.com/avellaneda/modstack/internal/adapter/river"
	"github.com/avellaneda/modstack/internal/adapter/sqlite"
	"github.com/avellaneda/modstack/internal/app"
	"github.com/avellaneda/modstack/internal/catalog"

	handler "github.com/avellaneda/modstack/internal/adapter/http"
	otelsetup "github.com/avellaneda/modstack/internal/adapter/otel"
)

func main() {
	port := envOrDefault("PORT", "8080")
	dbPath := envOrDefault("DATABASE_PATH", "modstack.db")
	stepTimeout := envDuration("STEP_TIMEOUT", 2*time.Minute)
	entitlementTTL := envDuration("ENTITLEMENT_TTL", 30*time.Second)

	ctx := context.Background()

	// --- Observability ---
	providers, err := otelsetup.Setup(ctx, otelsetup.ConfigFromEnv())
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Printf("otel shutdown: %v", err)
		}
	}()

	// --- Adapters (out) ---
	db, err := otelsetup.OpenDB(dbPath)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	store, err := sqlite.NewFromDB(db)
	if err != nil {
		log.Fatalf("migrations: %v", err)
	}
	defer store.Close()

	riverClient, err := riveradapter.Setup(ctx, db)
	if err != nil {
		log.Fatalf("river: %v", err)
	}
	if err := riverClient.Start(ctx); err != nil {
		log.Fatalf("river start: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := riverClient.Stop(stopCtx); err != nil {
			log.Printf("river stop: %v", err)
		}
	}()

	plans := entitlement.NewInMemory(defaultPlans()...)
	entitlements := app.NewEntitlementCache(plans, entitlementTTL)

	modules, err := catalog.Default()
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}

	// --- Application ---
	svc := app.NewInstallerService(app.InstallerConfig{
		Catalog:      modules,
		States:       store.States(),
		Jobs:         store.Jobs(),
		Provisioner:  otelsetup.NewTracingProvisioner(store.Ledger()),
		Entitlements: entitlements,
		Publisher:    otelsetup.NewTracingPublisher(riveradapter.NewPublisher(riverClient)),
		Validator:    adapterfsm.New(),
		StepTimeout:  stepTimeout,
	})

	// --- Adapters (in) ---
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(otelchi.Middleware("modstack", otelchi.WithChiRoutes(router)))

	api := humachi.New(router, huma.DefaultConfig("modstack", "0.1.0"))
	handler.Register(api, svc, entitlements, plans)

	// --- Server ---
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown.
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("modstack listening", "port", port)
		slog.Info("API docs", "url", "http://localhost:"+port+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	<-done
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	slog.Info("stopped")
}

// defaultPlans mirrors the subscription tiers of the platform. In
// production the entitlement source is the subscription service; this
// binary ships a static plan table for single-node deployments.
func defaultPlans() []entitlement.Plan {
	return []entitlement.Plan{
		{
			Name:     "free",
			Features: map[string]bool{},
			Quotas:   map[string]int{},
		},
		{
			Name: "standard",
			Features: map[string]bool{
				"feature.forum":        true,
				"feature.digital_card": true,
			},
			Quotas: map[string]int{
				"digital_card.cards": 100,
			},
		},
		{
			Name: "pro",
			Features: map[string]bool{
				"feature.forum":        true,
				"feature.digital_card": true,
				"feature.elections":    true,
			},
			Quotas: map[string]int{
				"digital_card.cards": 1000,
				"elections.active":   10,
			},
		},
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// Accept plain seconds too.
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
