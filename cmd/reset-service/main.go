package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"resetctl/internal/confirm"
	"resetctl/internal/executor"
	"resetctl/internal/guard"
	"resetctl/internal/httpapi"
	"resetctl/internal/preserve"
	"resetctl/internal/scope"
	"resetctl/pkg/cloud"
	"resetctl/pkg/config"
	"resetctl/pkg/db"
	"resetctl/pkg/inventory"
	"resetctl/pkg/logger"
	"resetctl/pkg/middleware"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)

	pool := db.MustConnect(cfg, log)
	rdb := db.MustRedis(cfg, log)

	var inv inventory.Provider
	switch {
	case pool != nil:
		inv = inventory.NewPostgresProvider(pool, log)
		_ = inventory.EnsureSchema(context.Background(), pool)
		_ = inventory.SeedFromEnv(context.Background(), pool, os.Getenv("INVENTORY_SEED_JSON"))
	case cfg.GraphURL != "":
		var err error
		inv, err = inventory.NewGraphProvider(cfg.GraphURL, log)
		if err != nil {
			log.Fatalw("graph provider init", "err", err)
		}
	default:
		inv = inventory.NewMemoryProviderFromEnv(log)
	}

	keep, err := preserve.New(cfg, log)
	if err != nil {
		log.Fatalw("preservation policy init", "err", err)
	}
	resolver := scope.NewResolver(inv, keep, log)

	var (
		sessions confirm.SessionStore
		tokens   confirm.TokenStore
		cooldown guard.CooldownStore
	)
	if rdb != nil {
		sessions = confirm.NewRedisSessionStore(rdb)
		tokens = confirm.NewRedisTokenStore(rdb)
		cooldown = guard.NewRedisCooldownStore(rdb)
	} else {
		mem := confirm.NewMemorySessionStore()
		go mem.Sweep(context.Background(), time.Minute)
		sessions = mem
		tokens = confirm.NewMemoryTokenStore()
		cooldown = guard.NewMemoryCooldownStore()
	}

	machine := confirm.NewMachine(sessions, tokens, cfg.SessionTTL, cfg.SettleDelay, cfg.TokenTTL, log)
	rateGuard := guard.New(cooldown, cfg.CooldownWindow)

	var deleter cloud.Deleter
	if cfg.CloudAPIURL != "" {
		deleter = cloud.NewHTTPDeleter(cfg.CloudAPIURL, cfg.CloudToken, log)
	} else {
		log.Warn("CLOUD_API_URL not set, deletions are logged but not performed")
		deleter = cloud.NewNoopDeleter(log)
	}
	exec := executor.New(resolver, tokens, deleter, cfg.WorkerPoolSize, cfg.DivergencePct, cfg.StrictDivergence, log)

	app := httpapi.New(log, cfg, resolver, machine, rateGuard, exec)

	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(log))
	r.Use(middleware.Tracing(cfg))
	r.Use(middleware.JWTAuth(cfg))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("ok")) })
	app.RegisterHTTP(r)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		log.Infow("reset-service listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("ListenAndServe", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	fmt.Println("reset-service stopped")
}
