package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/punchamoorthee/offpay/internal/api"
	"github.com/punchamoorthee/offpay/internal/auth"
	"github.com/punchamoorthee/offpay/internal/config"
	"github.com/punchamoorthee/offpay/internal/relay"
	"github.com/punchamoorthee/offpay/internal/service"
	"github.com/punchamoorthee/offpay/internal/store"
	"github.com/punchamoorthee/offpay/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatal(err)
	}

	if cfg.OTelEnabled {
		shutdown, err := telemetry.Setup(cfg.OTelServiceName)
		if err != nil {
			log.Fatalf("Unable to configure OpenTelemetry: %v", err)
		}
		defer shutdown()
	}

	// Initialize Layers
	var ledgerStore store.Store
	if cfg.DBSource != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.DBSource, cfg.OTelEnabled)
		if err != nil {
			log.Fatalf("Unable to connect to database: %v", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			log.Fatalf("Unable to migrate database: %v", err)
		}
		ledgerStore = pg
	} else {
		log.Printf("DB_SOURCE not set, using in-memory store (%s)", cfg.Env)
		ledgerStore = store.NewMemoryStore()
	}
	defer ledgerStore.Close()

	var transport relay.Transport = relay.LogTransport{}
	if cfg.TwilioEnabled() {
		transport = relay.NewTwilioTransport(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFrom)
	}

	svc := service.NewTransferService(ledgerStore, service.WithLocation(cfg.Location()))
	dispatcher := relay.NewDispatcher(transport, svc, relay.Options{
		NotifyAddress: cfg.NotifyNumber,
		Retries:       cfg.NotifyRetry,
	})
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	handler := api.NewHandler(svc, dispatcher, cfg.RelayNumber)

	var root http.Handler = api.NewRouter(handler, issuer)
	if cfg.OTelEnabled {
		root = otelhttp.NewHandler(root, "offpay")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           root,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Server starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		dispatcher.Close()
		return err
	})

	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}
	log.Println("Server stopped")
}
