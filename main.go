package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/Thedongraphix/Minisend-sub001/internal/audit"
	"github.com/Thedongraphix/Minisend-sub001/internal/auth"
	"github.com/Thedongraphix/Minisend-sub001/internal/balance"
	"github.com/Thedongraphix/Minisend-sub001/internal/eventbus"
	"github.com/Thedongraphix/Minisend-sub001/internal/eventing"
	eventingrepo "github.com/Thedongraphix/Minisend-sub001/internal/eventing/infrastructure/postgres"
	"github.com/Thedongraphix/Minisend-sub001/internal/notify"
	"github.com/Thedongraphix/Minisend-sub001/internal/observability/metrics"
	ordersapp "github.com/Thedongraphix/Minisend-sub001/internal/orders/application"
	ordersrepo "github.com/Thedongraphix/Minisend-sub001/internal/orders/infrastructure/postgres"
	ordershttp "github.com/Thedongraphix/Minisend-sub001/internal/orders/interfaces/http"
	"github.com/Thedongraphix/Minisend-sub001/internal/provider"
	settlementapp "github.com/Thedongraphix/Minisend-sub001/internal/settlement/application"
	settlementrepo "github.com/Thedongraphix/Minisend-sub001/internal/settlement/infrastructure/postgres"
	settlementinterfaces "github.com/Thedongraphix/Minisend-sub001/internal/settlement/interfaces"

	goredis "github.com/go-redis/redis/v8"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)
	auditRepo := audit.NewRepository(db)

	appCfg, err := ordersapp.LoadConfig()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	orderRepo := ordersrepo.NewOrderRepository(db)
	attemptLog := ordersrepo.NewAttemptLog(db)
	recordRepo := settlementrepo.NewRecordRepository(db)

	providerClient, err := provider.NewClient(cfg.ProviderBaseURL, cfg.ProviderAPIKey)
	if err != nil {
		logger.Fatalf("provider client error: %v", err)
	}
	balanceReader, err := balance.NewHTTPReader(cfg.BalanceBaseURL, cfg.BalanceToken)
	if err != nil {
		logger.Fatalf("balance reader error: %v", err)
	}
	gate, err := ordersapp.NewBalanceGate(balanceReader, appCfg.BalanceFailOpen, logger)
	if err != nil {
		logger.Fatalf("balance gate error: %v", err)
	}

	baseBus := eventbus.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(ordersapp.OrderDelivered{})
	registry.Register(ordersapp.OrderFailed{})

	outboxStore := eventingrepo.NewOutboxStore(db)
	processedStore := eventingrepo.NewProcessedStore(db)
	dlqStore := eventingrepo.NewDLQStore(db)
	dispatcher := eventing.NewDispatcher(baseBus, outboxStore, registry, dlqStore)
	publisher := eventing.NewPublisher(outboxStore, dispatcher, baseBus)

	service, err := ordersapp.NewService(orderRepo, attemptLog, gate, providerClient, publisher, appCfg, nil, logger)
	if err != nil {
		logger.Fatalf("order service error: %v", err)
	}

	var guard ordersapp.PollGuard
	if cfg.RedisAddr != "" {
		redisClient := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatalf("redis ping error: %v", err)
		}
		guard = ordersapp.NewRedisGuard(redisClient, cfg.PollGuardTTL)
	} else {
		logger.Printf("REDIS_ADDR not set, using in-process poll guard")
		guard = ordersapp.NewMemoryGuard()
	}
	poller, err := ordersapp.NewPoller(providerClient, service, guard, appCfg.Poll, nil, logger)
	if err != nil {
		logger.Fatalf("poller error: %v", err)
	}

	var notifiers notify.Multi
	if cfg.NotifyWebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(cfg.NotifyWebhookURL))
	}
	notifyConsumer, err := notify.NewConsumer(notifiers, logger)
	if err != nil {
		logger.Fatalf("notify consumer error: %v", err)
	}

	fallback := ordersapp.NewFallbackTimer(appCfg.FallbackWindow, notifyConsumer, nil, logger)
	service.Attach(poller, fallback)

	recorder, err := settlementapp.NewRecorder(recordRepo, logger)
	if err != nil {
		logger.Fatalf("settlement recorder error: %v", err)
	}

	eventing.Subscribe(baseBus, eventbus.EventTypeOf[ordersapp.OrderDelivered](), "settlement.recorder", func(ctx context.Context, event any) error {
		evt, ok := event.(ordersapp.OrderDelivered)
		if !ok {
			return eventbus.ErrInvalidEventType
		}
		return recorder.HandleDelivered(ctx, evt)
	}, processedStore)
	eventing.Subscribe(baseBus, eventbus.EventTypeOf[ordersapp.OrderDelivered](), "notify.delivered", func(ctx context.Context, event any) error {
		evt, ok := event.(ordersapp.OrderDelivered)
		if !ok {
			return eventbus.ErrInvalidEventType
		}
		return notifyConsumer.HandleDelivered(ctx, evt)
	}, processedStore)
	eventing.Subscribe(baseBus, eventbus.EventTypeOf[ordersapp.OrderFailed](), "notify.failed", func(ctx context.Context, event any) error {
		evt, ok := event.(ordersapp.OrderFailed)
		if !ok {
			return eventbus.ErrInvalidEventType
		}
		return notifyConsumer.HandleFailed(ctx, evt)
	}, processedStore)

	// Redeliver outbox events that failed at publish time.
	go func() {
		ticker := time.NewTicker(cfg.DispatchInterval)
		defer ticker.Stop()
		for range ticker.C {
			if err := dispatcher.Dispatch(context.Background(), 50); err != nil {
				logger.Printf("outbox dispatch error: %v", err)
			}
		}
	}()

	// Restart polling for orders left in flight by a previous process.
	go func() {
		resumed, err := service.ResumePending(context.Background(), time.Now().UTC(), cfg.ResumeBatchSize)
		if err != nil {
			logger.Printf("resume pending error: %v", err)
			return
		}
		if resumed > 0 {
			logger.Printf("resumed reconciliation for %d orders", resumed)
		}
	}()

	webhookHandler, err := ordershttp.NewWebhookHandler(service, logger)
	if err != nil {
		logger.Fatalf("webhook handler error: %v", err)
	}
	exportHandler, err := settlementinterfaces.NewExportHandler(recordRepo, orderRepo)
	if err != nil {
		logger.Fatalf("export handler error: %v", err)
	}
	ordersHandler, err := ordershttp.NewOrdersHandler(service, auditRepo, exportHandler)
	if err != nil {
		logger.Fatalf("orders handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, []string{"/webhooks/"})
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)
	webhookAuth := auth.NewWebhookAuthMiddleware([]byte(cfg.WebhookSecret))

	mux := http.NewServeMux()
	mux.Handle("/webhooks/provider", webhookAuth.Wrap(webhookHandler))
	mux.Handle("/api/v1/orders", ordersHandler)
	mux.Handle("/api/v1/orders/", ordersHandler)
	mux.HandleFunc("/api/v1/settlements", exportHandler.HandleList)
	mux.HandleFunc("/api/v1/exports/settlements.xlsx", exportHandler.HandleExportXLSX)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL      string
	HTTPAddr         string
	ProviderBaseURL  string
	ProviderAPIKey   string
	BalanceBaseURL   string
	BalanceToken     string
	NotifyWebhookURL string
	RedisAddr        string
	RedisPassword    string
	PollGuardTTL     time.Duration
	DispatchInterval time.Duration
	ResumeBatchSize  int
	JWTSecret        string
	WebhookSecret    string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:      getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:         getenvDefault("HTTP_ADDR", ":8080"),
		ProviderBaseURL:  getenvDefault("PROVIDER_BASE_URL", ""),
		ProviderAPIKey:   getenvDefault("PROVIDER_API_KEY", ""),
		BalanceBaseURL:   getenvDefault("BALANCE_BASE_URL", ""),
		BalanceToken:     getenvDefault("BALANCE_TOKEN", ""),
		NotifyWebhookURL: getenvDefault("NOTIFY_WEBHOOK_URL", ""),
		RedisAddr:        getenvDefault("REDIS_ADDR", ""),
		RedisPassword:    getenvDefault("REDIS_PASSWORD", ""),
		PollGuardTTL:     getenvDuration("POLL_GUARD_TTL", 10*time.Minute),
		DispatchInterval: getenvDuration("OUTBOX_DISPATCH_INTERVAL", 5*time.Second),
		ResumeBatchSize:  getenvIntDefault("RESUME_BATCH_SIZE", 100),
		JWTSecret:        getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		WebhookSecret:    getenvDefault("WEBHOOK_HMAC_SECRET", ""),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.ProviderBaseURL == "" {
		log.Fatal("PROVIDER_BASE_URL is required")
	}
	if cfg.BalanceBaseURL == "" {
		log.Fatal("BALANCE_BASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	if cfg.WebhookSecret == "" {
		log.Print("WEBHOOK_HMAC_SECRET not set, provider webhooks will be rejected")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
