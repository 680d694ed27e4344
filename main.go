package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rentflow-cloud/internal/audit"
	"rentflow-cloud/internal/auth"
	autotransferapp "rentflow-cloud/internal/autotransfer/application"
	autotransfer "rentflow-cloud/internal/autotransfer/domain"
	autotransfermemory "rentflow-cloud/internal/autotransfer/infrastructure/memory"
	autotransferpostgres "rentflow-cloud/internal/autotransfer/infrastructure/postgres"
	autotransferredis "rentflow-cloud/internal/autotransfer/infrastructure/redis"
	autotransferhttp "rentflow-cloud/internal/autotransfer/interfaces/http"
	"rentflow-cloud/internal/autotransfer/notify"
	"rentflow-cloud/internal/bankgateway"
	loanapp "rentflow-cloud/internal/loan/application"
	loanmemory "rentflow-cloud/internal/loan/infrastructure/memory"
	loanpostgres "rentflow-cloud/internal/loan/infrastructure/postgres"
	loanredis "rentflow-cloud/internal/loan/infrastructure/redis"
	loanhttp "rentflow-cloud/internal/loan/interfaces/http"
	"rentflow-cloud/internal/observability/metrics"
	"rentflow-cloud/internal/reconcile"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transferCfg, err := autotransferapp.LoadConfig()
	if err != nil {
		logger.Fatalf("autotransfer config error: %v", err)
	}
	loc := transferCfg.Location()
	clock := autotransferapp.NewSystemClock(loc)

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
	} else {
		logger.Printf("DATABASE_URL not set: using in-memory repositories")
	}
	metrics.Init(db, logger)

	var redisClient goredis.UniversalClient
	if cfg.RedisAddr != "" {
		redisClient = goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatalf("redis ping error: %v", err)
		}
	}

	var (
		contracts    autotransfer.ContractRepository
		executions   autotransfer.ExecutionRepository
		applications loanapp.ApplicationRepository
		payments     loanapp.PaymentRepository
		auditLogger  audit.Logger
	)
	if db != nil {
		contracts = autotransferpostgres.NewContractRepository(db, loc)
		executions = autotransferpostgres.NewExecutionRepository(db, loc)
		applications = loanpostgres.NewApplicationRepository(db)
		payments = loanpostgres.NewPaymentRepository(db)
		auditLogger = audit.NewRepository(db)
	} else {
		contracts = autotransfermemory.NewContractRepository()
		executions = autotransfermemory.NewExecutionRepository()
		applications = loanmemory.NewApplicationRepository()
		payments = loanmemory.NewPaymentRepository()
	}

	var locker autotransferapp.Locker = autotransfermemory.NewLocker()
	var flags loanapp.CompletionFlagStore = loanmemory.NewFlagStore()
	if redisClient != nil {
		redisLocker, err := autotransferredis.NewLocker(redisClient, "rentflow:")
		if err != nil {
			logger.Fatalf("redis locker error: %v", err)
		}
		locker = redisLocker
		redisFlags, err := loanredis.NewFlagStore(redisClient)
		if err != nil {
			logger.Fatalf("redis flag store error: %v", err)
		}
		flags = redisFlags
	}

	reconciler := reconcile.NewReconciler(loc, logger)
	contractService, err := autotransferapp.NewContractService(contracts, executions, reconciler,
		autotransferapp.WithClock(clock),
		autotransferapp.WithLocker(locker, transferCfg.Executor.LockTTL),
		autotransferapp.WithAuditLogger(auditLogger),
		autotransferapp.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("contract service error: %v", err)
	}

	var runner autotransferapp.DueRunner
	if transferCfg.Gateway.BaseURL != "" {
		gateway, err := bankgateway.NewClient(transferCfg.Gateway.BaseURL, transferCfg.Gateway.Token, transferCfg.Gateway.Timeout)
		if err != nil {
			logger.Fatalf("bank gateway error: %v", err)
		}
		executorOpts := []autotransferapp.ExecutorOption{
			autotransferapp.WithExecutorClock(clock),
			autotransferapp.WithExecutorLocker(locker, transferCfg.Executor.LockTTL),
			autotransferapp.WithExecutorAudit(auditLogger),
			autotransferapp.WithExecutorLogger(logger),
		}
		if transferCfg.Alert.WebhookURL != "" {
			executorOpts = append(executorOpts, autotransferapp.WithExecutorNotifier(
				notify.NewWebhookNotifier(transferCfg.Alert.WebhookURL, transferCfg.Alert.Timeout)))
		}
		executor, err := autotransferapp.NewExecutor(contracts, executions, gateway, executorOpts...)
		if err != nil {
			logger.Fatalf("executor error: %v", err)
		}
		runner = executor
		if transferCfg.Schedule.Enabled {
			scheduler := autotransferapp.NewScheduler(executor, transferCfg.Schedule.DailyAt, loc, logger)
			go scheduler.Start(ctx)
		}
	} else {
		logger.Printf("BANK_GATEWAY_URL not set: transfer executor disabled")
	}

	transferHandler, err := autotransferhttp.NewHandler(contractService, runner, reconciler, clock, logger)
	if err != nil {
		logger.Fatalf("autotransfer handler error: %v", err)
	}

	loanService, err := loanapp.NewService(applications, payments, flags,
		loanapp.WithAuditLogger(auditLogger),
		loanapp.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("loan service error: %v", err)
	}
	loanHandler, err := loanhttp.NewHandler(loanService)
	if err != nil {
		logger.Fatalf("loan handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	transferHandler.Register(mux)
	mux.Handle("/api/v1/loans/", loanHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				http.Error(w, "db unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(audit.Middleware(authMiddleware.Wrap(mux)), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	logger.Printf("http listening on %s (timezone=%s)", cfg.HTTPAddr, loc)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal(err)
	}
}

type config struct {
	DatabaseURL   string
	HTTPAddr      string
	JWTSecret     string
	RedisAddr     string
	RedisPassword string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:   getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:      getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:     getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		RedisAddr:     getenvDefault("REDIS_ADDR", ""),
		RedisPassword: getenvDefault("REDIS_PASSWORD", ""),
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
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
