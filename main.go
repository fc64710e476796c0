package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"worldpay-checkout/config"
	"worldpay-checkout/handlers"
	"worldpay-checkout/metrics"
	"worldpay-checkout/middleware"
	"worldpay-checkout/queue"
	"worldpay-checkout/services/admin"
	"worldpay-checkout/services/auth"
	"worldpay-checkout/services/backend"
	"worldpay-checkout/services/bridge"
	"worldpay-checkout/services/checkout"
	"worldpay-checkout/services/reporting"
	"worldpay-checkout/tracing"
	"worldpay-checkout/worker"
)

const (
	sessionIdleTimeout = 30 * time.Minute
	sweepInterval      = time.Minute
	bridgeBuffer       = 256
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile | log.Lmicroseconds | log.LUTC)
	log.Printf("Server starting with %d CPUs available", runtime.NumCPU())

	cfg, errs := config.Load(os.Getenv("CONFIG_FILE"))
	if len(errs) > 0 {
		for _, err := range errs {
			log.Printf("Config error: %v", err)
		}
		log.Fatalf("Invalid configuration (%d errors)", len(errs))
	}
	log.Printf("Configuration loaded successfully")

	tracer, err := tracing.NewProvider(tracing.Config{
		ServiceName:  cfg.Tracing.ServiceName,
		Enabled:      cfg.Tracing.Enabled,
		Environment:  cfg.Reporting.Environment,
		OTLPEndpoint: cfg.Tracing.Endpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
		InsecureMode: cfg.Tracing.Insecure,
	})
	if err != nil {
		log.Fatalf("Failed to start tracing: %v", err)
	}

	m := metrics.NewMetrics()
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := m.Register(promRegistry); err != nil {
		log.Fatalf("Failed to register metrics: %v", err)
	}

	redisClient, err := connectRedis(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	log.Println("Successfully connected to Redis")

	jobQueue := queue.NewQueueWithClient(redisClient, cfg.Redis.QueueName)
	reporter := reporting.NewQueueReporter(jobQueue)

	var sink reporting.Sink = reporting.LogSink{}
	var sentrySink *reporting.SentrySink
	if cfg.Reporting.SentryDSN != "" {
		sentrySink, err = reporting.NewSentrySink(reporting.SentryConfig{
			DSN:         cfg.Reporting.SentryDSN,
			Environment: cfg.Reporting.Environment,
		})
		if err != nil {
			log.Fatalf("Failed to initialize error reporting: %v", err)
		}
		sink = sentrySink
	}

	workerConcurrency := cfg.Redis.WorkerConcurrency
	if workerConcurrency < 1 {
		workerConcurrency = 1
	} else if workerConcurrency > 8 {
		workerConcurrency = 8
	}
	reportWorker := worker.NewWorker(jobQueue, sink, m)
	reportWorker.Start(workerConcurrency)
	log.Printf("Started report worker with %d threads", workerConcurrency)

	var transport bridge.Transport = bridge.NewLocalTransport(bridgeBuffer)
	if cfg.Redis.BridgePubSub {
		transport = bridge.NewRedisTransport(redisClient, bridge.DefaultChannel)
	}
	listener := bridge.NewListener(transport)
	bridgeCtx, stopBridge := context.WithCancel(context.Background())
	go func() {
		if err := listener.Run(bridgeCtx); err != nil {
			log.Printf("Bridge listener error: %v", err)
		}
	}()

	apiClient := backend.NewClient(cfg.Backend.APIRoot, cfg.Backend.Timeout, m)
	store := middleware.NewSessionStore(cfg.Session.Secret, cfg.Session.Secure, cfg.Session.MaxAge)
	tokens := auth.NewJWTService(cfg.Bridge.TokenSecret, cfg.Bridge.Issuer, cfg.Bridge.TokenTTL)

	checkoutSessions := handlers.NewRegistry[*checkout.Controller](listener, m)
	adminSessions := handlers.NewRegistry[*admin.Session](listener, nil)

	router := handlers.NewRouter(handlers.RouterConfig{
		Checkout: handlers.NewCheckoutHandler(checkoutSessions,
			func() handlers.CheckoutBackend { return apiClient.ForSession() },
			store, tokens,
			handlers.CheckoutConfig{
				MerchantName: cfg.Checkout.MerchantName,
				Region:       cfg.Checkout.Region,
				Observer:     m,
				Reporter:     reporter,
			}),
		Bridge: handlers.NewBridgeHandler(listener),
		Admin: handlers.NewAdminHandler(adminSessions,
			func() handlers.AdminBackend { return apiClient.ForSession() },
			tokens, cfg.Backend.APIRoot, jobQueue),
		Health: handlers.NewHealthHandler(handlers.PingerFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}), checkoutSessions),
		Store:  store,
		Tokens: tokens,
		SubmitLimiter: middleware.NewRateLimiter(redisClient, middleware.RateLimitConfig{
			Requests: cfg.Checkout.SubmitLimit,
			Window:   cfg.Checkout.SubmitWindow,
		}),
		CORS:    middleware.CORSConfig{AllowedOrigins: cfg.Server.AllowedOrigins},
		Metrics: promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
	})

	sweepDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepDone:
				return
			case <-ticker.C:
				checkoutSessions.Sweep(sessionIdleTimeout)
				adminSessions.Sweep(sessionIdleTimeout)
			}
		}
	}()

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   cfg.Backend.Timeout + 15*time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	<-stop
	log.Println("Shutdown signal received, gracefully shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	log.Println("Shutting down HTTP server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	close(sweepDone)
	stopBridge()

	log.Println("Stopping report worker...")
	reportWorker.Stop()
	if sentrySink != nil {
		sentrySink.Flush(2 * time.Second)
	}

	if err := tracer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down tracer: %v", err)
	}

	log.Println("Closing Redis connections...")
	jobQueue.Close()

	log.Println("Server exited properly")
}

// connectRedis retries the first ping so the service can start alongside Redis.
func connectRedis(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	for retries := 0; retries < 5; retries++ {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err = client.Ping(ctx).Err()
		cancel()
		if err == nil {
			return client, nil
		}
		retryDelay := time.Duration(retries+1) * time.Second
		log.Printf("Failed to connect to Redis (attempt %d/5): %v. Retrying in %v...", retries+1, err, retryDelay)
		time.Sleep(retryDelay)
	}
	client.Close()
	return nil, fmt.Errorf("redis unreachable after retries: %w", err)
}
