// Command payguard runs the payment gateway: an HTTP front door that
// admits requests through a rate limiter and forwards payment operations
// to the acquirer with retries, circuit breaking, and telemetry.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/payguard/payguard/config"
	"github.com/payguard/payguard/health"
	"github.com/payguard/payguard/observe"
	"github.com/payguard/payguard/ratelimit"
	"github.com/payguard/payguard/resilience"
)

// version is stamped at build time:
// go build -ldflags="-X main.version=1.2.3"
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional; environment variables apply either way)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "payguard:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Observability.Version == "" {
		cfg.Observability.Version = version
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs, err := observe.NewObserver(ctx, cfg.Observability.Build())
	if err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	logger := obs.Logger()

	metrics, err := observe.MetricsFromObserver(obs)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// Disabled rate limiting builds no store, so an unused redis backend
	// cannot block startup.
	var (
		limiter    *ratelimit.Limiter
		store      ratelimit.Store
		closeStore func() error
	)
	if cfg.RateLimit.Enabled {
		store, closeStore, err = newStore(cfg)
		if err != nil {
			return err
		}

		rlcfg := cfg.RateLimit.Build()
		rlcfg.Events = ratelimit.Events{
			OnDecision: func(_ ratelimit.Request, res ratelimit.Result) {
				decision := "denied"
				if res.Allowed {
					decision = "allowed"
				}
				metrics.RecordAdmission(context.Background(), decision, res.Reason)
			},
			OnStoreError: func(err error) {
				logger.Warn(context.Background(), "rate limit store error",
					observe.Field{Key: "error", Value: err.Error()})
			},
		}
		limiter, err = ratelimit.NewLimiter(rlcfg, store)
		if err != nil {
			_ = closeStore()
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	rcfg := cfg.Resilience.Build()
	rcfg.Events.OnAttempt = func(a resilience.Attempt) {
		if a.Number > 1 {
			metrics.RecordRetry(context.Background(), observe.CallMeta{
				Service:   cfg.Upstream.Name,
				Operation: "proxy",
				Endpoint:  cfg.Upstream.Endpoint,
			}, a.Number)
		}
	}

	// The breaker is built here rather than inside the executor so the
	// health aggregator can watch the same instance.
	var breaker *resilience.Breaker
	if rcfg.BreakerThreshold > 0 {
		breaker, err = resilience.NewBreaker(resilience.BreakerConfig{
			Name:         cfg.Upstream.Name,
			Threshold:    rcfg.BreakerThreshold,
			ResetTimeout: rcfg.BreakerResetTimeout,
			OnStateChange: func(name string, from, to resilience.State) {
				metrics.RecordBreakerTransition(context.Background(), name, from.String(), to.String())
				logger.Warn(context.Background(), "circuit breaker state change",
					observe.Field{Key: "breaker", Value: name},
					observe.Field{Key: "from", Value: from.String()},
					observe.Field{Key: "to", Value: to.String()})
			},
		})
		if err != nil {
			return fmt.Errorf("circuit breaker: %w", err)
		}
	}

	var exOpts []resilience.Option
	if breaker != nil {
		exOpts = append(exOpts, resilience.WithBreaker(breaker))
	}
	if cfg.Resilience.ThrottleRPS > 0 {
		burst := cfg.Resilience.ThrottleBurst
		if burst <= 0 {
			burst = int(math.Ceil(cfg.Resilience.ThrottleRPS))
		}
		exOpts = append(exOpts, resilience.WithThrottle(
			rate.NewLimiter(rate.Limit(cfg.Resilience.ThrottleRPS), burst)))
	}
	var inflight *resilience.Inflight
	if cfg.Resilience.MaxInflight > 0 {
		inflight = resilience.NewInflight(cfg.Resilience.MaxInflight, cfg.Resilience.InflightFailFast)
		exOpts = append(exOpts, resilience.WithInflight(inflight))
	}

	ex, err := resilience.NewExecutor(rcfg, exOpts...)
	if err != nil {
		return fmt.Errorf("executor: %w", err)
	}

	var clOpts []resilience.ClientOption
	if cfg.Upstream.Timeout > 0 {
		clOpts = append(clOpts, resilience.WithHTTPClient(&http.Client{Timeout: cfg.Upstream.Timeout}))
	}
	if cfg.Upstream.IdempotencyHeader != "" {
		clOpts = append(clOpts, resilience.WithIdempotencyKeys(cfg.Upstream.IdempotencyHeader))
	}
	client, err := resilience.NewClient(ex, clOpts...)
	if err != nil {
		return fmt.Errorf("upstream client: %w", err)
	}

	callMW, err := observe.MiddlewareFromObserver(obs)
	if err != nil {
		return fmt.Errorf("call middleware: %w", err)
	}

	gw := newGateway(cfg.Upstream, client, callMW)

	agg := health.NewAggregator()
	if breaker != nil {
		bc := health.NewBreakerChecker(breaker)
		agg.Register(bc.Name(), bc)
	}
	if store != nil {
		sc := health.NewStoreChecker(store)
		agg.Register(sc.Name(), sc)
	}
	rc := health.NewRuntimeChecker(health.RuntimeCheckerConfig{})
	agg.Register(rc.Name(), rc)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Route("/api", func(r chi.Router) {
		if limiter != nil {
			r.Use(ratelimit.Middleware(limiter, ratelimit.WithMiddlewareLogger(logger)))
		}
		r.Post("/payments", gw.createPayment)
		r.Get("/payments/{paymentID}", gw.getPayment)
	})

	r.Get("/healthz", health.LivenessHandler())
	r.Get("/readyz", health.ReadinessHandler(agg))
	r.Get("/health", health.DetailedHandler(agg))
	r.Get("/admin/stats", statsHandler(ex, limiter, inflight))

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddress,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "listening",
			observe.Field{Key: "addr", Value: cfg.Server.ListenAddress},
			observe.Field{Key: "upstream", Value: cfg.Upstream.Endpoint},
			observe.Field{Key: "version", Value: cfg.Observability.Version})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "server shutdown",
			observe.Field{Key: "error", Value: err.Error()})
	}
	if limiter != nil {
		if err := limiter.Close(); err != nil {
			logger.Error(context.Background(), "limiter close",
				observe.Field{Key: "error", Value: err.Error()})
		}
	}
	if closeStore != nil {
		if err := closeStore(); err != nil {
			logger.Error(context.Background(), "store close",
				observe.Field{Key: "error", Value: err.Error()})
		}
	}
	if err := obs.Shutdown(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "payguard: observability shutdown:", err)
	}
	return nil
}

// newStore builds the counter store named by the config. The returned
// cleanup closes the store and, for redis, the client behind it.
func newStore(cfg *config.File) (ratelimit.Store, func() error, error) {
	if cfg.RateLimit.Store.Backend == config.StoreRedis {
		rc := cfg.RateLimit.Store.Redis
		client := redis.NewClient(&redis.Options{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
		})
		var opts []ratelimit.RedisStoreOption
		if rc.KeyPrefix != "" {
			opts = append(opts, ratelimit.WithKeyPrefix(rc.KeyPrefix))
		}
		store, err := ratelimit.NewRedisStore(client, opts...)
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis store: %w", err)
		}
		return store, func() error {
			return errors.Join(store.Close(), client.Close())
		}, nil
	}

	store := ratelimit.NewMemoryStore()
	return store, store.Close, nil
}
