// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"circulation-workers/internal/common/aws"
	"circulation-workers/internal/common/camunda"
	"circulation-workers/internal/common/config"
	"circulation-workers/internal/common/database"
	"circulation-workers/internal/common/logger"
	"circulation-workers/internal/common/observability"
	"circulation-workers/internal/dispatch"
	"circulation-workers/internal/ils"
	"circulation-workers/internal/institution"
	"circulation-workers/internal/notify"
	"circulation-workers/internal/purge"
	"circulation-workers/internal/reconcile"
	"circulation-workers/internal/scheduler"
	"circulation-workers/internal/store"

	// Circulation workers
	ir "circulation-workers/internal/workers/circulation/item-request"
	pv "circulation-workers/internal/workers/circulation/patron-validation"
	ri "circulation-workers/internal/workers/circulation/refile-item"
	trs "circulation-workers/internal/workers/circulation/transition-request-status"

	// Maintenance workers
	ipr "circulation-workers/internal/workers/maintenance/identify-pending-requests"
	pr "circulation-workers/internal/workers/maintenance/purge-requests"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(ctx context.Context, operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
				"error":       err.Error(),
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("%s cancelled: %w", operationName, ctx.Err())
			}
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog = logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog).WithFields(map[string]interface{}{
		"service": cfg.App.Name,
		"version": cfg.App.Version,
	})

	log.Info("starting worker manager", map[string]interface{}{"environment": cfg.App.Environment})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		log.Warn("sweep metrics disabled", map[string]interface{}{"error": err.Error()})
	}
	defer obs.Shutdown()

	// --- Init Zeebe Client with retry ---
	var zeebe *camunda.Client
	err = retryWithBackoff(ctx, func() error {
		var err error
		zeebe, err = camunda.NewClientWithConfig(camunda.ConfigFrom(cfg.Camunda))
		return err
	}, 10, 2*time.Second, log, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	log.Info("Zeebe client connected", nil)

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(ctx, func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, log, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	log.Info("PostgreSQL connected", nil)

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(ctx, func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, log, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	log.Info("Redis connected", nil)

	// --- Domain services ---
	registry, err := ils.BuildRegistry(cfg.ILS)
	if err != nil {
		zapLog.Fatal("ILS registry failed", zap.Error(err))
	}
	log.Info("ILS connectors registered", map[string]interface{}{"institutions": registry.Institutions()})

	requests := store.NewRequestStore(pg.DB)
	var properties institution.ConfigSource = institution.Layered{
		institution.NewPostgresSource(pg.DB),
		institution.NewStaticSource(cfg.ILS),
	}
	if ttl := config.GetDuration(cfg.Database.Redis.PropertyCacheTTL); ttl > 0 {
		properties = institution.NewCachedSource(properties, rdb.Client, ttl, log)
	}
	resolver := institution.NewResolver(properties, log)
	dispatcher := dispatch.New(registry, resolver, requests, cfg.ILS.ConnectorTimeout, log)

	notifier := notify.NewAsync(buildNotifier(ctx, cfg, log), config.GetDuration(cfg.Notifications.Timeout), log)
	reconciler := reconcile.New(requests, notifier, cfg.Reconciler, log)
	purger := purge.New(requests, cfg.Purge, log)

	// --- Register workers ---
	client := zeebe.GetClient()
	var workers []*camunda.CamundaWorker
	start := func(taskType string, handler camunda.HandlerFunc) {
		if w := startWorker(client, cfg, taskType, handler, log); w != nil {
			workers = append(workers, w)
		}
	}

	for _, taskType := range ir.TaskTypes {
		handler, err := ir.NewHandler(ir.LoadConfig(config.GetWorkerConfig(cfg, taskType)), taskType, dispatcher, log)
		if err != nil {
			zapLog.Fatal("failed to create item request handler", zap.String("taskType", taskType), zap.Error(err))
		}
		start(taskType, handler.Handle)
	}

	start(pv.TaskType, pv.NewHandler(pv.LoadConfig(config.GetWorkerConfig(cfg, pv.TaskType)), dispatcher, log).Handle)
	start(ri.TaskType, ri.NewHandler(ri.LoadConfig(config.GetWorkerConfig(cfg, ri.TaskType)), dispatcher, requests, log).Handle)
	start(trs.TaskType, trs.NewHandler(trs.LoadConfig(config.GetWorkerConfig(cfg, trs.TaskType)), requests, log).Handle)
	start(ipr.TaskType, ipr.NewHandler(ipr.LoadConfig(config.GetWorkerConfig(cfg, ipr.TaskType)), reconciler, log).Handle)

	for _, taskType := range pr.TaskTypes {
		handler, err := pr.NewHandler(pr.LoadConfig(config.GetWorkerConfig(cfg, taskType)), taskType, purger, log)
		if err != nil {
			zapLog.Fatal("failed to create purge handler", zap.String("taskType", taskType), zap.Error(err))
		}
		start(taskType, handler.Handle)
	}
	log.Info("workers registered", map[string]interface{}{"count": len(workers)})

	g, gctx := errgroup.WithContext(ctx)

	// --- Sweeps ---
	if cfg.Scheduler.Enabled {
		sched := scheduler.New(obs, log)
		sched.Add(scheduler.Job{
			Name:     "identify-pending-requests",
			Interval: config.GetDuration(cfg.Reconciler.Interval),
			Run: func(ctx context.Context) error {
				_, err := reconciler.Sweep(ctx)
				return err
			},
		})
		sched.Add(scheduler.Job{
			Name:     "purge-email-address",
			Interval: config.GetDuration(cfg.Purge.Interval),
			Run: func(ctx context.Context) error {
				_, err := purger.PurgeEmailAddress(ctx)
				return err
			},
		})
		sched.Add(scheduler.Job{
			Name:     "purge-exception-requests",
			Interval: config.GetDuration(cfg.Purge.Interval),
			Run: func(ctx context.Context) error {
				if res := purger.PurgeExceptionRequests(ctx); res.Status != purge.StatusSuccess {
					return errors.New(res.Message)
				}
				return nil
			},
		})
		g.Go(func() error { return sched.Run(gctx) })
	}

	// --- Health & Metrics Server ---
	server := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           healthMux(zeebe, pg, rdb),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		log.Info("health/metrics server listening", map[string]interface{}{"address": cfg.Server.Address})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	// --- Graceful Shutdown ---
	<-gctx.Done()
	log.Info("shutdown signal received, stopping workers", nil)

	for _, w := range workers {
		w.Stop()
	}
	if err := g.Wait(); err != nil {
		log.Error("background task failed", map[string]interface{}{"error": err.Error()})
	}
	notifier.Wait()

	if err := zeebe.Close(); err != nil {
		log.Error("error closing Zeebe client", map[string]interface{}{"error": err.Error()})
	}

	log.Info("worker manager stopped", nil)
}

func startWorker(client zbc.Client, cfg *config.Config, taskType string, handler camunda.HandlerFunc, log logger.Logger) *camunda.CamundaWorker {
	wcfg := config.GetWorkerConfig(cfg, taskType)
	if !wcfg.Enabled {
		log.Info("worker disabled", map[string]interface{}{"taskType": taskType})
		return nil
	}
	return camunda.NewWorker(client, taskType, wcfg, handler, log)
}

// buildNotifier fans out to every enabled AWS channel and falls back to
// logging the payload when none is configured.
func buildNotifier(ctx context.Context, cfg *config.Config, log logger.Logger) notify.Notifier {
	var channels notify.Fanout
	region := cfg.Notifications.AWS.Region

	if cfg.Notifications.Email.Enabled {
		ses, err := aws.NewSESNotifier(ctx, region, cfg.Notifications.Email.FromEmail)
		if err != nil {
			log.Error("SES notifier unavailable", map[string]interface{}{"error": err.Error()})
		} else {
			channels = append(channels, ses)
		}
	}
	if cfg.Notifications.SNS.Enabled {
		sns, err := aws.NewSNSNotifier(ctx, region, cfg.Notifications.SNS.TopicARN)
		if err != nil {
			log.Error("SNS notifier unavailable", map[string]interface{}{"error": err.Error()})
		} else {
			channels = append(channels, sns)
		}
	}

	if len(channels) == 0 {
		log.Warn("no notification channel enabled, notifications are logged only", nil)
		return notify.LogNotifier{Logger: log}
	}
	return channels
}

func healthMux(zeebe *camunda.Client, pg *database.PostgresClient, rdb *database.RedisClient) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		checks := map[string]string{}
		code := http.StatusOK
		for name, ping := range map[string]func(context.Context) error{
			"zeebe":    zeebe.HealthCheck,
			"postgres": pg.Ping,
			"redis":    rdb.Ping,
		} {
			if err := ping(ctx); err != nil {
				checks[name] = err.Error()
				code = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}
		status := "ready"
		if code != http.StatusOK {
			status = "not ready"
		}
		writeStatus(w, code, map[string]interface{}{
			"status": status,
			"checks": checks,
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func writeStatus(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
