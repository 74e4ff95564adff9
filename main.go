package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AlfredDev/conductor-gateway/config"
	"github.com/AlfredDev/conductor-gateway/handler"
	"github.com/AlfredDev/conductor-gateway/logger"
	"github.com/AlfredDev/conductor-gateway/metrics"
	"github.com/AlfredDev/conductor-gateway/modelmap"
	"github.com/AlfredDev/conductor-gateway/provider"
	"github.com/AlfredDev/conductor-gateway/redisclient"
	"github.com/AlfredDev/conductor-gateway/router"
	"github.com/AlfredDev/conductor-gateway/scheduler"
	"github.com/AlfredDev/conductor-gateway/status"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.New(cfg)

	log.Info().Str("env", cfg.Env).Msg("conductor gateway starting")

	var statusPublisher status.Publisher
	if cfg.RedisURL != "" {
		rc, err := redisclient.New(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("redis init failed — continuing without status mirroring")
		} else if err := rc.Ping(); err != nil {
			log.Warn().Err(err).Msg("redis ping failed — continuing without status mirroring")
		} else {
			log.Info().Msg("redis connected")
			statusPublisher = rc
		}
	}

	mm := modelmap.New(cfg.Models)

	pool := provider.DefaultConnectionPool()
	requestTimeout := time.Duration(cfg.Conductor.RequestTimeout) * time.Second
	if requestTimeout <= 0 {
		requestTimeout = 120 * time.Second
	}

	adapters, err := provider.BuildAdapters(cfg.Providers, mm, pool, requestTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build provider adapters")
	}

	recorder := metrics.NewRecorder(prometheus.DefaultRegisterer)

	sched := scheduler.New(scheduler.Config{
		Strategy: scheduler.Strategy(cfg.Conductor.SchedulingStrategy),
	}, log)
	sched.SetRecorder(recorder)
	for _, a := range adapters {
		sched.AddProvider(a)
	}
	sched.Start()

	healthPoller := provider.NewHealthPoller(adapters, log, 30*time.Second)
	healthPoller.OnStatusChange(func(name string, healthy bool, st provider.HealthStatus) {
		if healthy {
			log.Info().Str("provider", name).Msg("provider recovered")
		} else {
			log.Error().Str("provider", name).Str("error", st.Error).Msg("provider degraded")
		}
	})
	healthPoller.Start()

	statusAgg := status.New(sched, statusPublisher)
	stopMetricsSync := syncMetrics(recorder, statusAgg, 10*time.Second)

	h := handler.New(log, sched, mm, statusAgg, healthPoller)
	r := router.NewRouter(cfg, log, router.Deps{Handler: h})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: requestTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-done
	log.Info().Msg("shutdown signal received")

	close(stopMetricsSync)
	healthPoller.Stop()
	sched.Stop()
	pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		log.Info().Msg("gateway stopped gracefully")
	}
}

// syncMetrics periodically copies the status snapshot into the
// Prometheus recorder's gauges. Returns a channel that, when closed,
// stops the sync goroutine.
func syncMetrics(recorder *metrics.Recorder, statusAgg *status.Aggregator, interval time.Duration) chan struct{} {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				snap := statusAgg.Snapshot()
				recorder.QueueDepth.Set(float64(snap.PendingRequests))
				recorder.AvailableKeys.Set(float64(snap.AvailableKeys))
				recorder.TotalKeys.Set(float64(snap.TotalKeys))
				for _, ks := range snap.Keys {
					recorder.SetBucketGauge(ks.Provider, ks.Name, ks.TokensRemaining, ks.RequestsRemaining)
				}
			}
		}
	}()
	return stop
}
