// cmd/server is the main entrypoint for a cache service instance.
//
// Configuration is via flags, optionally layered over a JSON config
// file, so a single binary can serve any deployment.
//
// Example — local-only cache:
//
//	./server --addr :8080 --caller router --limit 512
//
// Example — shared Redis tier:
//
//	./server --addr :8080 --caller router \
//	         --redis redis://10.0.0.1:6379,redis://10.0.0.2:6379 \
//	         --redis-timeout 500ms --redis-ttl 24h
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"dedup-cache/internal/api"
	"dedup-cache/internal/cache"
	"dedup-cache/internal/config"
)

func main() {
	// ── Flags ──────────────────────────────────────────────────────────────
	addr := flag.String("addr", ":8080", "Listen address (host:port)")
	caller := flag.String("caller", "service", "Caller label used in metrics output")
	configPath := flag.String("config", "", "Path to a JSON cache configuration file")
	limit := flag.Int("limit", 0, "In-memory LRU capacity (overrides the config file)")
	redisURLs := flag.String("redis", "", "Comma-separated Redis endpoints; enables the remote tier")
	redisTimeout := flag.Duration("redis-timeout", 0, "Per-operation Redis timeout")
	redisTTL := flag.Duration("redis-ttl", 0, "Per-key expiry passed to Redis")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// ── Configuration ──────────────────────────────────────────────────────
	// File first, flags override.
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.WithError(err).Fatal("load config")
		}
		cfg = loaded
	}
	if *limit > 0 {
		cfg.InMemory.Limit = *limit
	}
	if *redisURLs != "" {
		cfg.Redis = &config.Redis{
			URLs:    strings.Split(*redisURLs, ","),
			Timeout: config.Duration(*redisTimeout),
			TTL:     config.Duration(*redisTTL),
		}
	}

	// ── Cache ──────────────────────────────────────────────────────────────
	c, err := cache.FromConfig[string, string](cfg, *caller)
	if err != nil {
		log.WithError(err).Fatal("build cache")
	}

	// ── HTTP server ────────────────────────────────────────────────────────
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(api.Logger(log), api.Recovery(log))

	api.NewHandler(c).Register(router)

	// Health check endpoint — useful for load balancers and readiness probes.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:         *addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// ── Graceful shutdown ──────────────────────────────────────────────────
	// Listen for SIGINT/SIGTERM and give in-flight requests 15s to complete.
	go func() {
		log.WithFields(logrus.Fields{
			"addr":   *addr,
			"caller": *caller,
			"limit":  cfg.InMemory.Limit,
			"redis":  cfg.Redis != nil,
		}).Info("cache service listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server shutdown error")
	}
}
