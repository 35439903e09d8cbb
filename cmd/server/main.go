package main

import (
    "context"
    "errors"
    "flag"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/sirupsen/logrus"

    "pricesync/internal/api"
    "pricesync/internal/config"
    "pricesync/internal/feed"
    "pricesync/internal/feed/coincap"
    "pricesync/internal/feed/ratelimit"
    "pricesync/internal/httpx"
    "pricesync/internal/logging"
    "pricesync/internal/pricesync"
)

func main() {
    var configPath string
    flag.StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to config.json (optional)")
    flag.Parse()

    // Config
    cfg, err := config.Load(configPath)
    if err != nil { logrus.Fatalf("config: %v", err) }

    log, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
    if err != nil { logrus.Fatalf("logging: %v", err) }

    f := newFeed(cfg, log)

    ctrl := pricesync.New(f,
        pricesync.WithInterval(cfg.Sync.PollInterval()),
        pricesync.WithPollTimeout(cfg.Sync.PollTimeout()),
        pricesync.WithHistoryCapacity(cfg.Sync.HistoryCapacity),
        pricesync.WithLogger(log.WithField("component", "pricesync")),
    )

    srv := &http.Server{
        Addr:              ":" + cfg.Server.Port,
        Handler:           api.New(ctrl, api.WithLogger(log.WithField("component", "api"))).Handler(),
        ReadHeaderTimeout: 5 * time.Second,
        ReadTimeout:       15 * time.Second,
        IdleTimeout:       60 * time.Second,
        // No WriteTimeout: /api/stream connections are long-lived and
        // manage their own write deadlines.
    }

    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()

    if err := ctrl.Start(ctx); err != nil { log.Fatalf("price sync: %v", err) }

    go func() {
        log.WithField("port", cfg.Server.Port).Info("server listening")
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            log.Fatalf("server: %v", err)
        }
    }()

    // graceful shutdown
    <-ctx.Done()
    shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    if err := ctrl.Stop(shutdownCtx); err != nil { log.WithError(err).Warn("price sync stop") }
    if err := srv.Shutdown(shutdownCtx); err != nil { log.WithError(err).Warn("server shutdown") }
}

// newFeed builds the CoinCap feed with the configured rate limit in front.
func newFeed(cfg config.Config, log logrus.FieldLogger) feed.Feed {
    // Keep the upstream connection warm across two poll intervals.
    httpClient := httpx.New(cfg.Server.RequestTimeout(), httpx.WithIdleTimeout(2*cfg.Sync.PollInterval()))

    if cfg.CoinCap.APIKey == "" {
        log.Warn("COINCAP_API_KEY not set; using anonymous access")
    }
    client := coincap.NewClient(cfg.CoinCap.APIKey,
        coincap.WithBaseURL(cfg.CoinCap.BaseURL),
        coincap.WithAsset(cfg.CoinCap.Asset),
        coincap.WithHistoryPoints(cfg.CoinCap.HistoryPoints),
        coincap.WithHTTPClient(httpClient),
    )

    // Prefer token bucket with burst if RPM is set, otherwise use min-interval
    switch {
    case cfg.CoinCap.MaxRequestsPerMinute > 0:
        return ratelimit.Wrap(client, ratelimit.PerMinute(cfg.CoinCap.MaxRequestsPerMinute, cfg.CoinCap.Burst))
    case cfg.CoinCap.MinRequestIntervalSec > 0:
        return ratelimit.Wrap(client, ratelimit.MinInterval(time.Duration(cfg.CoinCap.MinRequestIntervalSec)*time.Second))
    }
    return client
}
