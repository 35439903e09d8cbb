package config

import (
    "encoding/json"
    "errors"
    "fmt"
    "net/url"
    "os"
    "strings"
    "time"

    "github.com/joho/godotenv"
    "github.com/kelseyhightower/envconfig"
    "github.com/sirupsen/logrus"
)

type Server struct {
    Port              string `json:"port"                envconfig:"PORT"`
    RequestTimeoutSec int    `json:"request_timeout_sec" envconfig:"REQUEST_TIMEOUT_SEC"`
}

// Sync configures the polling session. PollIntervalMs is the re-poll cadence.
type Sync struct {
    PollIntervalMs  int `json:"poll_interval_ms" envconfig:"POLL_INTERVAL_MS"`
    PollTimeoutSec  int `json:"poll_timeout_sec" envconfig:"POLL_TIMEOUT_SEC"`
    HistoryCapacity int `json:"history_capacity" envconfig:"HISTORY_CAPACITY"`
}

type CoinCap struct {
    BaseURL               string `json:"base_url"                 envconfig:"COINCAP_BASE_URL"`
    Asset                 string `json:"asset"                    envconfig:"COINCAP_ASSET"`
    APIKey                string `json:"api_key"                  envconfig:"COINCAP_API_KEY"`
    HistoryPoints         int    `json:"history_points"           envconfig:"HISTORY_POINTS"`
    MaxRequestsPerMinute  int    `json:"max_requests_per_minute"  envconfig:"FEED_MAX_RPM"`
    MinRequestIntervalSec int    `json:"min_request_interval_sec" envconfig:"FEED_MIN_INTERVAL_SEC"`
    Burst                 int    `json:"burst"                    envconfig:"FEED_BURST"`
}

type Log struct {
    Level  string `json:"level"  envconfig:"LOG_LEVEL"`
    Format string `json:"format" envconfig:"LOG_FORMAT"`
}

type Config struct {
    Server  Server  `json:"server"`
    Sync    Sync    `json:"sync"`
    CoinCap CoinCap `json:"coincap"`
    Log     Log     `json:"log"`
}

func Default() Config {
    return Config{
        Server: Server{Port: "8080", RequestTimeoutSec: 10},
        Sync: Sync{
            PollIntervalMs:  30_000,
            PollTimeoutSec:  10,
            HistoryCapacity: 200,
        },
        CoinCap: CoinCap{
            BaseURL:       "https://api.coincap.io/v2",
            Asset:         "bitcoin",
            HistoryPoints: 120,
            Burst:         1,
        },
        Log: Log{Level: "info", Format: "text"},
    }
}

// Load builds the configuration from defaults, an optional JSON file and the
// environment, in that order of precedence (environment wins).
//
// If path is empty, ./config.json is used when present. envFiles are loaded
// into the process environment first without overriding variables that are
// already set; with no envFiles, ./.env is tried. Missing files are ignored.
func Load(path string, envFiles ...string) (Config, error) {
    cfg := Default()

    if err := loadEnvFiles(envFiles); err != nil {
        return cfg, err
    }

    if path == "" {
        if _, err := os.Stat("config.json"); err == nil {
            path = "config.json"
        }
    }
    if path != "" {
        b, err := os.ReadFile(path)
        if err != nil && !errors.Is(err, os.ErrNotExist) {
            return cfg, fmt.Errorf("read config: %w", err)
        }
        if err == nil {
            if err := json.Unmarshal(b, &cfg); err != nil {
                return cfg, fmt.Errorf("parse config: %w", err)
            }
        }
    }

    if err := envconfig.Process("", &cfg); err != nil {
        return cfg, fmt.Errorf("process env: %w", err)
    }
    if err := cfg.Validate(); err != nil {
        return cfg, fmt.Errorf("invalid configuration: %w", err)
    }
    return cfg, nil
}

func loadEnvFiles(files []string) error {
    if len(files) == 0 {
        files = []string{".env"}
    }
    for _, f := range files {
        if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
            continue
        }
        if err := godotenv.Load(f); err != nil {
            return fmt.Errorf("load env file %s: %w", f, err)
        }
    }
    return nil
}

// Validate checks the values a session cannot run without.
func (c Config) Validate() error {
    if c.Sync.PollIntervalMs <= 0 {
        return fmt.Errorf("poll interval must be positive, got %dms", c.Sync.PollIntervalMs)
    }
    if c.Sync.HistoryCapacity <= 0 {
        return fmt.Errorf("history capacity must be positive, got %d", c.Sync.HistoryCapacity)
    }
    if strings.TrimSpace(c.CoinCap.Asset) == "" {
        return errors.New("coincap asset is required")
    }
    if _, err := url.ParseRequestURI(c.CoinCap.BaseURL); err != nil {
        return fmt.Errorf("invalid coincap base url: %s", c.CoinCap.BaseURL)
    }
    if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
        return fmt.Errorf("invalid log level: %w", err)
    }
    switch strings.ToLower(c.Log.Format) {
    case "text", "json":
    default:
        return fmt.Errorf("invalid log format: %q", c.Log.Format)
    }
    return nil
}

func (s Sync) PollInterval() time.Duration {
    return time.Duration(s.PollIntervalMs) * time.Millisecond
}

func (s Sync) PollTimeout() time.Duration {
    return time.Duration(s.PollTimeoutSec) * time.Second
}

func (s Server) RequestTimeout() time.Duration {
    return time.Duration(s.RequestTimeoutSec) * time.Second
}
