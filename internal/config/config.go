package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the SLA watch service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Clients   ClientsConfig   `yaml:"clients"`
	Polling   PollingConfig   `yaml:"polling"`
	ViewGuard ViewGuardConfig `yaml:"viewGuard"`
	Logging   LoggingConfig   `yaml:"logging"`
	Cache     CacheConfig     `yaml:"cache"`
}

// ServerConfig controls the gRPC listener and the HTTP side server.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	HTTPAddress     string        `yaml:"httpAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
}

// ClientsConfig groups upstream integrations.
type ClientsConfig struct {
	Dispatch DispatchClientConfig `yaml:"dispatch"`
}

// DispatchClientConfig configures access to the dispatch API.
type DispatchClientConfig struct {
	BaseURL        string        `yaml:"baseURL"`
	TimerPath      string        `yaml:"timerPath"`
	HistoryPath    string        `yaml:"historyPath"`
	OccurrencePath string        `yaml:"occurrencePath"`
	Timeout        time.Duration `yaml:"timeout"`
	UserID         string        `yaml:"userID"`
	TimeZone       string        `yaml:"timeZone"`
}

// PollingConfig holds the refresh cadences.
type PollingConfig struct {
	TimerInterval   time.Duration `yaml:"timerInterval"`
	HistoryInterval time.Duration `yaml:"historyInterval"`
	PhaseInterval   time.Duration `yaml:"phaseInterval"`
	HistoryLive     bool          `yaml:"historyLive"`
}

// ViewGuardConfig tunes scroll preservation around list refreshes.
type ViewGuardConfig struct {
	Tolerance  float64       `yaml:"tolerance"`
	// AckTimeout drops scroll checks whose render the client never acknowledged.
	AckTimeout time.Duration `yaml:"ackTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CacheConfig controls Redis-backed caching of terminal timer snapshots.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	TerminalTTL  time.Duration `yaml:"terminalTTL"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("SLAWATCH_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the schedulers cannot run with.
func (c *Config) Validate() error {
	if c.Polling.TimerInterval <= 0 {
		return fmt.Errorf("polling.timerInterval must be positive, got %s", c.Polling.TimerInterval)
	}
	if c.Polling.HistoryInterval <= 0 {
		return fmt.Errorf("polling.historyInterval must be positive, got %s", c.Polling.HistoryInterval)
	}
	if c.Polling.PhaseInterval < 0 {
		return fmt.Errorf("polling.phaseInterval must not be negative, got %s", c.Polling.PhaseInterval)
	}
	if c.ViewGuard.Tolerance < 0 {
		return fmt.Errorf("viewGuard.tolerance must not be negative, got %v", c.ViewGuard.Tolerance)
	}
	if c.Cache.Enabled && c.Cache.Addr == "" {
		return errors.New("cache.addr is required when the cache is enabled")
	}
	if tz := c.Clients.Dispatch.TimeZone; tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("clients.dispatch.timeZone: %w", err)
		}
	}
	return nil
}

// Location returns the zone used for upstream timestamps without an offset.
func (c DispatchClientConfig) Location() *time.Location {
	if c.TimeZone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.Local
	}
	return loc
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			HTTPAddress:     ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Clients: ClientsConfig{
			Dispatch: DispatchClientConfig{
				TimerPath:      "/api/ocorrencias/{id}/timer",
				HistoryPath:    "/api/historico-ocorrencias/ocorrencia/{id}",
				OccurrencePath: "/api/ocorrencias/{id}",
				Timeout:        5 * time.Second,
			},
		},
		Polling: PollingConfig{
			TimerInterval:   2 * time.Second,
			HistoryInterval: 3 * time.Second,
			PhaseInterval:   5 * time.Second,
			HistoryLive:     true,
		},
		ViewGuard: ViewGuardConfig{
			Tolerance:  10,
			AckTimeout: 2 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Cache: CacheConfig{
			Enabled:      false,
			TerminalTTL:  24 * time.Hour,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SLAWATCH_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("SLAWATCH_HTTP_ADDRESS"); v != "" {
		cfg.Server.HTTPAddress = v
	}
	if v := os.Getenv("SLAWATCH_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("SLAWATCH_DISPATCH_BASE_URL"); v != "" {
		cfg.Clients.Dispatch.BaseURL = v
	}
	if v := os.Getenv("SLAWATCH_DISPATCH_TIMER_PATH"); v != "" {
		cfg.Clients.Dispatch.TimerPath = v
	}
	if v := os.Getenv("SLAWATCH_DISPATCH_HISTORY_PATH"); v != "" {
		cfg.Clients.Dispatch.HistoryPath = v
	}
	if v := os.Getenv("SLAWATCH_DISPATCH_OCCURRENCE_PATH"); v != "" {
		cfg.Clients.Dispatch.OccurrencePath = v
	}
	if v := os.Getenv("SLAWATCH_DISPATCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Clients.Dispatch.Timeout = d
		}
	}
	if v := os.Getenv("SLAWATCH_DISPATCH_USER_ID"); v != "" {
		cfg.Clients.Dispatch.UserID = v
	}
	if v := os.Getenv("SLAWATCH_DISPATCH_TIME_ZONE"); v != "" {
		cfg.Clients.Dispatch.TimeZone = v
	}
	if v := os.Getenv("SLAWATCH_TIMER_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Polling.TimerInterval = d
		}
	}
	if v := os.Getenv("SLAWATCH_HISTORY_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Polling.HistoryInterval = d
		}
	}
	if v := os.Getenv("SLAWATCH_PHASE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Polling.PhaseInterval = d
		}
	}
	if v := os.Getenv("SLAWATCH_HISTORY_LIVE"); v != "" {
		cfg.Polling.HistoryLive = truthy(v)
	}
	if v := os.Getenv("SLAWATCH_VIEW_TOLERANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ViewGuard.Tolerance = f
		}
	}
	if v := os.Getenv("SLAWATCH_VIEW_ACK_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ViewGuard.AckTimeout = d
		}
	}
	if v := os.Getenv("SLAWATCH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SLAWATCH_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("SLAWATCH_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("SLAWATCH_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = truthy(v)
	}
	if v := os.Getenv("SLAWATCH_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("SLAWATCH_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("SLAWATCH_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("SLAWATCH_CACHE_TLS"); truthy(v) {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("SLAWATCH_CACHE_MAX_RETRIES"); v != "" {
		if retry, err := strconv.Atoi(v); err == nil {
			cfg.Cache.MaxRetries = retry
		}
	}
	if v := os.Getenv("SLAWATCH_CACHE_TERMINAL_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TerminalTTL = d
		}
	}
}

func truthy(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
