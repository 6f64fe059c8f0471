package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr      string
	AuthToken string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// StatusLogConfig selects and configures the status log backend.
type StatusLogConfig struct {
	// Backend is "sqlite" or "redis".
	Backend       string
	Path          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// SchedulerConfig holds dispatch loop settings.
type SchedulerConfig struct {
	PollInterval time.Duration
	Workers      int
}

// Config holds all runtime configuration options for the daemon.
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	StatusLog StatusLogConfig
	Scheduler SchedulerConfig

	// Mode selects the serving surface: http, mcp, or both.
	Mode          string
	WebhookURL    string
	ShutdownGrace time.Duration
}

const (
	defaultAddr          = "0.0.0.0:7071"
	defaultLogLevel      = "info"
	defaultLogFormat     = "text"
	defaultBackend       = "sqlite"
	defaultPollInterval  = time.Second
	defaultShutdownGrace = 5 * time.Second
)

// getEnvString returns the environment variable value or default
func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt returns the environment variable as int or default
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvDuration returns the environment variable as duration or default
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// Parse parses command line flags and environment variables into Config.
// Priority: CLI flags > Environment variables > .env file > defaults
func Parse() (*Config, error) {
	// Load .env file if exists (silent fail if not present)
	envFiles := []string{".env"}
	if configDir, err := os.UserConfigDir(); err == nil {
		envFiles = append(envFiles, filepath.Join(configDir, "taskgate", ".env"))
	}
	_ = godotenv.Load(envFiles...) // Ignore error - file is optional

	cfg := &Config{
		Server: ServerConfig{
			Addr:      getEnvString("TASKGATE_ADDR", defaultAddr),
			AuthToken: getEnvString("TASKGATE_AUTH_TOKEN", ""),
		},
		Log: LogConfig{
			Level:  getEnvString("TASKGATE_LOG_LEVEL", defaultLogLevel),
			Format: getEnvString("TASKGATE_LOG_FORMAT", defaultLogFormat),
		},
		StatusLog: StatusLogConfig{
			Backend:       getEnvString("TASKGATE_STATUS_LOG_BACKEND", defaultBackend),
			Path:          getEnvString("TASKGATE_STATUS_LOG_PATH", ""),
			RedisAddr:     getEnvString("TASKGATE_REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnvString("TASKGATE_REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("TASKGATE_REDIS_DB", 0),
		},
		Scheduler: SchedulerConfig{
			PollInterval: getEnvDuration("TASKGATE_POLL_INTERVAL", defaultPollInterval),
			Workers:      getEnvInt("TASKGATE_WORKERS", 0),
		},
		Mode:          getEnvString("TASKGATE_MODE", "http"),
		WebhookURL:    getEnvString("TASKGATE_WEBHOOK_URL", ""),
		ShutdownGrace: getEnvDuration("TASKGATE_SHUTDOWN_GRACE", defaultShutdownGrace),
	}

	// CLI flags override environment variables
	var addr, logLevel, logFormat, backend, logPath, mode string
	var workers int
	var pollInterval, shutdownGrace time.Duration

	flag.StringVar(&addr, "addr", "", "HTTP listen address (overrides env)")
	flag.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&logFormat, "log-format", "", "Log format (text, json)")
	flag.StringVar(&backend, "status-log", "", "Status log backend (sqlite, redis)")
	flag.StringVar(&logPath, "status-log-path", "", "Path of the sqlite status log file")
	flag.StringVar(&mode, "mode", "", "Serving mode (http, mcp, both)")
	flag.IntVar(&workers, "workers", 0, "Size of the execution worker pool (0 = unpooled)")
	flag.DurationVar(&pollInterval, "poll-interval", 0, "Interval between condition polls")
	flag.DurationVar(&shutdownGrace, "shutdown-grace", 0, "Grace period when shutting down")

	flag.Parse()

	if addr != "" {
		cfg.Server.Addr = addr
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if backend != "" {
		cfg.StatusLog.Backend = backend
	}
	if logPath != "" {
		cfg.StatusLog.Path = logPath
	}
	if mode != "" {
		cfg.Mode = mode
	}
	if workers > 0 {
		cfg.Scheduler.Workers = workers
	}
	if pollInterval > 0 {
		cfg.Scheduler.PollInterval = pollInterval
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "shutdown-grace" {
			cfg.ShutdownGrace = shutdownGrace
		}
	})

	switch cfg.StatusLog.Backend {
	case "sqlite", "redis":
	default:
		return nil, fmt.Errorf("unknown status log backend %q", cfg.StatusLog.Backend)
	}
	if cfg.StatusLog.Backend == "sqlite" && cfg.StatusLog.Path == "" {
		path, err := defaultStatusLogPath()
		if err != nil {
			return nil, fmt.Errorf("resolve default status log path: %w", err)
		}
		cfg.StatusLog.Path = path
	}
	if cfg.Scheduler.PollInterval <= 0 {
		cfg.Scheduler.PollInterval = defaultPollInterval
	}
	switch cfg.Mode {
	case "http", "mcp", "both":
	default:
		return nil, fmt.Errorf("invalid mode %q", cfg.Mode)
	}

	return cfg, nil
}

func defaultStatusLogPath() (string, error) {
	baseDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(baseDir, "taskgate", "statuslog.sqlite"), nil
}
