package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrUsage marks errors caused by malformed startup arguments.
var ErrUsage = errors.New("usage error")

// Launchers
const (
	LauncherGoroutine = "goroutine"
	LauncherProcess   = "process"
	LauncherDocker    = "docker"
)

// Transports
const (
	TransportLocal = "local"
	TransportHTTP  = "http"
	TransportRedis = "redis"
)

// Timeout modes accepted by ParseTimeout besides a plain duration.
const (
	TimeoutNone = "none"
	TimeoutAuto = "auto"
)

// WalkerConfig is shared by value with every walker and the controller.
type WalkerConfig struct {
	// Absolute position beyond which a walker has left its domain
	DomainBound int `yaml:"domain_bound"`

	// Maximum number of steps before a walker is forced to stop
	StepBudget int `yaml:"step_budget"`
}

type Config struct {
	Walker WalkerConfig `yaml:"walker"`

	// Total units in the pool, controller included (walkers = PoolSize - 1)
	PoolSize int `yaml:"pool_size"`

	// How walkers are started: goroutine, process or docker
	Launcher string `yaml:"launcher"`

	// Completion channel: local, http or redis
	Transport string `yaml:"transport"`

	// Listen address of the controller's HTTP signal endpoint
	SignalAddr string `yaml:"signal_addr"`

	RedisAddr string `yaml:"redis_addr"`

	// "none", "auto" or a Go duration
	Timeout string `yaml:"timeout"`

	// Run seed; 0 means derive one from the clock
	Seed uint64 `yaml:"seed"`

	// Walker binary used by the process launcher
	WalkerBin string `yaml:"walker_bin"`

	// Image used by the docker launcher
	WalkerImage string `yaml:"walker_image"`

	// Optional standalone /metrics listener
	MetricsAddr string `yaml:"metrics_addr"`
}

// Walkers returns the number of walker units in the pool.
func (c *Config) Walkers() int {
	if c.PoolSize < 1 {
		return 0
	}
	return c.PoolSize - 1
}

// LoadConfig reads configuration from environment variables with sensible defaults
func LoadConfig() *Config {
	return &Config{
		PoolSize:    getEnvAsInt("RANDWALK_POOL_SIZE", 4),
		Launcher:    getEnv("RANDWALK_LAUNCHER", LauncherGoroutine),
		Transport:   getEnv("RANDWALK_TRANSPORT", TransportLocal),
		SignalAddr:  getEnv("RANDWALK_SIGNAL_ADDR", "127.0.0.1:0"),
		RedisAddr:   getEnv("RANDWALK_REDIS_ADDR", "localhost:6379"),
		Timeout:     getEnv("RANDWALK_TIMEOUT", TimeoutNone),
		Seed:        getEnvAsUint("RANDWALK_SEED", 0),
		WalkerBin:   getEnv("RANDWALK_WALKER_BIN", ""),
		WalkerImage: getEnv("RANDWALK_WALKER_IMAGE", "random-walk-walker:latest"),
		MetricsAddr: getEnv("RANDWALK_METRICS_ADDR", ""),
	}
}

// LoadFile overlays the YAML file at path onto c. Keys missing from the file
// keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// Validate checks the pool shape and that the launcher can reach the transport.
func (c *Config) Validate() error {
	if c.PoolSize < 1 {
		return fmt.Errorf("pool size must be at least 1, got %d", c.PoolSize)
	}
	if c.Walker.DomainBound < 0 || c.Walker.StepBudget < 0 {
		return fmt.Errorf("%w: bounds must be non-negative", ErrUsage)
	}

	switch c.Transport {
	case TransportLocal, TransportHTTP, TransportRedis:
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}

	switch c.Launcher {
	case LauncherGoroutine:
	case LauncherProcess, LauncherDocker:
		// Separate processes cannot share a Go channel.
		if c.Transport == TransportLocal {
			return fmt.Errorf("launcher %q needs the http or redis transport", c.Launcher)
		}
	default:
		return fmt.Errorf("unknown launcher %q", c.Launcher)
	}

	if _, _, err := ParseTimeout(c.Timeout); err != nil {
		return err
	}
	return nil
}

// ParseBounds turns the two positional arguments into a WalkerConfig.
func ParseBounds(args []string) (WalkerConfig, error) {
	if len(args) != 2 {
		return WalkerConfig{}, fmt.Errorf("%w: expected <domain_bound> <step_budget>, got %d argument(s)", ErrUsage, len(args))
	}

	bound, err := parseNonNegative("domain_bound", args[0])
	if err != nil {
		return WalkerConfig{}, err
	}
	budget, err := parseNonNegative("step_budget", args[1])
	if err != nil {
		return WalkerConfig{}, err
	}

	return WalkerConfig{DomainBound: bound, StepBudget: budget}, nil
}

// ParseTimeout interprets a timeout setting. auto reports whether the caller
// should derive the timeout from the expected walk length.
func ParseTimeout(val string) (d time.Duration, auto bool, err error) {
	switch strings.TrimSpace(strings.ToLower(val)) {
	case "", TimeoutNone, "0":
		return 0, false, nil
	case TimeoutAuto:
		return 0, true, nil
	}

	d, err = time.ParseDuration(val)
	if err != nil {
		return 0, false, fmt.Errorf("invalid timeout %q: %w", val, err)
	}
	if d < 0 {
		return 0, false, fmt.Errorf("invalid timeout %q: must not be negative", val)
	}
	return d, false, nil
}

func parseNonNegative(name, val string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", ErrUsage, name, val)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative, got %d", ErrUsage, name, n)
	}
	return n, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvAsUint(key string, defaultVal uint64) uint64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseUint(val, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultVal
}
