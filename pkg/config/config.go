package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

const (
	envConfigPath        = "REPLYBOT_CONFIG"
	envRulesPath         = "REPLYBOT_RULES_PATH"
	envTimeZone          = "REPLYBOT_TIME_ZONE"
	envTelegramBotToken  = "TELEGRAM_BOT_TOKEN"
	envTelegramAllowFrom = "TELEGRAM_ALLOW_FROM"
)

const (
	defaultRulesPath        = "rules.yaml"
	defaultTimeZone         = "UTC"
	defaultReplyPolicy      = "random"
	defaultMaxScanMillis    = 50
	defaultMaxPatternLength = 2048
	defaultHistoryDriver    = "sqlite"
	defaultHistoryPath      = "replybot.db"
	defaultGatewayHost      = "127.0.0.1"
	defaultGatewayPort      = 18790
)

// ErrConfigNotFound is returned when no config file exists at any searched location.
var ErrConfigNotFound = errors.New("config.json not found")

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Rules    RulesConfig    `json:"rules"`
	Engine   EngineConfig   `json:"engine"`
	Channels ChannelsConfig `json:"channels"`
	History  HistoryConfig  `json:"history"`
	Gateway  GatewayConfig  `json:"gateway"`
	Logging  LoggingConfig  `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// RulesConfig locates the rule file and controls hot reload.
type RulesConfig struct {
	Path  string `json:"path"`
	Watch bool   `json:"watch"`
}

// EngineConfig tunes reply selection and rendering.
type EngineConfig struct {
	TimeZone         string  `json:"time_zone"`
	ReplyPolicy      string  `json:"reply_policy"`
	Seed             *uint64 `json:"seed,omitempty"`
	MaxScanMillis    int     `json:"max_scan_millis"`
	MaxPatternLength int     `json:"max_pattern_length"`
}

// Location loads the configured calendar time zone.
func (e EngineConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(e.TimeZone)
	if name == "" {
		return time.UTC, nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", name, err)
	}

	return loc, nil
}

// ScanBudget is the pattern scan budget as a duration.
func (e EngineConfig) ScanBudget() time.Duration {
	return time.Duration(e.MaxScanMillis) * time.Millisecond
}

// ChannelsConfig stores transport adapter settings.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

// TelegramConfig configures Telegram channel integration.
type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allow_from"`
}

// HistoryConfig selects the chat history backend. Driver is "sqlite" or "memory".
type HistoryConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path"`
}

// GatewayConfig configures HTTP gateway bind settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Addr is the host:port the HTTP API listens on.
func (g GatewayConfig) Addr() string {
	return g.Host + ":" + strconv.Itoa(g.Port)
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.withDefaults()
	return cfg
}

// LoadDotEnv loads .env style files into the process environment. Missing files are
// ignored and variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env file %s: %w", path, err)
		}
	}

	return nil
}

// LoadConfig resolves config.json, unmarshals it, and applies environment overrides.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	return LoadConfigFile(configPath)
}

// LoadConfigOrDefault is LoadConfig that falls back to defaults plus environment
// overrides when no config file can be found.
func LoadConfigOrDefault() (*Config, error) {
	cfg, err := LoadConfig()
	if err == nil || !errors.Is(err, ErrConfigNotFound) {
		return cfg, err
	}

	cfg = &Config{}
	applyEnvOverrides(cfg)
	cfg.withDefaults()
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadConfigFile reads one config file, then applies environment overrides and defaults.
func LoadConfigFile(configPath string) (*Config, error) {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.Rules.Path = relativeTo(configPath, cfg.Rules.Path)
	if cfg.History.Driver != "memory" {
		cfg.History.Path = relativeTo(configPath, cfg.History.Path)
	}

	applyEnvOverrides(&cfg)
	cfg.withDefaults()
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings that would only fail later at startup.
func (c *Config) Validate() error {
	if _, err := c.Engine.Location(); err != nil {
		return fmt.Errorf("engine.time_zone: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(c.Engine.ReplyPolicy)) {
	case "random", "first":
	default:
		return fmt.Errorf("engine.reply_policy must be random or first, got %q", c.Engine.ReplyPolicy)
	}

	switch c.History.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("history.driver must be sqlite or memory, got %q", c.History.Driver)
	}

	if c.Channels.Telegram.Enabled && strings.TrimSpace(c.Channels.Telegram.Token) == "" {
		return errors.New("channels.telegram.token is required when telegram is enabled")
	}

	return nil
}

func (c *Config) withDefaults() {
	if strings.TrimSpace(c.Rules.Path) == "" {
		c.Rules.Path = defaultRulesPath
	}
	if strings.TrimSpace(c.Engine.TimeZone) == "" {
		c.Engine.TimeZone = defaultTimeZone
	}
	if strings.TrimSpace(c.Engine.ReplyPolicy) == "" {
		c.Engine.ReplyPolicy = defaultReplyPolicy
	}
	if c.Engine.MaxScanMillis <= 0 {
		c.Engine.MaxScanMillis = defaultMaxScanMillis
	}
	if c.Engine.MaxPatternLength <= 0 {
		c.Engine.MaxPatternLength = defaultMaxPatternLength
	}
	if strings.TrimSpace(c.History.Driver) == "" {
		c.History.Driver = defaultHistoryDriver
	}
	if c.History.Driver == "sqlite" && strings.TrimSpace(c.History.Path) == "" {
		c.History.Path = defaultHistoryPath
	}
	if strings.TrimSpace(c.Gateway.Host) == "" {
		c.Gateway.Host = defaultGatewayHost
	}
	if c.Gateway.Port <= 0 {
		c.Gateway.Port = defaultGatewayPort
	}
}

// expandPaths resolves a leading ~ in file paths.
func (c *Config) expandPaths() error {
	rulesPath, err := expandHome(c.Rules.Path)
	if err != nil {
		return fmt.Errorf("rules.path: %w", err)
	}
	c.Rules.Path = rulesPath

	historyPath, err := expandHome(c.History.Path)
	if err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	c.History.Path = historyPath

	return nil
}

// relativeTo anchors a relative path at the directory holding configPath. Empty and
// home-relative paths are returned unchanged.
func relativeTo(configPath string, path string) string {
	if path == "" || filepath.IsAbs(path) || path == "~" || strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		return path
	}

	return filepath.Join(filepath.Dir(configPath), path)
}

func expandHome(path string) (string, error) {
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return home, nil
	}

	prefix := "~" + string(filepath.Separator)
	if strings.HasPrefix(path, prefix) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, prefix)), nil
	}

	return path, nil
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if token := strings.TrimSpace(os.Getenv(envTelegramBotToken)); token != "" {
		cfg.Channels.Telegram.Token = token
	}

	if rawAllowFrom := strings.TrimSpace(os.Getenv(envTelegramAllowFrom)); rawAllowFrom != "" {
		cfg.Channels.Telegram.AllowFrom = parseCSV(rawAllowFrom)
	}

	if path := strings.TrimSpace(os.Getenv(envRulesPath)); path != "" {
		cfg.Rules.Path = path
	}

	if zone := strings.TrimSpace(os.Getenv(envTimeZone)); zone != "" {
		cfg.Engine.TimeZone = zone
	}
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is REPLYBOT_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w (checked %s and %s)", ErrConfigNotFound, candidates[0], candidates[1])
}
