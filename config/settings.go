// Package config provides application settings loaded from defaults, an
// optional YAML file, and environment variables.
//
// Settings are created via New() or Load() which handle:
// - Default value application
// - YAML file overlay
// - Environment variable parsing with validation (highest precedence)
// - Provider-specific configuration lookup

package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultProvider is used when neither the caller, the file, nor the
// environment names one.
const DefaultProvider = "gemini"

// Settings holds all application configuration.
type Settings struct {
	LLM       LLMConfig       `yaml:"llm"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Cache     CacheConfig     `yaml:"cache"`
	Search    SearchConfig    `yaml:"search"`
	Audit     AuditConfig     `yaml:"audit"`
	Log       LogConfig       `yaml:"log"`
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	MaxTokens   uint32  `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	// Timeout bounds each completion request.
	Timeout time.Duration `yaml:"timeout"`
}

// WorkspaceConfig bounds command execution.
type WorkspaceConfig struct {
	Root             string        `yaml:"root"`
	MaxCommandLength int           `yaml:"max_command_length"`
	MaxOutputBytes   int           `yaml:"max_output_bytes"`
	CommandTimeout   time.Duration `yaml:"command_timeout"`
}

// CacheConfig sizes the per-session caches.
type CacheConfig struct {
	MaxEntries    int           `yaml:"max_entries"`
	MaxEntryBytes int           `yaml:"max_entry_bytes"`
	SearchTTL     time.Duration `yaml:"search_ttl"`
}

// SearchConfig tunes strategy execution.
type SearchConfig struct {
	MaxParallel      int `yaml:"max_parallel"`
	BatchSize        int `yaml:"batch_size"`
	FeatureBatchSize int `yaml:"feature_batch_size"`
	ReadConcurrency  int `yaml:"read_concurrency"`
	MaxStrategies    int `yaml:"max_strategies"`
}

// AuditConfig controls the command audit trail.
type AuditConfig struct {
	Enabled    bool   `yaml:"enabled"`
	DBPath     string `yaml:"db_path"`
	BufferSize int    `yaml:"buffer_size"`
}

// LogConfig controls logger level and output format ("text" or "json").
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// providerInfo holds configuration for a specific LLM provider.
type providerInfo struct {
	modelEnv     string
	defaultModel string
	apiKeyEnv    string
}

// Supported providers and their configuration.
var providers = map[string]providerInfo{
	"gemini":    {"GEMINI_MODEL", "gemini-2.5-flash", "GEMINI_API_KEY"},
	"openai":    {"OPENAI_MODEL", "gpt-4o", "OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_MODEL", "claude-sonnet-4-20250514", "ANTHROPIC_API_KEY"},
	"deepseek":  {"DEEPSEEK_MODEL", "deepseek-chat", "DEEPSEEK_API_KEY"},
}

// Provider aliases map to canonical names.
var providerAliases = map[string]string{
	"claude": "anthropic",
	"google": "gemini",
	"gpt":    "openai",
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		LLM: LLMConfig{
			Provider:    DefaultProvider,
			MaxTokens:   8192,
			Temperature: 0.1,
			Timeout:     120 * time.Second,
		},
		Workspace: WorkspaceConfig{
			Root:             ".",
			MaxCommandLength: 500,
			MaxOutputBytes:   10000,
			CommandTimeout:   60 * time.Second,
		},
		Cache: CacheConfig{
			MaxEntries:    50,
			MaxEntryBytes: 10000,
			SearchTTL:     300 * time.Second,
		},
		Search: SearchConfig{
			MaxParallel:      4,
			BatchSize:        10,
			FeatureBatchSize: 15,
			ReadConcurrency:  10,
			MaxStrategies:    5,
		},
		Audit: AuditConfig{
			Enabled:    true,
			DBPath:     ".docqa/audit.db",
			BufferSize: 256,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// New creates settings for the specified provider from defaults and
// environment variables. An empty provider falls back to LLM_PROVIDER,
// then the default.
func New(provider string) (Settings, error) {
	return Load("", provider)
}

// Load layers defaults, the YAML file at path (skipped when path is empty),
// and environment variables, then selects the provider. A non-empty provider
// argument wins over every other source.
func Load(path, provider string) (Settings, error) {
	settings := Defaults()

	if path != "" {
		if err := settings.mergeFile(path); err != nil {
			return Settings{}, err
		}
	}

	if err := settings.applyEnv(); err != nil {
		return Settings{}, err
	}

	if provider != "" {
		settings.LLM.Provider = provider
		settings.LLM.Model = ""
	}
	settings.LLM.Provider = normalizeProvider(settings.LLM.Provider)

	info, err := getProviderInfo(settings.LLM.Provider)
	if err != nil {
		return Settings{}, err
	}
	if model := os.Getenv(info.modelEnv); model != "" {
		settings.LLM.Model = model
	} else if settings.LLM.Model == "" {
		settings.LLM.Model = info.defaultModel
	}

	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// MustNew creates settings for the specified provider.
// Panics if the provider is unknown or environment variables are invalid.
// Use this only when configuration errors should be fatal.
func MustNew(provider string) Settings {
	settings, err := New(provider)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// Validate rejects settings no component can run with.
func (s Settings) Validate() error {
	var errs []error
	positive := []struct {
		name  string
		value int
	}{
		{"workspace.max_command_length", s.Workspace.MaxCommandLength},
		{"workspace.max_output_bytes", s.Workspace.MaxOutputBytes},
		{"cache.max_entries", s.Cache.MaxEntries},
		{"cache.max_entry_bytes", s.Cache.MaxEntryBytes},
		{"search.max_parallel", s.Search.MaxParallel},
		{"search.batch_size", s.Search.BatchSize},
		{"search.feature_batch_size", s.Search.FeatureBatchSize},
		{"search.read_concurrency", s.Search.ReadConcurrency},
		{"search.max_strategies", s.Search.MaxStrategies},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", p.name, p.value))
		}
	}
	if strings.TrimSpace(s.Workspace.Root) == "" {
		errs = append(errs, errors.New("workspace.root must not be empty"))
	}
	if s.Workspace.CommandTimeout <= 0 {
		errs = append(errs, fmt.Errorf("workspace.command_timeout must be positive, got %s", s.Workspace.CommandTimeout))
	}
	if s.Cache.SearchTTL < 0 {
		errs = append(errs, fmt.Errorf("cache.search_ttl must not be negative, got %s", s.Cache.SearchTTL))
	}
	if s.LLM.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("llm.timeout must be positive, got %s", s.LLM.Timeout))
	}
	if s.LLM.Temperature < 0 || s.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature out of range: %v", s.LLM.Temperature))
	}
	return errors.Join(errs...)
}

func (s *Settings) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (s *Settings) applyEnv() error {
	var err error
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		s.LLM.Provider = v
	}
	if s.LLM.MaxTokens, err = getEnvUint32("LLM_MAX_TOKENS", s.LLM.MaxTokens); err != nil {
		return err
	}
	if s.LLM.Temperature, err = getEnvFloat64("LLM_TEMPERATURE", s.LLM.Temperature); err != nil {
		return err
	}
	if s.LLM.Timeout, err = getEnvDuration("DOCQA_LLM_TIMEOUT", s.LLM.Timeout); err != nil {
		return err
	}

	if v := os.Getenv("DOCQA_WORKSPACE_ROOT"); v != "" {
		s.Workspace.Root = v
	}
	if s.Workspace.MaxCommandLength, err = getEnvInt("DOCQA_MAX_COMMAND_LENGTH", s.Workspace.MaxCommandLength); err != nil {
		return err
	}
	if s.Workspace.MaxOutputBytes, err = getEnvInt("DOCQA_MAX_OUTPUT_BYTES", s.Workspace.MaxOutputBytes); err != nil {
		return err
	}
	if s.Workspace.CommandTimeout, err = getEnvDuration("DOCQA_COMMAND_TIMEOUT", s.Workspace.CommandTimeout); err != nil {
		return err
	}

	if s.Cache.MaxEntries, err = getEnvInt("DOCQA_CACHE_ENTRIES", s.Cache.MaxEntries); err != nil {
		return err
	}
	if s.Cache.MaxEntryBytes, err = getEnvInt("DOCQA_CACHE_ENTRY_BYTES", s.Cache.MaxEntryBytes); err != nil {
		return err
	}
	if s.Cache.SearchTTL, err = getEnvDuration("DOCQA_SEARCH_TTL", s.Cache.SearchTTL); err != nil {
		return err
	}

	if s.Search.MaxParallel, err = getEnvInt("DOCQA_MAX_PARALLEL", s.Search.MaxParallel); err != nil {
		return err
	}
	if s.Search.BatchSize, err = getEnvInt("DOCQA_BATCH_SIZE", s.Search.BatchSize); err != nil {
		return err
	}
	if s.Search.FeatureBatchSize, err = getEnvInt("DOCQA_FEATURE_BATCH_SIZE", s.Search.FeatureBatchSize); err != nil {
		return err
	}
	if s.Search.ReadConcurrency, err = getEnvInt("DOCQA_READ_CONCURRENCY", s.Search.ReadConcurrency); err != nil {
		return err
	}
	if s.Search.MaxStrategies, err = getEnvInt("DOCQA_MAX_STRATEGIES", s.Search.MaxStrategies); err != nil {
		return err
	}

	if s.Audit.Enabled, err = getEnvBool("DOCQA_AUDIT_ENABLED", s.Audit.Enabled); err != nil {
		return err
	}
	if v := os.Getenv("DOCQA_AUDIT_DB"); v != "" {
		s.Audit.DBPath = v
	}
	if s.Audit.BufferSize, err = getEnvInt("DOCQA_AUDIT_BUFFER", s.Audit.BufferSize); err != nil {
		return err
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		s.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		s.Log.Format = v
	}
	return nil
}

// normalizeProvider converts provider aliases to canonical names.
func normalizeProvider(provider string) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if canonical, ok := providerAliases[provider]; ok {
		return canonical
	}
	return provider
}

// getProviderInfo returns configuration for a provider.
func getProviderInfo(provider string) (providerInfo, error) {
	info, ok := providers[provider]
	if !ok {
		return providerInfo{}, fmt.Errorf("unknown provider: %q", provider)
	}
	return info, nil
}

// APIKeyFor returns the API key for a provider from environment variables.
func APIKeyFor(provider string) (string, error) {
	info, err := getProviderInfo(normalizeProvider(provider))
	if err != nil {
		return "", err
	}

	key := os.Getenv(info.apiKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", info.apiKeyEnv)
	}
	return key, nil
}

// ModelFor returns the model for a provider, checking environment first.
func ModelFor(provider string) (string, error) {
	info, err := getProviderInfo(normalizeProvider(provider))
	if err != nil {
		return "", err
	}

	if val := os.Getenv(info.modelEnv); val != "" {
		return val, nil
	}
	return info.defaultModel, nil
}

// SupportedProviders returns the list of supported provider names.
func SupportedProviders() []string {
	result := make([]string, 0, len(providers))
	for name := range providers {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// Environment variable helpers with proper error handling

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return uint32(i), nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return d, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return b, nil
}
