// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/relaychat/internal/cloud"
	"github.com/jeranaias/relaychat/internal/model"
	"github.com/jeranaias/relaychat/internal/storage"
	"github.com/jeranaias/relaychat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete relaychat configuration.
type Config struct {
	Version      string `toml:"version" json:"version"`
	DefaultModel string `toml:"default_model" json:"default_model"`

	Provider ProviderConfig `toml:"provider" json:"provider"`
	Chat     ChatConfig     `toml:"chat" json:"chat"`
	Storage  StorageConfig  `toml:"storage" json:"storage"`
	Auth     AuthConfig     `toml:"auth" json:"auth"`
	Log      LogConfig      `toml:"log" json:"log"`
	Metrics  MetricsConfig  `toml:"metrics" json:"metrics"`
	UI       UIConfig       `toml:"ui" json:"ui"`
}

// ProviderConfig configures the completion provider client.
type ProviderConfig struct {
	// Backend is "http" (built-in SSE client) or "openai" (openai-go SDK).
	Backend string `toml:"backend" json:"backend"`
	BaseURL string `toml:"base_url" json:"base_url"`
	APIKey  string `toml:"api_key" json:"api_key,omitempty"`
	// MaxRetries applies before the first byte of a stream. Zero disables retries.
	MaxRetries        int     `toml:"max_retries" json:"max_retries"`
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `toml:"burst" json:"burst"`
}

// ChatConfig holds conversation behaviour.
type ChatConfig struct {
	// HistoryWindow is how many prior messages are sent with each request.
	HistoryWindow int `toml:"history_window" json:"history_window"`
}

// StorageConfig selects the durable key-value backend.
type StorageConfig struct {
	// Backend is one of "file", "sqlite", "redis" or "memory".
	Backend     string `toml:"backend" json:"backend"`
	Dir         string `toml:"dir" json:"dir"`
	SQLitePath  string `toml:"sqlite_path" json:"sqlite_path,omitempty"`
	RedisURL    string `toml:"redis_url" json:"redis_url,omitempty"`
	RedisPrefix string `toml:"redis_prefix" json:"redis_prefix,omitempty"`
}

// AuthConfig controls the authentication gate in front of the chat surface.
type AuthConfig struct {
	Required bool `toml:"required" json:"required"`
	// Source is "env" or "backend".
	Source string `toml:"source" json:"source"`
}

// LogConfig controls logger construction.
type LogConfig struct {
	// Level is "debug", "info", "warn" or "error".
	Level string `toml:"level" json:"level"`
	// Format is "text" or "json".
	Format string `toml:"format" json:"format"`
	// File, when set, receives log output instead of stderr.
	File string `toml:"file" json:"file,omitempty"`
}

// MetricsConfig controls the optional prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables the endpoint.
	Addr string `toml:"addr" json:"addr,omitempty"`
}

// UIConfig contains terminal rendering preferences.
type UIConfig struct {
	// Markdown renders completed assistant replies through glamour.
	Markdown bool `toml:"markdown" json:"markdown"`
	// Theme is "dark", "light" or "auto".
	Theme string `toml:"theme" json:"theme"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// CurrentVersion is written into new config files.
const CurrentVersion = "1"

// Default returns a Config with default values. Storage.Dir is left empty
// and resolved against ConfigDir by SetDefaults.
func Default() *Config {
	return &Config{
		Version:      CurrentVersion,
		DefaultModel: model.DefaultModelID,

		Provider: ProviderConfig{
			Backend:           ProviderHTTP,
			BaseURL:           cloud.DefaultBaseURL,
			MaxRetries:        cloud.DefaultMaxRetries,
			RequestsPerSecond: 2,
			Burst:             4,
		},

		Chat: ChatConfig{
			HistoryWindow: 10,
		},

		Storage: StorageConfig{
			Backend:     storage.KindFile,
			RedisPrefix: storage.DefaultRedisPrefix,
		},

		Auth: AuthConfig{
			Required: false,
			Source:   "env",
		},

		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},

		UI: UIConfig{
			Markdown: true,
			Theme:    "auto",
		},
	}
}

// Provider backends.
const (
	ProviderHTTP   = "http"
	ProviderOpenAI = "openai"
)

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the relaychat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".relaychat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// DefaultStateDir is where the file and sqlite backends keep data.
func DefaultStateDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "state"), nil
}

// ensureSecurePermissions tightens a config file to 0600 since it may hold
// an API key.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads ~/.relaychat/config.toml, falling back to config.json and then
// to defaults. Environment overrides are applied last.
//
// When a file exists but cannot be decoded, Load returns the defaults together
// with the decode error so callers can warn and carry on.
func Load() (*Config, error) {
	var loadErr error

	for _, locate := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := locate()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		cfg, err := LoadFromPath(path)
		if err == nil {
			return cfg, nil
		}
		if loadErr == nil {
			loadErr = err
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, loadErr
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		fmt.Fprintf(os.Stderr, "Warning: unknown keys in %s: %s\n", path, strings.Join(keys, ", "))
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file with env overrides,
// defaults and validation applied. Files ending in .json are read as JSON,
// everything else as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SetDefaults fills values that an older or partial file left empty.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Version == "" {
		c.Version = d.Version
	}
	if c.DefaultModel == "" {
		c.DefaultModel = d.DefaultModel
	}

	if c.Provider.Backend == "" {
		c.Provider.Backend = d.Provider.Backend
	}
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = d.Provider.BaseURL
	}
	c.Provider.BaseURL = strings.TrimRight(c.Provider.BaseURL, "/")
	if c.Provider.RequestsPerSecond == 0 {
		c.Provider.RequestsPerSecond = d.Provider.RequestsPerSecond
	}
	if c.Provider.Burst == 0 {
		c.Provider.Burst = d.Provider.Burst
	}

	if c.Chat.HistoryWindow == 0 {
		c.Chat.HistoryWindow = d.Chat.HistoryWindow
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = d.Storage.Backend
	}
	if c.Storage.Dir == "" {
		if dir, err := DefaultStateDir(); err == nil {
			c.Storage.Dir = dir
		}
	}
	if c.Storage.RedisPrefix == "" {
		c.Storage.RedisPrefix = d.Storage.RedisPrefix
	}

	if c.Auth.Source == "" {
		c.Auth.Source = d.Auth.Source
	}

	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}

	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes cfg to path, as JSON for a .json path and TOML otherwise.
func Save(cfg *Config, path string) error {
	if strings.HasSuffix(path, ".json") {
		return SaveJSON(cfg, path)
	}
	return SaveTOML(cfg, path)
}

const tomlHeader = `# relaychat configuration file
# API keys may also be supplied with RELAYCHAT_API_KEY or SILICONCLOUD_API_KEY.

`

// SaveTOML writes cfg as TOML with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString(tomlHeader)
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.WriteFileAtomic(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes cfg as indented JSON with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.WriteFileAtomic(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

var (
	validProviders = []string{ProviderHTTP, ProviderOpenAI}
	validStorage   = []string{storage.KindFile, storage.KindSQLite, storage.KindRedis, storage.KindMemory}
	validAuth      = []string{"env", "backend"}
	validLevels    = []string{"debug", "info", "warn", "warning", "error"}
	validFormats   = []string{"text", "json"}
	validThemes    = []string{"dark", "light", "auto"}
)

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// Validate checks the configuration and returns ValidateErrors listing every
// problem found, or nil.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(c.DefaultModel) == "" {
		add("default_model", "must not be empty")
	}

	if !oneOf(c.Provider.Backend, validProviders) {
		add("provider.backend", "must be one of %s, got %q", strings.Join(validProviders, ", "), c.Provider.Backend)
	}
	if u, err := url.Parse(c.Provider.BaseURL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		add("provider.base_url", "must be an absolute http(s) URL, got %q", c.Provider.BaseURL)
	}
	if c.Provider.MaxRetries < 0 || c.Provider.MaxRetries > 10 {
		add("provider.max_retries", "must be between 0 and 10, got %d", c.Provider.MaxRetries)
	}
	if c.Provider.RequestsPerSecond < 0 {
		add("provider.requests_per_second", "must not be negative")
	}
	if c.Provider.Burst < 0 {
		add("provider.burst", "must not be negative")
	}

	if c.Chat.HistoryWindow < 1 || c.Chat.HistoryWindow > 200 {
		add("chat.history_window", "must be between 1 and 200, got %d", c.Chat.HistoryWindow)
	}

	if !oneOf(c.Storage.Backend, validStorage) {
		add("storage.backend", "must be one of %s, got %q", strings.Join(validStorage, ", "), c.Storage.Backend)
	}
	if c.Storage.Backend == storage.KindRedis && c.Storage.RedisURL == "" {
		add("storage.redis_url", "required when storage.backend is redis")
	}
	if (c.Storage.Backend == storage.KindFile || c.Storage.Backend == storage.KindSQLite) &&
		c.Storage.Dir == "" && c.Storage.SQLitePath == "" {
		add("storage.dir", "required for the %s backend", c.Storage.Backend)
	}

	if !oneOf(c.Auth.Source, validAuth) {
		add("auth.source", "must be one of %s, got %q", strings.Join(validAuth, ", "), c.Auth.Source)
	}

	if !oneOf(strings.ToLower(c.Log.Level), validLevels) {
		add("log.level", "must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	if !oneOf(c.Log.Format, validFormats) {
		add("log.format", "must be text or json, got %q", c.Log.Format)
	}

	if !oneOf(c.UI.Theme, validThemes) {
		add("ui.theme", "must be one of %s, got %q", strings.Join(validThemes, ", "), c.UI.Theme)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
//
//   - RELAYCHAT_MODEL: overrides default_model
//   - RELAYCHAT_API_KEY: overrides provider.api_key
//   - SILICONCLOUD_API_KEY: provider.api_key when RELAYCHAT_API_KEY is unset
//   - RELAYCHAT_BASE_URL: overrides provider.base_url
//   - RELAYCHAT_PROVIDER: overrides provider.backend
//   - RELAYCHAT_STORAGE: overrides storage.backend
//   - RELAYCHAT_REDIS_URL: overrides storage.redis_url
//   - RELAYCHAT_LOG_LEVEL: overrides log.level
//   - RELAYCHAT_METRICS_ADDR: overrides metrics.addr
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("RELAYCHAT_MODEL"); v != "" {
		c.DefaultModel = v
	}

	if v := os.Getenv("RELAYCHAT_API_KEY"); v != "" {
		c.Provider.APIKey = v
	} else if v := os.Getenv("SILICONCLOUD_API_KEY"); v != "" {
		c.Provider.APIKey = v
	}

	if v := os.Getenv("RELAYCHAT_BASE_URL"); v != "" {
		c.Provider.BaseURL = v
	}
	if v := os.Getenv("RELAYCHAT_PROVIDER"); v != "" {
		c.Provider.Backend = v
	}
	if v := os.Getenv("RELAYCHAT_STORAGE"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("RELAYCHAT_REDIS_URL"); v != "" {
		c.Storage.RedisURL = v
	}
	if v := os.Getenv("RELAYCHAT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("RELAYCHAT_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// lookup walks cfg by toml tag names, e.g. "provider.base_url".
func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if tagName(t.Field(i)) == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func tagName(f reflect.StructField) string {
	tag := f.Tag.Get("toml")
	if idx := strings.IndexByte(tag, ','); idx >= 0 {
		tag = tag[:idx]
	}
	return tag
}

// Get retrieves a value using dot notation (e.g. "chat.history_window").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set assigns a value using dot notation. String values are converted to the
// field's type.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if field.Kind() == reflect.Struct {
		return fmt.Errorf("cannot set section %s", key)
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func setFieldValue(field reflect.Value, value interface{}) error {
	if s, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(s)
			return nil
		case reflect.Int, reflect.Int64:
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(n)
			return nil
		case reflect.Float64:
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(f)
			return nil
		case reflect.Bool:
			b, err := strconv.ParseBool(s)
			if err != nil {
				return fmt.Errorf("invalid boolean value: %v", err)
			}
			field.SetBool(b)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) && val.Kind() != reflect.String {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// Keys returns every settable key in dot notation, sorted.
func Keys() []string {
	var keys []string
	var walk func(t reflect.Type, prefix string)
	walk = func(t reflect.Type, prefix string) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name := prefix + tagName(f)
			if f.Type.Kind() == reflect.Struct {
				walk(f.Type, name+".")
				continue
			}
			keys = append(keys, name)
		}
	}
	walk(reflect.TypeOf(Config{}), "")
	sort.Strings(keys)
	return keys
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Clone returns a copy of the configuration. Config holds no reference types.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// Redacted returns a copy with the API key masked for display.
func (c *Config) Redacted() *Config {
	cp := c.Clone()
	if cp != nil && cp.Provider.APIKey != "" {
		cp.Provider.APIKey = maskKey(cp.Provider.APIKey)
	}
	return cp
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// String renders the redacted configuration as TOML.
func (c *Config) String() string {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c.Redacted()); err != nil {
		return fmt.Sprintf("<config: %v>", err)
	}
	return buf.String()
}

// StorageOptions maps the storage section onto storage.Options.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Kind:        c.Storage.Backend,
		Dir:         c.Storage.Dir,
		SQLitePath:  c.Storage.SQLitePath,
		RedisURL:    c.Storage.RedisURL,
		RedisPrefix: c.Storage.RedisPrefix,
	}
}

// CloudOptions maps the provider section onto cloud.Options. A configured
// MaxRetries of zero disables retries.
func (c *Config) CloudOptions() cloud.Options {
	retries := c.Provider.MaxRetries
	if retries == 0 {
		retries = -1
	}
	return cloud.Options{
		BaseURL:           c.Provider.BaseURL,
		APIKey:            c.Provider.APIKey,
		MaxRetries:        retries,
		RequestsPerSecond: c.Provider.RequestsPerSecond,
		Burst:             c.Provider.Burst,
	}
}
