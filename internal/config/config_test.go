// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/relaychat/internal/model"
	"github.com/jeranaias/relaychat/internal/storage"
)

// isolate points HOME at a temp dir and clears every override variable.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, v := range []string{
		"RELAYCHAT_MODEL", "RELAYCHAT_API_KEY", "SILICONCLOUD_API_KEY",
		"RELAYCHAT_BASE_URL", "RELAYCHAT_PROVIDER", "RELAYCHAT_STORAGE",
		"RELAYCHAT_REDIS_URL", "RELAYCHAT_LOG_LEVEL", "RELAYCHAT_METRICS_ADDR",
	} {
		t.Setenv(v, "")
	}
	return home
}

// =============================================================================
// DEFAULTS AND LOADING
// =============================================================================

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	home := isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, model.DefaultModelID, cfg.DefaultModel)
	assert.Equal(t, "https://api.siliconflow.cn/v1", cfg.Provider.BaseURL)
	assert.Equal(t, ProviderHTTP, cfg.Provider.Backend)
	assert.Equal(t, 3, cfg.Provider.MaxRetries)
	assert.Equal(t, 2.0, cfg.Provider.RequestsPerSecond)
	assert.Equal(t, 4, cfg.Provider.Burst)
	assert.Equal(t, 10, cfg.Chat.HistoryWindow)
	assert.Equal(t, storage.KindFile, cfg.Storage.Backend)
	assert.Equal(t, filepath.Join(home, ".relaychat", "state"), cfg.Storage.Dir)
	assert.False(t, cfg.Auth.Required)
	assert.Empty(t, cfg.Metrics.Addr)
}

func TestLoad_TOMLBeatsJSON(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".relaychat")
	require.NoError(t, os.MkdirAll(dir, 0700))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(`
default_model = "Qwen/Qwen2.5-7B-Instruct"

[chat]
history_window = 6
`), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"),
		[]byte(`{"default_model": "from-json"}`), 0600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "Qwen/Qwen2.5-7B-Instruct", cfg.DefaultModel)
	assert.Equal(t, 6, cfg.Chat.HistoryWindow)
	// Untouched sections keep defaults.
	assert.Equal(t, 4, cfg.Provider.Burst)
}

func TestLoad_JSONFallback(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".relaychat")
	require.NoError(t, os.MkdirAll(dir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"),
		[]byte(`{"storage": {"backend": "sqlite"}}`), 0600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, storage.KindSQLite, cfg.Storage.Backend)
}

func TestLoad_BrokenFileFallsBackWithError(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".relaychat")
	require.NoError(t, os.MkdirAll(dir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("not = [valid"), 0600))

	cfg, err := Load()
	require.Error(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, model.DefaultModelID, cfg.DefaultModel)
}

func TestLoadFromPath_FixesPermissions(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`default_model = "m"`), 0644))

	_, err := LoadFromPath(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoadFromPath_InvalidValues(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[provider]
backend = "grpc"

[chat]
history_window = -2
`), 0600))

	_, err := LoadFromPath(path)
	require.Error(t, err)

	var verrs ValidateErrors
	require.ErrorAs(t, err, &verrs)
	fields := make([]string, len(verrs))
	for i, e := range verrs {
		fields[i] = e.Field
	}
	assert.Contains(t, fields, "provider.backend")
	assert.Contains(t, fields, "chat.history_window")
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

func TestApplyEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("RELAYCHAT_MODEL", "env-model")
	t.Setenv("SILICONCLOUD_API_KEY", "sk-silicon")
	t.Setenv("RELAYCHAT_STORAGE", "memory")
	t.Setenv("RELAYCHAT_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "env-model", cfg.DefaultModel)
	assert.Equal(t, "sk-silicon", cfg.Provider.APIKey)
	assert.Equal(t, storage.KindMemory, cfg.Storage.Backend)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestApplyEnvOverrides_RelaychatKeyWins(t *testing.T) {
	isolate(t)
	t.Setenv("SILICONCLOUD_API_KEY", "sk-silicon")
	t.Setenv("RELAYCHAT_API_KEY", "sk-relay")

	cfg := Default()
	cfg.ApplyEnvOverrides()
	assert.Equal(t, "sk-relay", cfg.Provider.APIKey)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestValidate(t *testing.T) {
	isolate(t)

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty model", func(c *Config) { c.DefaultModel = " " }, "default_model"},
		{"relative url", func(c *Config) { c.Provider.BaseURL = "/v1" }, "provider.base_url"},
		{"ftp url", func(c *Config) { c.Provider.BaseURL = "ftp://host/v1" }, "provider.base_url"},
		{"too many retries", func(c *Config) { c.Provider.MaxRetries = 11 }, "provider.max_retries"},
		{"zero window", func(c *Config) { c.Chat.HistoryWindow = 0 }, "chat.history_window"},
		{"unknown storage", func(c *Config) { c.Storage.Backend = "s3" }, "storage.backend"},
		{"redis without url", func(c *Config) { c.Storage.Backend = "redis" }, "storage.redis_url"},
		{"bad auth source", func(c *Config) { c.Auth.Source = "ldap" }, "auth.source"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad theme", func(c *Config) { c.UI.Theme = "neon" }, "ui.theme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.SetDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			var verrs ValidateErrors
			require.ErrorAs(t, err, &verrs)
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}
}

func TestValidate_DefaultsAreValid(t *testing.T) {
	isolate(t)
	cfg := Default()
	cfg.SetDefaults()
	assert.NoError(t, cfg.Validate())
}

// =============================================================================
// SAVE
// =============================================================================

func TestSaveTOML_RoundTrip(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.SetDefaults()
	cfg.DefaultModel = "THUDM/glm-4-9b-chat"
	cfg.Provider.APIKey = "sk-secret-key"
	cfg.Metrics.Addr = "127.0.0.1:9464"
	require.NoError(t, SaveTOML(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestSaveJSON_RoundTrip(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := Default()
	cfg.SetDefaults()
	cfg.Chat.HistoryWindow = 20
	require.NoError(t, SaveJSON(cfg, path))

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, 20, loaded.Chat.HistoryWindow)
}

func TestSave_PicksFormatByExtension(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	cfg := Default()
	cfg.SetDefaults()
	cfg.Chat.HistoryWindow = 12

	jsonPath := filepath.Join(dir, "config.json")
	require.NoError(t, Save(cfg, jsonPath))
	raw, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.True(t, json.Valid(raw), "json path should hold JSON")

	tomlPath := filepath.Join(dir, "config.toml")
	require.NoError(t, Save(cfg, tomlPath))
	raw, err = os.ReadFile(tomlPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "# relaychat configuration file"))

	for _, path := range []string{jsonPath, tomlPath} {
		loaded, err := LoadFromPath(path)
		require.NoError(t, err)
		assert.Equal(t, 12, loaded.Chat.HistoryWindow, path)
	}
}

// =============================================================================
// GET/SET
// =============================================================================

func TestGetSet(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Set("chat.history_window", "4"))
	assert.Equal(t, 4, cfg.Chat.HistoryWindow)

	require.NoError(t, cfg.Set("ui.markdown", "false"))
	assert.False(t, cfg.UI.Markdown)

	require.NoError(t, cfg.Set("provider.requests_per_second", "0.5"))
	assert.Equal(t, 0.5, cfg.Provider.RequestsPerSecond)

	require.NoError(t, cfg.Set("default_model", "m"))
	v, err := cfg.Get("default_model")
	require.NoError(t, err)
	assert.Equal(t, "m", v)

	assert.Error(t, cfg.Set("chat.history_window", "many"))
	assert.Error(t, cfg.Set("ui.markdown", "sometimes"))
	assert.Error(t, cfg.Set("provider", "x"))
	assert.Error(t, cfg.Set("nope.key", "x"))
	_, err = cfg.Get("")
	assert.Error(t, err)
	_, err = cfg.Get("default_model.more")
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	keys := Keys()
	assert.Contains(t, keys, "default_model")
	assert.Contains(t, keys, "provider.api_key")
	assert.Contains(t, keys, "storage.redis_prefix")
	assert.NotContains(t, keys, "provider")

	cfg := Default()
	for _, k := range keys {
		_, err := cfg.Get(k)
		assert.NoError(t, err, k)
	}
}

func TestString_RedactsKey(t *testing.T) {
	cfg := Default()
	cfg.Provider.APIKey = "sk-abcdefghijklmnop"

	out := cfg.String()
	assert.NotContains(t, out, "sk-abcdefghijklmnop")
	assert.Contains(t, out, "sk-a...mnop")
	assert.Equal(t, "sk-abcdefghijklmnop", cfg.Provider.APIKey)
}

func TestCloudOptions_ZeroRetriesDisables(t *testing.T) {
	cfg := Default()
	cfg.Provider.MaxRetries = 0
	assert.Equal(t, -1, cfg.CloudOptions().MaxRetries)

	cfg.Provider.MaxRetries = 2
	assert.Equal(t, 2, cfg.CloudOptions().MaxRetries)
}

// =============================================================================
// WATCH
// =============================================================================

func TestWatch_ReloadsOnWrite(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.SetDefaults()
	require.NoError(t, SaveTOML(cfg, path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	require.NoError(t, Watch(ctx, path, func(c *Config, err error) {
		if err == nil {
			reloaded <- c
		}
	}))

	cfg.DefaultModel = "Qwen/Qwen2.5-7B-Instruct"
	require.NoError(t, SaveTOML(cfg, path))

	select {
	case c := <-reloaded:
		assert.Equal(t, "Qwen/Qwen2.5-7B-Instruct", c.DefaultModel)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
}
