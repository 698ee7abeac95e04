// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/relaychat/internal/config"
)

func TestNew_LevelAndFormat(t *testing.T) {
	logger, closer, err := New(config.LogConfig{Level: "warn", Format: "text"})
	require.NoError(t, err)
	defer closer.Close()

	assert.Equal(t, log.WarnLevel, logger.GetLevel())
	assert.IsType(t, &log.TextFormatter{}, logger.Formatter)
}

func TestNew_Rejects(t *testing.T) {
	_, _, err := New(config.LogConfig{Level: "chatty"})
	assert.Error(t, err)

	_, _, err = New(config.LogConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
}

func TestNew_JSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "relaychat.log")

	logger, closer, err := New(config.LogConfig{Level: "info", Format: "json", File: path})
	require.NoError(t, err)

	logger.WithField("component", "test").Warn("malformed chunk")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "malformed chunk", entry["msg"])
	assert.Equal(t, "test", entry["component"])
	assert.Equal(t, "warning", entry["level"])
}

func TestApplyLevel(t *testing.T) {
	logger, closer, err := New(config.LogConfig{})
	require.NoError(t, err)
	defer closer.Close()
	assert.Equal(t, log.InfoLevel, logger.GetLevel())

	require.NoError(t, ApplyLevel(logger, "debug"))
	assert.Equal(t, log.DebugLevel, logger.GetLevel())

	assert.Error(t, ApplyLevel(logger, "bogus"))
	assert.Equal(t, log.DebugLevel, logger.GetLevel())
}
