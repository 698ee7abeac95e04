// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the logrus logger shared by relaychat components.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/jeranaias/relaychat/internal/config"
)

// TimestampFormat adds millisecond precision to log timestamps.
const TimestampFormat = "2006-01-02T15:04:05.999Z07:00"

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds a logger from cfg. The returned closer releases the log file
// when one is configured and is always safe to call.
func New(cfg config.LogConfig) (*log.Logger, io.Closer, error) {
	logger := log.New()

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		formatter := new(log.TextFormatter)
		formatter.TimestampFormat = TimestampFormat
		formatter.FullTimestamp = true
		logger.SetFormatter(formatter)
	case "json":
		logger.SetFormatter(&log.JSONFormatter{TimestampFormat: TimestampFormat})
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	var closer io.Closer = nopCloser{}
	logger.SetOutput(os.Stderr)
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0700); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		logger.SetOutput(f)
		closer = f
	}

	logger.WithField("level", level.String()).Debug("debug logging enabled")
	return logger, closer, nil
}

// ParseLevel accepts the config level names. Empty means info.
func ParseLevel(s string) (log.Level, error) {
	if strings.TrimSpace(s) == "" {
		return log.InfoLevel, nil
	}
	level, err := log.ParseLevel(s)
	if err != nil {
		return log.InfoLevel, fmt.Errorf("cannot parse log level: %w", err)
	}
	return level, nil
}

// ApplyLevel updates logger's level from a reloaded config, leaving the level
// unchanged when s does not parse.
func ApplyLevel(logger *log.Logger, s string) error {
	level, err := ParseLevel(s)
	if err != nil {
		return err
	}
	if logger.GetLevel() != level {
		logger.SetLevel(level)
		logger.WithField("level", level.String()).Info("log level changed")
	}
	return nil
}
