// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/jeranaias/relaychat/internal/auth"
	"github.com/jeranaias/relaychat/internal/cloud"
	"github.com/jeranaias/relaychat/internal/config"
	"github.com/jeranaias/relaychat/internal/errs"
	"github.com/jeranaias/relaychat/internal/logging"
	"github.com/jeranaias/relaychat/internal/model"
	"github.com/jeranaias/relaychat/internal/session"
	"github.com/jeranaias/relaychat/internal/storage"
	"github.com/jeranaias/relaychat/internal/stream"
	"github.com/jeranaias/relaychat/internal/telemetry"
)

// =============================================================================
// APPLICATION WIRING
// =============================================================================

// app holds everything a command needs once configuration is loaded.
type app struct {
	opts *rootOptions

	cfg        *config.Config
	configPath string
	log        *log.Logger

	backend   storage.Backend
	store     *session.Store
	persister *session.Persister
	metrics   *telemetry.Metrics
	gate      auth.Gate

	out    io.Writer
	errOut io.Writer

	closers []io.Closer
}

// loadConfig applies --config and the flag overrides.
func loadConfig(opts *rootOptions) (*config.Config, string, error) {
	var (
		cfg  *config.Config
		path = opts.configPath
		err  error
	)
	if path != "" {
		cfg, err = config.LoadFromPath(path)
		if err != nil {
			return nil, "", err
		}
	} else {
		cfg, err = config.Load()
		if cfg == nil {
			return nil, "", err
		}
		if err != nil {
			fmt.Fprintf(opts.errOut, "%s %v (using defaults)\n", WarningStyle.Render("[Warning]"), err)
		}
		path, _ = config.ConfigPathTOML()
	}

	if opts.ephemeral {
		cfg.Storage.Backend = storage.KindMemory
	}
	if opts.metricsAddr != "" {
		cfg.Metrics.Addr = opts.metricsAddr
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid config: %w", err)
	}
	return cfg, path, nil
}

// newApp loads configuration, opens the storage backend and the session
// store. Callers must call close.
func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, path, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	logger, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	if cfg.Log.File == "" {
		logger.SetOutput(opts.errOut)
	}

	a := &app{
		opts:       opts,
		cfg:        cfg,
		configPath: path,
		log:        logger,
		metrics:    telemetry.New(),
		out:        opts.out,
		errOut:     opts.errOut,
		closers:    []io.Closer{logCloser},
	}

	a.backend, err = storage.Open(cfg.StorageOptions())
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Backend, err)
	}
	a.closers = append(a.closers, a.backend)

	a.gate, err = auth.FromSource(cfg.Auth.Required, cfg.Auth.Source, a.backend, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	if _, known := model.LookupModel(cfg.DefaultModel); !known {
		logger.WithField("model", cfg.DefaultModel).Warn("Default model is not in the catalog")
	}

	port := storage.NewPort(a.backend, logger)
	a.store, a.persister, err = session.Open(ctx, port, session.Options{
		DefaultModel: cfg.DefaultModel,
		Logger:       logger,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("load conversations: %w", err)
	}
	a.persister.SetFailureCounter(a.metrics.PersistFailures)
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && a.log != nil {
			a.log.WithError(err).Debug("Close failed")
		}
	}
	a.closers = nil
}

// requireAuth refuses chat features when the gate says no.
func (a *app) requireAuth() error {
	if !auth.Require(a.gate, nil) {
		return auth.ErrUnauthenticated
	}
	return nil
}

// provider builds the completion client named by provider.backend.
func (a *app) provider() (stream.Provider, error) {
	if a.opts.provider != nil {
		return a.opts.provider, nil
	}
	opts := a.cfg.CloudOptions()
	opts.Logger = a.log
	opts.UserAgent = "relaychat/" + Version

	if opts.APIKey == "" {
		a.log.Warn("No API key configured; set RELAYCHAT_API_KEY or SILICONCLOUD_API_KEY")
	}
	switch a.cfg.Provider.Backend {
	case config.ProviderOpenAI:
		return cloud.NewSDKClient(opts), nil
	case config.ProviderHTTP, "":
		return cloud.NewClient(opts), nil
	default:
		return nil, fmt.Errorf("unknown provider backend %q", a.cfg.Provider.Backend)
	}
}

// newPipeline wires a pipeline to the store with the configured window.
func (a *app) newPipeline(notify func(stream.Notice)) (*stream.Pipeline, error) {
	provider, err := a.provider()
	if err != nil {
		return nil, err
	}
	return stream.NewPipeline(a.store, provider, stream.Options{
		HistoryWindow: a.cfg.Chat.HistoryWindow,
		Logger:        a.log,
		Metrics:       a.metrics,
		Notify:        notify,
	}), nil
}

// serveMetrics exposes /metrics in the background when metrics.addr is set.
func (a *app) serveMetrics(ctx context.Context) {
	if a.cfg.Metrics.Addr == "" {
		return
	}
	go func() {
		if err := a.metrics.Serve(ctx, a.cfg.Metrics.Addr, a.log); err != nil {
			a.log.WithError(err).Warn("Metrics endpoint stopped")
		}
	}()
}

// ensureActive keeps one conversation active after deletes and clears.
func (a *app) ensureActive() string {
	if id := a.store.ActiveID(); id != "" {
		return id
	}
	convs := a.store.Conversations()
	if len(convs) == 0 {
		return a.store.CreateConversation()
	}
	id := convs[len(convs)-1].ID
	if err := a.store.SelectConversation(id); err != nil {
		return a.store.CreateConversation()
	}
	return id
}

// resolveConversation accepts "" (the active conversation), a 1-based list
// index, a full id, or a unique id prefix or suffix as shown by list.
func (a *app) resolveConversation(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		if id := a.store.ActiveID(); id != "" {
			return id, nil
		}
		return "", errs.NotFound("conversation", "(active)")
	}

	convs := a.store.Conversations()
	if n, err := strconv.Atoi(ref); err == nil {
		if n >= 1 && n <= len(convs) {
			return convs[n-1].ID, nil
		}
		return "", errs.NotFound("conversation", ref)
	}

	var match string
	for _, c := range convs {
		if c.ID == ref {
			return c.ID, nil
		}
		if strings.HasPrefix(c.ID, ref) || strings.HasSuffix(c.ID, ref) {
			if match != "" {
				return "", fmt.Errorf("conversation id %q is ambiguous", ref)
			}
			match = c.ID
		}
	}
	if match == "" {
		return "", errs.NotFound("conversation", ref)
	}
	return match, nil
}
