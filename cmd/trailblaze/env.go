package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/trailblaze/internal/agent"
	"github.com/ChamsBouzaiene/trailblaze/internal/config"
	"github.com/ChamsBouzaiene/trailblaze/internal/driver"
	"github.com/ChamsBouzaiene/trailblaze/internal/driver/adb"
	"github.com/ChamsBouzaiene/trailblaze/internal/driver/mock"
	"github.com/ChamsBouzaiene/trailblaze/internal/driver/web"
	"github.com/ChamsBouzaiene/trailblaze/internal/engine"
	"github.com/ChamsBouzaiene/trailblaze/internal/observability"
	"github.com/ChamsBouzaiene/trailblaze/internal/providers"
	"github.com/ChamsBouzaiene/trailblaze/internal/session"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools/builtin"
)

// eventsFileName is the JSONL session log inside session.log_dir.
const eventsFileName = "events.jsonl"

// runtimeEnv is the run stack of one device.
type runtimeEnv struct {
	Driver   driver.Driver
	Info     driver.DeviceInfo
	Repo     *tools.Repo
	Devices  *session.Registry
	Sessions *session.Manager
	Events   *session.Logger
	Hub      *session.Hub
	Store    *session.Store
	Metrics  *observability.Metrics
	Runner   *engine.Runner
	Trails   *engine.TrailRunner

	closers []func() error
}

func (r *runtimeEnv) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		_ = r.closers[i]()
	}
}

// prepareRuntimeEnv builds the driver, the model client and the session
// sinks described by cfg.
func prepareRuntimeEnv(ctx context.Context, cfg *config.Config, log *zap.Logger) (env *runtimeEnv, err error) {
	env = &runtimeEnv{}
	defer func() {
		if err != nil {
			env.Close()
		}
	}()

	env.Driver, err = openDriver(ctx, cfg.Device, log)
	if err != nil {
		return nil, err
	}
	if c, ok := env.Driver.(interface{ Close() }); ok {
		env.closers = append(env.closers, func() error { c.Close(); return nil })
	}
	env.Info, err = env.Driver.DeviceInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query device: %w", err)
	}
	log.Info("device connected",
		zap.String("device", env.Info.ID),
		zap.String("platform", string(env.Info.Platform)),
		zap.Strings("classifiers", env.Info.Classifiers))

	llm, err := providers.New(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}

	env.Repo, err = builtin.NewRepo(builtin.DefaultToolSet())
	if err != nil {
		return nil, err
	}

	if err := env.openSinks(ctx, cfg.Session, log); err != nil {
		return nil, err
	}

	env.Devices = session.NewRegistry()
	env.Sessions = env.Devices.For(env.Info.ID)
	runCfg := runnerConfig(cfg)
	sessionHook := engine.SessionHook{Log: env.Events, Sessions: env.Sessions, Model: cfg.LLM.Model}
	metricsHook := env.Metrics.Hook()

	a := agent.New(env.Repo, env.Driver,
		agent.WithComparator(engine.NewLLMComparator(llm, cfg.LLM.Model, runCfg.Retry)),
		agent.WithObserver(sessionHook),
		agent.WithObserver(metricsHook),
		agent.WithLogger(log),
	)
	env.Runner = engine.NewRunner(llm, a, env.Sessions, runCfg,
		engine.WithHooks(engine.LoggerHook{L: log}, sessionHook, metricsHook),
		engine.WithRunnerLogger(log),
	)
	env.Trails = engine.NewTrailRunner(env.Runner, env.Events, log)
	return env, nil
}

// openSinks wires the session log: the in-process hub and metrics always,
// plus JSONL, sqlite and redis when configured.
func (r *runtimeEnv) openSinks(ctx context.Context, cfg config.SessionConfig, log *zap.Logger) error {
	r.Hub = session.NewHub(cfg.HubLimit)
	r.Metrics = observability.NewMetrics()
	r.Events = session.NewLogger(log, r.Hub, r.Metrics)

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return fmt.Errorf("failed to create log dir: %w", err)
		}
		sink, err := session.OpenJSONL(filepath.Join(cfg.LogDir, eventsFileName))
		if err != nil {
			return err
		}
		r.closers = append(r.closers, sink.Close)
		r.Events.AddSink(sink)
	}
	if cfg.StorePath != "" {
		store, err := openStore(ctx, cfg.StorePath)
		if err != nil {
			return err
		}
		r.Store = store
		r.closers = append(r.closers, store.Close)
		r.Events.AddSink(store)
	}
	if cfg.RedisAddr != "" {
		sink := session.NewRedisSink(cfg.RedisAddr, "", 0,
			session.WithRedisChannel(cfg.RedisChannel),
			session.WithRedisTTL(cfg.RedisTTL))
		r.closers = append(r.closers, sink.Close)
		r.Events.AddSink(sink)
	}
	return nil
}

func openStore(ctx context.Context, path string) (*session.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store dir: %w", err)
	}
	return session.OpenStore(ctx, path)
}

func openDriver(ctx context.Context, cfg config.DeviceConfig, log *zap.Logger) (driver.Driver, error) {
	switch cfg.Driver {
	case "adb":
		return adb.New(adb.Config{
			ADBPath:     cfg.ADBPath,
			Serial:      cfg.Serial,
			Classifiers: cfg.Classifiers,
			Timeout:     cfg.Timeout,
			Logger:      log,
		}), nil
	case "web":
		return web.New(ctx, web.Config{
			Headless:    cfg.Headless,
			StartURL:    cfg.WebURL,
			Classifiers: cfg.Classifiers,
			Timeout:     cfg.Timeout,
			Logger:      log,
		})
	case "mock":
		return mock.New(mock.Config{Info: driver.DeviceInfo{
			ID:          "mock",
			Platform:    driver.PlatformAndroid,
			Width:       1080,
			Height:      2400,
			Classifiers: append(cfg.Classifiers, string(driver.PlatformAndroid)),
		}}), nil
	}
	return nil, errors.New("unknown driver " + cfg.Driver)
}

func runnerConfig(cfg *config.Config) engine.RunnerConfig {
	rc := engine.DefaultRunnerConfig()
	rc.Model = cfg.LLM.Model
	rc.Chat = engine.ChatOptions{Temperature: cfg.LLM.Temperature, MaxOutputTokens: cfg.LLM.MaxTokens}
	rc.MaxCalls = cfg.Agent.MaxCalls
	rc.HistoryWindow = cfg.Agent.HistoryWindow
	rc.SetOfMark = cfg.Agent.SetOfMark
	rc.CaptureAttempts = cfg.Agent.CaptureAttempts
	rc.SelfHeal = cfg.Agent.SelfHeal
	rc.Retry = engine.RetryPolicy{
		MaxRetries:   cfg.LLM.Retry.MaxRetries,
		InitialDelay: cfg.LLM.Retry.InitialDelay,
		MaxDelay:     cfg.LLM.Retry.MaxDelay,
		Multiplier:   cfg.LLM.Retry.Multiplier,
		Jitter:       cfg.LLM.Retry.Jitter,
	}
	return rc
}
