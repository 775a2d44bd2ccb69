// Command beepwatch is the call gateway that bridges outbound calls to an
// audio stream, watches the stream for an answering-machine beep, and speaks
// a configured message into the call when one is heard.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"

	"github.com/MrWong99/beepwatch/internal/audit"
	"github.com/MrWong99/beepwatch/internal/config"
	"github.com/MrWong99/beepwatch/internal/health"
	"github.com/MrWong99/beepwatch/internal/observe"
	"github.com/MrWong99/beepwatch/internal/registry"
	"github.com/MrWong99/beepwatch/internal/server"
	"github.com/MrWong99/beepwatch/internal/session"
	"github.com/MrWong99/beepwatch/pkg/provider/callctl/vonage"
	"github.com/MrWong99/beepwatch/pkg/provider/classifier"
	"github.com/MrWong99/beepwatch/pkg/provider/classifier/goertzel"
	"github.com/MrWong99/beepwatch/pkg/provider/classifier/httpcls"
	"github.com/MrWong99/beepwatch/pkg/provider/vad"
	"github.com/MrWong99/beepwatch/pkg/provider/vad/energy"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "beepwatch: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "beepwatch: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("beepwatch starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "beepwatch",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metric instruments", "err", err)
		return 1
	}

	// ── Call control ──────────────────────────────────────────────────────────
	privateKey, err := os.ReadFile(cfg.Telephony.PrivateKeyFile)
	if err != nil {
		slog.Error("failed to read telephony private key", "path", cfg.Telephony.PrivateKeyFile, "err", err)
		return 1
	}
	var ctlOpts []vonage.Option
	if cfg.Telephony.APIBaseURL != "" {
		ctlOpts = append(ctlOpts, vonage.WithBaseURL(cfg.Telephony.APIBaseURL))
	}
	calls, err := vonage.New(cfg.Telephony.ApplicationID, privateKey, ctlOpts...)
	if err != nil {
		slog.Error("failed to create call controller", "err", err)
		return 1
	}
	reg := registry.New(calls)

	// ── Classifier ────────────────────────────────────────────────────────────
	cls, err := buildClassifier(cfg.Classifier)
	if err != nil {
		slog.Error("failed to create classifier", "name", cfg.Classifier.Name, "err", err)
		return 1
	}

	// ── Audit store ───────────────────────────────────────────────────────────
	var (
		store    audit.Store = audit.NopStore{}
		checkers []health.Checker
	)
	if dsn := cfg.Audit.PostgresDSN; dsn != "" {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			slog.Error("failed to create audit database pool", "err", err)
			return 1
		}
		defer pool.Close()

		pg := audit.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			slog.Error("failed to migrate audit schema", "err", err)
			return 1
		}
		store = pg
		checkers = append(checkers, health.Checker{Name: "audit", Check: pg.Ping})
		slog.Info("audit store enabled")
	} else {
		slog.Info("no audit database configured, detections are not persisted")
	}

	// ── Stream sessions ───────────────────────────────────────────────────────
	sessions, err := session.NewManager(session.Config{
		SampleRate:      cfg.Audio.SampleRate,
		FrameMs:         cfg.Audio.FrameMs,
		SilenceFrames:   cfg.Audio.SilenceFrames,
		MinClipFrames:   cfg.Audio.MinClipFrames(),
		MaxClipFrames:   cfg.Audio.MaxClipFrames(),
		VADSensitivity:  vad.Sensitivity(cfg.Audio.VADSensitivity),
		LocalNumber:     cfg.Telephony.LocalNumber,
		AnswerText:      cfg.Telephony.AnswerText,
		Workers:         cfg.Classifier.Workers,
		ClassifyTimeout: time.Duration(cfg.Classifier.TimeoutSec) * time.Second,
	}, session.Deps{
		VAD:        energy.New(),
		Classifier: cls,
		Calls:      calls,
		Registry:   reg,
		Audit:      store,
		Metrics:    metrics,
		Logger:     logger,
	})
	if err != nil {
		slog.Error("failed to create session manager", "err", err)
		return 1
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv, err := server.New(cfg, reg, sessions, health.New(checkers...), metrics, logger)
	if err != nil {
		slog.Error("failed to create server", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down",
		"classifier", cfg.Classifier.Name,
		"local_number", cfg.Telephony.LocalNumber,
	)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildClassifier instantiates the configured clip classification backend.
func buildClassifier(cfg config.ClassifierConfig) (classifier.Engine, error) {
	switch cfg.Name {
	case config.ClassifierGoertzel:
		var opts []goertzel.Option
		if cfg.TargetHz > 0 {
			opts = append(opts, goertzel.WithTargetHz(cfg.TargetHz))
		}
		if cfg.MinToneRatio > 0 {
			opts = append(opts, goertzel.WithMinToneRatio(cfg.MinToneRatio))
		}
		return goertzel.New(opts...), nil
	case config.ClassifierHTTP:
		var opts []httpcls.Option
		if cfg.APIKey != "" {
			opts = append(opts, httpcls.WithAPIKey(cfg.APIKey))
		}
		return httpcls.New(cfg.URL, opts...)
	default:
		return nil, fmt.Errorf("unknown classifier %q", cfg.Name)
	}
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
