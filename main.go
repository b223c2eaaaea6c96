// Command chat-guard keeps a VK group chat's title and photo at their
// canonical values. It:
//   - Loads configuration and initializes structured logging.
//   - Verifies the VK access token once at startup.
//   - Runs the guard scheduler: every interval, one reconciliation cycle that
//     restores the photo and then the title if members changed them.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/onnwee/chat-guard/cache"
	"github.com/onnwee/chat-guard/config"
	"github.com/onnwee/chat-guard/guard"
	"github.com/onnwee/chat-guard/hashing"
	"github.com/onnwee/chat-guard/imagefetch"
	"github.com/onnwee/chat-guard/server"
	"github.com/onnwee/chat-guard/telemetry"
	"github.com/onnwee/chat-guard/vkapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		// unknown level -> keep info but note once using temporary logger
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config invalid", slog.Any("err", err))
		os.Exit(1)
	}
	if cfg.DelayExceedsInterval() {
		slog.Warn("pre-check delay is not shorter than the interval; ticks will be skipped",
			slog.Duration("delay", cfg.PreCheckDelay), slog.Duration("interval", cfg.Interval))
	}
	if _, err := os.Stat(cfg.ReferenceImage); err != nil {
		slog.Error("reference image unavailable", slog.String("path", cfg.ReferenceImage), slog.Any("err", err))
		os.Exit(1)
	}

	httpClient := &http.Client{
		Timeout:   cfg.HTTPTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	vk := vkapi.New(cfg.AuthToken)
	vk.BaseURL = cfg.APIBaseURL
	vk.Version = cfg.APIVersion
	vk.HTTPClient = httpClient

	// The guard cannot do anything useful with a rejected token.
	authCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout)
	userID, err := vk.Authorize(authCtx)
	cancel()
	if err != nil {
		slog.Error("authorization failed", slog.String("kind", guard.ClassifyError(err).String()), slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("authorization ready", slog.Int64("user_id", userID), slog.String("component", "vkapi"))

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("chat-guard", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := cache.NewFileStore(cfg.CacheDir)
	store.SweepStale()

	engine := guard.NewEngine(cfg.Guard(), vk, imagefetch.New(httpClient), store, hashing.New(cfg.HashAlgorithm))
	scheduler := guard.NewScheduler(engine, cfg.Interval, guard.WithRunOnStart(cfg.RunOnStart))

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (health/status/metrics)
	if cfg.HTTPEnabled() {
		go func() {
			if err := server.Start(ctx, scheduler, cfg.HTTPAddr); err != nil {
				slog.Error("http server exited with error", slog.Any("err", err))
			}
		}()
	} else {
		slog.Info("http server disabled")
	}

	slog.Info("guard starting",
		slog.Int64("chat_id", cfg.ChatID),
		slog.String("title", cfg.ChatTitle),
		slog.Duration("delay", cfg.PreCheckDelay),
		slog.Duration("interval", cfg.Interval),
		slog.String("hash", string(cfg.HashAlgorithm)))

	// Blocks until shutdown signal and the in-flight cycle returns
	scheduler.Run(ctx)
	slog.Info("shutting down")
}
