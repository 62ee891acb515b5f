// Command voxscribe is the main entry point for the Voxscribe Discord
// transcription bot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/voxscribe/voxscribe/internal/app"
	"github.com/voxscribe/voxscribe/internal/archive"
	"github.com/voxscribe/voxscribe/internal/config"
	discordbot "github.com/voxscribe/voxscribe/internal/discord"
	"github.com/voxscribe/voxscribe/internal/discord/commands"
	"github.com/voxscribe/voxscribe/internal/feed"
	"github.com/voxscribe/voxscribe/internal/health"
	"github.com/voxscribe/voxscribe/internal/observe"
	"github.com/voxscribe/voxscribe/internal/resilience"
	"github.com/voxscribe/voxscribe/internal/segment"
	"github.com/voxscribe/voxscribe/internal/transcript"
	"github.com/voxscribe/voxscribe/internal/transcript/llmcorrect"
	"github.com/voxscribe/voxscribe/internal/transcript/phonetic"
	"github.com/voxscribe/voxscribe/pkg/audio"
	"github.com/voxscribe/voxscribe/pkg/embeddings"
	oaembed "github.com/voxscribe/voxscribe/pkg/embeddings/openai"
	"github.com/voxscribe/voxscribe/pkg/llm"
	"github.com/voxscribe/voxscribe/pkg/llm/anyllm"
	"github.com/voxscribe/voxscribe/pkg/transcribe"
	oatranscribe "github.com/voxscribe/voxscribe/pkg/transcribe/openai"
	"github.com/voxscribe/voxscribe/pkg/transcribe/whisper"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxscribe: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxscribe: %v\n", err)
		}
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("voxscribe starting",
		"config", *configPath,
		"observe_addr", cfg.Server.ObserveAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "voxscribe"})
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
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Backend registry ──────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinBackends(reg)

	tx, err := buildTranscriber(cfg, reg)
	if err != nil {
		slog.Error("failed to build transcriber chain", "err", err)
		return 1
	}

	corrector, err := buildCorrector(cfg, reg)
	if err != nil {
		slog.Error("failed to build correction pipeline", "err", err)
		return 1
	}

	// ── Archive (optional) ────────────────────────────────────────────────────
	var store *archive.Store
	if cfg.Archive.PostgresDSN != "" {
		store, err = buildArchive(ctx, cfg, reg)
		if err != nil {
			slog.Error("failed to open transcript archive", "err", err)
			return 1
		}
		defer store.Close()
		slog.Info("transcript archive ready",
			"embeddings", cfg.Archive.Embeddings.Enabled)
	}

	// ── Discord bot ───────────────────────────────────────────────────────────
	bot, err := discordbot.New(ctx, discordbot.Config{
		Token:         cfg.Discord.Token,
		GuildID:       cfg.Discord.GuildID,
		TextChannelID: cfg.Discord.TextChannelID,
		ControlRoleID: cfg.Discord.ControlRoleID,
	})
	if err != nil {
		slog.Error("failed to create Discord bot", "err", err)
		return 1
	}
	defer func() {
		if err := bot.Close(); err != nil {
			slog.Warn("discord bot close error", "err", err)
		}
	}()
	slog.Info("discord bot connected", "guild_id", cfg.Discord.GuildID)

	// ── Live feed (optional) ──────────────────────────────────────────────────
	var feedSrv *feed.Server
	if cfg.Feed.Enabled {
		feedSrv = feed.NewServer()
		defer feedSrv.Close()
	}

	// ── Pipeline and session manager ──────────────────────────────────────────
	opts := []app.PipelineOption{
		app.WithCorrector(corrector),
		app.WithVocabulary(cfg.Corrector.Vocabulary),
		app.WithGuildID(cfg.Discord.GuildID),
	}
	if bot.Poster().Enabled() {
		opts = append(opts, app.WithPoster(bot.Poster()))
	}
	if feedSrv != nil {
		opts = append(opts, app.WithBroadcaster(feedSrv))
	}
	if store != nil {
		opts = append(opts, app.WithArchiver(store))
	}
	pipeline := app.NewPipeline(tx, metrics, opts...)

	norm, err := audio.NewNormalizer(audio.NormalizerConfig{
		TrimSilence:   cfg.Audio.TrimSilence,
		TrimThreshold: cfg.Audio.TrimThreshold,
	})
	if err != nil {
		slog.Error("invalid audio configuration", "err", err)
		return 1
	}

	sessions := app.NewSessionManager(bot.Platform(), pipeline, norm, segment.Config{
		DurationThreshold:  cfg.Segmenter.DurationThreshold.Std(),
		SafetyNetThreshold: cfg.Segmenter.SafetyNetThreshold.Std(),
		SilenceTimeout:     cfg.Segmenter.SilenceTimeout.Std(),
		MinSpeechDuration:  cfg.Segmenter.MinSpeechDuration.Std(),
		Carryover:          cfg.Segmenter.Carryover.Std(),
		QueueSize:          cfg.Segmenter.QueueSize,
	})

	// ── Slash commands ────────────────────────────────────────────────────────
	commands.NewVoiceCommands(bot, sessions)
	if store != nil {
		commands.NewSearchCommands(bot, store)
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(diff config.ConfigDiff, _ *config.Config) {
		applyReload(diff, logLevel, pipeline)
	})
	if err != nil {
		slog.Error("failed to watch config file", "err", err)
		return 1
	}
	defer watcher.Stop()

	// ── HTTP servers ──────────────────────────────────────────────────────────
	g, runCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return serveHTTP(runCtx, cfg.Server.ObserveAddr, observeMux(metrics, store))
	})
	if feedSrv != nil {
		g.Go(func() error {
			mux := http.NewServeMux()
			mux.Handle("GET /feed", feedSrv)
			return serveHTTP(runCtx, cfg.Feed.Addr, mux)
		})
	}
	g.Go(func() error {
		return bot.Run(runCtx)
	})

	slog.Info("voxscribe ready — press Ctrl+C to shut down")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Flush any in-flight utterances before the deferred teardown closes
	// the archive and the bot.
	if sessions.Status().Active {
		if err := sessions.Leave(shutdownCtx); err != nil {
			slog.Warn("session teardown error", "err", err)
		}
	}

	slog.Info("goodbye")
	return 0
}

// observeMux builds the health + metrics endpoint mux.
func observeMux(metrics *observe.Metrics, store *archive.Store) http.Handler {
	checks := []health.Check{}
	if store != nil {
		checks = append(checks, health.PingCheck("archive", store))
	}

	mux := http.NewServeMux()
	health.New(checks...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	return observe.Middleware(metrics)(mux)
}

// serveHTTP runs an HTTP server until ctx is cancelled.
func serveHTTP(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server on %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown on %s: %w", addr, err)
		}
		return ctx.Err()
	}
}

// applyReload pushes hot-reloadable config changes into the running
// collaborators and warns about edits that need a restart.
func applyReload(diff config.ConfigDiff, logLevel *slog.LevelVar, pipeline *app.Pipeline) {
	if diff.LogLevelChanged {
		logLevel.Set(slogLevel(diff.NewLogLevel))
		slog.Info("log level changed", "level", diff.NewLogLevel)
	}
	if diff.VocabularyChanged {
		pipeline.SetVocabulary(diff.NewVocabulary)
		slog.Info("correction vocabulary reloaded", "terms", len(diff.NewVocabulary))
	}
	if len(diff.RestartRequired) > 0 {
		slog.Warn("config sections changed that require a restart",
			"sections", diff.RestartRequired)
	}
}

// ── Backend wiring ────────────────────────────────────────────────────────────

// registerBuiltinBackends wires the built-in backend factories into reg.
func registerBuiltinBackends(reg *config.Registry) {
	// ── Transcribers ──────────────────────────────────────────────────────────

	reg.RegisterTranscriber("whisper", func(entry config.BackendEntry) (transcribe.Transcriber, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, whisper.WithLanguage(entry.Language))
		}
		return whisper.NewClient(entry.BaseURL, opts...)
	})

	reg.RegisterTranscriber("whisper-native", func(entry config.BackendEntry) (transcribe.Transcriber, error) {
		var opts []whisper.NativeOption
		if entry.Language != "" {
			opts = append(opts, whisper.WithNativeLanguage(entry.Language))
		}
		return whisper.NewNative(entry.Model, opts...)
	})

	reg.RegisterTranscriber("openai", func(entry config.BackendEntry) (transcribe.Transcriber, error) {
		var opts []oatranscribe.Option
		if entry.BaseURL != "" {
			opts = append(opts, oatranscribe.WithBaseURL(entry.BaseURL))
		}
		if entry.Language != "" {
			opts = append(opts, oatranscribe.WithLanguage(entry.Language))
		}
		return oatranscribe.New(entry.APIKey, entry.Model, opts...)
	})

	// ── LLM (correction stage) ────────────────────────────────────────────────

	for _, providerName := range config.ValidBackendNames["llm"] {
		reg.RegisterLLM(providerName, func(cfg config.LLMConfig) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if cfg.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(cfg.APIKey))
			}
			if cfg.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(cfg.BaseURL))
			}
			return anyllm.New(providerName, cfg.Model, opts...)
		})
	}

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(cfg config.EmbeddingsConfig) (embeddings.Provider, error) {
		return oaembed.New(cfg.APIKey, cfg.Model)
	})
}

// buildTranscriber creates the primary backend and its fallbacks wrapped in
// the circuit-breaker chain.
func buildTranscriber(cfg *config.Config, reg *config.Registry) (*resilience.Transcriber, error) {
	backends, err := reg.CreateTranscriberChain(cfg.Transcriber)
	if err != nil {
		return nil, err
	}

	tx := resilience.NewTranscriber(backends[0], resilience.BreakerConfig{})
	for _, backend := range backends[1:] {
		tx.AddFallback(backend)
	}
	slog.Info("transcriber chain ready",
		"primary", cfg.Transcriber.Backend,
		"fallbacks", len(backends)-1,
	)
	return tx, nil
}

// buildCorrector assembles the correction pipeline: always the phonetic
// stage, plus the LLM review stage when one is configured.
func buildCorrector(cfg *config.Config, reg *config.Registry) (*transcript.CorrectionPipeline, error) {
	opts := []transcript.PipelineOption{
		transcript.WithPhoneticMatcher(phonetic.New()),
	}

	if cfg.Corrector.LLM != nil {
		provider, err := reg.CreateLLM(*cfg.Corrector.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm backend %q: %w", cfg.Corrector.LLM.Provider, err)
		}
		opts = append(opts, transcript.WithLLMCorrector(llmcorrect.New(provider)))
		slog.Info("llm correction enabled",
			"provider", cfg.Corrector.LLM.Provider,
			"model", cfg.Corrector.LLM.Model,
		)
	}

	return transcript.NewPipeline(opts...), nil
}

// buildArchive opens the PostgreSQL transcript archive, wiring the
// embeddings provider when semantic search is enabled.
func buildArchive(ctx context.Context, cfg *config.Config, reg *config.Registry) (*archive.Store, error) {
	var opts []archive.Option
	if cfg.Archive.Embeddings.Enabled {
		emb, err := reg.CreateEmbeddings(cfg.Archive.Embeddings)
		if err != nil {
			return nil, fmt.Errorf("create embeddings backend: %w", err)
		}
		opts = append(opts, archive.WithEmbedder(emb))
	}
	return archive.NewStore(ctx, cfg.Archive.PostgresDSN, opts...)
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
