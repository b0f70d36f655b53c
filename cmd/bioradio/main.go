package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/decred/slog"
	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"github.com/satindergrewal/bioradio/internal/agent"
	"github.com/satindergrewal/bioradio/internal/api"
	"github.com/satindergrewal/bioradio/internal/audio"
	"github.com/satindergrewal/bioradio/internal/config"
	"github.com/satindergrewal/bioradio/internal/control"
	"github.com/satindergrewal/bioradio/internal/events"
	"github.com/satindergrewal/bioradio/internal/gemini"
	"github.com/satindergrewal/bioradio/internal/lyria"
	"github.com/satindergrewal/bioradio/internal/metrics"
	"github.com/satindergrewal/bioradio/internal/ollama"
	"github.com/satindergrewal/bioradio/internal/playback"
	"github.com/satindergrewal/bioradio/internal/prompts"
	"github.com/satindergrewal/bioradio/internal/session"
	"github.com/satindergrewal/bioradio/internal/stream"
)

const (
	sentryFlushTimeout = 2 * time.Second
	shutdownTimeout    = 5 * time.Second
	reportInterval     = time.Minute
)

// version is set via ldflags during build.
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "bioradio: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	envErr := godotenv.Load()
	cfg := config.Load()

	bknd, err := newLogBackend(cfg.LogFile, cfg.LogLevel, os.Stdout)
	if err != nil {
		return err
	}
	defer bknd.Close()
	log := bknd.logger("MAIN")

	log.Infof("bioradio %s starting up", version)
	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		log.Warnf("Unable to read .env: %v", envErr)
	}
	if cfg.APIKey == "" {
		return errors.New("GEMINI_API_KEY is required")
	}

	reportError := func(error) {}
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Env,
			Release:     "bioradio@" + version,
		})
		if err != nil {
			log.Warnf("Failed to initialize Sentry: %v", err)
		} else {
			log.Infof("Sentry initialized (environment: %s)", cfg.Env)
			defer sentry.Flush(sentryFlushTimeout)
			reportError = func(err error) { sentry.CaptureException(err) }
		}
	}

	sigCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	subs := newSubsystems(sigCtx, log, reportError)
	ctx := subs.Context()

	stats := metrics.New()
	bus := events.NewBus()
	defer bus.Close()

	// User prompts
	store, err := prompts.OpenLevelStore(cfg.PresetsDB)
	if err != nil {
		return err
	}
	defer store.Close()
	coll, err := prompts.Open(store, bknd.logger("PRMT"))
	if err != nil {
		return err
	}

	// Output graph and fan-out. The broadcaster is the only reader of the
	// rendered frames; the sound card is one more listener.
	output := audio.NewOutput(bknd.logger("AUDI"))
	subs.Go("output", func(ctx context.Context) error {
		output.Run(ctx)
		return nil
	})
	broadcaster := stream.NewBroadcaster(stats, bknd.logger("STRM"))
	subs.Go("broadcaster", func(ctx context.Context) error {
		broadcaster.Run(ctx, output.Frames())
		return nil
	})
	if cfg.LocalPlayback {
		startLocalPlayer(broadcaster, bknd.logger("AUDI"), log)
	}

	// Playback controller
	client := lyria.NewClient(cfg.LyriaURL, cfg.APIKey, bknd.logger("LYRA"))
	ctrl := playback.NewController(playback.Config{
		Connector:        session.LyriaConnector(client),
		Model:            cfg.Model,
		Output:           output,
		User:             coll,
		Settings:         control.DefaultSettings(),
		BufferTime:       cfg.BufferTime,
		GainRamp:         cfg.GainRamp,
		ResetDelay:       cfg.ResetDelay,
		ThrottleInterval: cfg.ThrottleInterval,
		Bus:              bus,
		Stats:            stats,
		Log:              bknd.logger("PLAY"),
		SessionLog:       bknd.logger("SESS"),
		ControlLog:       bknd.logger("CTRL"),
		OnError:          reportError,
	})
	subs.Go("controller", ctrl.Run)

	// Biometric agent
	var apiAgent api.Agent
	if cfg.AgentEnabled {
		ag, err := newAgent(ctx, cfg, ctrl, bus, stats, bknd, subs)
		if err != nil {
			return err
		}
		apiAgent = ag
		subs.Go("agent", ag.Run)
	} else {
		log.Infof("Agent disabled (set AGENT_ENABLED=true to enable)")
	}

	subs.Go("stats", func(ctx context.Context) error {
		return stats.RunReportLoop(ctx, reportInterval, bknd.logger("STAT"))
	})

	// HTTP
	webrtcHandler := stream.NewWebRTCHandler(broadcaster, bknd.logger("STRM"))
	defer webrtcHandler.Close()
	srv := api.New(api.Config{
		Player:    ctrl,
		Prompts:   coll,
		Agent:     apiAgent,
		Bus:       bus,
		Stats:     stats,
		Stream:    stream.NewHTTPHandler(broadcaster, bknd.logger("STRM")),
		Offer:     webrtcHandler,
		Listeners: broadcaster.ListenerCount,
		Log:       bknd.logger("API"),
	})
	httpServer := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	subs.Go("http", func(context.Context) error {
		log.Infof("Listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	subs.Go("http shutdown", func(ctx context.Context) error {
		<-ctx.Done()
		if sigCtx.Err() != nil {
			log.Infof("Interrupt detected. Shutting down.")
		}
		bus.Close()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warnf("HTTP shutdown: %v", err)
		}
		return nil
	})

	if err := subs.Wait(); err != nil {
		return err
	}
	log.Infof("Goodbye")
	return nil
}

func startLocalPlayer(b *stream.Broadcaster, audioLog, log slog.Logger) {
	listener := b.Subscribe("local")
	player, err := audio.NewDevicePlayer(listener.C, audioLog)
	if err == nil {
		err = player.Start()
	}
	if err != nil {
		log.Warnf("Local playback unavailable: %v", err)
		b.Unsubscribe(listener)
		return
	}
	log.Infof("Local playback on %s device", player.Name())
	go func() {
		<-listener.Done()
		player.Close()
	}()
}

func newAgent(ctx context.Context, cfg config.Config, ctrl *playback.Controller,
	bus *events.Bus, stats *metrics.Stats, bknd *logBackend,
	subs *subsystems) (*agent.Agent, error) {

	log := bknd.logger("AGNT")

	var src agent.Source
	if cfg.AgentSensorFile != "" {
		fsrc := agent.NewFileSource(cfg.AgentSensorFile, log)
		subs.Go("sensor file", fsrc.Run)
		src = fsrc
		log.Infof("Reading biometrics from %s", cfg.AgentSensorFile)
	} else {
		src = agent.NewSynthetic(cfg.AgentSeed, nil)
		log.Infof("Using synthetic biometrics")
	}

	return agent.New(agent.Config{
		Source:    src,
		Updater:   ctrl,
		Refiner:   newRefiner(ctx, cfg, bknd),
		Interval:  cfg.AgentInterval,
		StartMood: cfg.AgentStartMood,
		DwellMin:  time.Duration(cfg.DwellMin) * time.Second,
		DwellMax:  time.Duration(cfg.DwellMax) * time.Second,
		Seed:      cfg.AgentSeed,
		Bus:       bus,
		Stats:     stats,
		Log:       log,
	})
}

// newRefiner returns the prompt refiner to use, or nil for template
// prompts only. Gemini is preferred over Ollama.
func newRefiner(ctx context.Context, cfg config.Config, bknd *logBackend) agent.Refiner {
	log := bknd.logger("AGNT")

	if cfg.GeminiAgentModel != "" {
		r, err := gemini.NewRefiner(ctx, cfg.APIKey, cfg.GeminiAgentModel, bknd.logger("GMNI"))
		if err != nil {
			log.Warnf("Gemini refiner unavailable: %v", err)
		} else {
			log.Infof("Refining prompts with Gemini (%s)", cfg.GeminiAgentModel)
			return r
		}
	}

	if cfg.OllamaURL != "" {
		client := ollama.NewClient(cfg.OllamaURL, cfg.OllamaModel, bknd.logger("OLMA"))
		go func() {
			readyCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			if err := client.AwaitReady(readyCtx, 2*time.Second); err != nil {
				log.Warnf("Ollama not reachable at %s (%v), prompts stay unrefined until it is", cfg.OllamaURL, err)
			}
		}()
		log.Infof("Refining prompts with Ollama (%s)", cfg.OllamaModel)
		return ollama.NewRefiner(client)
	}

	log.Infof("No prompt refiner configured (set GEMINI_AGENT_MODEL or OLLAMA_URL)")
	return nil
}
