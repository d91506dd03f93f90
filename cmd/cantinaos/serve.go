package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/cantina-os/core/brain"
	"github.com/cantina-os/core/bus"
	"github.com/cantina-os/core/config"
	"github.com/cantina-os/core/dispatcher"
	"github.com/cantina-os/core/logging"
	"github.com/cantina-os/core/memory"
	"github.com/cantina-os/core/metrics"
	"github.com/cantina-os/core/mode"
	"github.com/cantina-os/core/schema"
	"github.com/cantina-os/core/service"
	"github.com/cantina-os/core/timeline"
	"github.com/cantina-os/core/webbridge"
)

// runnable is the subset of service.Hooks-backed services the entrypoint
// starts and stops uniformly. Every concrete service embeds *service.Base
// and satisfies service.Hooks directly.
type runnable struct {
	name  string
	base  *service.Base
	hooks service.Hooks
}

func runServe(ctx context.Context) error {
	_ = config.LoadEnvFile(flagEnvPath)
	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	registry := schema.NewRegistry()
	eventBus := bus.New(registry, bus.WithSlowHandlerThreshold(cfg.SlowHandlerThreshold))

	pipeline, err := logging.New(eventBus, cfg.LogDir,
		logging.WithDedupWindow(cfg.LogDedupWindow),
		logging.WithMinLevel(logLevel(cfg.LogLevel)))
	if err != nil {
		return fmt.Errorf("starting logging pipeline: %w", err)
	}
	defer pipeline.Close()

	memoryStore := memory.New(eventBus, cfg.MemoryPersistPath,
		memory.WithPersistDebounce(cfg.MemoryPersistDebounce),
		memory.WithWaitTimeout(cfg.MemoryWaitTimeout))
	dispatch := dispatcher.New(eventBus)
	executor := timeline.New(eventBus)
	executor.SpeakTimeout = cfg.SpeechTimeout
	executor.CrossfadeBaseExtra = cfg.CrossfadeBaseTimeout
	executor.OnForcedUnduck = metrics.RecordForcedUnduck

	planner := brain.New(eventBus)
	planner.HistoryDepth = cfg.DJHistoryDepth

	modeManager := mode.New(eventBus)

	webCfg := webbridge.Config{
		Port:               cfg.DashboardPort,
		MaxClients:         cfg.DashboardMaxClients,
		ClientRPM:          cfg.DashboardClientRPM,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}
	bridge := webbridge.New(eventBus, registry, webCfg)

	services := []runnable{
		{name: "memory", base: memoryStore.Base, hooks: memoryStore},
		{name: "dispatcher", base: dispatch.Base, hooks: dispatch},
		{name: "timeline", base: executor.Base, hooks: executor},
		{name: "brain", base: planner.Base, hooks: planner},
		{name: "mode", base: modeManager.Base, hooks: modeManager},
		{name: "webbridge", base: bridge.Base, hooks: bridge},
	}
	for _, s := range services {
		s.base.Logger = pipeline.Logger(s.name)
		s.base.HeartbeatInterval = cfg.HeartbeatInterval
		s.base.StopTimeout = cfg.StopTimeout
	}

	if err := registerCommands(dispatch); err != nil {
		return fmt.Errorf("registering cli commands: %w", err)
	}

	var exporter *metrics.Exporter
	if cfg.MetricsAddr != "" {
		exporter, err = metrics.NewExporter(cfg.MetricsAddr)
		if err != nil {
			return fmt.Errorf("starting metrics exporter: %w", err)
		}
		listener := metrics.NewListener()
		for _, t := range bus.AllTopics {
			t := t
			eventBus.Subscribe(t, "metrics", listener.Handle)
		}
		go func() {
			if err := exporter.Start(); err != nil {
				pipeline.Logger("metrics").Error("exporter stopped", "error", err)
			}
		}()
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, s := range services {
		if err := s.base.Start(runCtx, s.hooks); err != nil {
			return fmt.Errorf("starting %s: %w", s.name, err)
		}
	}
	if err := modeManager.Transition(schema.ModeIdle); err != nil {
		pipeline.Logger("cantinaos").Error("initial mode transition failed", "error", err)
	}

	respCh := make(chan *schema.CLIResponsePayload, 8)
	eventBus.Subscribe(bus.TopicCLIResponse, "cli", func(ev *bus.Event) {
		if resp, ok := ev.Payload.(*schema.CLIResponsePayload); ok && resp.Source == "cli" {
			select {
			case respCh <- resp:
			default:
			}
		}
	})

	cliDone := make(chan struct{})
	go runCLI(runCtx, eventBus, respCh, cliDone)

	select {
	case <-runCtx.Done():
	case <-cliDone:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.StopTimeout+2*time.Second)
	defer cancel()
	for i := len(services) - 1; i >= 0; i-- {
		s := services[i]
		if err := s.base.Stop(shutdownCtx, s.hooks); err != nil {
			pipeline.Logger("cantinaos").Error("stop failed", "service", s.name, "error", err)
		}
	}
	if exporter != nil {
		_ = exporter.Shutdown(shutdownCtx)
	}
	return nil
}

// logLevel maps the configured log_level string onto a slog.Level,
// defaulting to info for unrecognized values.
func logLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// registerCommands installs the closed set of CLI command transforms:
// the "dj start/stop/next" compound and the "play music <query>"
// compound. System-mode changes reach the bus only through
// the web bridge's structured system_command channel;
// nothing else is CLI-dispatched in the core.
func registerCommands(d *dispatcher.Dispatcher) error {
	regs := []dispatcher.Registration{
		{Pattern: "dj start", TargetService: "brain", TargetTopic: bus.TopicDJCommand, Kind: dispatcher.KindDJ},
		{Pattern: "dj stop", TargetService: "brain", TargetTopic: bus.TopicDJCommandStop, Kind: dispatcher.KindDJ},
		{Pattern: "dj next", TargetService: "brain", TargetTopic: bus.TopicDJCommandNext, Kind: dispatcher.KindDJ},
		{Pattern: "play music", TargetService: "brain", TargetTopic: bus.TopicMusicCmdIn, Kind: dispatcher.KindMusic},
	}
	for _, r := range regs {
		if err := d.Register(r); err != nil {
			return err
		}
	}
	return nil
}

// runCLI reads lines from stdin, emits each as a CLI_COMMAND with
// source "cli", and prints the next CLI_RESPONSE addressed to source "cli"
// when it arrives (responses are matched by source, not by request_id).
// It exits on EOF (e.g. piped input ending) or ctx cancellation.
func runCLI(ctx context.Context, b *bus.Bus, respCh <-chan *schema.CLIResponsePayload, done chan<- struct{}) {
	defer close(done)
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("cantinaos> ready")
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return
		}
		requestID := uuid.NewString()
		if err := b.Emit(bus.TopicCLICommand, &schema.CLICommandPayload{
			Base:      bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: "cli"}},
			RawInput:  line,
			Source:    "cli",
			RequestID: requestID,
		}); err != nil {
			fmt.Println("error:", err)
			continue
		}
		select {
		case resp := <-respCh:
			printResponse(resp)
		case <-time.After(5 * time.Second):
			fmt.Println("(no response)")
		case <-ctx.Done():
			return
		}
	}
}

func printResponse(resp *schema.CLIResponsePayload) {
	if resp.Success {
		if resp.Message != "" {
			fmt.Println("ok:", resp.Message)
		} else {
			fmt.Println("ok")
		}
		return
	}
	fmt.Printf("error [%s]: %s\n", resp.Code, resp.Message)
}
