// map2 remaps evdev keyboard input through a small embedded scripting
// language, following the teacher asahi-map's wiring shape (grab devices,
// spin up a virtual output, process events, optionally show a tray icon)
// generalized from a fixed Option-key layout into the general mapping
// engine described by this repository's script language.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-map2/map2/internal/config"
	"github.com/go-map2/map2/internal/device"
	"github.com/go-map2/map2/internal/eval"
	"github.com/go-map2/map2/internal/focus"
	"github.com/go-map2/map2/internal/keys"
	"github.com/go-map2/map2/internal/lang"
	"github.com/go-map2/map2/internal/runtime"
	"github.com/go-map2/map2/internal/tray"
	"github.com/go-map2/map2/internal/vkbd"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	settings, err := config.LoadSettings()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	config.ApplySettings(cfg, settings)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: verbosityToLevel(cfg.Verbosity),
	}))
	slog.SetDefault(logger)

	os.Exit(int(run(cfg, logger)))
}

func run(cfg *config.Config, logger *slog.Logger) int32 {
	logger.Info("map2 starting", "version", version, "commit", commit, "script", cfg.ScriptPath)

	src, err := os.ReadFile(cfg.ScriptPath)
	if err != nil {
		logger.Error("failed to read script", "path", cfg.ScriptPath, "error", err)
		return 1
	}
	block, err := lang.Parse(string(src))
	if err != nil {
		logger.Error("failed to parse script", "path", cfg.ScriptPath, "error", err)
		return 1
	}

	patterns, err := config.ResolveDevices(cfg)
	if err != nil {
		logger.Error("failed to resolve device list", "error", err)
		return 1
	}
	if len(patterns) == 0 {
		logger.Warn("no device selector patterns resolved; no input devices will be grabbed")
	}

	vkb, err := vkbd.Open("/dev/uinput", "map2 virtual keyboard", logger)
	if err != nil {
		logger.Error("failed to create virtual keyboard", "error", err)
		logger.Error("make sure you have write access to /dev/uinput")
		return 1
	}
	defer vkb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// C3 → mediator → C4, sized per spec §5.
	toMediator := make(chan keys.Event, 128)
	toOutput := make(chan keys.Event, 128)

	devMgr, err := device.NewManager(patterns, toMediator, logger)
	if err != nil {
		logger.Error("failed to build device manager", "error", err)
		return 1
	}
	defer devMgr.Close()
	if err := devMgr.Start(ctx); err != nil {
		logger.Error("failed to start device discovery", "error", err)
		return 1
	}

	fw := focus.NewChainWatcher(focus.NewDBusWatcher(logger), focus.NewX11Watcher(logger))
	med := runtime.New(toMediator, toOutput, 8, fw, logger)

	// med.Run must already be draining its command channel before the
	// script runs: the channel is capacity-8, and a script issuing more
	// than 8 top-level map_key/on_window_change/eat statements would
	// otherwise deadlock on the 9th send with nothing ever receiving.
	mediatorDone := make(chan int32, 1)
	go func() { mediatorDone <- med.Run(ctx) }()

	amb := eval.Ambient{Emit: toOutput, Mediator: med.Cmds(), Token: 0}
	if err := eval.Run(block, amb); err != nil {
		logger.Error("script evaluation failed", "error", err)
		cancel()
		return 1
	}

	if cfg.DumpMappings {
		// Round-trip a harmless message through the now-running mediator's
		// command channel: since that channel is FIFO and single-consumer,
		// the reply proves every AddMapping the script just sent has
		// already landed before the table is snapshotted.
		reply := make(chan eval.FocusInfo, 1)
		med.Cmds() <- eval.GetFocusedWindowInfo{Reply: reply}
		<-reply
		data, err := med.Table().DumpYAML()
		if err != nil {
			logger.Error("failed to dump mappings", "error", err)
			cancel()
			return 1
		}
		os.Stdout.Write(data)
		cancel()
		return 0
	}

	go vkb.Run(ctx, toOutput)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if cfg.NoTray {
		logger.Info("running headless, press Ctrl+C to quit")
		select {
		case <-sigCh:
			logger.Info("shutting down...")
			cancel()
			<-mediatorDone
			return 0
		case code := <-mediatorDone:
			return code
		}
	}

	trayIcon := tray.New(tray.Config{
		Enabled: true,
		OnToggle: func(enabled bool) {
			med.SetEnabled(enabled)
		},
		OnQuit: func() {
			logger.Info("shutting down...")
			cancel()
		},
		Logger: logger,
	})

	go pollWindowClassIntoTray(ctx, med, trayIcon)

	trayExit := make(chan int32, 1)
	go func() {
		select {
		case <-sigCh:
			logger.Info("shutting down...")
			cancel()
			trayIcon.Quit()
		case code := <-mediatorDone:
			trayExit <- code
			trayIcon.Quit()
		}
	}()

	trayIcon.Run() // blocks until Quit

	logger.Info("map2 stopped")
	select {
	case code := <-trayExit:
		return code
	default:
		return 0
	}
}

// pollWindowClassIntoTray mirrors the active_window_class() builtin's
// round trip through the mediator, feeding the result to the tray's
// read-only menu entry instead of script code.
func pollWindowClassIntoTray(ctx context.Context, med *runtime.Mediator, trayIcon *tray.Tray) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reply := make(chan eval.FocusInfo, 1)
			select {
			case med.Cmds() <- eval.GetFocusedWindowInfo{Reply: reply}:
			case <-ctx.Done():
				return
			}
			select {
			case info := <-reply:
				trayIcon.SetWindowClass(info.Class, info.OK)
			case <-ctx.Done():
				return
			}
		}
	}
}

func verbosityToLevel(v int) slog.Level {
	switch {
	case v >= 2:
		return slog.LevelDebug
	case v == 1:
		return slog.LevelInfo
	default:
		return slog.LevelWarn
	}
}
