// Package tray provides system tray integration using fyne.io/systray,
// adapted from the teacher's layout-switcher menu into a pause/resume
// toggle plus a live focused-window-class readout, since map2 has no
// layout concept to switch between.
package tray

import (
	"log/slog"
	"time"

	"fyne.io/systray"
)

// Tray represents the system tray icon and menu.
type Tray struct {
	logger *slog.Logger

	onToggle func(enabled bool)
	onQuit   func()

	enabled bool

	statusItem      *systray.MenuItem
	windowClassItem *systray.MenuItem
	quitItem        *systray.MenuItem
}

// Config holds tray configuration.
type Config struct {
	Enabled  bool
	OnToggle func(enabled bool)
	OnQuit   func()
	Logger   *slog.Logger
}

// New creates a new system tray icon.
func New(cfg Config) *Tray {
	return &Tray{
		enabled:  cfg.Enabled,
		onToggle: cfg.OnToggle,
		onQuit:   cfg.OnQuit,
		logger:   cfg.Logger,
	}
}

// Run starts the system tray. This blocks until Quit is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconEnabled)
	systray.SetTitle("map2")
	t.updateTooltip()

	t.statusItem = systray.AddMenuItem("✓ Enabled", "Pause or resume key remapping")

	systray.AddSeparator()

	t.windowClassItem = systray.AddMenuItem("focus: (unknown)", "Currently focused window class")
	t.windowClassItem.Disable()

	systray.AddSeparator()

	t.quitItem = systray.AddMenuItem("Quit", "Exit map2")

	go t.handleClicks()
}

// handleClicks processes menu item clicks. Matches the teacher's
// poll-with-default select loop, trimmed to the two clickable items.
func (t *Tray) handleClicks() {
	for {
		select {
		case <-t.statusItem.ClickedCh:
			t.toggleEnabled()
		case <-t.quitItem.ClickedCh:
			if t.onQuit != nil {
				t.onQuit()
			}
			systray.Quit()
			return
		default:
			time.Sleep(100 * time.Millisecond)
		}
	}
}

func (t *Tray) toggleEnabled() {
	t.enabled = !t.enabled

	if t.enabled {
		t.statusItem.SetTitle("✓ Enabled")
		systray.SetIcon(iconEnabled)
	} else {
		t.statusItem.SetTitle("✗ Disabled")
		systray.SetIcon(iconDisabled)
	}
	t.updateTooltip()

	if t.onToggle != nil {
		t.onToggle(t.enabled)
	}
}

// SetWindowClass updates the read-only focused-window-class menu entry.
// Called periodically by the caller polling the mediator, mirroring the
// way active_window_class() queries C7 from script code.
func (t *Tray) SetWindowClass(class string, ok bool) {
	if t.windowClassItem == nil {
		return
	}
	label := "focus: (none)"
	if ok {
		label = "focus: " + class
	}
	t.windowClassItem.SetTitle(label)
}

func (t *Tray) updateTooltip() {
	status := "Enabled"
	if !t.enabled {
		status = "Disabled"
	}
	systray.SetTooltip("map2: " + status)
}

func (t *Tray) onExit() {
	t.logger.Info("tray exiting")
}

// Quit stops the system tray.
func (t *Tray) Quit() {
	systray.Quit()
}

// SetEnabled updates the displayed toggle state without invoking OnToggle,
// for syncing the menu after an external change.
func (t *Tray) SetEnabled(enabled bool) {
	t.enabled = enabled
	if t.statusItem != nil {
		if enabled {
			t.statusItem.SetTitle("✓ Enabled")
		} else {
			t.statusItem.SetTitle("✗ Disabled")
		}
	}
	t.updateTooltip()
}
