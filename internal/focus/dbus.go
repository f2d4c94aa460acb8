package focus

import (
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
)

// DBusWatcher is the best-effort Wayland-compositor path: GNOME Shell
// exposes an Eval method on org.gnome.Shell that can evaluate a JS
// snippet in the shell process and return its result, which is the only
// portable way to ask a Wayland compositor "what's focused" without a
// compositor-specific protocol extension. Grounded on the
// conn.Object(...).Call(...) shape in
// AshBuk-speak-to-ai/hotkeys/providers/dbus_provider.go.
type DBusWatcher struct {
	logger *slog.Logger

	mu   sync.Mutex
	conn *dbus.Conn
}

func NewDBusWatcher(logger *slog.Logger) *DBusWatcher {
	return &DBusWatcher{logger: logger}
}

const focusedWindowClassJS = `
(function() {
	try {
		let w = global.display.focus_window;
		return w ? w.get_wm_class() : "";
	} catch (e) {
		return "";
	}
})()`

func (w *DBusWatcher) connect() (*dbus.Conn, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		return w.conn, nil
	}
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, err
	}
	w.conn = conn
	return conn, nil
}

// Current asks GNOME Shell for the focused window's WM_CLASS. It never
// returns an error: any failure (no session bus, non-GNOME compositor,
// Eval disabled by org.gnome.Shell's "unsafe-mode" policy) degrades to
// {OK: false}, matching spec §4.4's "absent" contract.
func (w *DBusWatcher) Current() Info {
	conn, err := w.connect()
	if err != nil {
		w.logger.Debug("dbus session bus unavailable", "error", err)
		return Info{OK: false}
	}

	obj := conn.Object("org.gnome.Shell", "/org/gnome/Shell")
	var success bool
	var result string
	call := obj.Call("org.gnome.Shell.Eval", 0, focusedWindowClassJS)
	if call.Err != nil {
		w.logger.Debug("gnome shell Eval unavailable", "error", call.Err)
		return Info{OK: false}
	}
	if err := call.Store(&success, &result); err != nil {
		w.logger.Debug("gnome shell Eval returned unexpected shape", "error", err)
		return Info{OK: false}
	}
	if !success || result == "" {
		return Info{OK: false}
	}
	return Info{Class: result, OK: true}
}

// Close releases the session bus connection, if one was opened.
func (w *DBusWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return nil
	}
	err := w.conn.Close()
	w.conn = nil
	return err
}
