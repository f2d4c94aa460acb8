package focus

import (
	"context"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// X11Watcher shells out to xprop, since no X11 protocol library appears
// anywhere in the example pack; this is SPEC_FULL.md's documented
// standard-library exception (os/exec) for this one component.
type X11Watcher struct {
	logger  *slog.Logger
	timeout time.Duration
}

func NewX11Watcher(logger *slog.Logger) *X11Watcher {
	return &X11Watcher{logger: logger, timeout: 500 * time.Millisecond}
}

var (
	activeWindowRe = regexp.MustCompile(`window id # (0x[0-9a-fA-F]+)`)
	wmClassRe      = regexp.MustCompile(`WM_CLASS\(STRING\) = "[^"]*", "([^"]*)"`)
)

// Current performs the round trip: resolve the active window id, then its
// WM_CLASS. Any failure (no X11 session, xprop missing, unmapped window)
// yields {OK: false} rather than an error — a watcher is polled
// continuously and errors here are routine, not exceptional.
func (w *X11Watcher) Current() Info {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	idOut, err := exec.CommandContext(ctx, "xprop", "-root", "_NET_ACTIVE_WINDOW").Output()
	if err != nil {
		w.logger.Debug("xprop -root failed", "error", err)
		return Info{OK: false}
	}
	m := activeWindowRe.FindStringSubmatch(string(idOut))
	if m == nil {
		return Info{OK: false}
	}
	winID := m[1]

	classOut, err := exec.CommandContext(ctx, "xprop", "-id", winID, "WM_CLASS").Output()
	if err != nil {
		w.logger.Debug("xprop -id failed", "window", winID, "error", err)
		return Info{OK: false}
	}
	cm := wmClassRe.FindStringSubmatch(strings.TrimSpace(string(classOut)))
	if cm == nil {
		return Info{OK: false}
	}
	return Info{Class: cm[1], OK: true}
}
