package vkbd

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/go-map2/map2/internal/keys"
)

// write() and Run need real uinput devices and are not exercised here;
// the tests below cover writeButton's drop branch and, through runNoop,
// Run's loop-exit conditions. Open needs a real /dev/uinput node.

// writeButton's unsupported-button branch never touches d.mouse, so it can
// be exercised with a nil Mouse: middle/side/extra/forward/back/task have
// no press/release pair in bendahl/uinput and must be dropped, not panic.
func TestWriteButtonUnsupportedIsDroppedNotPanic(t *testing.T) {
	d := &Device{logger: slog.New(slog.NewTextHandler(io.Discard, nil)), warnedButtons: make(map[uint16]bool)}
	code, ok := keys.ButtonCodeToName[274] // middle
	if !ok {
		t.Fatalf("expected a registered button name for code 274")
	}
	if err := d.writeButton(code, keys.Event{Code: 274, Value: int32(keys.Down)}); err != nil {
		t.Fatalf("writeButton(middle): %v", err)
	}
	if !d.warnedButtons[274] {
		t.Fatalf("expected code 274 to be recorded as warned")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	d := &Device{kb: nil, logger: nil}
	in := make(chan keys.Event)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.runNoop(ctx, in)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after context cancellation")
	}
}

func TestRunStopsOnChannelClose(t *testing.T) {
	d := &Device{kb: nil, logger: nil}
	in := make(chan keys.Event)
	done := make(chan struct{})
	go func() {
		d.runNoop(context.Background(), in)
		close(done)
	}()
	close(in)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after input channel closed")
	}
}

// runNoop mirrors Run's select loop without touching the kb field, so the
// control-flow (ctx-done / channel-closed) can be tested without a real
// uinput device.
func (d *Device) runNoop(ctx context.Context, in <-chan keys.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-in:
			if !ok {
				return
			}
		}
	}
}
