package broadcast

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type fakeSender struct {
	sent    []int64
	failIDs map[int64]bool
}

func (f *fakeSender) SendMessage(ctx context.Context, chatID int64, text string) error {
	if f.failIDs[chatID] {
		return errors.New("delivery failed")
	}
	f.sent = append(f.sent, chatID)
	return nil
}

type fakeBans map[int64]bool

func (f fakeBans) IsBanned(id int64) bool { return f[id] }

func testEngine(sender Sender, bans BanFilter) *Engine {
	e := NewEngine(sender, bans, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return e
}

func TestBroadcastTalliesFailuresIndependently(t *testing.T) {
	sender := &fakeSender{failIDs: map[int64]bool{2: true}}
	e := testEngine(sender, fakeBans{})

	res := e.Broadcast(context.Background(), "hello", []int64{1, 2, 3}, time.Millisecond)
	if res.Sent != 2 || res.Failed != 1 || res.Skipped != 0 {
		t.Fatalf("result = %+v, want sent=2 failed=1 skipped=0", res)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("deliveries = %v, want [1 3]", sender.sent)
	}
	if res.Sent+res.Failed != 3-res.Skipped {
		t.Fatalf("tallies do not cover the recipient set: %+v", res)
	}
}

func TestBroadcastExcludesBannedUpFront(t *testing.T) {
	sender := &fakeSender{}
	e := testEngine(sender, fakeBans{2: true})

	res := e.Broadcast(context.Background(), "hello", []int64{1, 2, 3}, 0)
	if res.Sent != 2 || res.Failed != 0 || res.Skipped != 1 {
		t.Fatalf("result = %+v, want sent=2 failed=0 skipped=1", res)
	}
	for _, id := range sender.sent {
		if id == 2 {
			t.Fatalf("banned recipient received broadcast")
		}
	}
}

func TestBroadcastPacesBetweenSends(t *testing.T) {
	sender := &fakeSender{}
	e := NewEngine(sender, fakeBans{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	var naps []time.Duration
	e.sleep = func(ctx context.Context, d time.Duration) error {
		naps = append(naps, d)
		return nil
	}

	e.Broadcast(context.Background(), "x", []int64{1, 2, 3}, 50*time.Millisecond)
	// Pacing goes between sends, not after the last one.
	if len(naps) != 2 {
		t.Fatalf("naps = %d, want 2", len(naps))
	}
	for _, d := range naps {
		if d != 50*time.Millisecond {
			t.Fatalf("nap = %v, want 50ms", d)
		}
	}
}

func TestBroadcastStopsOnCancellation(t *testing.T) {
	sender := &fakeSender{}
	e := NewEngine(sender, fakeBans{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	e.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	res := e.Broadcast(ctx, "x", []int64{1, 2, 3}, time.Millisecond)
	if res.Sent != 1 {
		t.Fatalf("sent = %d, want 1 before cancellation", res.Sent)
	}
}
