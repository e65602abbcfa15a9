package dispatch

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testDispatcher() *Dispatcher {
	return New(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSubmitSupersedesInFlightTask(t *testing.T) {
	d := testDispatcher()

	started := make(chan struct{})
	var firstCancelled atomic.Bool
	first := d.Submit(42, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		firstCancelled.Store(true)
	})
	<-started

	second := d.Submit(42, func(ctx context.Context) {})

	<-first.Done()
	<-second.Done()

	if !firstCancelled.Load() {
		t.Fatalf("first task was not cancelled by the second submission")
	}
	if first.ID() == second.ID() {
		t.Fatalf("task ids must differ")
	}
	if got := d.Active(); got != 0 {
		t.Fatalf("Active() = %d after completion, want 0", got)
	}
}

func TestStaleCompletionDoesNotEvictNewerHandle(t *testing.T) {
	d := testDispatcher()

	release := make(chan struct{})
	firstRunning := make(chan struct{})
	first := d.Submit(7, func(ctx context.Context) {
		close(firstRunning)
		<-release
	})
	<-firstRunning

	secondRunning := make(chan struct{})
	secondDone := make(chan struct{})
	second := d.Submit(7, func(ctx context.Context) {
		close(secondRunning)
		<-secondDone
	})
	<-secondRunning

	// Let the superseded first task finish while the second still runs. Its
	// cleanup must not remove the second task's registry entry.
	close(release)
	<-first.Done()

	if got := d.Active(); got != 1 {
		t.Fatalf("Active() = %d while newer task runs, want 1", got)
	}
	close(secondDone)
	<-second.Done()
	if got := d.Active(); got != 0 {
		t.Fatalf("Active() = %d after drain, want 0", got)
	}
}

func TestSlowFirstFastSecondOnlySecondReplies(t *testing.T) {
	d := testDispatcher()

	type backendCall struct {
		delay time.Duration
		reply string
	}
	var (
		mu       sync.Mutex
		replies  []string
		statsInc int
	)
	// Mirrors the real unit of work: call the backend, then check for
	// cancellation before any visible side effect.
	run := func(call backendCall) func(ctx context.Context) {
		return func(ctx context.Context) {
			select {
			case <-time.After(call.delay):
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				return
			}
			mu.Lock()
			replies = append(replies, call.reply)
			statsInc++
			mu.Unlock()
		}
	}

	a := d.Submit(42, run(backendCall{delay: time.Hour, reply: "A"}))
	b := d.Submit(42, run(backendCall{delay: 10 * time.Millisecond, reply: "B"}))

	<-a.Done()
	<-b.Done()

	mu.Lock()
	defer mu.Unlock()
	if len(replies) != 1 || replies[0] != "B" {
		t.Fatalf("replies = %v, want [B]", replies)
	}
	if statsInc != 1 {
		t.Fatalf("stats increments = %d, want exactly 1", statsInc)
	}
}

func TestAtMostOneNonTerminalTaskPerSender(t *testing.T) {
	d := testDispatcher()

	block := make(chan struct{})
	for i := 0; i < 20; i++ {
		d.Submit(1, func(ctx context.Context) {
			select {
			case <-block:
			case <-ctx.Done():
			}
		})
	}
	if got := d.Active(); got != 1 {
		t.Fatalf("Active() = %d, want 1 (single-flight per sender)", got)
	}
	close(block)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

func TestShutdownCancelsEverything(t *testing.T) {
	d := testDispatcher()

	var cancelled atomic.Int32
	for id := int64(1); id <= 3; id++ {
		d.Submit(id, func(ctx context.Context) {
			<-ctx.Done()
			cancelled.Add(1)
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if got := cancelled.Load(); got != 3 {
		t.Fatalf("cancelled = %d, want 3", got)
	}
}
