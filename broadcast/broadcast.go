// Package broadcast fans one message out to many recipients with a fixed
// inter-send pace, tolerating per-recipient failure.
package broadcast

import (
	"context"
	"log/slog"
	"time"
)

// Sender is the outbound channel slice the engine needs.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// BanFilter excludes recipients before the iteration starts.
type BanFilter interface {
	IsBanned(id int64) bool
}

type Engine struct {
	sender Sender
	bans   BanFilter
	logger *slog.Logger
	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewEngine(sender Sender, bans BanFilter, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		sender: sender,
		bans:   bans,
		logger: logger,
		sleep:  sleepCtx,
	}
}

type Result struct {
	Sent   int
	Failed int
	// Skipped counts recipients removed by the ban pre-filter.
	Skipped int
}

// Broadcast delivers text to every non-banned recipient, pacing consecutive
// sends by pace. One recipient's failure never aborts the batch;
// Sent+Failed always equals the recipient count minus Skipped. Context
// cancellation stops the run early with the tallies so far.
func (e *Engine) Broadcast(ctx context.Context, text string, recipients []int64, pace time.Duration) Result {
	eligible := make([]int64, 0, len(recipients))
	skipped := 0
	for _, id := range recipients {
		if e.bans != nil && e.bans.IsBanned(id) {
			skipped++
			continue
		}
		eligible = append(eligible, id)
	}

	res := Result{Skipped: skipped}
	for i, id := range eligible {
		if ctx.Err() != nil {
			e.logger.Warn("broadcast_interrupted", "sent", res.Sent, "failed", res.Failed, "remaining", len(eligible)-i)
			return res
		}
		if err := e.sender.SendMessage(ctx, id, text); err != nil {
			res.Failed++
			e.logger.Warn("broadcast_send_error", "recipient", id, "error", err.Error())
		} else {
			res.Sent++
		}
		if i < len(eligible)-1 && pace > 0 {
			if err := e.sleep(ctx, pace); err != nil {
				e.logger.Warn("broadcast_interrupted", "sent", res.Sent, "failed", res.Failed, "remaining", len(eligible)-i-1)
				return res
			}
		}
	}
	e.logger.Info("broadcast_done", "sent", res.Sent, "failed", res.Failed, "skipped", res.Skipped)
	return res
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
