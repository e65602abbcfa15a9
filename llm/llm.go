package llm

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout marks a backend call that exceeded its deadline. Callers treat
// it as a transient failure and tell the user to retry; every other backend
// error is reported generically.
var ErrTimeout = errors.New("llm: request timed out")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

type Result struct {
	Text     string
	Usage    Usage
	Duration time.Duration
}

type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	TopP        float64
}

type Client interface {
	Chat(ctx context.Context, req Request) (Result, error)
}

// IsTimeout reports whether err is the timeout outcome of a backend call.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
