package poolrt

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// gateState mirrors spec.md §4.7 WaitOnMainThread's three states.
type gateState int

const (
	gateClear gateState = iota
	gateWaiting
	gateBroken
)

// Gate is the Go rendering of WaitOnMainThread: non-main callers call
// Signal and block until the main loop's Check runs and clears it, or
// until Destroy poisons every waiter so a canceled run doesn't deadlock
// (spec.md §5 "Cancellation").
type Gate struct {
	mu      sync.Mutex
	state   gateState
	waiters []chan struct{}
	recover func(ctx context.Context) error
	notify  chan struct{}
}

// NewGate builds a gate whose recovery action is recoverFn, invoked once
// per waiting episode by the coordinator's pump loop via Check.
func NewGate(recoverFn func(ctx context.Context) error) *Gate {
	return &Gate{recover: recoverFn, notify: make(chan struct{}, 1)}
}

// Requested is readable whenever at least one caller is blocked in Signal,
// letting the coordinator's pump select on it alongside queue-room and
// abort events instead of polling Check on a timer — the channel-based
// analogue of spec.md §4.7's MultiCondition disjunction.
func (g *Gate) Requested() <-chan struct{} {
	return g.notify
}

// Signal implements retriever.EnospcGate and the note-scraper's no-internet
// escalation: it requests main-thread attention and blocks until Check
// clears the gate, Destroy poisons it, or ctx is canceled.
func (g *Gate) Signal(ctx context.Context) error {
	g.mu.Lock()
	if g.state == gateBroken {
		g.mu.Unlock()
		return fmt.Errorf("poolrt: gate destroyed")
	}
	ch := make(chan struct{})
	g.waiters = append(g.waiters, ch)
	g.state = gateWaiting
	g.mu.Unlock()

	select {
	case g.notify <- struct{}{}:
	default:
	}

	select {
	case <-ch:
		g.mu.Lock()
		broken := g.state == gateBroken
		g.mu.Unlock()
		if broken {
			return fmt.Errorf("poolrt: gate destroyed")
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Check is called from the single main pump goroutine: if anyone is
// waiting, run the recovery action and wake every waiter on success, or
// leave them parked (to retry Check again) on failure.
func (g *Gate) Check(ctx context.Context) error {
	g.mu.Lock()
	if g.state != gateWaiting {
		g.mu.Unlock()
		return nil
	}
	g.mu.Unlock()

	if err := g.recover(ctx); err != nil {
		return err
	}

	g.mu.Lock()
	waiters := g.waiters
	g.waiters = nil
	g.state = gateClear
	g.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
	return nil
}

// Destroy poisons the gate so every current and future Signal call returns
// immediately with an error, per spec.md §5's abort semantics.
func (g *Gate) Destroy() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = gateBroken
	for _, ch := range g.waiters {
		close(ch)
	}
	g.waiters = nil
}

// NewInternetGate builds the "no internet" recovery per spec.md §4.7: a DNS
// probe loop with exponential backoff capped at 15 minutes.
func NewInternetGate(probeHost string) *Gate {
	backoff := time.Second
	const maxBackoff = 15 * time.Minute

	return NewGate(func(ctx context.Context) error {
		for {
			if _, err := net.DefaultResolver.LookupHost(ctx, probeHost); err == nil {
				backoff = time.Second
				return nil
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	})
}

// NewEnospcGate builds the disk-full recovery per spec.md §4.7: in an
// interactive run the recover callback should prompt and wait for
// confirmation; in a non-interactive run it should return a permanent
// error instead of hanging forever. prompt is nil for non-interactive runs.
func NewEnospcGate(prompt func(ctx context.Context) error) *Gate {
	if prompt == nil {
		prompt = func(ctx context.Context) error {
			return fmt.Errorf("poolrt: disk full and not running interactively")
		}
	}
	return NewGate(prompt)
}
