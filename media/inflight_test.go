package media

import (
	"context"
	"testing"
	"time"
)

func TestInFlightSerializesSamePath(t *testing.T) {
	f := NewInFlight()
	ctx := context.Background()

	release := f.Acquire(ctx, "/a")

	acquired := make(chan struct{})
	go func() {
		r := f.Acquire(ctx, "/a")
		close(acquired)
		r()
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire returned before the first was released")
	case <-time.After(20 * time.Millisecond):
	}

	release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Acquire did not unblock after release")
	}
}

func TestInFlightDistinctPathsDoNotBlock(t *testing.T) {
	f := NewInFlight()
	ctx := context.Background()

	releaseA := f.Acquire(ctx, "/a")
	defer releaseA()

	done := make(chan struct{})
	go func() {
		f.Acquire(ctx, "/b")()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Acquire on a distinct path blocked")
	}
}

func TestInFlightContextCancellation(t *testing.T) {
	f := NewInFlight()
	ctx := context.Background()

	release := f.Acquire(ctx, "/a")
	defer release()

	cancelCtx, cancel := context.WithCancel(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		f.Acquire(cancelCtx, "/a")()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Acquire did not return promptly after context cancellation")
	}
}
