package poolrt

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestPoolRunsAllJobs(t *testing.T) {
	p := New(context.Background(), 4, 8)

	var n int32
	for i := 0; i < 20; i++ {
		if err := p.Submit(func(ctx context.Context) error {
			atomic.AddInt32(&n, 1)
			return nil
		}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close() = %v, want nil", err)
	}
	if n != 20 {
		t.Errorf("ran %d jobs, want 20", n)
	}
}

func TestPoolCancelsOnJobError(t *testing.T) {
	p := New(context.Background(), 2, 8)
	wantErr := errors.New("boom")

	_ = p.Submit(func(ctx context.Context) error {
		return wantErr
	})

	err := p.Close()
	if err != wantErr {
		t.Errorf("Close() = %v, want %v", err, wantErr)
	}
}

func TestPoolSubmitUnblocksOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := New(ctx, 1, 1)
	cancel()

	// The context is already canceled, so Submit may either place the job
	// in the free queue slot or report context.Canceled; it must not block.
	err := p.Submit(func(ctx context.Context) error { return nil })
	if err != nil && err != context.Canceled {
		t.Fatalf("Submit() = %v, want nil or context.Canceled", err)
	}
	_ = p.Close()
}
