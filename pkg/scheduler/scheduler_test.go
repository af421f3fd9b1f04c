package scheduler

import (
	"context"
	"testing"
	"time"
)

func TestEvery(t *testing.T) {
	s := New()
	defer s.Stop()

	ticks := make(chan struct{}, 4)
	s.Every(5*time.Millisecond, FuncJob(func(ctx context.Context) {
		select {
		case ticks <- struct{}{}:
		default:
		}
	}))
	for i := 0; i < 2; i++ {
		select {
		case <-ticks:
		case <-time.After(time.Second):
			t.Fatal("ticker never fired")
		}
	}
}

func TestOnceAfter(t *testing.T) {
	s := New()
	defer s.Stop()

	done := make(chan struct{})
	s.OnceAfter(5*time.Millisecond, FuncJob(func(ctx context.Context) { close(done) }))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job never ran")
	}
}

func TestOnceAfterStopped(t *testing.T) {
	s := New()
	ran := make(chan struct{}, 1)
	s.OnceAfter(50*time.Millisecond, FuncJob(func(ctx context.Context) { ran <- struct{}{} }))
	s.Stop()

	select {
	case <-ran:
		t.Fatal("job ran after stop")
	case <-time.After(150 * time.Millisecond):
	}
}
