package sweep

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeService struct {
	users     func(ctx context.Context) ([]string, error)
	autoClose func(ctx context.Context, userID string) (int, error)
}

func (f *fakeService) UsersWithOpenDays(ctx context.Context) ([]string, error) {
	return f.users(ctx)
}

func (f *fakeService) AutoClosePendingDays(ctx context.Context, userID string) (int, error) {
	return f.autoClose(ctx, userID)
}

func TestRunOnce(t *testing.T) {
	var visited []string
	svc := &fakeService{
		users: func(ctx context.Context) ([]string, error) {
			return []string{"usr_a", "usr_b"}, nil
		},
		autoClose: func(ctx context.Context, userID string) (int, error) {
			visited = append(visited, userID)
			if userID == "usr_a" {
				return 3, nil
			}
			return 1, nil
		},
	}

	total, err := New(svc, time.Minute).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if total != 4 {
		t.Fatalf("total = %d, want 4", total)
	}
	if len(visited) != 2 {
		t.Fatalf("visited = %v", visited)
	}
}

func TestRunOnceSkipsFailingUser(t *testing.T) {
	svc := &fakeService{
		users: func(ctx context.Context) ([]string, error) {
			return []string{"usr_a", "usr_b"}, nil
		},
		autoClose: func(ctx context.Context, userID string) (int, error) {
			if userID == "usr_a" {
				return 0, errors.New("connection reset")
			}
			return 2, nil
		},
	}

	total, err := New(svc, time.Minute).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("a failing user must not abort the sweep: %v", err)
	}
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}
}

func TestRunOnceListFailure(t *testing.T) {
	svc := &fakeService{
		users: func(ctx context.Context) ([]string, error) {
			return nil, errors.New("db down")
		},
	}

	if _, err := New(svc, time.Minute).RunOnce(context.Background()); err == nil {
		t.Fatal("expected error when the user listing fails")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	sweeps := make(chan struct{}, 16)
	svc := &fakeService{
		users: func(ctx context.Context) ([]string, error) {
			sweeps <- struct{}{}
			return nil, nil
		},
		autoClose: func(ctx context.Context, userID string) (int, error) { return 0, nil },
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		New(svc, 5*time.Millisecond).Run(ctx)
		close(done)
	}()

	<-sweeps // initial sweep ran
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
