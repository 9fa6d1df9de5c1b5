package connectivity

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func quietLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func TestTracker_StartsOnline(t *testing.T) {
	tracker := NewTracker(nil, quietLogger())

	if !tracker.IsOnline() {
		t.Error("new tracker should be online")
	}

	state, err := tracker.State(context.Background())
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if !state.Online {
		t.Error("State().Online = false")
	}
}

func TestTracker_ReconnectFiresOncePerTransition(t *testing.T) {
	tracker := NewTracker(nil, quietLogger())
	ctx := context.Background()

	var fired int32
	tracker.OnReconnect(func(context.Context) {
		atomic.AddInt32(&fired, 1)
	})

	// Success while online: no reconnect
	tracker.RecordSuccess(ctx)
	if got := atomic.LoadInt32(&fired); got != 0 {
		t.Fatalf("fired = %d after success while online, want 0", got)
	}

	tracker.RecordFailure(ctx, errors.New("connection refused"))
	tracker.RecordFailure(ctx, errors.New("connection refused"))
	if tracker.IsOnline() {
		t.Fatal("tracker should be offline after failure")
	}

	tracker.RecordSuccess(ctx)
	tracker.RecordSuccess(ctx)
	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Errorf("fired = %d after one reconnect, want 1", got)
	}

	tracker.RecordFailure(ctx, errors.New("timeout"))
	tracker.RecordSuccess(ctx)
	if got := atomic.LoadInt32(&fired); got != 2 {
		t.Errorf("fired = %d after second reconnect, want 2", got)
	}
}

func TestTracker_MultipleCallbacks(t *testing.T) {
	tracker := NewTracker(nil, quietLogger())
	ctx := context.Background()

	var a, b int32
	tracker.OnReconnect(func(context.Context) { atomic.AddInt32(&a, 1) })
	tracker.OnReconnect(func(context.Context) { atomic.AddInt32(&b, 1) })

	tracker.RecordFailure(ctx, errors.New("down"))
	tracker.RecordSuccess(ctx)

	if atomic.LoadInt32(&a) != 1 || atomic.LoadInt32(&b) != 1 {
		t.Errorf("callbacks fired a=%d b=%d, want 1 each", a, b)
	}
}

func TestTracker_RedisMirror(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	client.Del(ctx, RedisKeyState)
	t.Cleanup(func() {
		client.Del(context.Background(), RedisKeyState)
		client.Close()
	})

	writer := NewTracker(client, quietLogger())
	reader := NewTracker(client, quietLogger())

	writer.RecordFailure(ctx, errors.New("down"))

	state, err := reader.State(ctx)
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if state.Online {
		t.Error("reader should see the offline state written by another tracker")
	}
	if state.ConsecutiveFailures != 1 {
		t.Errorf("ConsecutiveFailures = %d, want 1", state.ConsecutiveFailures)
	}
}
