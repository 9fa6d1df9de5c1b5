package connectivity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for connectivity tracking.
var (
	onlineGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "civicsense_online",
		Help: "1 when the origin is reachable, 0 after a network failure",
	})

	reconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "civicsense_reconnects_total",
		Help: "Total number of offline to online transitions",
	})

	disconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "civicsense_disconnects_total",
		Help: "Total number of online to offline transitions",
	})
)

// ReconnectFunc is called after an offline period ends.
type ReconnectFunc func(ctx context.Context)

// Tracker follows origin reachability.
// With a Redis client, transitions are mirrored to Redis so every gateway
// instance can read the same state.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger

	mu          sync.Mutex
	state       State
	onReconnect []ReconnectFunc
}

// NewTracker creates a tracker in the online state. redisClient may be nil.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	onlineGauge.Set(1)
	return &Tracker{
		redis:  redisClient,
		logger: logger,
		state:  NewState(time.Now()),
	}
}

// OnReconnect registers fn to run on every offline to online transition.
func (t *Tracker) OnReconnect(fn ReconnectFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onReconnect = append(t.onReconnect, fn)
}

// RecordSuccess notes that the origin answered.
func (t *Tracker) RecordSuccess(ctx context.Context) {
	t.mu.Lock()
	reconnected := t.state.recordSuccess(time.Now())
	state := t.state
	callbacks := append([]ReconnectFunc(nil), t.onReconnect...)
	t.mu.Unlock()

	if !reconnected {
		return
	}

	onlineGauge.Set(1)
	reconnectsTotal.Inc()
	t.logger.Info().Time("since", state.LastChange).Msg("Origin reachable again")
	t.mirror(ctx, state)

	for _, fn := range callbacks {
		fn(ctx)
	}
}

// RecordFailure notes that the origin could not be reached.
func (t *Tracker) RecordFailure(ctx context.Context, err error) {
	t.mu.Lock()
	wentOffline := t.state.recordFailure(time.Now())
	state := t.state
	t.mu.Unlock()

	if !wentOffline {
		t.logger.Debug().
			Err(err).
			Int("consecutive_failures", state.ConsecutiveFailures).
			Msg("Origin still unreachable")
		return
	}

	onlineGauge.Set(0)
	disconnectsTotal.Inc()
	t.logger.Warn().Err(err).Msg("Origin unreachable - serving offline responses")
	t.mirror(ctx, state)
}

// IsOnline reports the local view of reachability.
func (t *Tracker) IsOnline() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Online
}

// State returns the shared state from Redis when configured, or the local
// state otherwise (also when Redis holds nothing yet).
func (t *Tracker) State(ctx context.Context) (*State, error) {
	t.mu.Lock()
	local := t.state
	t.mu.Unlock()

	if t.redis == nil {
		return &local, nil
	}

	data, err := t.redis.Get(ctx, RedisKeyState).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &local, nil
		}
		return nil, fmt.Errorf("get connectivity state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse connectivity state: %w", err)
	}
	return &state, nil
}

func (t *Tracker) mirror(ctx context.Context, state State) {
	if t.redis == nil {
		return
	}

	data, err := json.Marshal(state)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Failed to encode connectivity state")
		return
	}
	// Detached from request cancellation: the transition already happened
	if err := t.redis.Set(context.WithoutCancel(ctx), RedisKeyState, data, 0).Err(); err != nil {
		t.logger.Warn().Err(err).Msg("Failed to store connectivity state in redis")
	}
}
