package offline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Sternrassler/civicsense-gateway/pkg/logging"
	"github.com/rs/zerolog"
)

// SignalKind names a lifecycle or replay signal.
type SignalKind string

const (
	SignalInstall  SignalKind = "install"
	SignalActivate SignalKind = "activate"
	SignalSync     SignalKind = "sync"
)

// Signal is delivered to the controller by a Host.
type Signal struct {
	Kind SignalKind
	// Tag is set for SignalSync.
	Tag string
}

// SyncSignal returns a replay signal for tag.
func SyncSignal(tag string) Signal {
	return Signal{Kind: SignalSync, Tag: tag}
}

// ParseSignal parses "install", "activate" or "sync:<tag>".
func ParseSignal(s string) (Signal, error) {
	kind, tag, _ := strings.Cut(s, ":")
	switch SignalKind(kind) {
	case SignalInstall, SignalActivate:
		if tag != "" {
			return Signal{}, fmt.Errorf("signal %q takes no tag", kind)
		}
		return Signal{Kind: SignalKind(kind)}, nil
	case SignalSync:
		if tag == "" {
			return Signal{}, fmt.Errorf("sync signal requires a tag (sync:<tag>)")
		}
		return SyncSignal(tag), nil
	default:
		return Signal{}, fmt.Errorf("unknown signal %q", s)
	}
}

func (s Signal) String() string {
	if s.Kind == SignalSync {
		return string(s.Kind) + ":" + s.Tag
	}
	return string(s.Kind)
}

// Host delivers signals to a controller. Every handler runs in its own
// goroutine; the host tracks them until they settle so shutdown can wait.
type Host struct {
	ctx        context.Context
	controller *Controller
	logger     zerolog.Logger
	wg         sync.WaitGroup
}

// NewHost creates a host. ctx bounds every handler it runs.
func NewHost(ctx context.Context, controller *Controller) *Host {
	return &Host{
		ctx:        ctx,
		controller: controller,
		logger:     logging.NewLogger(logging.ComponentHost),
	}
}

// Dispatch runs the handler for sig and returns a channel that receives its
// result once (nil on success) and is then closed. Handler failures and
// panics are logged and reported through the channel only.
func (h *Host) Dispatch(sig Signal) <-chan error {
	done := make(chan error, 1)
	h.wg.Add(1)

	go func() {
		defer h.wg.Done()
		defer close(done)

		err := h.handle(sig)
		if err != nil {
			h.logger.Error().Err(err).Str("signal", sig.String()).Msg("Signal handler failed")
		}
		done <- err
	}()

	return done
}

// Start runs install then activate, in order, and returns the first failure.
func (h *Host) Start() error {
	if err := <-h.Dispatch(Signal{Kind: SignalInstall}); err != nil {
		return err
	}
	return <-h.Dispatch(Signal{Kind: SignalActivate})
}

// Wait blocks until every dispatched handler has settled.
func (h *Host) Wait() {
	h.wg.Wait()
}

func (h *Host) handle(sig Signal) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("signal %s: panic: %v", sig, r)
		}
	}()

	switch sig.Kind {
	case SignalInstall:
		return h.controller.Install(h.ctx)
	case SignalActivate:
		_, err := h.controller.Activate(h.ctx)
		return err
	case SignalSync:
		_, err := h.controller.Sync(h.ctx, sig.Tag)
		return err
	default:
		return fmt.Errorf("unknown signal %q", sig.Kind)
	}
}
