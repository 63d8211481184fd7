// Package controlloop implements the control loop (C5): it drives the
// shard mapper (C4) off a watch subscription and the materializer (C3)
// off a periodic ticker, the way watch.WatchPlan.Run drives a blocking
// query loop and autopilot.Autopilot.run drives a ticker loop, both
// under one stop channel and a done-channel fan-in (spec.md §4.5, §5).
package controlloop

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/time/rate"

	"github.com/bisdn-oss/upsf-shard-reconciler/internal/metrics"
	"github.com/bisdn-oss/upsf-shard-reconciler/internal/upsf"
)

// retryInterval is the fixed watch-resubscribe back-off (spec.md §4.5:
// "a terminated or errored stream causes a 1-second back-off").
const retryInterval = 1 * time.Second

// watchedKinds is the fixed set of item kinds the event-driven reconciler
// subscribes to; any event carrying a non-empty name in one of these
// kinds triggers a sweep (spec.md §4.5).
var watchedKinds = []upsf.EventKind{
	upsf.EventKindSGUP,
	upsf.EventKindTSF,
	upsf.EventKindNetworkConnection,
	upsf.EventKindShard,
}

// Sweeper is the C4 entry point the control loop drives. *mapper.Mapper
// satisfies this.
type Sweeper interface {
	Sweep(ctx context.Context) error
}

// Materializer is the C3 entry point the control loop drives on a timer.
// *materializer.Materializer satisfies this.
type Materializer interface {
	Materialize(ctx context.Context) error
}

// Supervisor owns the two cooperative tasks described in spec.md §4.5
// and §5: the watch-driven reconciler and the periodic materializer. A
// single in-flight sweep is enforced across both triggers via a
// buffered "token" channel, the single-flight pattern spec.md §5
// requires.
type Supervisor struct {
	Gateway      upsf.Gateway
	Mapper       Sweeper
	Materializer Materializer
	Logger       hclog.Logger

	// RegistrationInterval is the C3 tick period; zero or
	// AutoRegister=false disables the periodic task entirely.
	RegistrationInterval time.Duration
	AutoRegister         bool

	// Limiter caps how often a watch-triggered sweep may actually run,
	// so a burst of events collapses into one re-snapshot rather than
	// one sweep per event (spec.md §4.5: "the stream is treated as a
	// liveness signal; no event payload ... is required").
	Limiter *rate.Limiter

	// Metrics, when set, records sweep/materialize counters and sweep
	// duration. Nil is a valid no-op default for tests.
	Metrics *metrics.Sink

	stopCh   chan struct{}
	sweepSem chan struct{}
	doneCh   chan struct{}
}

// New returns a Supervisor ready for Run.
func New(gw upsf.Gateway, m Sweeper, mat Materializer, logger hclog.Logger, registrationInterval time.Duration, autoRegister bool) *Supervisor {
	return &Supervisor{
		Gateway:              gw,
		Mapper:               m,
		Materializer:         mat,
		Logger:               logger.Named("controlloop"),
		RegistrationInterval: registrationInterval,
		AutoRegister:         autoRegister,
		Limiter:              rate.NewLimiter(rate.Every(100*time.Millisecond), 1),
		sweepSem:             make(chan struct{}, 1),
	}
}

// Run performs the startup sequence (spec.md §12: a synchronous C3 pass
// then a synchronous C4 sweep, both logged but non-fatal on failure),
// then starts the watch consumer and periodic materializer as
// cooperating goroutines. It returns once those goroutines are started;
// they keep running until Stop is called.
func (s *Supervisor) Run(ctx context.Context) {
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	s.runMaterialize(ctx)
	s.runSweep(ctx)

	var running int
	done := make(chan struct{}, 2)

	go func() {
		s.watchLoop(ctx)
		done <- struct{}{}
	}()
	running++

	if s.AutoRegister && s.RegistrationInterval > 0 {
		go func() {
			s.tickerLoop(ctx)
			done <- struct{}{}
		}()
		running++
	}

	go func() {
		for i := 0; i < running; i++ {
			<-done
		}
		close(s.doneCh)
	}()
}

// Stop signals both tasks to exit, waits for any in-flight sweep to
// finish, and returns once the supervisor has fully shut down (spec.md
// §5 Cancellation).
func (s *Supervisor) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

// watchLoop mirrors watch.WatchPlan.Run: open a subscription, consume
// events until the stream ends or errors, back off a fixed interval,
// and resubscribe, until stopCh closes.
func (s *Supervisor) watchLoop(ctx context.Context) {
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		watchCtx, cancel := context.WithCancel(ctx)
		events, err := s.Gateway.Watch(watchCtx, watchedKinds)
		if err != nil {
			cancel()
			s.Logger.Error("watch subscribe failed, retrying", "error", err, "backoff", retryInterval)
			if !s.sleep(retryInterval) {
				return
			}
			continue
		}

		s.consume(ctx, events)
		cancel()

		select {
		case <-s.stopCh:
			return
		default:
			s.Logger.Warn("watch stream ended, resubscribing", "backoff", retryInterval)
			if !s.sleep(retryInterval) {
				return
			}
		}
	}
}

// consume drains one subscription's event channel, triggering a sweep
// per event (rate-limited) until the channel closes or a stop is
// requested.
func (s *Supervisor) consume(ctx context.Context, events <-chan upsf.WatchEvent) {
	for {
		select {
		case <-s.stopCh:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Name == "" {
				continue
			}
			if s.Limiter != nil && !s.Limiter.Allow() {
				continue
			}
			s.runSweep(ctx)
		}
	}
}

// tickerLoop drives C3 every RegistrationInterval until stopCh closes
// (spec.md §4.5 "periodic materializer").
func (s *Supervisor) tickerLoop(ctx context.Context) {
	ticker := time.NewTicker(s.RegistrationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runMaterialize(ctx)
		}
	}
}

// runSweep enforces the single-flight discipline spec.md §5 requires:
// a sweep already in progress causes this trigger to be dropped rather
// than queued, since the in-progress sweep will itself observe the
// latest snapshot.
func (s *Supervisor) runSweep(ctx context.Context) {
	select {
	case s.sweepSem <- struct{}{}:
	default:
		s.Logger.Debug("sweep already in progress, skipping")
		return
	}
	defer func() { <-s.sweepSem }()

	id := uuid.NewString()
	logger := s.Logger.With("sweep_id", id)
	logger.Debug("sweep starting")
	start := time.Now()
	err := s.Mapper.Sweep(ctx)
	if s.Metrics != nil {
		s.Metrics.RecordSweep(time.Since(start), err)
	}
	if err != nil {
		logger.Error("sweep failed", "error", err)
		return
	}
	logger.Debug("sweep complete")
}

func (s *Supervisor) runMaterialize(ctx context.Context) {
	err := s.Materializer.Materialize(ctx)
	if s.Metrics != nil {
		s.Metrics.RecordMaterialize()
	}
	if err != nil {
		s.Logger.Error("materialize failed", "error", err)
	}
}

// sleep waits for d or until stopCh closes, reporting false if stopped.
func (s *Supervisor) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-s.stopCh:
		return false
	}
}
