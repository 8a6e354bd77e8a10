package engine

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// FireFunc is called once when a timer elapses. ctx is canceled only if the scheduler is forced to stop.
type FireFunc func(ctx context.Context, id int64)

type timerEntry struct {
	timer *time.Timer
	at    time.Time
	gen   uint64
}

// Timer is a snapshot of one pending expiry.
type Timer struct {
	ID int64     `json:"id"`
	At time.Time `json:"at"`
}

// Scheduler holds at most one pending timer per infraction id.
//
// Mutations for a single id are serialized by the map's per-key Compute; unrelated ids do not contend. A timer which was replaced or canceled while its callback was already starting is detected by generation and skipped, but callers must still treat the fire as possibly racing with other deactivation paths.
type Scheduler struct {
	Logger *slog.Logger

	timers *xsync.MapOf[int64, *timerEntry]
	fire   FireFunc
	gen    atomic.Uint64
	now    func() time.Time

	// counts registered timers and in-flight fires
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewScheduler(fire FireFunc, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		Logger: logger.With("system", "scheduler"),
		timers: xsync.NewMapOf[int64, *timerEntry](),
		fire:   fire,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Schedule arranges for id to fire at the given time, replacing any pending timer for the same id. If the time has already passed, the fire runs immediately (asynchronously) and no timer is kept; the return value is then false.
func (s *Scheduler) Schedule(id int64, at time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		s.Logger.Warn("schedule after stop ignored", "infraction", id)
		return false
	}

	delay := at.Sub(s.now())
	if delay <= 0 {
		s.cancelLocked(id)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.fire(s.ctx, id)
		}()
		return false
	}

	gen := s.gen.Add(1)
	s.timers.Compute(id, func(old *timerEntry, loaded bool) (*timerEntry, bool) {
		if loaded {
			s.stopEntry(old)
		}
		e := &timerEntry{at: at, gen: gen}
		s.wg.Add(1)
		e.timer = time.AfterFunc(delay, func() { s.onFire(id, gen) })
		return e, false
	})
	scheduledTimers.Set(float64(s.timers.Size()))
	s.Logger.Debug("timer scheduled", "infraction", id, "at", at)
	return true
}

// Cancel removes a pending timer without firing it. Returns whether one was pending.
func (s *Scheduler) Cancel(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cancelLocked(id)
}

func (s *Scheduler) cancelLocked(id int64) bool {
	pending := false
	s.timers.Compute(id, func(old *timerEntry, loaded bool) (*timerEntry, bool) {
		if loaded {
			s.stopEntry(old)
			pending = true
		}
		return old, true
	})
	if pending {
		scheduledTimers.Set(float64(s.timers.Size()))
	}
	return pending
}

// if the callback will never run, release its wait group slot on its behalf
func (s *Scheduler) stopEntry(e *timerEntry) {
	if e.timer.Stop() {
		s.wg.Done()
	}
}

func (s *Scheduler) onFire(id int64, gen uint64) {
	defer s.wg.Done()

	current := false
	s.timers.Compute(id, func(old *timerEntry, loaded bool) (*timerEntry, bool) {
		if loaded && old.gen == gen {
			current = true
			return old, true
		}
		return old, !loaded
	})
	if !current {
		return
	}
	scheduledTimers.Set(float64(s.timers.Size()))
	s.fire(s.ctx, id)
}

// At returns the pending fire time for id.
func (s *Scheduler) At(id int64) (time.Time, bool) {
	e, ok := s.timers.Load(id)
	if !ok {
		return time.Time{}, false
	}
	return e.at, true
}

func (s *Scheduler) Len() int {
	return s.timers.Size()
}

// Pending lists pending timers, soonest first.
func (s *Scheduler) Pending() []Timer {
	var out []Timer
	s.timers.Range(func(id int64, e *timerEntry) bool {
		out = append(out, Timer{ID: id, At: e.at})
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].At.Equal(out[j].At) {
			return out[i].ID < out[j].ID
		}
		return out[i].At.Before(out[j].At)
	})
	return out
}

// Stop cancels every pending timer and waits for in-flight fires to finish. If ctx expires first, in-flight fires have their context canceled and Stop waits for them to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	var ids []int64
	s.timers.Range(func(id int64, _ *timerEntry) bool {
		ids = append(ids, id)
		return true
	})
	for _, id := range ids {
		s.cancelLocked(id)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	defer s.cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.Logger.Warn("forcing in-flight deactivations to stop")
		s.cancel()
		<-done
		return ctx.Err()
	}
}
