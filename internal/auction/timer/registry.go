package timer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Registry maps string keys to single-fire pending timers, guaranteeing
// at most one live timer per key. Registering a new timer under an
// existing key cancels the previous one. The key map is process-local;
// lost timers are rebuilt by the replay pass on startup.
type Registry struct {
	clock clockwork.Clock

	mu     sync.Mutex
	timers map[string]*entry
}

type entry struct {
	timer  clockwork.Timer
	cancel chan struct{}
}

// New creates a Registry. Pass clockwork.NewRealClock() in production and
// a FakeClock in tests.
func New(clock clockwork.Clock) *Registry {
	return &Registry{
		clock:  clock,
		timers: make(map[string]*entry),
	}
}

// Set cancels any existing timer under key, then schedules fn to run once
// after d has elapsed. A non-positive d means the callback is already due
// and runs as soon as the scheduler can dispatch it. The key's entry is
// removed before fn is invoked, so fn may safely re-register under the
// same key. fn runs on its own goroutine and never blocks bookkeeping;
// a panic inside fn is recovered and logged.
func (r *Registry) Set(key string, d time.Duration, fn func()) {
	r.mu.Lock()
	r.cancelLocked(key)

	if d <= 0 {
		r.mu.Unlock()
		go runCallback(key, fn)
		return
	}

	e := &entry{
		timer:  r.clock.NewTimer(d),
		cancel: make(chan struct{}),
	}
	r.timers[key] = e
	r.mu.Unlock()

	go r.wait(key, e, fn)

	log.Debug().
		Str("key", key).
		Dur("delay", d).
		Msg("scheduled one-shot timer")
}

// Clear cancels the pending timer under key, if any.
func (r *Registry) Clear(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelLocked(key)
}

// Len returns the number of live timers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// cancelLocked stops and removes the timer under key. Caller holds r.mu.
func (r *Registry) cancelLocked(key string) {
	e, ok := r.timers[key]
	if !ok {
		return
	}
	close(e.cancel)
	stopAndDrainTimer(e.timer)
	delete(r.timers, key)
	log.Debug().Str("key", key).Msg("cancelled existing timer")
}

func (r *Registry) wait(key string, e *entry, fn func()) {
	select {
	case <-e.timer.Chan():
		// Remove the entry before invoking the callback so the callback
		// can re-register the same key without cancelling itself.
		r.mu.Lock()
		if cur, ok := r.timers[key]; ok && cur == e {
			delete(r.timers, key)
		}
		r.mu.Unlock()
		runCallback(key, fn)
	case <-e.cancel:
	}
}

// runCallback invokes fn, containing panics so one key's callback cannot
// take down timers for other keys.
func runCallback(key string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Str("key", key).
				Interface("panic", rec).
				Msg("timer callback panicked")
		}
	}()
	fn()
}

// stopAndDrainTimer safely stops a timer and drains its channel to
// prevent goroutine leaks. This follows the pattern recommended in the
// time.Timer.Stop() documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
