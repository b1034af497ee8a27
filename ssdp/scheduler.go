package ssdp

import (
	"math/rand"
	"sync"
	"time"
)

// timerID identifies a pending one-shot timer for cancellation.
type timerID uint64

// Scheduler owns every timer the engine drives off of: the two periodic
// tickers (resend-notify, expiry sweep) and the one-shot delayed sends
// used for randomized M-SEARCH responses. It has no notion of what a
// "notify" or a "search response" is — callers pass plain closures.
//
// The Scheduler has no engine field; it stores only the closures callers
// pass in, and those capture whatever the caller chose (the engine's own
// closures capture the *Engine).
type Scheduler struct {
	mu      sync.Mutex
	nextID  timerID
	timers  map[timerID]*time.Timer
	tickers []*tickerHandle
	stopped bool

	rngMu sync.Mutex
	rng   *rand.Rand
}

type tickerHandle struct {
	ticker *time.Ticker
	done   chan struct{}
}

// NewScheduler returns a Scheduler whose search-response jitter is drawn
// from rng. Pass a seeded *rand.Rand in tests for deterministic delays.
func NewScheduler(rng *rand.Rand) *Scheduler {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Scheduler{
		timers: make(map[timerID]*time.Timer),
		rng:    rng,
	}
}

// ScheduleAfter runs fn once, after delay, unless canceled first. It
// returns a cancel function; canceling after fn has already fired is a
// harmless no-op.
func (s *Scheduler) ScheduleAfter(delay time.Duration, fn func()) (cancel func()) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return func() {}
	}
	id := s.nextID
	s.nextID++

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()
		fn()
	})
	s.timers[id] = timer
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if t, ok := s.timers[id]; ok {
			t.Stop()
			delete(s.timers, id)
		}
	}
}

// Every runs fn on every tick of period, with the first fire after one
// full period has elapsed (never immediately on registration). It returns
// a stop function; StopAll also stops every ticker still running.
func (s *Scheduler) Every(period time.Duration, fn func()) (stop func()) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return func() {}
	}
	h := &tickerHandle{
		ticker: time.NewTicker(period),
		done:   make(chan struct{}),
	}
	s.tickers = append(s.tickers, h)
	s.mu.Unlock()

	go func() {
		for {
			select {
			case <-h.done:
				return
			case <-h.ticker.C:
				fn()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.ticker.Stop()
			close(h.done)
		})
	}
}

// StopAll cancels every pending one-shot timer and stops every ticker.
// After StopAll, further ScheduleAfter/Every calls are no-ops — shutdown
// is the only caller.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	s.stopped = true
	timers := s.timers
	s.timers = make(map[timerID]*time.Timer)
	tickers := s.tickers
	s.tickers = nil
	s.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
	for _, h := range tickers {
		h.ticker.Stop()
		select {
		case <-h.done:
		default:
			close(h.done)
		}
	}
}

// RandomDelay returns a duration uniformly distributed in [0, maxSeconds]
// seconds, using the scheduler's injected RNG so tests can seed it for
// deterministic search-response timing.
func (s *Scheduler) RandomDelay(maxSeconds int) time.Duration {
	if maxSeconds <= 0 {
		return 0
	}
	s.rngMu.Lock()
	n := s.rng.Intn(maxSeconds + 1)
	s.rngMu.Unlock()
	return time.Duration(n) * time.Second
}
