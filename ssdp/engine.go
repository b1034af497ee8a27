package ssdp

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Engine is the protocol engine (C5): it owns the registry, event bus,
// scheduler and transport, dispatches inbound datagrams, and produces
// outbound ones. Timers and goroutines it starts call back into the engine
// through closures that capture the *Engine; the scheduler and transport
// themselves hold no engine field.
type Engine struct {
	cfg    Config
	logger *log.Logger
	clock  Clock

	bus       *Bus
	registry  *Registry
	scheduler *Scheduler
	transport *Transport

	jobs       chan func()
	group      *errgroup.Group
	cancel     context.CancelFunc
	stopTicker func()
	stopSweep  func()

	stopOnce sync.Once
}

// EngineOption customizes an Engine at construction.
type EngineOption func(*Engine)

// WithLogger overrides the default logrus logger.
func WithLogger(l *log.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides the default system clock; tests inject a FakeClock.
func WithClock(c Clock) EngineOption {
	return func(e *Engine) { e.clock = c }
}

// WithRand overrides the RNG used for search-response jitter; tests
// inject a seeded source for deterministic delays.
func WithRand(r *rand.Rand) EngineOption {
	return func(e *Engine) { e.scheduler = NewScheduler(r) }
}

// NewEngine constructs an Engine from cfg. In test_mode it never binds a
// socket: the registry, bus and scheduler all work purely in memory so
// unit tests can exercise dispatch without touching the network. Outside
// test_mode, a bind/join failure is a *ConfigError returned here — the
// only error NewEngine returns.
func NewEngine(cfg Config, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		cfg:    cfg,
		logger: log.StandardLogger(),
		clock:  SystemClock,
		bus:    NewBus(),
		jobs:   make(chan func(), 256),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.clock == nil {
		e.clock = SystemClock
	}
	if e.scheduler == nil {
		e.scheduler = NewScheduler(nil)
	}
	e.registry = NewRegistry(e.clock)

	if !cfg.TestMode {
		t, err := NewTransport(cfg.Interface, e.logger)
		if err != nil {
			return nil, err
		}
		e.transport = t
	}

	return e, nil
}

// Bus returns the engine's event bus for subscribers.
func (e *Engine) Bus() *Bus { return e.bus }

// Snapshot returns every known record, for callers (debug surface,
// tests) that want to inspect registry state directly.
func (e *Engine) Snapshot() []ServiceRecord { return e.registry.Snapshot() }

// IsKnown reports whether usn has a registered record.
func (e *Engine) IsKnown(usn string) bool { return e.registry.IsKnown(usn) }

// Register adds or idempotently replaces rec. If rec introduces a
// previously-unseen root device, ssdp.new_device is published. If rec is
// local, an alive notification is emitted immediately (subject to the
// silent flag), and on every subsequent resend-notify tick.
func (e *Engine) Register(rec ServiceRecord) error {
	rec.EXT = ""
	wasNewRootDevice, err := e.registry.Register(rec)
	if err != nil {
		return err
	}
	if wasNewRootDevice {
		e.bus.Publish(TopicNewDevice, rec.ST, rec)
	}
	if rec.Manifestation == Local {
		e.sendAlive(rec)
	}
	return nil
}

// RegisterLocal is the convenience entry point a device/service object
// model uses to host a service: it fills SERVER from the engine's
// configured server_id and CACHE-CONTROL from DefaultMaxAge when absent.
func (e *Engine) RegisterLocal(usn, st, location string, silent bool) error {
	return e.Register(ServiceRecord{
		USN:           usn,
		ST:            st,
		Location:      location,
		Server:        e.cfg.ServerID,
		CacheControl:  fmtMaxAge(DefaultMaxAge),
		Manifestation: Local,
		Silent:        silent,
	})
}

// Unregister removes usn. If it was a root device, ssdp.removed_device is
// published before the record is deleted. If the record was local, a
// byebye is emitted. Unregistering an unknown USN returns ErrNotFound, a
// silent, idempotent no-op from the caller's point of view.
func (e *Engine) Unregister(usn string) error {
	rec, ok := e.registry.Get(usn)
	if !ok {
		return ErrNotFound
	}
	if rec.IsRootDevice() {
		e.bus.Publish(TopicRemovedDevice, rec.ST, rec)
	}
	e.registry.Unregister(usn)
	if rec.Manifestation == Local {
		e.sendByeBye(rec)
	}
	return nil
}

// Touch refreshes last_seen for usn.
func (e *Engine) Touch(usn string) bool { return e.registry.Touch(usn) }

// sendAlive emits a NOTIFY ssdp:alive for rec, twice back-to-back. The
// duplication is part of the wire contract (spec'd redundancy against
// packet loss, not a bug) — observers must tolerate receiving it twice.
func (e *Engine) sendAlive(rec ServiceRecord) {
	if rec.Silent || rec.Manifestation != Local {
		return
	}
	data := EncodeNotify(rec, "ssdp:alive")
	if e.transport != nil {
		e.transport.SendMulticast(data)
		e.transport.SendMulticast(data)
	}
	e.logger.Infof("✅ notify alive: usn=%s nt=%s", rec.USN, rec.ST)
}

// sendByeBye emits a single NOTIFY ssdp:byebye for rec, local or not,
// silent or not — byebye is never suppressed the way alive is.
func (e *Engine) sendByeBye(rec ServiceRecord) {
	data := EncodeNotify(rec, "ssdp:byebye")
	if e.transport != nil {
		e.transport.SendMulticast(data)
	}
	e.logger.Infof("👋 notify byebye: usn=%s nt=%s", rec.USN, rec.ST)
}

// resendAll re-announces every local, non-silent record. Driven by the
// resend-notify ticker.
func (e *Engine) resendAll() {
	for _, rec := range e.registry.Snapshot() {
		if rec.Manifestation == Local {
			e.sendAlive(rec)
		}
	}
}

// sweepExpired drops stale remote records, publishing removed_device for
// any that were root devices. Driven by the expiry ticker.
func (e *Engine) sweepExpired() {
	for _, rec := range e.registry.SweepExpired(e.clock.Now()) {
		if rec.IsRootDevice() {
			e.bus.Publish(TopicRemovedDevice, rec.ST, rec)
		}
		e.logger.Debugf("expiring %s (max-age exceeded)", rec.USN)
	}
}

// SweepExpired runs one expiry sweep immediately — what the expiry
// ticker calls on its own schedule, exposed for tests and for callers
// embedding the engine in their own scheduling loop.
func (e *Engine) SweepExpired() { e.sweepExpired() }

// ResendAll re-announces every local, non-silent record immediately —
// what the resend-notify ticker calls on its own schedule.
func (e *Engine) ResendAll() { e.resendAll() }

// handleDatagram is the sole inbound dispatch entry point (C5). It always
// publishes ssdp.datagram_received, regardless of whether the payload
// parsed or dispatched cleanly, so observers can see raw traffic
// independent of protocol outcome.
func (e *Engine) handleDatagram(dg Datagram) {
	defer e.bus.Publish(TopicDatagramReceived, dg.Data, dg.Addr.IP.String(), dg.Addr.Port)

	msg, err := Parse(dg.Data)
	if err != nil {
		e.logger.Warnf("ssdp: dropping malformed datagram from %v: %v", dg.Addr, err)
		return
	}

	decoded, err := Decode(msg)
	if err != nil {
		e.logger.Warnf("ssdp: dropping datagram from %v: %v", dg.Addr, err)
		return
	}

	switch m := decoded.(type) {
	case NotifyAlive:
		e.handleAlive(m, dg.Addr)
	case NotifyByeBye:
		e.handleByeBye(m, dg.Addr)
	case *SearchRequest:
		e.handleSearch(m, dg.Addr)
	case *SearchResponse:
		e.logger.Debugf("ssdp: ignoring unsolicited search response from %v", dg.Addr)
	default:
		e.logger.Warnf("ssdp: unhandled message from %v", dg.Addr)
	}
}

func (e *Engine) handleAlive(m NotifyAlive, src *net.UDPAddr) {
	if e.registry.IsKnown(m.USN) {
		e.registry.Touch(m.USN)
	} else {
		rec := ServiceRecord{
			USN:           m.USN,
			ST:            m.NT,
			Location:      m.Location,
			Server:        m.Server,
			CacheControl:  m.CacheControl,
			Host:          src.IP.String(),
			Manifestation: Remote,
		}
		if err := e.Register(rec); err != nil {
			e.logger.Warnf("ssdp: cannot register %s from %v: %v", m.USN, src, err)
			return
		}
	}
	e.bus.Publish(TopicLog, src.IP.String(), fmt.Sprintf("notify ssdp:alive for %s", m.USN))
}

func (e *Engine) handleByeBye(m NotifyByeBye, src *net.UDPAddr) {
	if err := e.Unregister(m.USN); err != nil {
		// Unknown USN: spec mandates silent ignore, not a warning — but
		// the log topic still fires, same as a successful byebye.
		e.logger.Debugf("ssdp: byebye for unknown usn %s from %v", m.USN, src)
	}
	e.bus.Publish(TopicLog, src.IP.String(), fmt.Sprintf("notify ssdp:byebye for %s", m.USN))
}

func (e *Engine) handleSearch(m *SearchRequest, src *net.UDPAddr) {
	e.bus.Publish(TopicLog, src.IP.String(), fmt.Sprintf("m-search for %s", m.ST))

	now := e.clock.Now()
	for _, rec := range matchSearch(e.registry.Snapshot(), m.ST) {
		resp := EncodeSearchResponse(rec, rec.ST, now)
		delay := e.scheduler.RandomDelay(m.MX)
		dst := src
		e.enqueueAfter(delay, func() {
			if e.transport != nil {
				e.transport.SendUnicast(resp, dst)
			}
			e.logger.Infof("📡 responded to m-search from %v with st=%s", dst, rec.ST)
		})
	}
}

// matchSearch returns every local record that should answer an M-SEARCH
// for st, per spec: skip non-local records, skip silent records under the
// ssdp:all wildcard, and match on exact ST or the wildcard.
func matchSearch(records []ServiceRecord, st string) []ServiceRecord {
	var matches []ServiceRecord
	for _, rec := range records {
		if rec.Manifestation != Local {
			continue
		}
		if st == AllST && rec.Silent {
			continue
		}
		if rec.ST != st && st != AllST {
			continue
		}
		matches = append(matches, rec)
	}
	return matches
}

// HandleDatagram is the public synchronous entry point for feeding a raw
// UDP payload to the engine without running the full receive/dispatch
// loop — what test_mode callers use to exercise dispatch purely in
// memory, deterministically, with no goroutine in between.
func (e *Engine) HandleDatagram(data []byte, addr *net.UDPAddr) {
	e.handleDatagram(Datagram{Data: data, Addr: addr})
}

// enqueue serializes fn onto the engine's single dispatch queue, so every
// handler — datagram dispatch, ticker-driven resend/sweep, delayed search
// replies — runs on one logical thread in FIFO arrival order, per the
// concurrency model.
func (e *Engine) enqueue(fn func()) {
	select {
	case e.jobs <- fn:
	default:
		// Queue saturated: run inline rather than drop, since every
		// enqueued job here is either idempotent (resend/sweep) or
		// already delay-scheduled (search replies) and losing it would
		// violate the "never drop a scheduled response" guarantee.
		fn()
	}
}

// enqueueAfter schedules fn to run, serialized through the dispatch
// queue, after delay.
func (e *Engine) enqueueAfter(delay time.Duration, fn func()) {
	e.scheduler.ScheduleAfter(delay, func() { e.enqueue(fn) })
}

// Run starts the engine: the dispatch worker and, when not in test_mode,
// the receive loop and the resend-notify and expiry tickers. It blocks until
// ctx is canceled, then shuts down: stopping both tickers, canceling
// pending delayed sends, emitting byebye for every local record, and
// closing the transport.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	group, gctx := errgroup.WithContext(ctx)
	e.group = group

	if !e.cfg.TestMode {
		e.stopTicker = e.scheduler.Every(resendNotifyPeriod*time.Second, func() { e.enqueue(e.resendAll) })
		e.stopSweep = e.scheduler.Every(expirySweepPeriod*time.Second, func() { e.enqueue(e.sweepExpired) })

		datagrams := make(chan Datagram, 64)
		group.Go(func() error {
			e.transport.Receive(gctx, datagrams)
			return nil
		})
		group.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case dg := <-datagrams:
					e.enqueue(func() { e.handleDatagram(dg) })
				}
			}
		})
	}

	group.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case job := <-e.jobs:
				job()
			}
		}
	})

	<-ctx.Done()
	return e.Shutdown()
}

// Shutdown stops both tickers, cancels pending one-shot timers, emits
// byebye for every local record synchronously, and closes the transport.
// It runs even if the transport is already faulted; errors there are
// logged, never raised. Safe to call more than once.
func (e *Engine) Shutdown() error {
	var err error
	e.stopOnce.Do(func() {
		if e.stopTicker != nil {
			e.stopTicker()
		}
		if e.stopSweep != nil {
			e.stopSweep()
		}
		e.scheduler.StopAll()

		for _, rec := range e.registry.Snapshot() {
			if rec.Manifestation == Local {
				e.sendByeBye(rec)
			}
		}

		if e.transport != nil {
			if cerr := e.transport.Close(); cerr != nil {
				e.logger.Warnf("ssdp: error closing transport: %v", cerr)
			}
		}
		if e.cancel != nil {
			e.cancel()
		}
		if e.group != nil {
			err = e.group.Wait()
		}
	})
	return err
}
