package ssdp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Manifestation distinguishes services this peer advertises (local) from
// services it has learned about from the network (remote).
type Manifestation string

const (
	Local  Manifestation = "local"
	Remote Manifestation = "remote"
)

// RootDeviceST is the ST/NT value that marks a record as a root device;
// only root devices publish new_device/removed_device events.
const RootDeviceST = "upnp:rootdevice"

// AllST is the M-SEARCH wildcard ST matching every non-silent local record.
const AllST = "ssdp:all"

// ServiceRecord is a single entry in the Registry, keyed by USN.
type ServiceRecord struct {
	USN           string
	ST            string
	Location      string
	Server        string
	CacheControl  string
	EXT           string
	Host          string
	Manifestation Manifestation
	Silent        bool
	LastSeen      time.Time
}

// IsRootDevice reports whether r's ST marks it as a root device.
func (r ServiceRecord) IsRootDevice() bool { return r.ST == RootDeviceST }

// MaxAge parses the numeric seconds out of a "max-age=<n>" CACHE-CONTROL
// value. An unparsable value yields 0, so the expiry sweep drops such a
// remote record once the grace period after its last_seen has passed.
func (r ServiceRecord) MaxAge() int {
	_, v, found := strings.Cut(r.CacheControl, "=")
	if !found {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0
	}
	return n
}

// ErrSilentRemote is returned when a caller tries to register a silent
// remote record — silent only makes sense for services we host (I4).
var ErrSilentRemote = errors.New("ssdp: silent remote registration is invalid")

// ErrNotFound is returned by operations addressing an unknown USN.
var ErrNotFound = errors.New("ssdp: usn not found")

// Registry holds every known ServiceRecord keyed by USN. It has no
// knowledge of the event bus, scheduler or transport — callers (the
// engine) decide what to publish or schedule around a mutation.
type Registry struct {
	mu      sync.Mutex
	records map[string]ServiceRecord
	clock   Clock
}

// NewRegistry builds an empty Registry driven by clock.
func NewRegistry(clock Clock) *Registry {
	if clock == nil {
		clock = SystemClock
	}
	return &Registry{
		records: make(map[string]ServiceRecord),
		clock:   clock,
	}
}

// Register inserts or idempotently replaces the record for rec.USN,
// refreshing LastSeen. wasNewRootDevice reports whether this call just
// introduced a previously-absent root device, the signal the engine uses
// to decide whether to publish ssdp.new_device.
func (r *Registry) Register(rec ServiceRecord) (wasNewRootDevice bool, err error) {
	if rec.Silent && rec.Manifestation == Remote {
		return false, ErrSilentRemote
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec.LastSeen = r.clock.Now()
	_, existed := r.records[rec.USN]
	r.records[rec.USN] = rec

	return !existed && rec.ST == RootDeviceST, nil
}

// Unregister removes the record for usn. ok is false if usn was unknown,
// matching the NotFound taxonomy entry (a silent no-op, never an error).
func (r *Registry) Unregister(usn string) (rec ServiceRecord, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok = r.records[usn]
	if !ok {
		return ServiceRecord{}, false
	}
	delete(r.records, usn)
	return rec, true
}

// Touch refreshes last_seen for a known USN. ok is false if usn is unknown.
func (r *Registry) Touch(usn string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[usn]
	if !ok {
		return false
	}
	rec.LastSeen = r.clock.Now()
	r.records[usn] = rec
	return true
}

// IsKnown reports whether usn currently has a registered record.
func (r *Registry) IsKnown(usn string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.records[usn]
	return ok
}

// Get returns the record for usn, if any.
func (r *Registry) Get(usn string) (ServiceRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[usn]
	return rec, ok
}

// Snapshot returns a defensive copy of every known record, safe to range
// over without holding the registry lock.
func (r *Registry) Snapshot() []ServiceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ServiceRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out
}

// SweepExpired removes and returns every remote record whose
// last_seen + max_age + grace has passed as of now.
func (r *Registry) SweepExpired(now time.Time) []ServiceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []ServiceRecord
	for usn, rec := range r.records {
		if rec.Manifestation != Remote {
			continue
		}
		deadline := rec.LastSeen.Add(time.Duration(rec.MaxAge()+expiryGrace) * time.Second)
		if now.After(deadline) {
			expired = append(expired, rec)
			delete(r.records, usn)
		}
	}
	return expired
}

func fmtMaxAge(seconds int) string {
	return fmt.Sprintf("max-age=%d", seconds)
}
