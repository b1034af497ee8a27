package ssdp_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gargoton.petite-maison-orange.fr/eric/pmossdp/ssdp"
)

func TestRegisterIsKnownUnregister(t *testing.T) {
	clock := ssdp.NewFakeClock(time.Unix(0, 0))
	reg := ssdp.NewRegistry(clock)

	usn := "uuid:a::upnp:rootdevice"
	assert.False(t, reg.IsKnown(usn))

	_, err := reg.Register(ssdp.ServiceRecord{USN: usn, ST: ssdp.RootDeviceST, Manifestation: ssdp.Local})
	require.NoError(t, err)
	assert.True(t, reg.IsKnown(usn))

	_, ok := reg.Unregister(usn)
	assert.True(t, ok)
	assert.False(t, reg.IsKnown(usn))
}

func TestUnregisterUnknownIsNotFound(t *testing.T) {
	reg := ssdp.NewRegistry(nil)
	_, ok := reg.Unregister("nope")
	assert.False(t, ok)
}

func TestRegisterRejectsSilentRemote(t *testing.T) {
	reg := ssdp.NewRegistry(nil)
	_, err := reg.Register(ssdp.ServiceRecord{USN: "x", Manifestation: ssdp.Remote, Silent: true})
	assert.ErrorIs(t, err, ssdp.ErrSilentRemote)
}

func TestRegisterNewRootDeviceOnlyOnFirstInsert(t *testing.T) {
	reg := ssdp.NewRegistry(nil)
	rec := ssdp.ServiceRecord{USN: "uuid:a::upnp:rootdevice", ST: ssdp.RootDeviceST, Manifestation: ssdp.Local}

	wasNew, err := reg.Register(rec)
	require.NoError(t, err)
	assert.True(t, wasNew)

	wasNew, err = reg.Register(rec)
	require.NoError(t, err)
	assert.False(t, wasNew, "re-registering the same USN is an idempotent replace, not a new device")
}

func TestTouchRefreshesLastSeen(t *testing.T) {
	clock := ssdp.NewFakeClock(time.Unix(1000, 0))
	reg := ssdp.NewRegistry(clock)

	usn := "uuid:a::urn:x"
	_, err := reg.Register(ssdp.ServiceRecord{USN: usn, Manifestation: ssdp.Remote, CacheControl: "max-age=1800"})
	require.NoError(t, err)

	clock.Advance(500 * time.Second)
	assert.True(t, reg.Touch(usn))

	rec, ok := reg.Get(usn)
	require.True(t, ok)
	assert.Equal(t, clock.Now(), rec.LastSeen)
}

func TestTouchUnknownReturnsFalse(t *testing.T) {
	reg := ssdp.NewRegistry(nil)
	assert.False(t, reg.Touch("nope"))
}

func TestSweepExpiredRemovesOnlyPastDeadline(t *testing.T) {
	clock := ssdp.NewFakeClock(time.Unix(0, 0))
	reg := ssdp.NewRegistry(clock)

	_, err := reg.Register(ssdp.ServiceRecord{
		USN: "uuid:a::x", ST: ssdp.RootDeviceST, Manifestation: ssdp.Remote, CacheControl: "max-age=1",
	})
	require.NoError(t, err)

	// Not yet expired: max-age(1) + grace(30) = 31s.
	clock.Advance(30 * time.Second)
	assert.Empty(t, reg.SweepExpired(clock.Now()))

	// Now past the deadline.
	clock.Advance(2 * time.Second)
	expired := reg.SweepExpired(clock.Now())
	require.Len(t, expired, 1)
	assert.Equal(t, "uuid:a::x", expired[0].USN)
	assert.False(t, reg.IsKnown("uuid:a::x"))
}

func TestSweepExpiredNeverTouchesLocalRecords(t *testing.T) {
	clock := ssdp.NewFakeClock(time.Unix(0, 0))
	reg := ssdp.NewRegistry(clock)
	_, err := reg.Register(ssdp.ServiceRecord{USN: "uuid:local", ST: ssdp.RootDeviceST, Manifestation: ssdp.Local})
	require.NoError(t, err)

	clock.Advance(365 * 24 * time.Hour)
	assert.Empty(t, reg.SweepExpired(clock.Now()))
	assert.True(t, reg.IsKnown("uuid:local"))
}

func TestSnapshotIsDefensiveCopy(t *testing.T) {
	reg := ssdp.NewRegistry(nil)
	_, err := reg.Register(ssdp.ServiceRecord{USN: "uuid:a", ST: "x", Manifestation: ssdp.Local})
	require.NoError(t, err)

	snap := reg.Snapshot()
	require.Len(t, snap, 1)
	snap[0].ST = "mutated"

	rec, _ := reg.Get("uuid:a")
	assert.Equal(t, "x", rec.ST, "mutating a snapshot entry must not affect the registry")
}

func TestMaxAgeParsing(t *testing.T) {
	r := ssdp.ServiceRecord{CacheControl: "max-age=42"}
	assert.Equal(t, 42, r.MaxAge())

	malformed := ssdp.ServiceRecord{CacheControl: "nonsense"}
	assert.Equal(t, 0, malformed.MaxAge())
}
