// Package ssdp implements the Simple Service Discovery Protocol control
// plane used by UPnP: a UDP multicast peer that advertises locally hosted
// services, listens for NOTIFY/M-SEARCH traffic from other peers, and keeps
// a registry of what it has learned with time-based expiry.
//
// The package only speaks SSDP/1.0 over 239.255.255.250:1900. It knows
// nothing about description documents, SOAP action dispatch or GENA
// eventing — those are external collaborators that consume the USN/
// LOCATION pairs this package tracks.
package ssdp

const (
	// MulticastAddr is the SSDP multicast group.
	MulticastAddr = "239.255.255.250"
	// Port is the well-known SSDP UDP port.
	Port = 1900

	// DefaultMaxAge is the CACHE-CONTROL max-age advertised for local
	// records when the caller doesn't specify one.
	DefaultMaxAge = 1800

	// expiryGrace absorbs clock skew and lost byebyes before a remote
	// record is considered stale.
	expiryGrace = 30

	// resendNotifyPeriod is how often local records are re-advertised.
	resendNotifyPeriod = 777
	// expirySweepPeriod is how often the registry is swept for stale
	// remote records.
	expirySweepPeriod = 333

	// maxMX is the RFC ceiling on M-SEARCH MX.
	maxMX = 5
)
