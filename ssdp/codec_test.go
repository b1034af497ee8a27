package ssdp_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gargoton.petite-maison-orange.fr/eric/pmossdp/ssdp"
)

func TestParseNotifyAlive(t *testing.T) {
	data := "NOTIFY * HTTP/1.1\r\n" +
		"HOST:239.255.255.250:1900\r\n" +
		"NT:upnp:rootdevice\r\n" +
		"NTS:ssdp:alive\r\n" +
		"USN:uuid:abc::upnp:rootdevice\r\n" +
		"LOCATION:http://10.0.0.2:8000/desc.xml\r\n" +
		"SERVER:Foo/1\r\n" +
		"CACHE-CONTROL:max-age=1800\r\n\r\n"

	msg, err := ssdp.Parse([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, ssdp.KindNotify, msg.Kind)
	assert.Equal(t, "ssdp:alive", msg.Headers["nts"])
	assert.Equal(t, "uuid:abc::upnp:rootdevice", msg.Headers["usn"])

	decoded, err := ssdp.Decode(msg)
	require.NoError(t, err)
	alive, ok := decoded.(ssdp.NotifyAlive)
	require.True(t, ok)
	assert.Equal(t, "upnp:rootdevice", alive.NT)
	assert.Equal(t, "http://10.0.0.2:8000/desc.xml", alive.Location)
	assert.Equal(t, "max-age=1800", alive.CacheControl)
}

func TestParseSearchClampsMX(t *testing.T) {
	data := "M-SEARCH * HTTP/1.1\r\nST:ssdp:all\r\nMX:99\r\n\r\n"
	msg, err := ssdp.Parse([]byte(data))
	require.NoError(t, err)

	decoded, err := ssdp.Decode(msg)
	require.NoError(t, err)
	search, ok := decoded.(*ssdp.SearchRequest)
	require.True(t, ok)
	assert.Equal(t, "ssdp:all", search.ST)
	assert.Equal(t, 5, search.MX, "MX must be clamped to the RFC ceiling of 5")
}

func TestParseSearchMissingMXDefaultsToZero(t *testing.T) {
	msg, err := ssdp.Parse([]byte("M-SEARCH * HTTP/1.1\r\nST:upnp:rootdevice\r\n\r\n"))
	require.NoError(t, err)
	decoded, err := ssdp.Decode(msg)
	require.NoError(t, err)
	search := decoded.(*ssdp.SearchRequest)
	assert.Equal(t, 0, search.MX)
}

func TestParseGarbageIsNonFatal(t *testing.T) {
	_, err := ssdp.Parse([]byte("hello world"))
	require.Error(t, err)
	var parseErr *ssdp.ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestParseUnknownNTSIsMissingHeaderError(t *testing.T) {
	msg, err := ssdp.Parse([]byte("NOTIFY * HTTP/1.1\r\nNTS:ssdp:update\r\nUSN:x\r\n\r\n"))
	require.NoError(t, err)
	_, err = ssdp.Decode(msg)
	var missing *ssdp.MissingHeaderError
	assert.ErrorAs(t, err, &missing)
}

func TestWireRoundTripNotify(t *testing.T) {
	rec := ssdp.ServiceRecord{
		USN:          "uuid:1::upnp:rootdevice",
		ST:           "upnp:rootdevice",
		Location:     "http://10.0.0.1:80/d.xml",
		Server:       "Foo/1",
		CacheControl: "max-age=1800",
		EXT:          "",
	}

	encoded := ssdp.EncodeNotify(rec, "ssdp:alive")
	msg, err := ssdp.Parse(encoded)
	require.NoError(t, err)

	assert.Equal(t, ssdp.KindNotify, msg.Kind)
	assert.Equal(t, rec.USN, msg.Headers["usn"])
	assert.Equal(t, rec.ST, msg.Headers["nt"])
	assert.Equal(t, "ssdp:alive", msg.Headers["nts"])
	assert.Equal(t, rec.Location, msg.Headers["location"])
	assert.Equal(t, rec.CacheControl, msg.Headers["cache-control"])
}

func TestWireRoundTripSearchResponse(t *testing.T) {
	rec := ssdp.ServiceRecord{
		USN:          "uuid:1::upnp:rootdevice",
		ST:           "upnp:rootdevice",
		Location:     "http://10.0.0.1:80/d.xml",
		Server:       "Foo/1",
		CacheControl: "max-age=1800",
	}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	encoded := ssdp.EncodeSearchResponse(rec, rec.ST, now)

	msg, err := ssdp.Parse(encoded)
	require.NoError(t, err)
	assert.Equal(t, ssdp.KindResponse, msg.Kind)

	decoded, err := ssdp.Decode(msg)
	require.NoError(t, err)
	resp := decoded.(*ssdp.SearchResponse)
	assert.Equal(t, rec.USN, resp.USN)
	assert.Equal(t, rec.ST, resp.ST)
	assert.Equal(t, rec.Location, resp.Location)
	assert.Equal(t, now.UTC().Format(time.RFC1123), resp.Date)
}

func TestEncodeByeByeCarriesFullHeaderSet(t *testing.T) {
	rec := ssdp.ServiceRecord{
		USN:          "uuid:1::upnp:rootdevice",
		ST:           "upnp:rootdevice",
		Location:     "http://x/d.xml",
		Server:       "Foo/1",
		CacheControl: "max-age=1800",
	}
	encoded := ssdp.EncodeNotify(rec, "ssdp:byebye")
	msg, err := ssdp.Parse(encoded)
	require.NoError(t, err)
	assert.Equal(t, "ssdp:byebye", msg.Headers["nts"])
	assert.Equal(t, rec.Location, msg.Headers["location"], "byebye copies the full record, same as alive")
	assert.Equal(t, rec.Server, msg.Headers["server"])
	assert.Equal(t, rec.CacheControl, msg.Headers["cache-control"])
}
