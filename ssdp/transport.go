package ssdp

import (
	"context"
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"
)

// maxDatagramSize is generous for SSDP, whose payloads are a handful of
// short headers; 8KiB matches the read buffer the teacher's own listener
// uses.
const maxDatagramSize = 8192

// readPollInterval bounds how long a blocking read can delay noticing
// ctx cancellation during shutdown.
const readPollInterval = time.Second

func deadlineIn(d time.Duration) time.Time { return time.Now().Add(d) }

// Datagram is an inbound UDP payload paired with its source address.
type Datagram struct {
	Data []byte
	Addr *net.UDPAddr
}

// Transport is the UDP multicast adapter (C6): it joins the SSDP group on
// a caller-chosen interface, delivers inbound datagrams to a channel, and
// sends unicast/multicast replies. Socket errors on send are logged and
// swallowed — they never propagate to the scheduler or engine.
type Transport struct {
	conn      *net.UDPConn
	mcastAddr *net.UDPAddr
	logger    *log.Logger
}

// NewTransport binds the SSDP multicast socket on ifaceName (empty =
// default route / all interfaces). A bind or join failure is a
// ConfigError: fatal, reported to the caller of construction.
func NewTransport(ifaceName string, logger *log.Logger) (*Transport, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}

	mcastAddr := &net.UDPAddr{IP: net.ParseIP(MulticastAddr), Port: Port}

	var iface *net.Interface
	if ifaceName != "" {
		var err error
		iface, err = net.InterfaceByName(ifaceName)
		if err != nil {
			return nil, &ConfigError{Op: "resolve interface", Err: err}
		}
	}

	conn, err := net.ListenMulticastUDP("udp4", iface, mcastAddr)
	if err != nil {
		return nil, &ConfigError{Op: "join multicast group", Err: err}
	}
	conn.SetReadBuffer(maxDatagramSize)

	return &Transport{conn: conn, mcastAddr: mcastAddr, logger: logger}, nil
}

// ConfigError reports a failure to bind or join the multicast socket at
// startup. It is the one error kind the core returns to its caller
// instead of logging and swallowing.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("ssdp: config error during %s: %v", e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// SendMulticast writes data to the SSDP multicast group.
func (t *Transport) SendMulticast(data []byte) {
	if _, err := t.conn.WriteToUDP(data, t.mcastAddr); err != nil {
		t.logger.Warnf("ssdp: multicast send failed: %v", err)
	}
}

// SendUnicast writes data to a specific destination (an M-SEARCH reply).
func (t *Transport) SendUnicast(data []byte, dst *net.UDPAddr) {
	if _, err := t.conn.WriteToUDP(data, dst); err != nil {
		t.logger.Warnf("ssdp: unicast send to %v failed: %v", dst, err)
	}
}

// Receive runs the read loop until ctx is canceled or the socket closes,
// delivering each datagram to out. It never blocks a caller indefinitely
// on shutdown: a short read deadline lets it notice ctx.Done() promptly.
func (t *Transport) Receive(ctx context.Context, out chan<- Datagram) {
	buf := make([]byte, maxDatagramSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		t.conn.SetReadDeadline(deadlineIn(readPollInterval))
		n, src, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return
			default:
				t.logger.Warnf("ssdp: read error: %v", err)
				continue
			}
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		select {
		case out <- Datagram{Data: data, Addr: src}:
		case <-ctx.Done():
			return
		}
	}
}

// Close shuts down the socket. Safe to call more than once.
func (t *Transport) Close() error {
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}
