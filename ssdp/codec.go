package ssdp

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the shape of a parsed SSDP datagram.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotify
	KindSearch
	KindResponse
)

func (k Kind) String() string {
	switch k {
	case KindNotify:
		return "NOTIFY"
	case KindSearch:
		return "SEARCH"
	case KindResponse:
		return "RESPONSE"
	default:
		return "UNKNOWN"
	}
}

// ParseError reports a malformed datagram. It is never fatal: callers log
// it and drop the datagram.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return "ssdp: parse error: " + e.Reason }

const crlf = "\r\n"
const crlfcrlf = crlf + crlf

// ParsedMessage is the low-level parser result: a classified request/status
// line plus header values canonicalized to lowercase names. It exists so
// the wire round-trip property in the test suite can compare
// parse(serialize(...)) against the original header mapping without
// caring which typed variant the engine eventually decodes it into.
type ParsedMessage struct {
	Kind    Kind
	Headers map[string]string
}

// Parse splits a UDP payload into a classified message and its headers.
// Header names are lowercased; a single leading space after ':' is
// stripped. Malformed input (no blank-line terminator, or a request line
// we don't recognize) returns a *ParseError — never a panic.
func Parse(data []byte) (ParsedMessage, error) {
	raw := string(data)
	idx := strings.Index(raw, crlfcrlf)
	if idx < 0 {
		return ParsedMessage{}, &ParseError{Reason: "missing CRLFCRLF terminator"}
	}
	block := raw[:idx]
	lines := strings.Split(block, crlf)
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return ParsedMessage{}, &ParseError{Reason: "empty datagram"}
	}

	requestLine := strings.TrimSpace(lines[0])
	kind, err := classify(requestLine)
	if err != nil {
		return ParsedMessage{}, err
	}

	headers := make(map[string]string, len(lines)-1)
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return ParsedMessage{}, &ParseError{Reason: fmt.Sprintf("malformed header line %q", line)}
		}
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimPrefix(value, " ")
		headers[name] = value
	}

	return ParsedMessage{Kind: kind, Headers: headers}, nil
}

func classify(requestLine string) (Kind, error) {
	switch {
	case requestLine == "NOTIFY * HTTP/1.1":
		return KindNotify, nil
	case requestLine == "M-SEARCH * HTTP/1.1":
		return KindSearch, nil
	case strings.HasPrefix(requestLine, "HTTP/1.1 200"):
		return KindResponse, nil
	default:
		return KindUnknown, &ParseError{Reason: fmt.Sprintf("unrecognized request line %q", requestLine)}
	}
}

// serializeHeaders writes requestLine followed by the headers named in
// order (looked up case-insensitively in headers), terminated by
// CRLFCRLF. order fixes emission order deterministically; names absent
// from headers are skipped.
func serializeHeaders(requestLine string, order []string, headers map[string]string) []byte {
	var buf bytes.Buffer
	buf.WriteString(requestLine)
	buf.WriteString(crlf)
	for _, name := range order {
		v, ok := headers[strings.ToLower(name)]
		if !ok {
			continue
		}
		buf.WriteString(name)
		buf.WriteString(": ")
		buf.WriteString(v)
		buf.WriteString(crlf)
	}
	buf.WriteString(crlf)
	return buf.Bytes()
}

// notifyOrder is the header emission order for outbound NOTIFY.
var notifyOrder = []string{"HOST", "CACHE-CONTROL", "LOCATION", "NT", "NTS", "SERVER", "USN", "EXT"}

// responseOrder is the header emission order for M-SEARCH responses.
var responseOrder = []string{"CACHE-CONTROL", "DATE", "EXT", "LOCATION", "SERVER", "ST", "USN"}

// NotifyAlive is the decoded, tagged form of a NOTIFY ssdp:alive message —
// the engine dispatches on this type, never on raw header strings.
type NotifyAlive struct {
	USN          string
	NT           string
	Location     string
	Server       string
	CacheControl string
}

// NotifyByeBye is the decoded form of NOTIFY ssdp:byebye.
type NotifyByeBye struct {
	USN string
	NT  string
}

// SearchRequest is the decoded form of an inbound M-SEARCH.
type SearchRequest struct {
	ST string
	MX int
}

// SearchResponse is the decoded form of an M-SEARCH 200 OK reply.
type SearchResponse struct {
	CacheControl string
	Date         string
	EXT          string
	Location     string
	Server       string
	ST           string
	USN          string
}

// Decode turns a ParsedMessage into one of NotifyAlive, NotifyByeBye,
// *SearchRequest or *SearchResponse. An unrecognized NTS on a NOTIFY, or a
// missing required header, is reported via MissingHeaderError rather than
// decoded — callers must log and drop per the error taxonomy.
func Decode(msg ParsedMessage) (any, error) {
	switch msg.Kind {
	case KindNotify:
		nts := msg.Headers["nts"]
		switch nts {
		case "ssdp:alive":
			usn, err := require(msg.Headers, "usn")
			if err != nil {
				return nil, err
			}
			nt, err := require(msg.Headers, "nt")
			if err != nil {
				return nil, err
			}
			location, err := require(msg.Headers, "location")
			if err != nil {
				return nil, err
			}
			cacheControl, err := require(msg.Headers, "cache-control")
			if err != nil {
				return nil, err
			}
			return NotifyAlive{
				USN:          usn,
				NT:           nt,
				Location:     location,
				Server:       msg.Headers["server"],
				CacheControl: cacheControl,
			}, nil
		case "ssdp:byebye":
			usn, err := require(msg.Headers, "usn")
			if err != nil {
				return nil, err
			}
			return NotifyByeBye{USN: usn, NT: msg.Headers["nt"]}, nil
		default:
			return nil, &MissingHeaderError{Header: "nts", Detail: fmt.Sprintf("unrecognized NTS %q", nts)}
		}
	case KindSearch:
		st, err := require(msg.Headers, "st")
		if err != nil {
			return nil, err
		}
		mx := clampMX(msg.Headers["mx"])
		return &SearchRequest{ST: st, MX: mx}, nil
	case KindResponse:
		return &SearchResponse{
			CacheControl: msg.Headers["cache-control"],
			Date:         msg.Headers["date"],
			EXT:          msg.Headers["ext"],
			Location:     msg.Headers["location"],
			Server:       msg.Headers["server"],
			ST:           msg.Headers["st"],
			USN:          msg.Headers["usn"],
		}, nil
	default:
		return nil, &ParseError{Reason: "unknown message kind"}
	}
}

// MissingHeaderError reports a required header absent from an otherwise
// well-formed request.
type MissingHeaderError struct {
	Header string
	Detail string
}

func (e *MissingHeaderError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("ssdp: missing header %q: %s", e.Header, e.Detail)
	}
	return fmt.Sprintf("ssdp: missing header %q", e.Header)
}

func require(headers map[string]string, name string) (string, error) {
	v, ok := headers[name]
	if !ok || v == "" {
		return "", &MissingHeaderError{Header: name}
	}
	return v, nil
}

// clampMX parses MX and clamps it to [0, maxMX] per UPnP. An unparsable or
// absent MX is treated as 0, never as an error — the search is still
// answered immediately.
func clampMX(raw string) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > maxMX {
		return maxMX
	}
	return v
}

// EncodeNotify serializes a NOTIFY for alive or byebye. nts must be
// "ssdp:alive" or "ssdp:byebye". Both kinds carry the full set of record
// fields — byebye gets no special-cased trimming, matching doByebye's
// header mapping in the original implementation.
func EncodeNotify(r ServiceRecord, nts string) []byte {
	headers := map[string]string{
		"host":          fmt.Sprintf("%s:%d", MulticastAddr, Port),
		"nt":            r.ST,
		"nts":           nts,
		"usn":           r.USN,
		"location":      r.Location,
		"server":        r.Server,
		"cache-control": r.CacheControl,
		"ext":           r.EXT,
	}
	return serializeHeaders("NOTIFY * HTTP/1.1", notifyOrder, headers)
}

// EncodeSearchResponse serializes a 200 OK M-SEARCH reply for record r
// matched against st, stamped with now.
func EncodeSearchResponse(r ServiceRecord, st string, now time.Time) []byte {
	headers := map[string]string{
		"cache-control": r.CacheControl,
		"date":          now.UTC().Format(time.RFC1123),
		"ext":           r.EXT,
		"location":      r.Location,
		"server":        r.Server,
		"st":            st,
		"usn":           r.USN,
	}
	return serializeHeaders("HTTP/1.1 200 OK", responseOrder, headers)
}
