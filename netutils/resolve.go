package netutils

import "fmt"

// AddrsForInterface returns the IPv4 addresses bound to the named
// interface, as reported by ListAllIPs. It is used to resolve the
// engine's configured "interface" option into the address advertised in
// LOCATION when a caller hasn't supplied one explicitly.
func AddrsForInterface(name string) ([]string, error) {
	ips := ListAllIPs()
	addrs, ok := ips[name]
	if !ok {
		return nil, fmt.Errorf("netutils: no such interface %q", name)
	}
	return addrs, nil
}
