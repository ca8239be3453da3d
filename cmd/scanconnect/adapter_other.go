//go:build !linux

package main

import (
	"errors"

	"github.com/kestrelscan/tcpstack/rawsock"
)

// openAdapter has no real raw-socket transport outside Linux; this build
// cannot reach an actual network, only run against rawsock.Loopback in
// tests.
func openAdapter(iface string) (rawsock.Adapter, error) {
	return nil, errors.New("scanconnect: no raw-socket transport available on this platform")
}
