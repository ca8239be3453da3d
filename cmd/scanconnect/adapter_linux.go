//go:build linux

package main

import (
	"strconv"

	"github.com/kestrelscan/tcpstack/rawsock"
)

// openAdapter opens a real AF_PACKET socket on the named interface index.
func openAdapter(iface string) (rawsock.Adapter, error) {
	idx := 0
	if iface != "" {
		n, err := strconv.Atoi(iface)
		if err != nil {
			return nil, err
		}
		idx = n
	}
	return rawsock.NewLinuxAFPacket(idx)
}
