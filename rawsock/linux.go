//go:build linux

package rawsock

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// LinuxAFPacket sends and receives raw Ethernet frames over an
// AF_PACKET/SOCK_RAW socket bound to a single interface, the concrete
// transport the engine uses outside of tests.
type LinuxAFPacket struct {
	fd      int
	ifindex int
}

// NewLinuxAFPacket opens a raw packet socket bound to ifaceIndex (as
// returned by net.InterfaceByName(name).Index). The process needs
// CAP_NET_RAW.
func NewLinuxAFPacket(ifaceIndex int) (*LinuxAFPacket, error) {
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return nil, fmt.Errorf("rawsock: socket: %w", err)
	}
	sa := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  ifaceIndex,
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("rawsock: bind: %w", err)
	}
	return &LinuxAFPacket{fd: fd, ifindex: ifaceIndex}, nil
}

func htons(v uint16) uint16 {
	return (v<<8)&0xff00 | v>>8
}

func (a *LinuxAFPacket) SendFrame(buf []byte, flush bool) error {
	sa := &unix.SockaddrLinklayer{Ifindex: a.ifindex}
	return unix.Sendto(a.fd, buf, 0, sa)
}

func (a *LinuxAFPacket) RecvFrame() ([]byte, int64, int32, error) {
	buf := make([]byte, 65536)
	n, _, err := unix.Recvfrom(a.fd, buf, unix.MSG_DONTWAIT)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return nil, 0, 0, ErrNoFrame
	}
	if err != nil {
		return nil, 0, 0, fmt.Errorf("rawsock: recvfrom: %w", err)
	}
	now := time.Now()
	return buf[:n], now.Unix(), int32(now.Nanosecond() / 1000), nil
}

func (a *LinuxAFPacket) Close() error {
	return unix.Close(a.fd)
}
