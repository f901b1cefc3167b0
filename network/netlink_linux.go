//go:build linux

package network

import (
	"github.com/go-errors/errors"
	"golang.org/x/sys/unix"
)

const netlinkGroups = unix.RTMGRP_LINK |
	unix.RTMGRP_IPV4_IFADDR |
	unix.RTMGRP_IPV6_IFADDR |
	unix.RTMGRP_IPV4_ROUTE |
	unix.RTMGRP_IPV6_ROUTE

type netlinkSocket struct {
	fd  int
	buf []byte
}

func openNetlinkSocket() (*netlinkSocket, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_ROUTE)
	if err != nil {
		return nil, errors.Errorf("could not create socket: %v", err)
	}

	err = unix.Bind(fd, &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: netlinkGroups,
	})
	if err != nil {
		_ = unix.Close(fd)
		return nil, errors.Errorf("could not bind socket: %v", err)
	}

	// wake up regularly so the reader can notice that it should stop
	err = unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &unix.Timeval{Sec: 1})
	if err != nil {
		_ = unix.Close(fd)
		return nil, errors.Errorf("could not set receive timeout: %v", err)
	}

	return &netlinkSocket{
		fd:  fd,
		buf: make([]byte, unix.Getpagesize()*4),
	}, nil
}

// wait blocks for at most the receive timeout and reports whether a
// notification arrived.
func (s *netlinkSocket) wait() (bool, error) {
	n, _, err := unix.Recvfrom(s.fd, s.buf, 0)
	switch err {
	case nil:
	case unix.EAGAIN, unix.EINTR:
		return false, nil
	case unix.ENOBUFS:
		// the kernel dropped messages, something surely changed
		return true, nil
	default:
		return false, err
	}

	return n >= unix.SizeofNlMsghdr, nil
}

func (s *netlinkSocket) close() error {
	return unix.Close(s.fd)
}
