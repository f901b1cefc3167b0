//go:build !linux

package network

import (
	"github.com/go-errors/errors"
)

type netlinkSocket struct{}

func openNetlinkSocket() (*netlinkSocket, error) {
	return nil, errors.New("netlink is only available on linux")
}

func (s *netlinkSocket) wait() (bool, error) {
	return false, errors.New("netlink is only available on linux")
}

func (s *netlinkSocket) close() error {
	return nil
}
