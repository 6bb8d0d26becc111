//go:build !windows

package dashboard

import (
	"errors"
	"net"
)

func listenPipe(string) (net.Listener, error) {
	return nil, errors.New("named pipes are only supported on Windows")
}
