//go:build windows

package dashboard

import (
	"net"

	"github.com/Microsoft/go-winio"
)

// SYSTEM and Administrators get full control, interactive users read/write.
const pipeSecurity = "D:P(A;;GA;;;SY)(A;;GA;;;BA)(A;;GRGW;;;IU)"

func listenPipe(name string) (net.Listener, error) {
	return winio.ListenPipe(`\\.\pipe\`+name, &winio.PipeConfig{
		SecurityDescriptor: pipeSecurity,
		InputBufferSize:    64 * 1024,
		OutputBufferSize:   64 * 1024,
	})
}
