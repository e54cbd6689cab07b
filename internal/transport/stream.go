package transport

import (
	"fmt"
	"net"

	"github.com/mdlayher/vsock"
)

// The host of an enclave VM is always reachable at the well-known parent
// context id.
const parentCID = 3

// Listen opens the bridge listener on the host side. Production listens on
// a vsock port; development substitutes a local TCP socket with identical
// framing.
func Listen(port uint32, useTCP bool) (net.Listener, error) {
	if useTCP {
		l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			return nil, fmt.Errorf("listen tcp %d: %w", port, err)
		}
		return l, nil
	}
	l, err := vsock.Listen(port, nil)
	if err != nil {
		return nil, fmt.Errorf("listen vsock %d: %w", port, err)
	}
	return l, nil
}

// Dial connects from the enclave side to the host.
func Dial(port uint32, useTCP bool) (net.Conn, error) {
	if useTCP {
		conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			return nil, fmt.Errorf("dial tcp %d: %w", port, err)
		}
		return conn, nil
	}
	conn, err := vsock.Dial(parentCID, port, nil)
	if err != nil {
		return nil, fmt.Errorf("dial vsock %d: %w", port, err)
	}
	return conn, nil
}
