package fleet

import (
	"fmt"
	"net"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// ListenMulticastUDP4 opens a UDP socket bound to the wildcard address on
// the given port with SO_REUSEADDR and SO_REUSEPORT set, so several fleet
// nodes on one host can share the port. If ifi is non-nil the socket is
// bound to that interface; otherwise the OS decides.
func ListenMulticastUDP4(ifi *net.Interface, port int) (net.PacketConn, error) {
	// Create socket
	sock, err := syscall.Socket(syscall.AF_INET, syscall.SOCK_DGRAM, syscall.IPPROTO_UDP)
	if err != nil {
		return nil, fmt.Errorf("could not get socket: %w", err)
	}

	// Reuse the address
	if err := syscall.SetsockoptInt(sock, syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1); err != nil {
		_ = syscall.Close(sock)
		return nil, fmt.Errorf("could not set socket reuseaddr: %w", err)
	}

	// Reuse the port
	if err := syscall.SetsockoptInt(sock, syscall.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		_ = syscall.Close(sock)
		return nil, fmt.Errorf("could not set socket reuseport: %w", err)
	}

	// Attach to specific interface if requested
	if ifi != nil {
		if err := unix.SetsockoptInt(sock, unix.IPPROTO_IP, unix.IP_BOUND_IF, ifi.Index); err != nil {
			_ = syscall.Close(sock)
			return nil, fmt.Errorf("could not bind to interface: %w", err)
		}
	}

	// Bind the socket to the wildcard address and port
	lsa := syscall.SockaddrInet4{Port: port}
	if err := syscall.Bind(sock, &lsa); err != nil {
		_ = syscall.Close(sock)
		return nil, fmt.Errorf("could not bind socket: %w", err)
	}

	// Turn the socket file descriptor into an *os.File
	file := os.NewFile(uintptr(sock), "")

	// Turn it into a net.PacketConn
	conn, err := net.FilePacketConn(file)
	file.Close() // We no longer need the file
	if err != nil {
		return nil, fmt.Errorf("could not wrap filepacketconn: %w", err)
	}

	return conn, nil
}
