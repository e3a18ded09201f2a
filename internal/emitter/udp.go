package emitter

import (
	"fmt"
	"net"
	"strconv"

	"github.com/hypebeast/go-osc/osc"
)

// UDPSender writes each OSC packet as one datagram on a connected UDP socket.
// Unlike osc.Client it formats the target with net.JoinHostPort, so IPv6 hosts work.
type UDPSender struct {
	conn *net.UDPConn
}

// NewUDPSender resolves host:port and connects a UDP socket to it.
func NewUDPSender(host string, port int) (*UDPSender, error) {
	target := net.JoinHostPort(host, strconv.Itoa(port))
	addr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return nil, fmt.Errorf("resolve OSC target %s: %w", target, err)
	}

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial OSC target %s: %w", target, err)
	}
	return &UDPSender{conn: conn}, nil
}

// Send encodes packet and writes it as a single datagram.
func (s *UDPSender) Send(packet osc.Packet) error {
	data, err := packet.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode OSC packet: %w", err)
	}
	_, err = s.conn.Write(data)
	return err
}

// RemoteAddr returns the resolved target.
func (s *UDPSender) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// Close releases the socket.
func (s *UDPSender) Close() error {
	return s.conn.Close()
}
