package speedwire

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

const maxDatagramSize = 1024

// Measurement is one decoded meter datagram.
type Measurement struct {
	SourceIP string
	PowerW   int
}

type Listener struct {
	conn *net.UDPConn
}

// Listen binds a UDP socket on address (host:port). When group is set the
// socket joins that multicast group instead.
func Listen(address, group string) (*Listener, error) {
	addr, err := net.ResolveUDPAddr("udp4", address)
	if err != nil {
		return nil, fmt.Errorf("speedwire: resolve %s: %w", address, err)
	}

	var conn *net.UDPConn
	if group != "" {
		gaddr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(group, fmt.Sprint(addr.Port)))
		if err != nil {
			return nil, fmt.Errorf("speedwire: resolve group %s: %w", group, err)
		}
		conn, err = net.ListenMulticastUDP("udp4", nil, gaddr)
		if err != nil {
			return nil, fmt.Errorf("speedwire: join %s: %w", group, err)
		}
	} else {
		conn, err = net.ListenUDP("udp4", addr)
		if err != nil {
			return nil, fmt.Errorf("speedwire: listen %s: %w", address, err)
		}
	}
	return &Listener{conn: conn}, nil
}

func (l *Listener) LocalAddr() net.Addr {
	return l.conn.LocalAddr()
}

// Receive waits at most timeout for one SMA datagram. It returns ok == false
// when nothing arrived in time. Datagrams from other protocols are skipped.
func (l *Listener) Receive(timeout time.Duration) (m Measurement, ok bool, err error) {
	deadline := time.Now().Add(timeout)
	if err = l.conn.SetReadDeadline(deadline); err != nil {
		return m, false, err
	}

	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return m, false, nil
			}
			return m, false, err
		}
		power, err := DecodePower(buf[:n])
		if err != nil {
			continue
		}
		return Measurement{SourceIP: from.IP.String(), PowerW: power}, true, nil
	}
}

func (l *Listener) Close() error {
	return l.conn.Close()
}
