// Package udpcmd implements the UDP heartbeat/command endpoint: a single
// datagram socket that children send "p<pid>" heartbeats to, plus a
// reserved (currently inert) start/stop/restart-by-name vocabulary.
package udpcmd

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"git.sysgarden.dev/ops/procwatch/procwatch"
	"github.com/pkg/errors"
)

// maxDatagram bounds a single read; anything larger is truncated, mirroring
// the fixed-size receive buffer the wire format was designed around.
const maxDatagram = procwatch.MaxAppCmdDatagram

// Endpoint owns the UDP listening socket.
type Endpoint struct {
	conn *net.UDPConn
	buf  []byte
}

// Listen binds a UDP socket on the given port across all local addresses.
func Listen(port int) (*Endpoint, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, errors.Wrapf(procwatch.ErrUDPFatal, "listen on port %d: %v", port, err)
	}
	return &Endpoint{conn: conn, buf: make([]byte, maxDatagram)}, nil
}

// Close releases the socket.
func (e *Endpoint) Close() error {
	return e.conn.Close()
}

// LocalAddr returns the address the endpoint is bound to, chiefly so a
// caller that bound to port 0 can discover which port the kernel picked.
func (e *Endpoint) LocalAddr() net.Addr {
	return e.conn.LocalAddr()
}

// UnknownDatagram describes a datagram that didn't match any recognized
// verb, for logging.
type UnknownDatagram struct {
	Printable string
	Hex       string
}

// Poll blocks for up to timeout waiting for one datagram, decodes it into
// a Command, and returns it. A read timeout (no datagram arrived) returns
// a zero Command and a nil error — the caller's tick simply has no
// network event this round. unknown is non-nil when a datagram arrived
// but didn't decode into any recognized verb; cmd is still the zero value
// in that case.
func (e *Endpoint) Poll(timeout time.Duration) (cmd procwatch.Command, unknown *UnknownDatagram, err error) {
	if err := e.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return procwatch.Command{}, nil, errors.Wrap(err, "udpcmd: set read deadline")
	}

	n, _, err := e.conn.ReadFromUDP(e.buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return procwatch.Command{}, nil, nil
		}
		return procwatch.Command{}, nil, errors.Wrapf(procwatch.ErrUDPFatal, "udpcmd: read: %v", err)
	}
	if n == 0 {
		return procwatch.Command{}, nil, nil
	}

	return decode(e.buf[:n])
}

func decode(data []byte) (procwatch.Command, *UnknownDatagram, error) {
	switch data[0] {
	case 'p':
		pid, err := strconv.Atoi(string(data[1:]))
		if err != nil || pid <= 0 {
			return procwatch.Command{}, describeUnknown(data), nil
		}
		return procwatch.Command{Kind: procwatch.CmdHeartbeat, PID: pid}, nil, nil

	case 'a':
		return procwatch.Command{Kind: procwatch.CmdStartApp, AppName: string(data[1:])}, nil, nil

	case 'o':
		return procwatch.Command{Kind: procwatch.CmdStopApp, AppName: string(data[1:])}, nil, nil

	case 'r':
		return procwatch.Command{Kind: procwatch.CmdRestartApp, AppName: string(data[1:])}, nil, nil

	default:
		return procwatch.Command{}, describeUnknown(data), nil
	}
}

// describeUnknown renders an unrecognized datagram as printable text
// (non-printable bytes replaced with '.') alongside its hex dump, capped
// at MaxAppNameLength bytes, for logging.
func describeUnknown(data []byte) *UnknownDatagram {
	n := len(data)
	if n > procwatch.MaxAppNameLength {
		n = procwatch.MaxAppNameLength
	}
	data = data[:n]

	printable := make([]byte, n)
	hex := make([]byte, 0, n*3)
	for i, b := range data {
		if b >= 32 && b < 127 {
			printable[i] = b
		} else {
			printable[i] = '.'
		}
		hex = append(hex, []byte(fmt.Sprintf("%02X ", b))...)
	}

	return &UnknownDatagram{Printable: string(printable), Hex: string(hex)}
}
