// Package wire implements the binary encoding for control-plane commands exchanged between a
// runner (or the status CLI) and the registry control server over a UNIX datagram socket.
//
// The encoding is deliberately simple: a one-byte tag selects the Command variant, followed by
// length-prefixed fields. Every encoded Command must fit within constants.Get().DatagramBufferSize
// bytes - callers that exceed this limit get an error from Encode rather than a truncated
// datagram.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"

	"github.com/hauleth/dolores/internal/constants"
)

// Kind selects the Command variant on the wire.
type Kind byte

const (
	_ Kind = iota // zero value is not a valid tag, so a zeroed buffer never decodes
	KindRegister
	KindDeregister
	KindStatus
)

func (k Kind) String() string {
	switch k {
	case KindRegister:
		return "Register"
	case KindDeregister:
		return "Deregister"
	case KindStatus:
		return "Status"
	default:
		return fmt.Sprintf("Kind(%d)", byte(k))
	}
}

// ProxyKind is the textual, lowercase snake-case proxy kind understood by Register.
type ProxyKind byte

const (
	_ ProxyKind = iota
	ProxyPassthrough
	ProxyTerminating
)

func (p ProxyKind) String() string {
	switch p {
	case ProxyPassthrough:
		return "passthrough"
	case ProxyTerminating:
		return "terminating"
	default:
		return fmt.Sprintf("ProxyKind(%d)", byte(p))
	}
}

// ParseProxyKind maps the CLI's lowercase snake-case spelling to a ProxyKind.
func ParseProxyKind(s string) (ProxyKind, error) {
	switch s {
	case "passthrough":
		return ProxyPassthrough, nil
	case "terminating":
		return ProxyTerminating, nil
	default:
		return 0, fmt.Errorf("wire: unknown proxy kind %q", s)
	}
}

// Command is a tagged union of the three control-plane messages. Only the fields relevant to Kind
// are meaningful; callers should use the New* constructors rather than building a Command by hand.
type Command struct {
	Kind Kind

	Name      string // Register, Deregister, Status (optional)
	Addr      netip.AddrPort
	ProxyKind ProxyKind
}

// NewRegister builds a Register command.
func NewRegister(name string, addr netip.AddrPort, kind ProxyKind) Command {
	return Command{Kind: KindRegister, Name: name, Addr: addr, ProxyKind: kind}
}

// NewDeregister builds a Deregister command.
func NewDeregister(name string) Command {
	return Command{Kind: KindDeregister, Name: name}
}

// NewStatus builds a Status command. An empty name requests status for all services.
func NewStatus(name string) Command {
	return Command{Kind: KindStatus, Name: name}
}

var errShortBuffer = errors.New("wire: buffer too short")

// Encode serializes cmd into a freshly allocated byte slice suitable for a single datagram.
func Encode(cmd Command) ([]byte, error) {
	buf := make([]byte, 0, 64)
	buf = append(buf, byte(cmd.Kind))

	switch cmd.Kind {
	case KindRegister:
		buf = appendString(buf, cmd.Name)
		buf = appendAddr(buf, cmd.Addr)
		buf = append(buf, byte(cmd.ProxyKind))
	case KindDeregister:
		buf = appendString(buf, cmd.Name)
	case KindStatus:
		buf = appendString(buf, cmd.Name)
	default:
		return nil, fmt.Errorf("wire: cannot encode unknown kind %v", cmd.Kind)
	}

	if limit := constants.Get().DatagramBufferSize; len(buf) > limit {
		return nil, fmt.Errorf("wire: encoded command is %d bytes, exceeds datagram limit of %d", len(buf), limit)
	}

	return buf, nil
}

// Decode parses a Command out of a datagram payload. Decoding failures are always reported as an
// error - the caller (the control server) is expected to log and discard, never to crash.
func Decode(data []byte) (Command, error) {
	if len(data) < 1 {
		return Command{}, errShortBuffer
	}
	kind := Kind(data[0])
	rest := data[1:]

	var cmd Command
	cmd.Kind = kind

	var err error
	switch kind {
	case KindRegister:
		cmd.Name, rest, err = takeString(rest)
		if err != nil {
			return Command{}, err
		}
		cmd.Addr, rest, err = takeAddr(rest)
		if err != nil {
			return Command{}, err
		}
		if len(rest) < 1 {
			return Command{}, errShortBuffer
		}
		cmd.ProxyKind = ProxyKind(rest[0])
	case KindDeregister:
		cmd.Name, _, err = takeString(rest)
		if err != nil {
			return Command{}, err
		}
	case KindStatus:
		cmd.Name, _, err = takeString(rest)
		if err != nil {
			return Command{}, err
		}
	default:
		return Command{}, fmt.Errorf("wire: unknown command kind %d", data[0])
	}

	return cmd, nil
}

func appendString(buf []byte, s string) []byte {
	var length [2]byte
	binary.BigEndian.PutUint16(length[:], uint16(len(s)))
	buf = append(buf, length[:]...)
	buf = append(buf, s...)
	return buf
}

func takeString(buf []byte) (string, []byte, error) {
	if len(buf) < 2 {
		return "", nil, errShortBuffer
	}
	n := int(binary.BigEndian.Uint16(buf[:2]))
	buf = buf[2:]
	if len(buf) < n {
		return "", nil, errShortBuffer
	}
	return string(buf[:n]), buf[n:], nil
}

const (
	familyV4 byte = 4
	familyV6 byte = 6
)

// appendAddr encodes a netip.AddrPort as a 1-byte family tag, followed by the address in its native
// width (4 bytes for v4, 16 for v6) and a big-endian uint16 port.
func appendAddr(buf []byte, addr netip.AddrPort) []byte {
	a := addr.Addr()
	var portBytes [2]byte
	binary.BigEndian.PutUint16(portBytes[:], addr.Port())

	if a.Is4() {
		buf = append(buf, familyV4)
		b := a.As4()
		buf = append(buf, b[:]...)
	} else {
		buf = append(buf, familyV6)
		b := a.As16()
		buf = append(buf, b[:]...)
	}
	buf = append(buf, portBytes[:]...)
	return buf
}

func takeAddr(buf []byte) (netip.AddrPort, []byte, error) {
	if len(buf) < 1 {
		return netip.AddrPort{}, nil, errShortBuffer
	}
	family := buf[0]
	buf = buf[1:]

	var addr netip.Addr
	switch family {
	case familyV4:
		if len(buf) < 4 {
			return netip.AddrPort{}, nil, errShortBuffer
		}
		addr = netip.AddrFrom4([4]byte(buf[:4]))
		buf = buf[4:]
	case familyV6:
		if len(buf) < 16 {
			return netip.AddrPort{}, nil, errShortBuffer
		}
		addr = netip.AddrFrom16([16]byte(buf[:16]))
		buf = buf[16:]
	default:
		return netip.AddrPort{}, nil, fmt.Errorf("wire: unknown address family %d", family)
	}

	if len(buf) < 2 {
		return netip.AddrPort{}, nil, errShortBuffer
	}
	port := binary.BigEndian.Uint16(buf[:2])
	buf = buf[2:]

	return netip.AddrPortFrom(addr, port), buf, nil
}
