package registry

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/hauleth/dolores/internal/wire"
)

// ControlServer owns the UNIX datagram control socket and applies Register/Deregister/Status
// commands against a Store. Exactly one goroutine ever calls Serve for a given ControlServer, so
// all mutations are serialized by construction - no additional locking is needed beyond the
// Store's own RWMutex (which exists for the benefit of concurrent front-end readers).
type ControlServer struct {
	conn  *net.UnixConn
	path  string
	store *Store
	tld   string
	certs CertSource

	// Debug, when true, causes protocol errors (malformed datagrams) to be logged to Stderr.
	// These never abort the server - only TCP listener or control-socket bind failures are fatal.
	Debug  bool
	Stderr io.Writer
}

// Bind opens the UNIX datagram control socket at path and relaxes its mode to 0o777 so
// unprivileged users may register services. If path already exists from a previous run, binding
// fails and callers should treat this as fatal.
func Bind(path string, store *Store, tld string, certs CertSource) (*ControlServer, error) {
	addr := &net.UnixAddr{Name: path, Net: "unixgram"}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return nil, fmt.Errorf("registry: bind control socket %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o777); err != nil {
		conn.Close()
		os.Remove(path)
		return nil, fmt.Errorf("registry: chmod control socket %s: %w", path, err)
	}

	return &ControlServer{
		conn:   conn,
		path:   path,
		store:  store,
		tld:    tld,
		certs:  certs,
		Stderr: io.Discard,
	}, nil
}

// Close removes the control socket file. Safe to call once the Serve loop has returned.
func (s *ControlServer) Close() error {
	err := s.conn.Close()
	os.Remove(s.path)
	return err
}

// Serve reads and dispatches datagrams until ctx is done or a read error occurs. A malformed
// datagram is logged (when Debug is set) and discarded; it never causes Serve to return an error.
// Serve returns nil on a clean ctx-driven shutdown.
func (s *ControlServer) Serve(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.conn.Close()
		case <-done:
		}
	}()

	buf := make([]byte, 1024)
	for {
		n, addr, err := s.conn.ReadFromUnix(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("registry: control socket read: %w", err)
			}
		}

		cmd, err := wire.Decode(buf[:n])
		if err != nil {
			s.logf("protocol error from %v: %v", addr, err)
			continue
		}

		s.dispatch(cmd, addr)
	}
}

func (s *ControlServer) dispatch(cmd wire.Command, from *net.UnixAddr) {
	switch cmd.Kind {
	case wire.KindRegister:
		svc, err := NewService(cmd.Name, cmd.Addr, cmd.ProxyKind, s.tld, s.certs)
		if err != nil {
			s.logf("register %s failed: %v", cmd.Name, err)
			return
		}
		s.store.Insert(svc)

	case wire.KindDeregister:
		domain := fmt.Sprintf("%s.%s", cmd.Name, s.tld)
		s.store.Remove(domain)

	case wire.KindStatus:
		reply := s.statusReply(cmd.Name)
		s.reply(from, reply)

	default:
		s.logf("unknown command kind %v from %v", cmd.Kind, from)
	}
}

// statusReply renders the human-readable reply for a Status command. A name is looked up as
// name.<tld>, consistent with the store's key space (see SPEC_FULL.md's Open Questions section:
// this is the lookup-key ambiguity resolved in favor of the fully-qualified form).
func (s *ControlServer) statusReply(name string) string {
	if name == "" {
		var out string
		for _, svc := range s.store.All() {
			out += fmt.Sprintf("%s -> %s\n", svc.Domain, svc.Addr)
		}
		return out
	}

	domain := fmt.Sprintf("%s.%s", name, s.tld)
	svc, ok := s.store.Lookup(domain)
	if !ok {
		return fmt.Sprintf("%s -> (not registered)\n", domain)
	}
	return fmt.Sprintf("%s -> %s\n", svc.Domain, svc.Addr)
}

func (s *ControlServer) reply(to *net.UnixAddr, msg string) {
	if to == nil || to.Name == "" {
		return
	}
	// Best-effort: a client that already closed its socket produces a send error we don't need
	// to propagate - Status replies are fire-and-forget from the server's perspective.
	_, _ = s.conn.WriteToUnix([]byte(msg), to)
}

func (s *ControlServer) logf(format string, args ...interface{}) {
	if !s.Debug {
		return
	}
	fmt.Fprintf(s.Stderr, "dolores: "+format+"\n", args...)
}
