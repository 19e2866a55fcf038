package registry

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hauleth/dolores/internal/wire"
)

// Client is a short-lived control-plane endpoint for a single process (the runner, or the status
// CLI). Each Client owns a uniquely-named transient socket in the system temp directory.
type Client struct {
	conn     *net.UnixConn
	bindPath string
}

// Open creates a new datagram socket bound to a unique path in the system temp directory and
// connects it to the server's control socket at serverPath. On any failure after the bind path is
// created, the bind path is removed before the error is returned.
func Open(serverPath string) (*Client, error) {
	bindPath, err := uniqueClientSockPath()
	if err != nil {
		return nil, fmt.Errorf("registry: choose client socket path: %w", err)
	}

	local := &net.UnixAddr{Name: bindPath, Net: "unixgram"}
	remote := &net.UnixAddr{Name: serverPath, Net: "unixgram"}

	conn, err := net.DialUnix("unixgram", local, remote)
	if err != nil {
		os.Remove(bindPath)
		return nil, fmt.Errorf("registry: connect to %s: %w", serverPath, err)
	}

	return &Client{conn: conn, bindPath: bindPath}, nil
}

func uniqueClientSockPath() (string, error) {
	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	name := fmt.Sprintf("dolores-%s-client.sock", hex.EncodeToString(raw[:]))
	return filepath.Join(os.TempDir(), name), nil
}

// Send encodes and sends cmd; no reply is expected.
func (c *Client) Send(cmd wire.Command) error {
	data, err := wire.Encode(cmd)
	if err != nil {
		return err
	}
	_, err = c.conn.Write(data)
	return err
}

// Call encodes and sends cmd, then awaits a reply bounded by timeout (or by ctx's deadline, if
// that comes sooner). On timeout, a deadline-exceeded error is returned. The reply is decoded as UTF-8 text.
func (c *Client) Call(ctx context.Context, cmd wire.Command, timeout time.Duration) (string, error) {
	if err := c.Send(cmd); err != nil {
		return "", err
	}

	deadline, ok := ctx.Deadline()
	if !ok || time.Until(deadline) > timeout {
		deadline = time.Now().Add(timeout)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return "", err
	}

	buf := make([]byte, 1024)
	n, err := c.conn.Read(buf)
	if err != nil {
		return "", fmt.Errorf("registry: call timed out or failed: %w", err)
	}

	return string(buf[:n]), nil
}

// Close unlinks the client's bind path. Unlinking is best-effort: a failure here must never panic
// in a shipped build (a documented flaw in the source this system was distilled from), so it is
// only logged via the returned error for the caller to decide what to do with.
func (c *Client) Close() error {
	connErr := c.conn.Close()
	rmErr := os.Remove(c.bindPath)
	if connErr != nil {
		return connErr
	}
	if rmErr != nil && !os.IsNotExist(rmErr) {
		return rmErr
	}
	return nil
}
