/*
Package constants provides common values used across all dolores packages. Usage is to call the
global Get() function which returns the Constants by value ensuring that any modifications made
(accidental or otherwise) will not affect other modules when they call Get().

Typically usage:

    consts := constants.Get()
    fmt.Println("I am", consts.ProgramName, "based on", consts.PackageURL)

The primary reason for making this a constructed struct rather than the more typical const () block
is so that it can be fed directly into templating packages for printing usage messages.
*/
package constants

import "time"

// Constants contains the system-wide constants
type Constants struct {
	ProgramName string // Package related constants
	Version     string
	PackageURL  string

	DefaultTLD        string // Subdomain suffix for registered services, e.g. "localhost"
	DefaultSocketPath string // UNIX datagram control socket path
	SocketPathEnv     string // Environment variable overriding DefaultSocketPath
	DefaultListenAddr string // Front-end TLS listen address
	ClientSockPattern string // fmt pattern for transient client socket names: dolores-<hex>-client.sock

	DatagramBufferSize int           // buffer size for one control-plane datagram message
	CallTimeout        time.Duration // registry client call() reply timeout

	ListenFDBase     uintptr // Fixed FD children inherit their listening socket at
	ListenFDsEnv     string  // LISTEN_FDS
	ListenPIDEnv     string  // LISTEN_PID
	ListenFDNamesEnv string  // LISTEN_FDNAMES
	ListenFDNames    string  // value placed in LISTEN_FDNAMES

	SNIPeekBufferSize int // bytes peeked off the front-end connection to find a ClientHello
}

var readOnlyConstants *Constants

// createReadOnlyConstants creates a read-only copy of the Constants which is copied whenever a
// caller asks for the constants set. The main reason for returning a struct is so that callers can
// inspect and/or use packages that introspect - particularly */template packages.
func createReadOnlyConstants() {
	readOnlyConstants = &Constants{
		ProgramName: "dolores",
		Version:     "v0.1.0",
		PackageURL:  "https://github.com/hauleth/dolores",

		DefaultTLD:        "localhost",
		DefaultSocketPath: "/var/run/dolores.sock",
		SocketPathEnv:     "DOLORES_SOCKET",
		DefaultListenAddr: "[::]:443",
		ClientSockPattern: "dolores-%s-client.sock",

		DatagramBufferSize: 1024,
		CallTimeout:        5 * time.Second,

		ListenFDBase:     3,
		ListenFDsEnv:     "LISTEN_FDS",
		ListenPIDEnv:     "LISTEN_PID",
		ListenFDNamesEnv: "LISTEN_FDNAMES",
		ListenFDNames:    "http",

		SNIPeekBufferSize: 1024,
	}
}

func init() {
	createReadOnlyConstants()
}

// Get returns a copy of the Constant struct. Return by value so internal values cannot be
// inadvertently changed by callers.
func Get() Constants {
	return *readOnlyConstants
}
