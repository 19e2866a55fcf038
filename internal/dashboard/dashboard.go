// Package dashboard implements the optional management HTTPS endpoint: a connection that reaches
// the front-end listener without usable SNI is handed here instead of being dropped. It serves a
// small home page listing registered services and a health-check endpoint.
package dashboard

import (
	"context"
	"crypto/tls"
	"html/template"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/hauleth/dolores/internal/registry"
)

// Dashboard terminates TLS for connections that carried no (or no usable) SNI and serves a small
// read-only HTTP surface over the registry.
type Dashboard struct {
	store     *registry.Store
	tlsConfig *tls.Config
	started   time.Time
	mux       *http.ServeMux
}

// New builds a Dashboard. cert is presented regardless of the client's (absent) SNI - it has no
// particular domain to match.
func New(store *registry.Store, cert tls.Certificate) *Dashboard {
	d := &Dashboard{
		store:     store,
		tlsConfig: &tls.Config{Certificates: []tls.Certificate{cert}},
		started:   time.Now(),
	}
	d.mux = http.NewServeMux()
	d.mux.HandleFunc("/", d.home)
	d.mux.HandleFunc("/health", d.health)
	return d
}

// ServeConn terminates TLS on conn and serves HTTP/1.1 requests over it until the client
// disconnects. The connection is closed before ServeConn returns.
func (d *Dashboard) ServeConn(ctx context.Context, conn net.Conn) error {
	tlsConn := tls.Server(conn, d.tlsConfig)
	defer tlsConn.Close()

	closed := make(chan struct{})
	srv := &http.Server{
		Handler:     d.mux,
		BaseContext: func(net.Listener) context.Context { return ctx },
		ConnState: func(c net.Conn, state http.ConnState) {
			if state == http.StateClosed || state == http.StateHijacked {
				select {
				case <-closed:
				default:
					close(closed)
				}
			}
		},
	}
	err := srv.Serve(&singleConnListener{conn: tlsConn, closed: closed})
	if err == io.EOF || err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (d *Dashboard) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, "Ok\n")
}

func (d *Dashboard) home(w http.ResponseWriter, r *http.Request) {
	services := d.store.All()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	homeTemplate.Execute(w, homeData{
		Uptime:   time.Since(d.started).Truncate(time.Second).String(),
		Services: services,
	})
}

type homeData struct {
	Uptime   string
	Services []*registry.Service
}

var homeTemplate = template.Must(template.New("home").Parse(`<!DOCTYPE html>
<html>
<head><title>dolores</title></head>
<body>
<h1>dolores</h1>
<p>Up {{.Uptime}}</p>
<table>
<thead><tr><th>Name</th><th>Domain</th><th>Proxy</th></tr></thead>
<tbody>
{{range .Services}}<tr><td>{{.Name}}</td><td>{{.Domain}}</td><td>{{.ProxyKind}}</td></tr>
{{else}}<tr><td colspan="3">no services registered</td></tr>
{{end}}
</tbody>
</table>
</body>
</html>
`))

// singleConnListener adapts a single already-accepted net.Conn into a net.Listener so
// *http.Server can drive it: the first Accept returns conn, every subsequent Accept blocks until
// the server reports that connection closed (or hijacked) and then reports io.EOF, which
// ServeConn treats as a normal close rather than an error.
type singleConnListener struct {
	conn   net.Conn
	closed chan struct{}
	served bool
}

func (l *singleConnListener) Accept() (net.Conn, error) {
	if !l.served {
		l.served = true
		return l.conn, nil
	}
	<-l.closed
	return nil, io.EOF
}

func (l *singleConnListener) Close() error   { return nil }
func (l *singleConnListener) Addr() net.Addr { return l.conn.LocalAddr() }
