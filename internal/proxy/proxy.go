// Package proxy splices bytes between an already-accepted client
// connection and a freshly dialed upstream server connection.
package proxy

import (
	"context"
	"net"
	"sync/atomic"
	"time"
)

// Config tunes dial and idle behaviour. Zero values fall back to the
// defaults below.
type Config struct {
	// DialTimeout bounds connecting to the chosen upstream.
	DialTimeout time.Duration
	// IdleTimeout closes the tunnel if neither side has moved a byte for
	// this long. The teacher's forwarder instead relies on io.Copy
	// running until EOF/error; we need a bound here because a wedged
	// upstream would otherwise pin a worker-pool slot forever.
	IdleTimeout time.Duration
	// BufferSize is the per-direction copy buffer.
	BufferSize int
}

const (
	defaultDialTimeout = 3 * time.Second
	defaultIdleTimeout = 5 * time.Second
	defaultBufferSize  = 4096
)

func (c Config) withDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaultIdleTimeout
	}
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	return c
}

// Proxy dials a chosen upstream and splices it to a client connection.
type Proxy struct {
	cfg Config
}

// New constructs a Proxy with the given configuration.
func New(cfg Config) *Proxy {
	return &Proxy{cfg: cfg.withDefaults()}
}

// Dial connects to the given upstream address, honoring DialTimeout.
func (p *Proxy) Dial(ctx context.Context, addr string) (net.Conn, error) {
	d := net.Dialer{Timeout: p.cfg.DialTimeout}
	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.DialTimeout)
	defer cancel()
	return d.DialContext(dialCtx, "tcp", addr)
}

// Handle splices client and upstream until one side closes or the tunnel
// goes idle past IdleTimeout. It reports whether the exchange moved at
// least one byte in either direction; the dispatcher counts true as a
// successful request and false as a failed one.
func (p *Proxy) Handle(client, upstream net.Conn) bool {
	defer upstream.Close()

	done := make(chan struct{}, 2)
	var movedBytes int64

	shuttle := func(dst, src net.Conn) {
		defer func() { done <- struct{}{} }()
		buf := make([]byte, p.cfg.BufferSize)
		for {
			_ = src.SetReadDeadline(time.Now().Add(p.cfg.IdleTimeout))
			n, err := src.Read(buf)
			if n > 0 {
				if _, werr := dst.Write(buf[:n]); werr != nil {
					return
				}
				atomic.AddInt64(&movedBytes, int64(n))
			}
			if err != nil {
				if cw, ok := dst.(interface{ CloseWrite() error }); ok {
					_ = cw.CloseWrite()
				}
				return
			}
		}
	}

	go shuttle(upstream, client)
	go shuttle(client, upstream)

	<-done
	<-done

	return atomic.LoadInt64(&movedBytes) > 0
}
