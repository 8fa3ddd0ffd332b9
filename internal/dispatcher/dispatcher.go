// Package dispatcher is the central orchestrator: it accepts client
// connections, picks an upstream via the active strategy, proxies bytes,
// and feeds the outcome back into the pool, the strategy, and metrics.
package dispatcher

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/drsoft-oss/loadbalancer/internal/metrics"
	"github.com/drsoft-oss/loadbalancer/internal/pool"
	"github.com/drsoft-oss/loadbalancer/internal/proxy"
	"github.com/drsoft-oss/loadbalancer/internal/strategy"
)

// acceptDeadline bounds how long Accept blocks before the loop rechecks
// the stop channel, so shutdown is never more than this long.
const acceptDeadline = time.Second

// Config holds dispatcher-level settings.
type Config struct {
	// ListenAddr is the address to bind for incoming client connections.
	ListenAddr string
	// MaxWorkers bounds how many connections are proxied concurrently;
	// additional accepted connections queue on the semaphore.
	MaxWorkers int64
}

func (c Config) withDefaults() Config {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 100
	}
	return c
}

// Dispatcher accepts client connections and load-balances them across a
// pool of upstream servers using a pluggable strategy.
type Dispatcher struct {
	cfg   Config
	pool  *pool.Pool
	proxy *proxy.Proxy
	mx    *metrics.Recorder

	stratMu sync.RWMutex
	strat   strategy.Selector

	ln    net.Listener
	ready chan struct{}
	sem   *semaphore.Weighted
	stop  chan struct{}

	connWG sync.WaitGroup
}

// New constructs a Dispatcher. Call Start to begin accepting traffic.
func New(cfg Config, p *pool.Pool, px *proxy.Proxy, mx *metrics.Recorder, initial strategy.Selector) *Dispatcher {
	cfg = cfg.withDefaults()
	return &Dispatcher{
		cfg:   cfg,
		pool:  p,
		proxy: px,
		mx:    mx,
		strat: initial,
		sem:   semaphore.NewWeighted(cfg.MaxWorkers),
		stop:  make(chan struct{}),
		ready: make(chan struct{}),
	}
}

// Addr blocks until the listener is bound and returns its address. Useful
// for tests and callers that start the dispatcher on a goroutine and need
// to know the bound port (e.g. ListenAddr ":0").
func (d *Dispatcher) Addr() net.Addr {
	<-d.ready
	return d.ln.Addr()
}

// Start binds the listener and begins the accept loop. Blocks until the
// listener fails or Stop is called, then returns.
func (d *Dispatcher) Start() error {
	ln, err := net.Listen("tcp", d.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", d.cfg.ListenAddr, err)
	}
	d.ln = ln
	close(d.ready)
	log.Printf("[dispatcher] listening on %s", d.cfg.ListenAddr)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-d.stop
		cancel()
	}()

	for {
		select {
		case <-d.stop:
			return nil
		default:
		}

		if tcpLn, ok := ln.(*net.TCPListener); ok {
			_ = tcpLn.SetDeadline(time.Now().Add(acceptDeadline))
		}
		conn, err := ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-d.stop:
				return nil
			default:
				return err
			}
		}

		if err := d.sem.Acquire(ctx, 1); err != nil {
			conn.Close()
			continue
		}
		d.connWG.Add(1)
		go func() {
			defer d.sem.Release(1)
			defer d.connWG.Done()
			d.handleConn(conn)
		}()
	}
}

// Stop closes the listener and waits for in-flight connections to drain.
func (d *Dispatcher) Stop() {
	close(d.stop)
	if d.ln != nil {
		d.ln.Close()
	}
	d.connWG.Wait()
}

func (d *Dispatcher) handleConn(client net.Conn) {
	defer client.Close()

	start := time.Now()
	d.mx.RequestStarted()

	clientAddr := ""
	if ra := client.RemoteAddr(); ra != nil {
		clientAddr = ra.String()
	}

	if d.pool.AllServersDown() {
		writeServiceUnavailable(client)
		d.mx.RequestFinished(metrics.Request{Timestamp: time.Now(), Client: clientAddr, Success: false, Duration: time.Since(start)})
		return
	}

	entry, ok := d.selectServer()
	if !ok {
		writeServiceUnavailable(client)
		d.mx.RequestFinished(metrics.Request{Timestamp: time.Now(), Client: clientAddr, Success: false, Duration: time.Since(start)})
		return
	}

	serverKey := entry.Key()
	d.pool.IncrementActive(entry.Host, entry.Port)
	defer d.pool.DecrementActive(entry.Host, entry.Port)

	ctx, cancel := context.WithTimeout(context.Background(), acceptDeadline*3)
	defer cancel()

	upstream, err := d.proxy.Dial(ctx, serverKey)
	if err != nil {
		writeServiceUnavailable(client)
		d.mx.RequestFinished(metrics.Request{Timestamp: time.Now(), Server: serverKey, Client: clientAddr, Success: false, Duration: time.Since(start)})
		return
	}

	success := d.proxy.Handle(client, upstream)
	duration := time.Since(start)

	if success {
		d.pool.RecordResponseTime(entry.Host, entry.Port, duration)
		d.stratMu.RLock()
		if fb, ok := d.strat.(strategy.Feedbacker); ok {
			fb.RecordResponseTime(entry, duration)
		}
		d.stratMu.RUnlock()
	}

	d.mx.RequestFinished(metrics.Request{
		Timestamp: time.Now(),
		Server:    serverKey,
		Client:    clientAddr,
		Success:   success,
		Duration:  duration,
	})
}

func (d *Dispatcher) selectServer() (pool.Entry, bool) {
	candidates := d.pool.HealthySnapshot()
	if len(candidates) == 0 {
		return pool.Entry{}, false
	}
	d.stratMu.RLock()
	defer d.stratMu.RUnlock()
	return d.strat.SelectServer(candidates)
}

func writeServiceUnavailable(conn net.Conn) {
	const body = "HTTP/1.1 503 Service Unavailable\r\nContent-Length: 19\r\nConnection: close\r\n\r\nService Unavailable"
	_, _ = conn.Write([]byte(body))
}

// -----------------------------------------------------------------------
// Administrative API — exposed as plain Go methods; an HTTP/dashboard
// framing of this surface is out of scope.
// -----------------------------------------------------------------------

// Status is a point-in-time administrative summary of the dispatcher.
type Status struct {
	Strategy       string
	TotalServers   int
	HealthyServers int
	Metrics        metrics.Snapshot

	// AlgorithmMetrics holds the active strategy's algorithm-specific
	// gauges (e.g. AURA's beta/gamma/hedge rate, HELIOS's cache-hit and
	// redirect rates) when it implements strategy.MetricsReporter, and
	// is nil otherwise.
	AlgorithmMetrics any
}

// Status reports the dispatcher's current strategy, server counts,
// accumulated metrics, and any strategy-specific algorithm metrics.
func (d *Dispatcher) Status() Status {
	d.stratMu.RLock()
	name := d.strat.Name()
	var algoMetrics any
	if mr, ok := d.strat.(strategy.MetricsReporter); ok {
		algoMetrics = mr.AlgorithmMetrics()
	}
	d.stratMu.RUnlock()

	return Status{
		Strategy:         name,
		TotalServers:     d.pool.Len(),
		HealthyServers:   len(d.pool.HealthySnapshot()),
		Metrics:          d.mx.Snapshot(),
		AlgorithmMetrics: algoMetrics,
	}
}

// Snapshot returns every registered server's current state.
func (d *Dispatcher) Snapshot() []pool.Entry {
	return d.pool.AllSnapshot()
}

// ToggleServer manually enables or disables a specific server.
func (d *Dispatcher) ToggleServer(host string, port uint16, enabled bool) {
	if enabled {
		d.pool.ManuallyEnable(host, port)
	} else {
		d.pool.ManuallyDisable(host, port)
	}
}

// SetStrategy swaps the active selection strategy. Any accumulated
// feedback/affinity state in the previous strategy is discarded.
func (d *Dispatcher) SetStrategy(name string) {
	next := strategy.New(name)
	d.stratMu.Lock()
	d.strat = next
	d.stratMu.Unlock()
}
