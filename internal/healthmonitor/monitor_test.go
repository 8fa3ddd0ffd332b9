package healthmonitor

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/drsoft-oss/loadbalancer/internal/pool"
)

func listenOn(t *testing.T) (net.Listener, string, uint16) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return ln, host, uint16(port)
}

func TestRunOnce_MarksReachableServerHealthy(t *testing.T) {
	ln, host, port := listenOn(t)
	defer ln.Close()

	p := pool.New(0)
	p.AddServer(host, port)
	p.MarkUnhealthy(host, port)

	m := New(p, Config{Timeout: time.Second})
	m.RunOnce()

	all := p.AllSnapshot()
	if !all[0].Healthy {
		t.Fatalf("expected reachable server to be marked healthy, got %+v", all[0])
	}
}

func TestRunOnce_RecordsFailureForUnreachableServerAfterRetries(t *testing.T) {
	p := pool.New(0)
	p.AddServer("127.0.0.1", 1) // port 1 should refuse immediately

	m := New(p, Config{Timeout: 200 * time.Millisecond})
	start := time.Now()
	m.RunOnce()
	elapsed := time.Since(start)

	all := p.AllSnapshot()
	if all[0].Failures == 0 {
		t.Fatal("expected at least one recorded failure for an unreachable server")
	}
	if elapsed < retryDelay {
		t.Fatalf("expected the retry delay to be honored, took only %v", elapsed)
	}
}

func TestStartStop_RunsAtLeastOnePass(t *testing.T) {
	ln, host, port := listenOn(t)
	defer ln.Close()

	p := pool.New(0)
	p.AddServer(host, port)
	p.MarkUnhealthy(host, port)

	m := New(p, Config{Interval: 50 * time.Millisecond, Timeout: time.Second})
	m.Start()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p.AllSnapshot()[0].Healthy {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	m.Stop()

	if !p.AllSnapshot()[0].Healthy {
		t.Fatal("expected monitor to mark the server healthy within the deadline")
	}
}
