package server

import (
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

func startServer(t *testing.T, a *API, idle time.Duration) (*Server, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := &Server{API: a, MaxConns: 4, IdleTimeout: idle}
	errc := make(chan error, 1)
	go func() { errc <- s.Serve(context.Background(), ln) }()
	t.Cleanup(func() {
		s.Stop()
		if err := <-errc; err != nil {
			t.Errorf("Serve: %v", err)
		}
	})
	return s, ln.Addr().String()
}

func roundTrip(t *testing.T, addr, raw string) string {
	t.Helper()
	c, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	_ = c.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := io.WriteString(c, raw); err != nil {
		t.Fatal(err)
	}
	b, err := io.ReadAll(c)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(b)
}

func TestServeUnknownThenSearch(t *testing.T) {
	a, _ := testAPI(t)
	_, addr := startServer(t, a, 2*time.Second)

	resp := roundTrip(t, addr, "GET /api/unknown HTTP/1.1\r\nHost: x\r\n\r\n")
	if !strings.HasPrefix(resp, "HTTP/1.1 200 OK\r\n") || !strings.Contains(resp, `"success":false`) ||
		!strings.Contains(resp, "unknown action: unknown") {
		t.Fatalf("unknown action response:\n%s", resp)
	}
	if !strings.Contains(resp, "Connection: close\r\n") || !strings.Contains(resp, "Accept-Ranges: bytes\r\n") {
		t.Fatalf("missing fixed headers:\n%s", resp)
	}

	resp = roundTrip(t, addr, "GET /api/search?region=us HTTP/1.1\r\n\r\n")
	if !strings.Contains(resp, `"id":"0100000000010000"`) {
		t.Fatalf("acceptor stopped serving after an error:\n%s", resp)
	}
}

func TestServeMalformedGetsNoResponse(t *testing.T) {
	a, _ := testAPI(t)
	_, addr := startServer(t, a, 2*time.Second)

	if resp := roundTrip(t, addr, "NONSENSE\r\n\r\n"); resp != "" {
		t.Fatalf("malformed request answered:\n%s", resp)
	}
	if resp := roundTrip(t, addr, "GET / HTTP/1.1\r\n\r\n"); !strings.Contains(resp, "<html>") {
		t.Fatalf("root listing after malformed request:\n%s", resp)
	}
}

func TestServeConcurrent(t *testing.T) {
	a, _ := testAPI(t)
	_, addr := startServer(t, a, 2*time.Second)

	const n = 16
	done := make(chan string, n)
	for i := 0; i < n; i++ {
		go func() {
			c, err := net.Dial("tcp", addr)
			if err != nil {
				done <- err.Error()
				return
			}
			defer c.Close()
			_ = c.SetDeadline(time.Now().Add(5 * time.Second))
			_, _ = io.WriteString(c, "GET /api/download/0100000000010000/0/10 HTTP/1.1\r\n\r\n")
			b, _ := io.ReadAll(c)
			done <- string(b)
		}()
	}
	for i := 0; i < n; i++ {
		if resp := <-done; !strings.Contains(resp, "Content-Range: bytes 0-9/1000") {
			t.Fatalf("concurrent download %d:\n%s", i, resp)
		}
	}
}

func TestStopReleasesPort(t *testing.T) {
	a, _ := testAPI(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()

	s := &Server{API: a}
	errc := make(chan error, 1)
	go func() { errc <- s.Serve(context.Background(), ln) }()

	c, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	c.Close()

	s.Stop()
	s.Stop()
	if err := <-errc; err != nil {
		t.Fatalf("Serve returned %v after Stop", err)
	}

	again, err := net.Listen("tcp", addr)
	if err != nil {
		t.Fatalf("port not released: %v", err)
	}
	again.Close()
}

func TestServeStopsOnContextCancel(t *testing.T) {
	a, _ := testAPI(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{API: a}
	errc := make(chan error, 1)
	go func() { errc <- s.Serve(ctx, ln) }()

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Serve = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestIdleTimeoutClosesSilentClient(t *testing.T) {
	a, _ := testAPI(t)
	_, addr := startServer(t, a, 100*time.Millisecond)

	c, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
	b, err := io.ReadAll(c)
	if err != nil {
		t.Fatalf("connection not closed by server: %v", err)
	}
	if len(b) != 0 {
		t.Fatalf("silent client got a response: %q", b)
	}
}

func TestCancelWaitsForInFlight(t *testing.T) {
	a, _ := testAPI(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{API: a, IdleTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- s.Serve(ctx, ln) }()

	c, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	_ = c.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := io.WriteString(c, "GET /api/user HTTP/1.1\r\n"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		t.Fatalf("Serve returned %v with a request in flight", err)
	case <-time.After(200 * time.Millisecond):
	}

	if _, err := io.WriteString(c, "\r\n"); err != nil {
		t.Fatal(err)
	}
	b, _ := io.ReadAll(c)
	if !strings.Contains(string(b), `"name":"tester"`) {
		t.Fatalf("in-flight request not answered:\n%s", b)
	}
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Serve = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after the last connection closed")
	}
}
