package server

import (
	"bufio"
	"context"
	"errors"
	"log"
	"net"
	"runtime/debug"
	"sync"
	"time"
)

const (
	defaultMaxConns    = 64
	defaultIdleTimeout = 60 * time.Second

	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Server accepts connections and runs one request per connection through
// the API.
type Server struct {
	Addr        string
	API         *API
	MaxConns    int
	IdleTimeout time.Duration

	mu      sync.Mutex
	ln      net.Listener
	stopped bool
	done    chan struct{}
	wg      sync.WaitGroup

	initOnce sync.Once
	stopOnce sync.Once
}

func (s *Server) init() {
	s.initOnce.Do(func() {
		s.done = make(chan struct{})
	})
}

// ListenAndServe binds Addr and serves until Stop is called or ctx ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the accept loop on ln. It returns nil after Stop, and the
// listener error if the listener dies underneath it; either way only once
// the connections it started have finished.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.init()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.ln = ln
	s.mu.Unlock()

	exited := make(chan struct{})
	defer close(exited)
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.done:
		case <-exited:
		}
	}()

	limit := s.MaxConns
	if limit <= 0 {
		limit = defaultMaxConns
	}
	sem := make(chan struct{}, limit)

	log.Printf("server: listening on %s (max_conns=%d)", ln.Addr(), limit)

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isStopped() {
				log.Printf("server: stopped accepting on %s", ln.Addr())
				s.wg.Wait()
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				log.Printf("server: listener closed: %v", err)
				s.wg.Wait()
				return err
			}
			if backoff == 0 {
				backoff = minAcceptBackoff
			} else if backoff *= 2; backoff > maxAcceptBackoff {
				backoff = maxAcceptBackoff
			}
			log.Printf("server: accept error: %v; retrying in %v", err, backoff)
			select {
			case <-time.After(backoff):
			case <-s.done:
			}
			continue
		}
		backoff = 0

		select {
		case sem <- struct{}{}:
		case <-s.done:
			conn.Close()
			continue
		}

		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			<-sem
			conn.Close()
			continue
		}
		s.wg.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.wg.Done()
			defer func() { <-sem }()
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *Server) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Stop closes the listener, releasing the port, and waits for connections
// already being served. Safe to call more than once.
func (s *Server) Stop() {
	s.init()
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		ln := s.ln
		s.mu.Unlock()

		close(s.done)
		if ln != nil {
			ln.Close()
		}
	})
	s.wg.Wait()
}

// serveConn is one dispatch unit: read, route, respond, close. Nothing that
// happens here reaches the accept loop.
func (s *Server) serveConn(ctx context.Context, c net.Conn) {
	remote := c.RemoteAddr().String()
	defer c.Close()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("conn %s: panic: %v\n%s", remote, r, debug.Stack())
		}
	}()

	idle := s.IdleTimeout
	if idle <= 0 {
		idle = defaultIdleTimeout
	}
	ic := &idleConn{Conn: c, idle: idle}

	req, err := ReadRequest(bufio.NewReader(ic))
	if err != nil {
		log.Printf("conn %s: %v", remote, err)
		return
	}

	rep := s.API.Route(ctx, req)
	rw := newResponseWriter(ic)
	if err := rep.write(rw); err != nil {
		log.Printf("conn %s: %s %s: write: %v", remote, req.Method, req.Path, err)
		return
	}
	if err := rw.flush(); err != nil {
		log.Printf("conn %s: %s %s: flush: %v", remote, req.Method, req.Path, err)
		return
	}
	log.Printf("conn %s: %s %s", remote, req.Method, req.Path)
}

// idleConn pushes the deadline forward on every read and write, so a silent
// peer is dropped after idle but a slow download is not.
type idleConn struct {
	net.Conn
	idle time.Duration
}

func (c *idleConn) Read(p []byte) (int, error) {
	_ = c.Conn.SetDeadline(time.Now().Add(c.idle))
	return c.Conn.Read(p)
}

func (c *idleConn) Write(p []byte) (int, error) {
	_ = c.Conn.SetDeadline(time.Now().Add(c.idle))
	return c.Conn.Write(p)
}
