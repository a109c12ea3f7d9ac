package dialx_test

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	dialx "github.com/pedramktb/go-dialx"
)

func passthrough() dialx.Negotiator {
	return dialx.NegotiatorFunc(func(ctx context.Context, c net.Conn) (net.Conn, error) {
		return c, nil
	})
}

func acceptOne(t *testing.T, ln net.Listener) <-chan net.Conn {
	t.Helper()
	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		accepted <- c
	}()
	return accepted
}

func expectEOF(t *testing.T, c net.Conn) {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := c.Read(buf); !errors.Is(err, io.EOF) {
		t.Fatalf("read = %v, want EOF", err)
	}
}

func TestDialStagedFlushesQueuedWrites(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	accepted := acceptOne(t, ln)

	started := make(chan struct{})
	release := make(chan struct{})
	neg := dialx.NegotiatorFunc(func(ctx context.Context, c net.Conn) (net.Conn, error) {
		close(started)
		<-release
		return c, nil
	})

	ctx := context.Background()
	pc := dialx.DialStaged(ctx, "tcp", ln.Addr().String(), neg)
	wres := make(chan error, 1)
	go func() {
		_, err := pc.Write([]byte("ping"))
		wres <- err
	}()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatalf("negotiation never started")
	}
	close(release)

	if _, err := pc.Await(ctx); err != nil {
		t.Fatalf("await: %v", err)
	}
	var server net.Conn
	select {
	case server = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatalf("no connection accepted")
	}
	defer server.Close()

	buf := make([]byte, 4)
	_ = server.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(server, buf); err != nil {
		t.Fatalf("read queued write: %v", err)
	}
	if string(buf) != "ping" {
		t.Fatalf("server got %q", buf)
	}
	select {
	case err := <-wres:
		if err != nil {
			t.Fatalf("queued write failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("queued write never settled")
	}
}

func TestDialStagedNegotiationFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	accepted := acceptOne(t, ln)

	errStage := errors.New("stage refused")
	neg := dialx.NegotiatorFunc(func(ctx context.Context, c net.Conn) (net.Conn, error) {
		return nil, errStage
	})

	ctx := context.Background()
	pc := dialx.DialStaged(ctx, "tcp", ln.Addr().String(), neg)
	if _, err := pc.Await(ctx); !errors.Is(err, errStage) {
		t.Fatalf("await = %v, want %v", err, errStage)
	}
	if _, err := pc.Write([]byte("late")); !errors.Is(err, errStage) {
		t.Fatalf("write after failure = %v, want %v", err, errStage)
	}
	select {
	case server := <-accepted:
		expectEOF(t, server)
		_ = server.Close()
	case <-time.After(2 * time.Second):
		t.Fatalf("no connection accepted")
	}
}

func TestDialStagedCancelDuringNegotiation(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	accepted := acceptOne(t, ln)

	started := make(chan struct{})
	release := make(chan struct{})
	neg := dialx.NegotiatorFunc(func(ctx context.Context, c net.Conn) (net.Conn, error) {
		close(started)
		<-release
		return c, nil
	})

	ctx := context.Background()
	pc := dialx.DialStaged(ctx, "tcp", ln.Addr().String(), neg)
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatalf("negotiation never started")
	}
	pc.Cancel()
	if _, err := pc.Await(ctx); !errors.Is(err, dialx.ErrCancelled) {
		t.Fatalf("await = %v, want ErrCancelled", err)
	}
	// The negotiator finishes late; its result is abandoned and the raw
	// connection must be closed, not leaked.
	close(release)
	select {
	case server := <-accepted:
		expectEOF(t, server)
		_ = server.Close()
	case <-time.After(2 * time.Second):
		t.Fatalf("no connection accepted")
	}
}

func TestDialStagedCancelAfterEstablished(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	accepted := acceptOne(t, ln)

	ctx := context.Background()
	pc := dialx.DialStaged(ctx, "tcp", ln.Addr().String(), passthrough())
	conn, err := pc.Await(ctx)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	var server net.Conn
	select {
	case server = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatalf("no connection accepted")
	}
	defer server.Close()

	if _, err := conn.Write([]byte("hi")); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, 2)
	_ = server.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(server, buf); err != nil {
		t.Fatalf("read: %v", err)
	}

	// Cancellation after establishment degrades to immediate teardown.
	pc.Cancel()
	pc.Cancel()
	expectEOF(t, server)
	if _, ok := pc.Conn(); !ok {
		t.Fatalf("successful outcome rewritten by late cancel")
	}
}

func TestDialStagedDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	ctx := context.Background()
	pc := dialx.DialStaged(ctx, "tcp", addr, passthrough())
	if _, err := pc.Await(ctx); err == nil {
		t.Fatalf("await succeeded against closed listener")
	}
	if _, err := pc.Write([]byte("late")); err == nil {
		t.Fatalf("write succeeded after dial failure")
	}
}

func TestDialStagedContextTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	_ = acceptOne(t, ln)

	neg := dialx.NegotiatorFunc(func(ctx context.Context, c net.Conn) (net.Conn, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	pc := dialx.DialStaged(ctx, "tcp", ln.Addr().String(), neg)
	if _, err := pc.Await(context.Background()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("await = %v, want DeadlineExceeded", err)
	}
}
