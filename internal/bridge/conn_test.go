package bridge

import (
	"bufio"
	"errors"
	"net"
	"testing"

	"github.com/danmuck/edgebridge/internal/testutil/testlog"
)

func TestConnSendIsFIFO(t *testing.T) {
	testlog.Start(t)

	server, client := net.Pipe()
	defer client.Close()
	conn := newConn(server, 8, 0)
	defer conn.Close()
	go conn.writeLoop()

	for _, line := range []string{"A 1\n", "B 2\n", "C 3\n"} {
		if err := conn.Send([]byte(line)); err != nil {
			t.Fatalf("send %q: %v", line, err)
		}
	}
	r := bufio.NewReader(client)
	for _, want := range []string{"A 1\n", "B 2\n", "C 3\n"} {
		got, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if got != want {
			t.Fatalf("got %q want %q", got, want)
		}
	}
}

func TestConnFullQueueTearsDownOnlyThatConn(t *testing.T) {
	testlog.Start(t)

	server, client := net.Pipe()
	defer client.Close()
	conn := newConn(server, 1, 0)
	go conn.writeLoop()

	var sendErr error
	for i := 0; i < 5 && sendErr == nil; i++ {
		sendErr = conn.Send([]byte("PING\n"))
	}
	if !errors.Is(sendErr, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull from a stalled peer, got %v", sendErr)
	}
	if !errors.Is(conn.Err(), ErrQueueFull) {
		t.Fatalf("expected recorded cause, got %v", conn.Err())
	}
	if err := conn.Send([]byte("PING\n")); !errors.Is(err, ErrConnClosed) {
		t.Fatalf("expected ErrConnClosed after teardown, got %v", err)
	}
}

func TestConnCloseIsIdempotent(t *testing.T) {
	testlog.Start(t)

	server, client := net.Pipe()
	defer client.Close()
	conn := newConn(server, 1, 0)
	if err := conn.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if conn.RemoteAddr() != "pipe" {
		t.Fatalf("unexpected remote: %q", conn.RemoteAddr())
	}
	if conn.ID() == "" {
		t.Fatalf("expected generated id")
	}
}

func TestStateString(t *testing.T) {
	if StateClosing.String() != "closing" || State(7).String() != "state(7)" {
		t.Fatalf("unexpected state strings")
	}
}
