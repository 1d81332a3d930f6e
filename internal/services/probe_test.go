package services

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"
)

func TestPortInUse(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer listener.Close()
	port := listener.Addr().(*net.TCPAddr).Port

	if !PortInUse("127.0.0.1", port) {
		t.Fatalf("port %d has a listener, PortInUse should report true", port)
	}

	listener.Close()
	// The freed port should now probe as available.
	if PortInUse("127.0.0.1", port) {
		t.Fatalf("port %d is free, PortInUse should report false", port)
	}
}

func TestPingRedis(t *testing.T) {
	cases := []struct {
		name    string
		reply   string
		wantErr bool
	}{
		{name: "pong", reply: "+PONG\r\n"},
		{name: "error reply", reply: "-ERR not ready\r\n", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			addr := startFakeRedis(t, tc.reply)
			err := PingRedis(context.Background(), addr)
			if tc.wantErr && err == nil {
				t.Fatal("expected ping error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("PingRedis() error: %v", err)
			}
		})
	}
}

func TestPingRedisConnectionRefused(t *testing.T) {
	if err := PingRedis(context.Background(), "127.0.0.1:1"); err == nil {
		t.Fatal("expected dial error for closed port")
	}
}

func TestWaitReadyEventuallySucceeds(t *testing.T) {
	attempts := 0
	probe := func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("not yet")
		}
		return nil
	}

	if err := WaitReady(context.Background(), probe, 10*time.Second); err != nil {
		t.Fatalf("WaitReady() error: %v", err)
	}
	if attempts < 3 {
		t.Fatalf("probe attempted %d times, want at least 3", attempts)
	}
}

func TestWaitReadyFailsAtDeadline(t *testing.T) {
	probe := func(context.Context) error {
		return errors.New("never ready")
	}

	start := time.Now()
	err := WaitReady(context.Background(), probe, 500*time.Millisecond)
	if err == nil {
		t.Fatal("expected deadline failure, got nil")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("WaitReady() blocked %s past its deadline", elapsed)
	}
}

func TestProcessAliveProbe(t *testing.T) {
	alive := ProcessAliveProbe(func() bool { return true }, 10*time.Millisecond)
	if err := alive(context.Background()); err != nil {
		t.Fatalf("probe for live process failed: %v", err)
	}

	dead := ProcessAliveProbe(func() bool { return false }, 10*time.Millisecond)
	if err := dead(context.Background()); err == nil {
		t.Fatal("probe for dead process should fail")
	}
}

func startFakeRedis(t *testing.T, reply string) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				line, err := bufio.NewReader(c).ReadString('\n')
				if err != nil {
					return
				}
				if strings.HasPrefix(strings.ToUpper(line), "PING") {
					_, _ = c.Write([]byte(reply))
				}
			}(conn)
		}
	}()

	return listener.Addr().String()
}
