package services

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

const redisPingTimeout = 3 * time.Second

// PingRedis sends an inline PING to a redis server and expects +PONG. The
// probe speaks just enough of the wire protocol to verify liveness; no
// client library is involved.
func PingRedis(ctx context.Context, addr string) error {
	dialer := net.Dialer{Timeout: redisPingTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial redis %s: %w", addr, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(redisPingTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("set redis deadline: %w", err)
	}

	if _, err := conn.Write([]byte("PING\r\n")); err != nil {
		return fmt.Errorf("write redis ping: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return fmt.Errorf("read redis pong: %w", err)
	}
	if !strings.HasPrefix(line, "+PONG") {
		return fmt.Errorf("unexpected redis reply: %q", strings.TrimSpace(line))
	}
	return nil
}
