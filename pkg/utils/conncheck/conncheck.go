// Package conncheck waits for dependent services to become reachable.
package conncheck

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/mpapenbr/weblynx-service-go/log"
)

const (
	defaultNatsPort = "4222"
	pollInterval    = 200 * time.Millisecond
)

// WaitForTCP dials addr until a connection succeeds, the timeout is reached or ctx
// is done.
func WaitForTCP(ctx context.Context, addr string, timeout time.Duration) error {
	timeoutReached := time.Now().Add(timeout)
	start := time.Now()
	log.Debug("wait for tcp connection",
		log.String("addr", addr),
		log.String("timeout", timeout.String()))
	var d net.Dialer
	for time.Now().Before(timeoutReached) {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn.Close()
			log.Debug("tcp connection successful",
				log.String("addr", addr),
				log.String("duration", time.Since(start).String()))
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
	return fmt.Errorf("%s could not be reached after %v", addr, timeout)
}

// ExtractFromNatsURL returns the host:port of the first server of a nats url.
// Multiple servers may be given as a comma separated list.
func ExtractFromNatsURL(natsURL string) string {
	first, _, _ := strings.Cut(natsURL, ",")
	first = strings.TrimSpace(first)
	if first == "" {
		return ""
	}
	if !strings.Contains(first, "://") {
		first = "nats://" + first
	}
	u, err := url.Parse(first)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	port := u.Port()
	if port == "" {
		port = defaultNatsPort
	}
	return net.JoinHostPort(u.Hostname(), port)
}
