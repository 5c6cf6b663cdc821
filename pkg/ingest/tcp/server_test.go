package tcp

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chunk struct {
	data  string
	label string
}

type recorder struct {
	mu     sync.Mutex
	chunks []chunk
	notify chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan struct{}, 100)}
}

func (r *recorder) ProcessChunk(data []byte, label string) {
	r.mu.Lock()
	r.chunks = append(r.chunks, chunk{string(data), label})
	r.mu.Unlock()
	r.notify <- struct{}{}
}

func (r *recorder) wait(t *testing.T, n int) []chunk {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		r.mu.Lock()
		if len(r.chunks) >= n {
			ret := append([]chunk{}, r.chunks...)
			r.mu.Unlock()
			return ret
		}
		r.mu.Unlock()
		select {
		case <-r.notify:
		case <-deadline:
			require.FailNow(t, "timeout waiting for chunks")
		}
	}
}

func startServer(t *testing.T, h ChunkHandler, opts ...Option) *Server {
	t.Helper()
	all := append([]Option{
		WithListener(ListenerTiming, "127.0.0.1:0"),
		WithListener(ListenerResults, "127.0.0.1:0"),
	}, opts...)
	s := NewServer(h, all...)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func dial(t *testing.T, addr net.Addr) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr.String(), time.Second)
	require.NoError(t, err)
	return conn
}

func TestServerForwardsChunks(t *testing.T) {
	rec := newRecorder()
	s := startServer(t, rec)

	timing := dial(t, s.Addr(ListenerTiming))
	defer timing.Close()
	_, err := timing.Write([]byte("hello"))
	require.NoError(t, err)
	got := rec.wait(t, 1)
	assert.Equal(t, "hello", got[0].data)
	assert.Contains(t, got[0].label, "(TIMING)")
	assert.Contains(t, got[0].label, timing.LocalAddr().String())

	results := dial(t, s.Addr(ListenerResults))
	defer results.Close()
	_, err = results.Write([]byte("world"))
	require.NoError(t, err)
	got = rec.wait(t, 2)
	assert.Equal(t, "world", got[1].data)
	assert.Contains(t, got[1].label, "(RESULTS)")
}

func TestServerReadBufferLimitsChunkSize(t *testing.T) {
	rec := newRecorder()
	s := startServer(t, rec, WithReadBufferSize(4))

	conn := dial(t, s.Addr(ListenerTiming))
	defer conn.Close()
	_, err := conn.Write([]byte("0123456789"))
	require.NoError(t, err)

	got := rec.wait(t, 3)
	all := ""
	for _, c := range got {
		assert.LessOrEqual(t, len(c.data), 4)
		all += c.data
	}
	assert.Equal(t, "0123456789", all)
}

func TestServerBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	s := NewServer(newRecorder(),
		WithListener(ListenerTiming, "127.0.0.1:0"),
		WithListener(ListenerResults, ln.Addr().String()))
	err = s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), ListenerResults)
}

func TestServerShutdownClosesConnections(t *testing.T) {
	rec := newRecorder()
	s := NewServer(rec, WithListener(ListenerTiming, "127.0.0.1:0"))
	require.NoError(t, s.Start(context.Background()))
	addr := s.Addr(ListenerTiming)

	conn := dial(t, addr)
	defer conn.Close()
	_, err := conn.Write([]byte("x"))
	require.NoError(t, err)
	rec.wait(t, 1)

	require.NoError(t, s.Shutdown(context.Background()))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	assert.Error(t, err, "client must observe closed connection")

	_, err = net.DialTimeout("tcp", addr.String(), 200*time.Millisecond)
	assert.Error(t, err, "listener must be released")
}

func TestServerHandlesConcurrentConnections(t *testing.T) {
	rec := newRecorder()
	s := startServer(t, rec)

	const clients = 10
	var wg sync.WaitGroup
	for i := range clients {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addr := s.Addr(ListenerTiming)
			if i%2 == 1 {
				addr = s.Addr(ListenerResults)
			}
			conn, err := net.DialTimeout("tcp", addr.String(), time.Second)
			if err != nil {
				return
			}
			defer conn.Close()
			_, _ = conn.Write([]byte("data"))
		}(i)
	}
	wg.Wait()
	got := rec.wait(t, clients)
	assert.Len(t, got, clients)
}
