package send

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/weblynx-service-go/pkg/lynx/decode"
)

func TestSplitChunks(t *testing.T) {
	data := []byte("0123456789")
	tests := []struct {
		name  string
		n     int
		align int
		want  []string
	}{
		{"single", 1, 1, []string{"0123456789"}},
		{"zero", 0, 1, []string{"0123456789"}},
		{"three", 3, 1, []string{"012", "345", "6789"}},
		{"aligned", 3, 2, []string{"01", "23", "456789"}},
		{"more than bytes", 20, 2, []string{"01", "23", "45", "67", "89"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitChunks(data, tt.n, tt.align)
			parts := make([]string, 0, len(got))
			for _, c := range got {
				parts = append(parts, string(c))
			}
			assert.Equal(t, tt.want, parts)
			assert.Equal(t, data, bytes.Join(got, nil))
		})
	}
}

func TestEncode(t *testing.T) {
	data, align, err := encode("AB", "utf16")
	require.NoError(t, err)
	assert.Equal(t, []byte{'A', 0, 'B', 0}, data)
	assert.Equal(t, 2, align)

	data, align, err = encode("AB", "utf8")
	require.NoError(t, err)
	assert.Equal(t, []byte("AB"), data)
	assert.Equal(t, 1, align)

	_, _, err = encode("AB", "latin1")
	assert.Error(t, err)
}

func receiveAll(t *testing.T) (addr string, result <-chan []byte) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	ch := make(chan []byte, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			close(ch)
			return
		}
		defer conn.Close()
		data, _ := io.ReadAll(conn)
		ch <- data
	}()
	return l.Addr().String(), ch
}

func TestSend(t *testing.T) {
	addr, result := receiveAll(t)
	chunks := [][]byte{[]byte("abc"), []byte("def")}
	require.NoError(t, Send(context.Background(), addr, chunks, 10*time.Millisecond))
	select {
	case got := <-result:
		assert.Equal(t, "abcdef", string(got))
	case <-time.After(time.Second):
		t.Fatal("no data received")
	}
}

func TestRun(t *testing.T) {
	addr, result := receiveAll(t)
	file := filepath.Join(t.TempDir(), "startlist.txt")
	require.NoError(t, os.WriteFile(file, []byte("Running time: 1.2\r\n"), 0o600))

	cfg := sendConfig{addr: addr, encoding: "utf16", chunks: 2, pause: time.Millisecond}
	require.NoError(t, run(context.Background(), cfg, file))
	select {
	case got := <-result:
		text, enc, ok := decode.Text(got)
		require.True(t, ok)
		assert.Equal(t, decode.EncodingUTF16LE, enc)
		assert.Equal(t, "Running time: 1.2\r\n", text)
	case <-time.After(time.Second):
		t.Fatal("no data received")
	}
}

func TestSendUnreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()
	assert.Error(t, Send(context.Background(), addr, [][]byte{[]byte("x")}, 0))
}
