/*
	Copyright 2025 Markus Papenbrock
*/

// Package send provides a tool to send recorded timing messages to a running server.
package send

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/weblynx-service-go/log"
	"github.com/mpapenbr/weblynx-service-go/pkg/lynx/decode"
)

type sendConfig struct {
	addr     string
	encoding string
	chunks   int
	pause    time.Duration
}

func NewSendCmd() *cobra.Command {
	cfg := sendConfig{}
	cmd := &cobra.Command{
		Use:   "send <file>",
		Short: "sends the content of a text file to a timing port",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg, args[0])
		},
	}
	cmd.Flags().StringVarP(&cfg.addr,
		"addr",
		"a",
		"localhost:1950",
		"address of the timing port")
	cmd.Flags().StringVar(&cfg.encoding,
		"encoding",
		"utf16",
		"encoding of the sent data (utf16, utf8)")
	cmd.Flags().IntVar(&cfg.chunks,
		"chunks",
		1,
		"number of chunks the data is split into")
	cmd.Flags().DurationVar(&cfg.pause,
		"pause",
		100*time.Millisecond,
		"pause between chunks")
	return cmd
}

func run(ctx context.Context, cfg sendConfig, file string) error {
	content, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	data, align, err := encode(string(content), cfg.encoding)
	if err != nil {
		return err
	}
	return Send(ctx, cfg.addr, SplitChunks(data, cfg.chunks, align), cfg.pause)
}

func encode(text, encoding string) (data []byte, align int, err error) {
	switch encoding {
	case "utf16":
		data, err = decode.EncodeUTF16LE(text)
		return data, 2, err
	case "utf8":
		return []byte(text), 1, nil
	default:
		return nil, 0, fmt.Errorf("unsupported encoding %q", encoding)
	}
}

// SplitChunks splits data into at most n parts. Part boundaries are multiples of align.
func SplitChunks(data []byte, n, align int) [][]byte {
	if n <= 1 || len(data) == 0 {
		return [][]byte{data}
	}
	align = max(align, 1)
	size := len(data) / n
	size -= size % align
	if size == 0 {
		size = align
	}
	ret := make([][]byte, 0, n)
	for start := 0; start < len(data); {
		end := start + size
		if len(ret) == n-1 || end > len(data) {
			end = len(data)
		}
		ret = append(ret, data[start:end])
		start = end
	}
	return ret
}

// Send writes each chunk to addr, pausing between the chunks.
func Send(ctx context.Context, addr string, chunks [][]byte, pause time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	for i, c := range chunks {
		if i > 0 && pause > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pause):
			}
		}
		if _, err := conn.Write(c); err != nil {
			return fmt.Errorf("chunk %d: %w", i+1, err)
		}
		log.Debug("sent chunk", log.Int("chunk", i+1), log.Int("bytes", len(c)))
	}
	log.Info("data sent", log.String("addr", addr), log.Int("chunks", len(chunks)))
	return nil
}
