package ledger

import (
	"context"
	"encoding/binary"
	"fmt"

	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// appendPath appends a BIP32 path as count u8 followed by u32 indexes.
func appendPath(b []byte, path []uint32) []byte {
	b = append(b, byte(len(path)))
	for _, p := range path {
		b = binary.BigEndian.AppendUint32(b, p)
	}
	return b
}

// chunks splits data into pieces of at most size bytes. Empty data yields no
// chunks.
func chunks(data []byte, size int) [][]byte {
	out := make([][]byte, 0, chunkCount(len(data), size))
	for len(data) > 0 {
		n := min(size, len(data))
		out = append(out, data[:n])
		data = data[n:]
	}
	return out
}

// chunkCount is ceil(n/size).
func chunkCount(n, size int) int {
	return (n + size - 1) / size
}

// batches splits n items into [start,end) ranges of at most size items.
func batches(n, size int) [][2]int {
	out := make([][2]int, 0, chunkCount(n, size))
	for start := 0; start < n; start += size {
		out = append(out, [2]int{start, min(start+size, n)})
	}
	return out
}

// writeChunks sends data in MaxChunkSize pieces and expects no payload back.
func (c *Client) writeChunks(ctx context.Context, ins, p1, session byte, data []byte) error {
	for _, chunk := range chunks(data, MaxChunkSize) {
		if _, err := c.send(ctx, ins, p1, session, chunk); err != nil {
			return err
		}
	}
	return nil
}

// writeChunksWithResult sends data in MaxChunkSize pieces. The device may
// answer the final chunk with a frame count; an answer to any earlier chunk
// is a protocol violation. A zero return means no count was reported.
func (c *Client) writeChunksWithResult(ctx context.Context, ins, p1, session byte, data []byte) (int, error) {
	parts := chunks(data, MaxChunkSize)
	for i, chunk := range parts {
		reply, err := c.send(ctx, ins, p1, session, chunk)
		if err != nil {
			return 0, err
		}
		if len(reply) == 0 {
			continue
		}
		if i != len(parts)-1 {
			return 0, fmt.Errorf("%w: frame count returned after chunk %d of %d", wardenerr.ErrProtocol, i+1, len(parts))
		}
		return frameCount(reply)
	}
	return 0, nil
}

// frameCount reads a frame count reply.
func frameCount(reply []byte) (int, error) {
	if len(reply) != 1 || reply[0] == 0 {
		return 0, fmt.Errorf("%w: malformed frame count reply % x", wardenerr.ErrProtocol, reply)
	}
	return int(reply[0]), nil
}

// sessionID reads the session handle from a session opening reply.
func sessionID(reply []byte) (byte, error) {
	if len(reply) != 1 {
		return 0, fmt.Errorf("%w: session reply is %d bytes", wardenerr.ErrProtocol, len(reply))
	}
	return reply[0], nil
}
