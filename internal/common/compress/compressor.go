package compress

import (
	"bytes"
	"compress/zlib"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// Compressor is a fast, single threaded compressor.
// Implementations may reuse buffers so they must not be shared between goroutines.
type Compressor interface {
	// Compress compresses the byte array
	Compress(b []byte) ([]byte, error)
}

// NoOpCompressor is a Compressor that does nothing.
type NoOpCompressor struct{}

func (c *NoOpCompressor) Compress(b []byte) ([]byte, error) {
	return b, nil
}

// SnappyCompressor compresses using the snappy block format.
type SnappyCompressor struct {
	buf []byte
}

func NewSnappyCompressor() *SnappyCompressor {
	return &SnappyCompressor{}
}

func (c *SnappyCompressor) Compress(b []byte) ([]byte, error) {
	c.buf = snappy.Encode(c.buf[:cap(c.buf)], b)
	out := make([]byte, len(c.buf))
	copy(out, c.buf)
	return out, nil
}

// ZlibCompressor compresses to Zlib
type ZlibCompressor struct {
	buffer *bytes.Buffer
	writer *zlib.Writer
}

func NewZlibCompressor() (*ZlibCompressor, error) {
	var b bytes.Buffer
	writer, err := zlib.NewWriterLevel(&b, zlib.BestSpeed)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &ZlibCompressor{buffer: &b, writer: writer}, nil
}

func (c *ZlibCompressor) Compress(b []byte) ([]byte, error) {
	c.buffer.Reset()
	c.writer.Reset(c.buffer)
	if _, err := c.writer.Write(b); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := c.writer.Close(); err != nil {
		return nil, errors.WithStack(err)
	}
	out := make([]byte, c.buffer.Len())
	copy(out, c.buffer.Bytes())
	return out, nil
}
