package compress

import (
	"bytes"
	"compress/zlib"
	"io"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// Decompressor reverses a Compressor.
type Decompressor interface {
	// Decompress decompresses the byte array
	Decompress(b []byte) ([]byte, error)
}

// NoOpDecompressor is a Decompressor that does nothing.
type NoOpDecompressor struct{}

func (c *NoOpDecompressor) Decompress(b []byte) ([]byte, error) {
	return b, nil
}

type SnappyDecompressor struct{}

func (d *SnappyDecompressor) Decompress(b []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, b)
	return out, errors.WithStack(err)
}

// ZlibDecompressor decompresses Zlib
type ZlibDecompressor struct {
	outputBuffer *bytes.Buffer
	reader       io.ReadCloser
}

func NewZlibDecompressor() *ZlibDecompressor {
	return &ZlibDecompressor{outputBuffer: new(bytes.Buffer)}
}

func (d *ZlibDecompressor) Decompress(b []byte) ([]byte, error) {
	inputBuffer := bytes.NewBuffer(b)
	if d.reader == nil {
		reader, err := zlib.NewReader(inputBuffer)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		d.reader = reader
	} else {
		if err := d.reader.(zlib.Resetter).Reset(inputBuffer, nil); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	d.outputBuffer.Reset()

	if _, err := io.Copy(d.outputBuffer, d.reader); err != nil {
		return nil, errors.WithStack(err)
	}
	out := make([]byte, d.outputBuffer.Len())
	copy(out, d.outputBuffer.Bytes())
	return out, nil
}
