package compress

import (
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
)

// Codec names a compression scheme in configuration.
type Codec string

const (
	None   Codec = "none"
	Snappy Codec = "snappy"
	Zlib   Codec = "zlib"
)

var validCodecs = map[Codec]bool{None: true, Snappy: true, Zlib: true}

func (c *Codec) UnmarshalText(text []byte) error {
	s := Codec(strings.ToLower(strings.TrimSpace(string(text))))
	if s == "" {
		s = None
	}
	if !validCodecs[s] {
		return errors.Errorf("unknown compression %q; valid values are %v", string(text), maps.Keys(validCodecs))
	}
	*c = s
	return nil
}

// NewCompressor returns a fresh, unshared Compressor for the codec.
func NewCompressor(c Codec) (Compressor, error) {
	switch c {
	case "", None:
		return &NoOpCompressor{}, nil
	case Snappy:
		return NewSnappyCompressor(), nil
	case Zlib:
		return NewZlibCompressor()
	}
	return nil, errors.Errorf("unknown compression %q", c)
}

// NewDecompressor returns a fresh, unshared Decompressor for the codec.
func NewDecompressor(c Codec) (Decompressor, error) {
	switch c {
	case "", None:
		return &NoOpDecompressor{}, nil
	case Snappy:
		return &SnappyDecompressor{}, nil
	case Zlib:
		return NewZlibDecompressor(), nil
	}
	return nil, errors.Errorf("unknown compression %q", c)
}
