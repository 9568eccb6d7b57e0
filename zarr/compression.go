package zarr

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"sync"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/qri-io/dataset/compression"
)

// ErrUnsupportedCodec is returned for compressor or filter ids this package
// cannot encode or decode
var ErrUnsupportedCodec = errors.New("unsupported codec")

// Compressor ids, matching numcodecs
const (
	CodecZstd  = "zstd"
	CodecZlib  = "zlib"
	CodecGzip  = "gzip"
	CodecLZ4   = "lz4"
	CodecBlosc = "blosc"
)

// CompressionMeta is the "compressor" object of an array's metadata.
// A nil *CompressionMeta means chunks are stored uncompressed.
type CompressionMeta struct {
	ID    string `json:"id"`
	Level int    `json:"level,omitempty"`
	// lz4
	Acceleration int `json:"acceleration,omitempty"`
	// blosc
	Cname   string `json:"cname,omitempty"`
	Clevel  int    `json:"clevel,omitempty"`
	Shuffle int    `json:"shuffle,omitempty"`
}

// zstd coders are safe for concurrent EncodeAll and DecodeAll calls and are
// kept for reuse, one encoder per level
var (
	zstdEncoders sync.Map // zstd.EncoderLevel -> *zstd.Encoder
	zstdDecoder  = newZstdDecoder()
)

func newZstdDecoder() *zstd.Decoder {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("creating zstd decoder: %v", err))
	}
	return dec
}

func zstdEncoder(level int) (*zstd.Encoder, error) {
	l := zstd.EncoderLevelFromZstd(level)
	if enc, ok := zstdEncoders.Load(l); ok {
		return enc.(*zstd.Encoder), nil
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(l))
	if err != nil {
		return nil, err
	}
	actual, loaded := zstdEncoders.LoadOrStore(l, enc)
	if loaded {
		enc.Close()
	}
	return actual.(*zstd.Encoder), nil
}

// DefaultCompressor is zstd at level 1
func DefaultCompressor() *CompressionMeta {
	return &CompressionMeta{ID: CodecZstd, Level: 1}
}

// ParseCompressor builds compressor metadata from an id and level. The id
// "none" (or "") yields a nil compressor.
func ParseCompressor(id string, level int) (*CompressionMeta, error) {
	switch id {
	case "", "none":
		return nil, nil
	case CodecZstd, CodecZlib, CodecGzip:
		return &CompressionMeta{ID: id, Level: level}, nil
	case CodecLZ4:
		return &CompressionMeta{ID: id, Acceleration: 1}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCodec, id)
	}
}

func (m *CompressionMeta) String() string {
	if m == nil {
		return "none"
	}
	return m.ID
}

// Compress encodes one chunk
func (m *CompressionMeta) Compress(raw []byte) ([]byte, error) {
	if m == nil {
		return raw, nil
	}

	switch m.ID {
	case CodecZstd:
		enc, err := zstdEncoder(m.Level)
		if err != nil {
			return nil, err
		}
		return enc.EncodeAll(raw, nil), nil
	case CodecZlib:
		buf := &bytes.Buffer{}
		w, err := zlib.NewWriterLevel(buf, m.Level)
		if err != nil {
			return nil, err
		}
		return finish(buf, w, raw)
	case CodecGzip:
		buf := &bytes.Buffer{}
		w, err := compression.Compressor(CodecGzip, buf)
		if err != nil {
			return nil, err
		}
		return finish(buf, w, raw)
	case CodecLZ4:
		// numcodecs prefixes the lz4 block with the decoded size
		dst := make([]byte, 4+lz4.CompressBlockBound(len(raw)))
		binary.LittleEndian.PutUint32(dst, uint32(len(raw)))
		n, err := lz4.CompressBlock(raw, dst[4:], nil)
		if err != nil {
			return nil, err
		}
		return dst[:4+n], nil
	default:
		return nil, fmt.Errorf("%w: compressor %q", ErrUnsupportedCodec, m.ID)
	}
}

func finish(buf *bytes.Buffer, w io.WriteCloser, raw []byte) ([]byte, error) {
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress decodes one chunk
func (m *CompressionMeta) Decompress(data []byte) ([]byte, error) {
	if m == nil {
		return data, nil
	}

	switch m.ID {
	case CodecZstd:
		return zstdDecoder.DecodeAll(data, nil)
	case CodecLZ4:
		if len(data) < 4 {
			return nil, fmt.Errorf("lz4 chunk is too short")
		}
		dst := make([]byte, binary.LittleEndian.Uint32(data))
		n, err := lz4.UncompressBlock(data[4:], dst)
		if err != nil {
			return nil, err
		}
		return dst[:n], nil
	case CodecZlib, CodecGzip:
		rc, err := m.Decompressor(ioutil.NopCloser(bytes.NewReader(data)))
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return ioutil.ReadAll(rc)
	default:
		return nil, fmt.Errorf("%w: compressor %q", ErrUnsupportedCodec, m.ID)
	}
}

// Decompressor wraps a stream of compressed chunk bytes
func (m *CompressionMeta) Decompressor(r io.ReadCloser) (io.ReadCloser, error) {
	if m == nil {
		return r, nil
	}
	switch m.ID {
	case CodecZlib:
		return zlib.NewReader(r)
	case CodecGzip:
		return compression.Decompressor(CodecGzip, r)
	default:
		return nil, fmt.Errorf("%w: streaming %q", ErrUnsupportedCodec, m.ID)
	}
}
