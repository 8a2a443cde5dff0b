package transport

import (
	"io"

	"github.com/kstaniek/go-gd32can/can"
	"github.com/kstaniek/go-gd32can/internal/wire"
)

// FrameDecoder decodes a single CAN message from a stream.
type FrameDecoder interface {
	Decode(r io.Reader) (can.Message, error)
}

// MultiFrameDecoder optionally drains multiple messages from a stream.
type MultiFrameDecoder interface {
	DecodeN(r io.Reader, max int, onMsg func(can.Message)) (int, error)
}

// FrameBatchEncoder can encode batches efficiently (either to bytes or directly to writer).
type FrameBatchEncoder interface {
	Encode([]can.Message) []byte
	EncodeTo(w io.Writer, msgs []can.Message) (int, error)
}

// FrameSink is a generic CAN message transmission target.
type FrameSink interface {
	SendFrame(can.Message) error
}

// Compile-time assertions that *wire.Codec satisfies the optional capabilities.
var (
	_ FrameDecoder      = (*wire.Codec)(nil)
	_ MultiFrameDecoder = (*wire.Codec)(nil)
	_ FrameBatchEncoder = (*wire.Codec)(nil)
)
