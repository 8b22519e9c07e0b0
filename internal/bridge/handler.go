package bridge

import (
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/danmuck/edgebridge/internal/protocol/frame"
)

// deviceHandler drives one Conn through open -> closing -> closed.
type deviceHandler struct {
	conn     *Conn
	registry *Registry
	sink     FrameSink
	bufSize  int
}

func (h *deviceHandler) dev() Device {
	return Device{ConnID: h.conn.ID(), Remote: h.conn.RemoteAddr()}
}

// run blocks until the transport closes or fails. Each Read is one frame.
func (h *deviceHandler) run() error {
	h.conn.setState(StateOpen)
	h.registry.Register(h.conn)
	go h.conn.writeLoop()

	buf := make([]byte, h.bufSize)
	var cause error
	for {
		n, err := h.conn.nc.Read(buf)
		if n > 0 {
			h.deliver(buf[:n])
		}
		if err != nil {
			cause = err
			break
		}
	}
	return h.teardown(cause)
}

func (h *deviceHandler) teardown(cause error) error {
	h.conn.setState(StateClosing)
	h.registry.Unregister(h.conn)
	_ = h.conn.Close()
	h.conn.setState(StateClosed)

	if werr := h.conn.Err(); werr != nil {
		cause = werr
	}
	if cause == nil || errors.Is(cause, io.EOF) || errors.Is(cause, net.ErrClosed) {
		return nil
	}
	return cause
}

// deliver classifies and reports one delivery. A fault here stays with this
// connection.
func (h *deviceHandler) deliver(chunk []byte) {
	logger := h.conn.logger
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Int("bytes", len(chunk)).
				Str("panic", fmt.Sprint(r)).
				Msg("frame handler fault, payload dropped")
		}
	}()

	in := frame.Classify(chunk)
	switch in.Kind {
	case frame.KindIncomplete:
		logger.Debug().Hex("raw", in.Raw).Int("bytes", in.Size).Msg("frame incomplete, not enough bytes")
	case frame.KindScalar:
		logger.Info().
			Uint32("value", in.Scalar.Value).
			Str("hex", in.Scalar.Hex).
			Str("binary", in.Scalar.Binary).
			Int("bytes", in.Size).
			Msg("frame scalar")
	case frame.KindAnchorReport:
		logger.Info().RawJSON("a1", in.A1).Msg("frame anchor_report")
	case frame.KindMalformed:
		logger.Warn().Err(in.Err).Int("bytes", in.Size).Msg("frame malformed")
	}
	if h.sink != nil {
		h.sink.ObserveFrame(h.dev(), in)
	}
}
