package transport

import (
	"io"

	"github.com/andaru/ncrpc/framing"
	"github.com/andaru/ncrpc/ncerr"
)

// Writer is a RFC6242 NETCONF transport encoder.
//
// It supports both RFC4742, NETCONF 1.0 end-of-message framing
// as well as NETCONF 1.1 chunked framing. Writer is not safe for
// concurrent use; callers serialize messages.
type Writer struct {
	dst      io.Writer
	chunked  bool
	maxChunk int
	switched bool
}

// NewWriter returns a new Writer writing to dst, using chunks of at most
// maxChunk bytes once chunked framing is selected.
func NewWriter(dst io.Writer, maxChunk int) *Writer {
	return &Writer{dst: dst, maxChunk: maxChunk}
}

// WriteMessage frames payload for the current framing mode and writes it
// to the destination in a single write.
func (w *Writer) WriteMessage(payload []byte) error {
	var (
		frame []byte
		err   error
	)
	if w.chunked {
		frame, err = framing.EncodeChunked(payload, w.maxChunk)
	} else {
		frame, err = framing.EncodeEOM(payload)
	}
	if err != nil {
		return err
	}
	n, err := w.dst.Write(frame)
	if err == nil && n < len(frame) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return &ncerr.TransportError{Op: "write", Err: err}
	}
	return nil
}

// SetFramingMode sets the framing mode of the Writer. If chunked is
// true, chunked framing will be used, else end-of-message framing
// is used.
func (w *Writer) SetFramingMode(chunked bool) {
	if w.switched {
		panic("SetFramingMode must only be called once")
	}
	w.chunked, w.switched = chunked, true
}
