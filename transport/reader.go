package transport

import (
	"bufio"
	"bytes"
	"io"

	"github.com/andaru/ncrpc/framing"
	"github.com/andaru/ncrpc/ncerr"
	"github.com/pkg/errors"
)

// Reader is a NETCONF transport decoder yielding whole messages.
//
// NETCONF sessions exchange request/response and broadcast messages via
// the transport. Data sent on the wire is encoded according to the framing
// mode presently chosen; initially (and always, for :base:1.0 sessions),
// messages are sent verbatim and terminated by the end of message token.
// After the <hello> message, :base:1.1 sessions use a chunked framing
// mechanism with the same message semantics (see RFC6242, s4.2).
//
// Bytes read ahead of the <hello> message remain buffered and are decoded
// with whichever framing mode is current when the next message is read.
type Reader struct {
	scanner  *bufio.Scanner
	framing  bufio.SplitFunc
	max      int
	switched bool
	err      error
}

const (
	readerBufsize = 64 * 1024
	// readerSlack is the framing overhead allowed beyond the message size limit
	readerSlack = 64 * 1024
)

// NewReader returns a new Reader decoding messages of up to maxMessageSize
// bytes from source. A maxMessageSize of zero selects framing.DefaultMaxMessageSize.
func NewReader(source io.Reader, maxMessageSize int) *Reader {
	if source == nil {
		panic("NewReader: source must be non-nil")
	}
	if maxMessageSize <= 0 {
		maxMessageSize = framing.DefaultMaxMessageSize
	}
	r := &Reader{max: maxMessageSize, framing: framing.SplitEOM(maxMessageSize)}
	bufsize := readerBufsize
	if bufsize > maxMessageSize+readerSlack {
		bufsize = maxMessageSize + readerSlack
	}
	r.scanner = bufio.NewScanner(source)
	r.scanner.Buffer(make([]byte, bufsize), maxMessageSize+readerSlack)
	r.scanner.Split(func(b []byte, eof bool) (int, []byte, error) { return r.framing(b, eof) })
	return r
}

// ReadMessage returns the next message. It returns io.EOF when the source
// ends cleanly between messages, *ncerr.FramingError for framing violations
// and *ncerr.TransportError when the source fails. Once an error has been
// returned, the Reader returns that error to all further calls.
func (r *Reader) ReadMessage() ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	for r.scanner.Scan() {
		msg := r.scanner.Bytes()
		if len(bytes.TrimSpace(msg)) == 0 {
			continue
		}
		out := make([]byte, len(msg))
		copy(out, msg)
		return out, nil
	}
	r.err = r.classify(r.scanner.Err())
	return nil, r.err
}

func (r *Reader) classify(err error) error {
	var fe *ncerr.FramingError
	switch {
	case err == nil:
		return io.EOF
	case errors.Is(err, bufio.ErrTooLong):
		return &ncerr.FramingError{Reason: "message exceeds maximum size", Offset: r.max, Err: err}
	case errors.As(err, &fe):
		return fe
	}
	return &ncerr.TransportError{Op: "read", Err: err}
}

// SetFramingMode sets the NETCONF transport framing to end of message
// mode (chunked=false) or chunked framing mode (chunked=true).
func (r *Reader) SetFramingMode(chunked bool) {
	if r.switched {
		panic("SetFramingMode must only be called once")
	}
	if chunked {
		r.framing = framing.SplitChunked(r.max)
	} else {
		r.framing = framing.SplitEOM(r.max)
	}
	r.switched = true
}
