package framing

import (
	"bufio"
	"bytes"
	"io"
	"strconv"

	"github.com/andaru/ncrpc/ncerr"
	"github.com/pkg/errors"
)

const (
	// DefaultMaxMessageSize is the message size limit used when none is configured.
	DefaultMaxMessageSize = 16 * 1024 * 1024
	// DefaultMaxChunkSize is the largest chunk written by EncodeChunked by default.
	DefaultMaxChunkSize = 64 * 1024

	// maxChunkSize is the RFC6242 chunk-size upper bound
	maxChunkSize = 4294967295
	// maxChunkDigits is the number of digits in maxChunkSize
	maxChunkDigits = 10
)

var (
	// tokenEOM is the message termination token found in end-of-message encoding streams
	tokenEOM = []byte("]]>]]>")
	// tokenEOC is the end-of-chunks marker terminating a chunked message
	tokenEOC = []byte("\n##\n")
)

func badFrame(reason string, offset int) error {
	return &ncerr.FramingError{Reason: reason, Offset: offset}
}

func tooLarge(size, limit int) error {
	return &ncerr.FramingError{
		Reason: "message exceeds maximum size " + strconv.Itoa(limit),
		Offset: size,
	}
}

func closedMidFrame() error {
	return &ncerr.FramingError{Reason: "channel closed mid-frame", Offset: -1, Err: io.ErrUnexpectedEOF}
}

func limit(max int) int {
	if max <= 0 {
		return DefaultMaxMessageSize
	}
	return max
}

// SplitEOM returns a bufio.SplitFunc suitable for RFC6242
// "end-of-message delimited" NETCONF transport streams.
//
// Each token is one complete message, without the ]]>]]> delimiter.
// Whitespace following the last message is ignored at EOF.
func SplitEOM(max int) bufio.SplitFunc {
	max = limit(max)
	return func(b []byte, atEOF bool) (advance int, token []byte, err error) {
		if idx := bytes.Index(b, tokenEOM); idx > -1 {
			if idx > max {
				return 0, nil, tooLarge(idx, max)
			}
			return idx + len(tokenEOM), b[:idx], nil
		}
		if len(b) > max+len(tokenEOM) {
			return 0, nil, tooLarge(len(b), max)
		}
		if atEOF {
			if len(bytes.TrimSpace(b)) == 0 {
				return len(b), nil, nil
			}
			return 0, nil, closedMidFrame()
		}
		return 0, nil, nil
	}
}

// SplitChunked returns a bufio.SplitFunc suitable for decoding
// "chunked framing" NETCONF transport streams.
//
// Each token is the concatenated data of all chunks of one message.
// The scanner buffer must be able to hold a complete framed message.
func SplitChunked(max int) bufio.SplitFunc {
	max = limit(max)
	return func(b []byte, atEOF bool) (advance int, token []byte, err error) {
		if atEOF && len(b) == 0 {
			return 0, nil, nil
		}
		var (
			msg    []byte
			pos    int
			chunks int
		)
		for {
			rest := b[pos:]
			if len(rest) < len(tokenEOC) {
				if atEOF {
					return 0, nil, closedMidFrame()
				}
				return 0, nil, nil
			}
			if rest[0] != '\n' || rest[1] != '#' {
				return 0, nil, badFrame("bad chunk header", pos)
			}
			if rest[2] == '#' {
				if rest[3] != '\n' {
					return 0, nil, badFrame("bad end-of-chunks marker", pos)
				}
				if chunks == 0 {
					return 0, nil, badFrame("message has no chunks", pos)
				}
				if msg == nil {
					msg = []byte{}
				}
				return pos + len(tokenEOC), msg, nil
			}
			if rest[2] < '1' || rest[2] > '9' {
				return 0, nil, badFrame("bad chunk-size", pos)
			}
			nl := bytes.IndexByte(rest[2:], '\n')
			if nl < 0 {
				switch {
				case len(rest)-2 > maxChunkDigits:
					return 0, nil, badFrame("chunk-size too long", pos)
				case atEOF:
					return 0, nil, closedMidFrame()
				}
				return 0, nil, nil
			}
			if nl > maxChunkDigits {
				return 0, nil, badFrame("chunk-size too long", pos)
			}
			size, perr := strconv.ParseUint(string(rest[2:2+nl]), 10, 64)
			if perr != nil || size > maxChunkSize {
				return 0, nil, badFrame("bad chunk-size", pos)
			}
			if len(msg)+int(size) > max {
				return 0, nil, tooLarge(len(msg)+int(size), max)
			}
			start := pos + 2 + nl + 1
			end := start + int(size)
			if end > len(b) {
				if atEOF {
					return 0, nil, closedMidFrame()
				}
				return 0, nil, nil
			}
			msg = append(msg, b[start:end]...)
			pos = end
			chunks++
		}
	}
}

// EncodeEOM returns payload framed for end-of-message transport.
func EncodeEOM(payload []byte) ([]byte, error) {
	if bytes.Contains(payload, tokenEOM) {
		return nil, errors.New("message contains the end-of-message token")
	}
	out := make([]byte, 0, len(payload)+len(tokenEOM))
	out = append(out, payload...)
	return append(out, tokenEOM...), nil
}

// EncodeChunked returns payload framed as one chunked message, using chunks
// of at most maxChunk bytes (DefaultMaxChunkSize if maxChunk is not positive).
func EncodeChunked(payload []byte, maxChunk int) ([]byte, error) {
	if len(payload) == 0 {
		return nil, errors.New("cannot encode an empty chunked message")
	}
	if maxChunk <= 0 || maxChunk > maxChunkSize {
		maxChunk = DefaultMaxChunkSize
	}
	var out bytes.Buffer
	out.Grow(len(payload) + 16*(len(payload)/maxChunk+1) + len(tokenEOC))
	for len(payload) > 0 {
		n := len(payload)
		if n > maxChunk {
			n = maxChunk
		}
		out.WriteString("\n#")
		out.WriteString(strconv.Itoa(n))
		out.WriteByte('\n')
		out.Write(payload[:n])
		payload = payload[n:]
	}
	out.Write(tokenEOC)
	return out.Bytes(), nil
}
