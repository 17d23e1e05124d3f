package framing

import (
	"bufio"
	"fmt"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/andaru/ncrpc/ncerr"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func scanAll(split bufio.SplitFunc, input string, oneByte bool) (msgs []string, err error) {
	var r = strings.NewReader(input)
	scanner := bufio.NewScanner(r)
	if oneByte {
		scanner = bufio.NewScanner(iotest.OneByteReader(r))
	}
	scanner.Buffer(make([]byte, 16), 4096)
	scanner.Split(split)
	for scanner.Scan() {
		msgs = append(msgs, scanner.Text())
	}
	return msgs, scanner.Err()
}

func TestFramingEOM(t *testing.T) {
	for _, tc := range []struct {
		input  string
		want   []string
		hasErr bool
	}{
		{},
		{input: "]]>]]>", want: []string{""}},
		{input: "foo]]>]]>", want: []string{"foo"}},
		{input: "foo]]>]]>bar]]>]]>bazoopa]]>]]>", want: []string{"foo", "bar", "bazoopa"}},
		{input: "]]>]]foo]]>]]>bar]]]>]]>", want: []string{"]]>]]foo", "bar]"}},
		{input: "foo>]]>bar]]>]]>", want: []string{"foo>]]>bar"}},
		{input: "<hello/>]]>]]>\n  \n", want: []string{"<hello/>"}},
		{input: "foo", hasErr: true},
		{input: "foo]]>]]>bar]]>]]>bazoopa", want: []string{"foo", "bar"}, hasErr: true},
		{input: "a]]>]]>b]]>]]>c", want: []string{"a", "b"}, hasErr: true},
	} {
		for _, oneByte := range []bool{false, true} {
			t.Run(fmt.Sprintf("%q/%v", tc.input, oneByte), func(t *testing.T) {
				ck := assert.New(t)
				got, err := scanAll(SplitEOM(0), tc.input, oneByte)
				ck.Equal(tc.want, got)
				if tc.hasErr {
					var fe *ncerr.FramingError
					ck.True(errors.As(err, &fe), "want *ncerr.FramingError, got %v", err)
				} else {
					ck.NoError(err)
				}
			})
		}
	}
}

func TestFramingChunked(t *testing.T) {
	for _, tc := range []struct {
		input   string
		want    []string
		wantErr string
	}{
		{},
		{input: "\n#1\na\n##\n", want: []string{"a"}},
		{input: "\n#3\nfoo\n#3\nbar\n##\n\n#1\nz\n##\n", want: []string{"foobar", "z"}},
		{input: "\n#9\n012345678\n##\n", want: []string{"012345678"}},
		{input: "\n#10\n0123456789\n##\n", want: []string{"0123456789"}},
		{input: "\n#9\n0123456789\n##\n", wantErr: "bad chunk header"},
		{input: "\n#03\n", wantErr: "bad chunk-size"},
		{input: "\n#1a\nb\n##\n", wantErr: "bad chunk-size"},
		{input: "\n#\na", wantErr: "bad chunk-size"},
		{input: "\n#92147483648\n", wantErr: "chunk-size too long"},
		{input: "\n#4294967296\n", wantErr: "bad chunk-size"},
		{input: "\n##\n", wantErr: "message has no chunks"},
		{input: "\n#1\na\n##x", wantErr: "bad end-of-chunks marker"},
		{input: "foo]]>]]>bar", wantErr: "bad chunk header"},
		{input: "\n#9\n012", wantErr: "channel closed mid-frame"},
		{input: "\n#1\na\n##", wantErr: "channel closed mid-frame"},
		{input: "\n#1\na\n##\n ", want: []string{"a"}, wantErr: "channel closed mid-frame"},
		{input: "\n#5000\n", wantErr: "message exceeds maximum size 4096"},
	} {
		for _, oneByte := range []bool{false, true} {
			t.Run(fmt.Sprintf("%q/%v", tc.input, oneByte), func(t *testing.T) {
				ck := assert.New(t)
				got, err := scanAll(SplitChunked(4096), tc.input, oneByte)
				ck.Equal(tc.want, got)
				if tc.wantErr == "" {
					ck.NoError(err)
					return
				}
				var fe *ncerr.FramingError
				if ck.True(errors.As(err, &fe), "want *ncerr.FramingError, got %v", err) {
					ck.Equal(tc.wantErr, fe.Reason)
				}
			})
		}
	}
}

func TestSplitEOMMaxSize(t *testing.T) {
	ck := assert.New(t)
	_, err := scanAll(SplitEOM(8), "0123456789]]>]]>", false)
	var fe *ncerr.FramingError
	ck.True(errors.As(err, &fe))

	got, err := scanAll(SplitEOM(8), "01234567]]>]]>", false)
	ck.NoError(err)
	ck.Equal([]string{"01234567"}, got)
}

func TestEncodeEOM(t *testing.T) {
	ck := assert.New(t)
	b, err := EncodeEOM([]byte("<rpc/>"))
	ck.NoError(err)
	ck.Equal("<rpc/>]]>]]>", string(b))

	_, err = EncodeEOM([]byte("<data>]]>]]></data>"))
	ck.Error(err)
}

func TestEncodeChunked(t *testing.T) {
	for _, tc := range []struct {
		payload  string
		maxChunk int
		want     string
	}{
		{payload: "a", want: "\n#1\na\n##\n"},
		{payload: "abcdef", maxChunk: 4, want: "\n#4\nabcd\n#2\nef\n##\n"},
		{payload: "abcd", maxChunk: 2, want: "\n#2\nab\n#2\ncd\n##\n"},
	} {
		t.Run(tc.payload, func(t *testing.T) {
			ck := assert.New(t)
			b, err := EncodeChunked([]byte(tc.payload), tc.maxChunk)
			ck.NoError(err)
			ck.Equal(tc.want, string(b))

			// the decoder must recover the payload
			got, err := scanAll(SplitChunked(0), string(b), true)
			ck.NoError(err)
			ck.Equal([]string{tc.payload}, got)
		})
	}

	_, err := EncodeChunked(nil, 0)
	assert.Error(t, err)
}
