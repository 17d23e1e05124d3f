package transport

import "io"

// Channel is an established, ordered, reliable and full-duplex byte stream
// carrying one NETCONF session, such as an SSH "netconf" subsystem channel.
//
// Close shuts down the channel; a blocked Read must then return an error.
type Channel interface {
	io.ReadWriteCloser
}
