/*
Package transport provides the NETCONF transport layer.

The transport layer provides a Reader yielding whole decoded messages and
a Writer framing whole messages for the underlying Channel. The Channel
itself is established elsewhere; DialSSH and ServeSSH establish Channels
over the SSH "netconf" subsystem (RFC6242) for clients and servers.
*/
package transport
