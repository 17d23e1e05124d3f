/*
Package ncrpc is a set of NETCONF (RFC6241) session and RPC exchange
libraries, with a client and a server built on them.

Messages are framed per RFC6242, with end-of-message framing for NETCONF
1.0 and chunked framing once both peers advertise base:1.1. A session
performs the hello exchange, then correlates each rpc-reply with its
request by message-id, bounding each request with a timeout.

The framing, transport, capability, message and ops packages hold the
wire formats and typed operations. The session package is the protocol
state machine shared by clients and servers. The client and server
packages, with the server/memstore datastore, are built on it and are
used by the commands in cmd/.
*/
package ncrpc
