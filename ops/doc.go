/*
Package ops holds the typed NETCONF operations of RFC6241 s7 and s8.

Each Operation encodes itself as the payload of an <rpc> and checks its
preconditions against a session's negotiated capabilities first, so a
request the peer cannot serve is refused with
*ncerr.UnsupportedOperationError before anything is sent. Parse is the
inverse of encoding, used by servers to decode received requests; the
Result functions turn replies into typed results.
*/
package ops
